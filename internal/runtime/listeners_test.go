package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/netshell/transport"
)

type connectCloseListener struct {
	events []string
}

func (l *connectCloseListener) OnConnect(_ *Server, c *Client) error {
	l.events = append(l.events, "connect")
	return nil
}

func (l *connectCloseListener) OnClose(_ *Server, c *Client) error {
	l.events = append(l.events, "close")
	return nil
}

type valueListener struct{ name string }

func (valueListener) OnStart(*Server) error { return nil }

func TestListenerKinds(t *testing.T) {
	assert.Equal(t, []transport.EventKind{transport.EventConnect, transport.EventClose}, ListenerKinds(&connectCloseListener{}))
	assert.Equal(t, []transport.EventKind{
		transport.EventStart,
		transport.EventConnect,
		transport.EventReceive,
		transport.EventClose,
		transport.EventShutdown,
	}, ListenerKinds(&MetricsListener{}))
	assert.Equal(t, []transport.EventKind{transport.EventRequest}, ListenerKinds(RequestFunc(func(*Request) (*Response, error) { return nil, nil })))
	assert.Empty(t, ListenerKinds(struct{}{}))
}

func TestListenerRegistryAdd(t *testing.T) {
	r := NewListenerRegistry()
	l := &connectCloseListener{}

	assert.Equal(t, []transport.EventKind{transport.EventConnect, transport.EventClose}, r.Add(l))
	assert.Nil(t, r.Add("not a listener"))
	r.Add(l)

	assert.Equal(t, 2, r.Count(transport.EventConnect))
	assert.Equal(t, 2, r.Count(transport.EventClose))
	assert.Zero(t, r.Count(transport.EventReceive))
	assert.Empty(t, r.Snapshot(transport.EventReceive))
}

func TestListenerRegistryKeepsRegistrationOrder(t *testing.T) {
	r := NewListenerRegistry()
	first := &connectCloseListener{}
	second := &connectCloseListener{}
	r.Add(first)
	r.Add(second)

	snapshot := r.Snapshot(transport.EventConnect)
	require.Len(t, snapshot, 2)
	assert.Same(t, first, snapshot[0])
	assert.Same(t, second, snapshot[1])
}

func TestListenerRegistrySnapshotIsStable(t *testing.T) {
	r := NewListenerRegistry()
	first := &connectCloseListener{}
	r.Add(first)

	snapshot := r.Snapshot(transport.EventConnect)
	r.Add(&connectCloseListener{})
	r.Remove(first)

	require.Len(t, snapshot, 1)
	assert.Same(t, first, snapshot[0])
	assert.Equal(t, 1, r.Count(transport.EventConnect))
}

func TestListenerRegistryIdentity(t *testing.T) {
	r := NewListenerRegistry()
	a := &connectCloseListener{}
	b := &connectCloseListener{}
	r.Add(a)

	assert.True(t, r.Has(a))
	assert.False(t, r.Has(b), "structurally equal listeners are different registrations")

	r.Add(valueListener{name: "x"})
	assert.True(t, r.Has(valueListener{name: "x"}))
	assert.False(t, r.Has(valueListener{name: "y"}))

	echo := ReceiveFunc(func(_ *Server, c *Client, data []byte) error { return c.Send(data) })
	other := ReceiveFunc(func(*Server, *Client, []byte) error { return nil })
	r.Add(echo)
	assert.True(t, r.Has(echo))
	assert.False(t, r.Has(other))
	assert.False(t, r.Has(nil))
}

func TestListenerRegistryRemove(t *testing.T) {
	r := NewListenerRegistry()
	a := &connectCloseListener{}
	b := &connectCloseListener{}
	r.Add(a)
	r.Add(b)
	r.Add(a)

	assert.True(t, r.Remove(a))
	assert.False(t, r.Remove(a))
	assert.False(t, r.Has(a))
	assert.Equal(t, []any{b}, r.Snapshot(transport.EventConnect))
	assert.Equal(t, []any{b}, r.Snapshot(transport.EventClose))

	assert.True(t, r.Remove(b))
	assert.Zero(t, r.Count(transport.EventConnect))
}
