package websocket

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/netshell/transport"
)

type mockConfig struct {
	maxConn int
}

func (m *mockConfig) GetTransport() string            { return TransportName }
func (m *mockConfig) GetAddress() string              { return "127.0.0.1" }
func (m *mockConfig) GetPort() int                    { return 0 }
func (m *mockConfig) GetTLSCertFile() string          { return "" }
func (m *mockConfig) GetTLSKeyFile() string           { return "" }
func (m *mockConfig) GetMaxConnections() int          { return m.maxConn }
func (m *mockConfig) GetHeartbeatIdle() time.Duration { return 0 }
func (m *mockConfig) GetDelayReceive() bool           { return false }
func (m *mockConfig) GetWebSocketPath() string        { return "/ws" }
func (m *mockConfig) GetSettings() map[string]any     { return nil }

func startEcho(t *testing.T, cfg *mockConfig) (*Handler, chan transport.Event) {
	t.Helper()
	h := New(cfg, nil)
	events := make(chan transport.Event, 32)
	for _, kind := range []transport.EventKind{transport.EventConnect, transport.EventClose} {
		h.On(kind, func(ev transport.Event) error {
			events <- ev
			return nil
		})
	}
	h.On(transport.EventReceive, func(ev transport.Event) error {
		events <- ev
		h.SendAndWait(ev.ClientID, ev.Data)
		return nil
	})
	require.NoError(t, h.Start())
	t.Cleanup(func() { _ = h.Shutdown() })
	return h, events
}

func dial(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+h.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitEvent(t *testing.T, events chan transport.Event) transport.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return transport.Event{}
	}
}

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	t.Cleanup(func() { transport.DefaultRegistry = original })
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "websocket", caps.Name)
	assert.True(t, caps.SupportsStreaming())

	h, err := transport.Build(context.Background(), &mockConfig{}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.IsType(t, &Handler{}, h)
}

func TestEchoMessage(t *testing.T) {
	h, events := startEcho(t, &mockConfig{})
	assert.ErrorIs(t, h.Start(), ErrAlreadyStarted)

	conn := dial(t, h)
	connect := waitEvent(t, events)
	assert.Equal(t, transport.EventConnect, connect.Kind)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	received := waitEvent(t, events)
	assert.Equal(t, transport.EventReceive, received.Kind)
	assert.Equal(t, connect.ClientID, received.ClientID)
	assert.Equal(t, "hello", string(received.Data))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, conn.Close())
	closed := waitEvent(t, events)
	assert.Equal(t, transport.EventClose, closed.Kind)
	assert.Equal(t, connect.ClientID, closed.ClientID)
}

func TestServerCloseSendsCloseFrame(t *testing.T) {
	h, events := startEcho(t, &mockConfig{})
	conn := dial(t, h)
	id := waitEvent(t, events).ClientID

	require.True(t, h.Close(id))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Equal(t, transport.EventClose, waitEvent(t, events).Kind)
}

func TestConnectionLimit(t *testing.T) {
	h, events := startEcho(t, &mockConfig{maxConn: 1})
	dial(t, h)
	waitEvent(t, events)

	extra := dial(t, h)
	require.NoError(t, extra.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := extra.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "got %v", err)
}

func TestWrongPathIsNotUpgraded(t *testing.T) {
	h, _ := startEcho(t, &mockConfig{})
	_, resp, err := websocket.DefaultDialer.Dial("ws://"+h.Addr().String()+"/other", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
