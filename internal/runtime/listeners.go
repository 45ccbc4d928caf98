package runtime

import (
	"reflect"
	"sync"

	"github.com/drblury/netshell/transport"
)

// StartListener is notified once the transport has started serving.
type StartListener interface {
	OnStart(server *Server) error
}

// ConnectListener is notified for every new client. The client is already
// registered with the server when OnConnect runs.
type ConnectListener interface {
	OnConnect(server *Server, client *Client) error
}

// ReceiveListener is notified for every frame read from a client.
type ReceiveListener interface {
	OnReceive(server *Server, client *Client, data []byte) error
}

// CloseListener is notified when a client disconnects. The client stays
// registered until every close listener has returned.
type CloseListener interface {
	OnClose(server *Server, client *Client) error
}

// ShutdownListener is notified once the transport has shut down.
type ShutdownListener interface {
	OnShutdown(server *Server) error
}

// RequestListener answers HTTP requests. A nil response leaves the response
// produced by earlier listeners untouched.
type RequestListener interface {
	OnRequest(req *Request) (*Response, error)
}

// StartFunc adapts a function to StartListener.
type StartFunc func(server *Server) error

func (f StartFunc) OnStart(server *Server) error { return f(server) }

// ConnectFunc adapts a function to ConnectListener.
type ConnectFunc func(server *Server, client *Client) error

func (f ConnectFunc) OnConnect(server *Server, client *Client) error { return f(server, client) }

// ReceiveFunc adapts a function to ReceiveListener.
type ReceiveFunc func(server *Server, client *Client, data []byte) error

func (f ReceiveFunc) OnReceive(server *Server, client *Client, data []byte) error {
	return f(server, client, data)
}

// CloseFunc adapts a function to CloseListener.
type CloseFunc func(server *Server, client *Client) error

func (f CloseFunc) OnClose(server *Server, client *Client) error { return f(server, client) }

// ShutdownFunc adapts a function to ShutdownListener.
type ShutdownFunc func(server *Server) error

func (f ShutdownFunc) OnShutdown(server *Server) error { return f(server) }

// RequestFunc adapts a function to RequestListener.
type RequestFunc func(req *Request) (*Response, error)

func (f RequestFunc) OnRequest(req *Request) (*Response, error) { return f(req) }

// ListenerKinds reports the event kinds a listener subscribes to, derived from
// the listener interfaces it implements.
func ListenerKinds(listener any) []transport.EventKind {
	var kinds []transport.EventKind
	if _, ok := listener.(StartListener); ok {
		kinds = append(kinds, transport.EventStart)
	}
	if _, ok := listener.(ConnectListener); ok {
		kinds = append(kinds, transport.EventConnect)
	}
	if _, ok := listener.(ReceiveListener); ok {
		kinds = append(kinds, transport.EventReceive)
	}
	if _, ok := listener.(CloseListener); ok {
		kinds = append(kinds, transport.EventClose)
	}
	if _, ok := listener.(ShutdownListener); ok {
		kinds = append(kinds, transport.EventShutdown)
	}
	if _, ok := listener.(RequestListener); ok {
		kinds = append(kinds, transport.EventRequest)
	}
	return kinds
}

// ListenerRegistry keeps one ordered queue of listeners per event kind.
// Queues are copied on write, so a snapshot taken for dispatch is never
// affected by listeners added or removed while it is being iterated.
type ListenerRegistry struct {
	mu     sync.RWMutex
	queues map[transport.EventKind][]any
}

// NewListenerRegistry returns an empty registry.
func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{queues: make(map[transport.EventKind][]any)}
}

// Add appends listener to the queue of every kind it implements and returns
// those kinds. Listeners implementing nothing are ignored. Adding the same
// listener twice registers it twice.
func (r *ListenerRegistry) Add(listener any) []transport.EventKind {
	kinds := ListenerKinds(listener)
	if len(kinds) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, kind := range kinds {
		q := r.queues[kind]
		r.queues[kind] = append(q[:len(q):len(q)], listener)
	}
	return kinds
}

// Remove drops every registration of listener and reports whether any existed.
func (r *ListenerRegistry) Remove(listener any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := false
	for kind, q := range r.queues {
		kept := make([]any, 0, len(q))
		for _, l := range q {
			if sameListener(l, listener) {
				removed = true
				continue
			}
			kept = append(kept, l)
		}
		if len(kept) == len(q) {
			continue
		}
		if len(kept) == 0 {
			delete(r.queues, kind)
			continue
		}
		r.queues[kind] = kept
	}
	return removed
}

// Has reports whether this exact listener is registered for any kind.
func (r *ListenerRegistry) Has(listener any) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, q := range r.queues {
		for _, l := range q {
			if sameListener(l, listener) {
				return true
			}
		}
	}
	return false
}

// Snapshot returns the listeners registered for kind in registration order.
// The returned slice must not be modified.
func (r *ListenerRegistry) Snapshot(kind transport.EventKind) []any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.queues[kind]
}

// Count returns the number of registrations for kind.
func (r *ListenerRegistry) Count(kind transport.EventKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.queues[kind])
}

// sameListener compares by identity. Pointers compare by address, func
// adapters by their code pointer, anything else comparable with ==.
func sameListener(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Func, reflect.Map, reflect.Slice:
		return va.Pointer() == vb.Pointer()
	}
	return false
}
