// Package transport defines the boundary between a netshell server and the
// component that owns sockets and the event loop. Each transport implementation
// (tcp, websocket, http, memory) lives in its own sub-package and registers
// itself with the transport registry.
package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill"
)

// EventKind names one of the lifecycle events a transport emits.
type EventKind int

const (
	EventStart EventKind = iota + 1
	EventConnect
	EventReceive
	EventClose
	EventShutdown
	EventRequest
)

var eventNames = map[EventKind]string{
	EventStart:    "Start",
	EventConnect:  "Connect",
	EventReceive:  "Receive",
	EventClose:    "Close",
	EventShutdown: "Shutdown",
	EventRequest:  "Request",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Kinds returns every event kind in declaration order.
func Kinds() []EventKind {
	return []EventKind{EventStart, EventConnect, EventReceive, EventClose, EventShutdown, EventRequest}
}

// Event carries the arguments of one transport callback. ClientID is zero for
// Start and Shutdown. Request and Response are only set for EventRequest.
type Event struct {
	Kind      EventKind
	ClientID  int
	ReactorID int
	Data      []byte
	Request   *HTTPRequest
	Response  HTTPResponse
}

// Callback is registered with Handler.On. A returned error is handled by the
// transport's own policy, which for the built-in transports is log and continue.
type Callback func(Event) error

// Handler is the narrow contract a server consumes from a transport.
//
// Start binds the listener and begins serving in the background. Every callback
// runs on the transport's event loop, one event at a time. Client operations
// report success as a bool, mirroring the transport's own result.
type Handler interface {
	On(kind EventKind, cb Callback)
	Start() error
	Shutdown() error

	Send(id int, data []byte) bool
	SendAndWait(id int, data []byte) bool
	Pause(id int) bool
	Resume(id int) bool
	Protect(id int) bool
	Confirm(id int) bool
	Close(id int) bool
	Exists(id int) bool

	ClientInfo(id int) map[string]any
	Stats() map[string]any
}

// Waiter is implemented by handlers whose event loop keeps draining after
// Shutdown returns. Done is closed once the last callback has finished.
type Waiter interface {
	Done() <-chan struct{}
}

// HTTPRequest is the transport's view of one inbound HTTP request.
type HTTPRequest struct {
	ClientID   int
	Method     string
	URI        string
	Proto      string
	Header     http.Header
	Body       []byte
	RemoteAddr string
	Context    context.Context
}

// HTTPResponse is the transport side of an HTTP response. Header adds a value,
// DelHeader removes a header the transport would otherwise emit, Gzip asks the
// transport to compress the body it writes on End.
type HTTPResponse interface {
	Header(key, value string)
	DelHeader(key string)
	Status(code int)
	Gzip(level int) bool
	End(body []byte) error
}

// Builder is the function signature for creating a transport handler from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Handler, error)

// Config provides the configuration values needed by transports without
// depending on the full config package.
type Config interface {
	// GetTransport returns the transport name.
	GetTransport() string

	GetAddress() string
	GetPort() int

	GetTLSCertFile() string
	GetTLSKeyFile() string

	GetMaxConnections() int
	GetHeartbeatIdle() time.Duration
	GetDelayReceive() bool

	// GetWebSocketPath is the upgrade endpoint used by the websocket transport.
	GetWebSocketPath() string

	// GetSettings returns every configured key using the swoole compatible names.
	GetSettings() map[string]any
}

// CapabilitiesProvider is implemented by handlers that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
