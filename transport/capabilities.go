package transport

// Capabilities describes the features supported by a transport backend.
// Use this to introspect what client operations are meaningful at runtime.
type Capabilities struct {
	// SupportsPause indicates Pause and Resume stop and restart delivery of
	// Receive events. When false they only report success.
	SupportsPause bool

	// SupportsProtect indicates protected clients are exempt from idle checks.
	SupportsProtect bool

	// SupportsConfirm indicates the transport can hold back reads of a new
	// connection until it is confirmed.
	SupportsConfirm bool

	// SupportsSendAndWait indicates SendAndWait flushes before returning.
	SupportsSendAndWait bool

	// SupportsHTTP indicates the transport emits Request events.
	SupportsHTTP bool

	// SupportsTLS indicates the transport can terminate TLS.
	SupportsTLS bool

	// SupportsHeartbeat indicates idle connections are closed after the
	// configured heartbeat idle time.
	SupportsHeartbeat bool

	// RunToCompletion indicates every callback runs on a single event loop, one
	// event at a time.
	RunToCompletion bool

	// MaxFrameSize is the largest payload delivered in one Receive event in bytes
	// (0 = unlimited/unknown).
	MaxFrameSize int64

	// Name is the human-readable name of the transport.
	Name string

	// Version is the transport/driver version.
	Version string
}

// RequiresFlowControlEmulation returns true if pausing a client does not stop
// delivery and the application has to drop data itself.
func (c Capabilities) RequiresFlowControlEmulation() bool {
	return !c.SupportsPause
}

// SupportsStreaming returns true if the transport delivers raw connection
// frames through Receive events.
func (c Capabilities) SupportsStreaming() bool {
	return !c.SupportsHTTP
}

// Predefined capability sets for the built-in transports.
var (
	// MemoryCapabilities for the in-process loopback transport.
	MemoryCapabilities = Capabilities{
		Name:                "memory",
		SupportsPause:       true,
		SupportsProtect:     true,
		SupportsConfirm:     true,
		SupportsSendAndWait: true,
		SupportsHTTP:        true,
		RunToCompletion:     true,
	}

	// TCPCapabilities for raw TCP sockets.
	TCPCapabilities = Capabilities{
		Name:                "tcp",
		SupportsPause:       true,
		SupportsProtect:     true,
		SupportsConfirm:     true,
		SupportsSendAndWait: true,
		SupportsTLS:         true,
		SupportsHeartbeat:   true,
		RunToCompletion:     true,
		MaxFrameSize:        65536,
	}

	// WebSocketCapabilities for gorilla/websocket connections.
	WebSocketCapabilities = Capabilities{
		Name:                "websocket",
		SupportsPause:       true,
		SupportsProtect:     true,
		SupportsConfirm:     true,
		SupportsSendAndWait: true,
		SupportsTLS:         true,
		SupportsHeartbeat:   true,
		RunToCompletion:     true,
		MaxFrameSize:        1048576, // Default 1MB
	}

	// HTTPCapabilities for the net/http based transport.
	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsHTTP:    true,
		SupportsTLS:     true,
		RunToCompletion: true,
	}
)
