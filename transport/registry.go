package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

var (
	// ErrUnknownTransport is returned by Build when no builder is registered for
	// the configured transport name.
	ErrUnknownTransport = errors.New("netshell: unknown transport")

	// ErrUnsupportedSetting is returned by Build when the configuration asks for
	// a feature the transport declares it does not have.
	ErrUnsupportedSetting = errors.New("netshell: setting not supported by transport")
)

type entry struct {
	builder Builder
	caps    Capabilities
	// declared is false for transports registered without capabilities; their
	// settings are passed through unchecked.
	declared bool
}

// Registry maps transport names to builders and the capabilities they declare.
// Transport packages register themselves from init.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// DefaultRegistry is the registry used by the netshell server.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a builder without declared capabilities. The name matches the
// Transport config value ("tcp", "websocket", ...).
func (r *Registry) Register(name string, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{builder: builder, caps: Capabilities{Name: name}}
}

// RegisterWithCapabilities adds a builder together with its capabilities. Build
// then rejects configurations the transport cannot honour.
func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{builder: builder, caps: caps, declared: true}
}

// GetCapabilities returns the capabilities of a transport, or a zero set
// carrying only the name when none were declared.
func (r *Registry) GetCapabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[name]; ok {
		return e.caps
	}
	return Capabilities{Name: name}
}

// Build creates the handler for cfg's transport after checking the socket
// settings against the transport's capabilities.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Handler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	name := cfg.GetTransport()
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownTransport, name, r.Names())
	}

	if e.declared {
		if err := checkSettings(e.caps, cfg, logger); err != nil {
			return nil, err
		}
	}
	return e.builder(ctx, cfg, logger)
}

// checkSettings fails for settings that would silently change behaviour
// (plain text instead of TLS, reads before Confirm) and logs the ones that are
// only ignored.
func checkSettings(caps Capabilities, cfg Config, logger watermill.LoggerAdapter) error {
	var errs []error
	if (cfg.GetTLSCertFile() != "" || cfg.GetTLSKeyFile() != "") && !caps.SupportsTLS {
		errs = append(errs, fmt.Errorf("%w: %s cannot terminate tls", ErrUnsupportedSetting, caps.Name))
	}
	if cfg.GetDelayReceive() && !caps.SupportsConfirm {
		errs = append(errs, fmt.Errorf("%w: %s cannot delay receive until confirm", ErrUnsupportedSetting, caps.Name))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if cfg.GetHeartbeatIdle() > 0 && !caps.SupportsHeartbeat {
		logger.Info("Heartbeat idle time ignored by transport", watermill.LogFields{
			"transport":      caps.Name,
			"heartbeat_idle": cfg.GetHeartbeatIdle().String(),
		})
	}
	return nil
}

// Names returns the registered transport names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a transport is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Register adds a builder to the default registry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// RegisterWithCapabilities adds a builder and its capabilities to the default
// registry.
func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build creates a handler using the default registry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Handler, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}

// GetCapabilities returns the capabilities of a transport in the default
// registry.
func GetCapabilities(name string) Capabilities {
	return DefaultRegistry.GetCapabilities(name)
}

// Names returns the transports registered in the default registry.
func Names() []string {
	return DefaultRegistry.Names()
}
