// Package tcp provides a raw TCP (optionally TLS) transport for netshell. Each
// read from a socket becomes one Receive event.
package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/netshell/transport"
	"github.com/drblury/netshell/transport/internal/reactor"
)

// TransportName is the name used to register this transport.
const TransportName = "tcp"

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("tcp: handler already started")

func init() {
	Register()
}

// Register adds the tcp transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.TCPCapabilities)
}

// Build creates a new tcp handler from config.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Handler, error) {
	if cfg == nil {
		return nil, errors.New("tcp: config is required")
	}
	return New(cfg, logger), nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.TCPCapabilities
}

func listen(network, address string, tlsConfig *tls.Config) (net.Listener, error) {
	ln, err := net.Listen(network, address)
	if err != nil || tlsConfig == nil {
		return ln, err
	}
	return tls.NewListener(ln, tlsConfig), nil
}

// Handler serves raw TCP connections.
type Handler struct {
	*reactor.Reactor

	cfg    transport.Config
	logger watermill.LoggerAdapter

	mu       sync.Mutex
	listener net.Listener
	started  bool
	acceptWG sync.WaitGroup
}

// New creates a handler. It does not bind until Start.
func New(cfg transport.Config, logger watermill.LoggerAdapter) *Handler {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	h := &Handler{cfg: cfg, logger: logger}
	h.Reactor = reactor.New(reactor.Options{
		Logger:         logger,
		MaxConnections: cfg.GetMaxConnections(),
		HeartbeatIdle:  cfg.GetHeartbeatIdle(),
		DelayReceive:   cfg.GetDelayReceive(),
		Port:           h.Port,
	})
	return h
}

// Capabilities reports the tcp transport capabilities.
func (h *Handler) Capabilities() transport.Capabilities {
	return transport.TCPCapabilities
}

// Start binds the listener and accepts connections in the background.
func (h *Handler) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return ErrAlreadyStarted
	}

	tlsConfig, err := TLSConfig(h.cfg)
	if err != nil {
		return err
	}
	address := net.JoinHostPort(h.cfg.GetAddress(), fmt.Sprint(h.cfg.GetPort()))
	ln, err := listen("tcp", address, tlsConfig)
	if err != nil {
		return fmt.Errorf("tcp: listen on %s: %w", address, err)
	}
	h.listener = ln
	h.started = true

	h.logger.Info("TCP transport listening", watermill.LogFields{
		"address": ln.Addr().String(),
		"tls":     tlsConfig != nil,
	})

	h.Reactor.Start()
	h.acceptWG.Add(1)
	go h.acceptLoop(ln)
	return nil
}

func (h *Handler) acceptLoop(ln net.Listener) {
	defer h.acceptWG.Done()
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				backoff = nextBackoff(backoff)
				h.logger.Error("Accept failed, retrying", err, watermill.LogFields{"backoff": backoff.String()})
				time.Sleep(backoff)
				continue
			}
			h.logger.Error("Accept failed", err, nil)
			return
		}
		backoff = 0
		if _, ok := h.Attach(newPeer(conn)); !ok {
			_ = conn.Close()
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		return time.Second
	}
	return d
}

// Shutdown stops accepting, closes every connection and dispatches Shutdown.
// Callbacks still queued keep running; wait on Done for them.
func (h *Handler) Shutdown() error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = false
	ln := h.listener
	h.mu.Unlock()

	err := ln.Close()
	h.acceptWG.Wait()
	h.Reactor.Shutdown()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("tcp: close listener: %w", err)
	}
	return nil
}

// Addr returns the bound address, or nil before Start.
func (h *Handler) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Port returns the bound port, falling back to the configured one.
func (h *Handler) Port() int {
	if addr, ok := h.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return h.cfg.GetPort()
}

// TLSConfig loads the configured key pair. It returns nil when TLS is off.
func TLSConfig(cfg transport.Config) (*tls.Config, error) {
	cert, key := cfg.GetTLSCertFile(), cfg.GetTLSKeyFile()
	if cert == "" && key == "" {
		return nil, nil
	}
	pair, err := tls.LoadX509KeyPair(cert, key)
	if err != nil {
		return nil, fmt.Errorf("tcp: load key pair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{pair}, MinVersion: tls.VersionTLS12}, nil
}
