// Package websocket provides a gorilla/websocket transport for netshell. Each
// websocket message becomes one Receive event and Send writes a binary message.
package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gorilla/websocket"

	"github.com/drblury/netshell/transport"
	"github.com/drblury/netshell/transport/internal/reactor"
	"github.com/drblury/netshell/transport/tcp"
)

// TransportName is the name used to register this transport.
const TransportName = "websocket"

var ErrAlreadyStarted = errors.New("websocket: handler already started")

const closeGracePeriod = time.Second

func init() {
	Register()
}

// Register adds the websocket transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.WebSocketCapabilities)
}

// Build creates a new websocket handler from config.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Handler, error) {
	if cfg == nil {
		return nil, errors.New("websocket: config is required")
	}
	return New(cfg, logger), nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.WebSocketCapabilities
}

// Handler upgrades HTTP requests on the configured path and serves the
// resulting websocket connections.
type Handler struct {
	*reactor.Reactor

	cfg      transport.Config
	logger   watermill.LoggerAdapter
	upgrader websocket.Upgrader

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	started  bool
	serveWG  sync.WaitGroup
}

// New creates a handler. It does not bind until Start.
func New(cfg transport.Config, logger watermill.LoggerAdapter) *Handler {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	h := &Handler{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	h.Reactor = reactor.New(reactor.Options{
		Logger:         logger,
		MaxConnections: cfg.GetMaxConnections(),
		HeartbeatIdle:  cfg.GetHeartbeatIdle(),
		DelayReceive:   cfg.GetDelayReceive(),
		Port:           h.Port,
	})
	return h
}

// Capabilities reports the websocket transport capabilities.
func (h *Handler) Capabilities() transport.Capabilities {
	return transport.WebSocketCapabilities
}

func (h *Handler) path() string {
	if p := h.cfg.GetWebSocketPath(); p != "" {
		return p
	}
	return "/"
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.Running() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", watermill.LogFields{
			"remote_addr": r.RemoteAddr,
			"error":       err.Error(),
		})
		return
	}
	conn.SetReadLimit(transport.WebSocketCapabilities.MaxFrameSize)

	if _, ok := h.Attach(newPeer(conn)); !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "connection limit reached"),
			time.Now().Add(closeGracePeriod))
		_ = conn.Close()
	}
}

// Start binds the listener and serves upgrade requests in the background.
func (h *Handler) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return ErrAlreadyStarted
	}

	tlsConfig, err := tcp.TLSConfig(h.cfg)
	if err != nil {
		return err
	}
	address := net.JoinHostPort(h.cfg.GetAddress(), fmt.Sprint(h.cfg.GetPort()))
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("websocket: listen on %s: %w", address, err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	mux := http.NewServeMux()
	mux.Handle(h.path(), h)
	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	h.listener = ln
	h.started = true

	h.logger.Info("Websocket transport listening", watermill.LogFields{
		"address": ln.Addr().String(),
		"path":    h.path(),
		"tls":     tlsConfig != nil,
	})

	h.Reactor.Start()
	h.serveWG.Add(1)
	go func() {
		defer h.serveWG.Done()
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("Websocket server stopped", err, nil)
		}
	}()
	return nil
}

// Shutdown stops the upgrade endpoint, closes every connection and dispatches
// Shutdown. Wait on Done for the remaining callbacks.
func (h *Handler) Shutdown() error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = false
	srv := h.server
	h.mu.Unlock()

	err := srv.Close()
	h.serveWG.Wait()
	h.Reactor.Shutdown()
	if err != nil {
		return fmt.Errorf("websocket: close server: %w", err)
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
