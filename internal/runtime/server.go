package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"

	configpkg "github.com/drblury/netshell/internal/runtime/config"
	errspkg "github.com/drblury/netshell/internal/runtime/errors"
	loggingpkg "github.com/drblury/netshell/internal/runtime/logging"
	"github.com/drblury/netshell/transport"
)

type transportHandler = transport.Handler

// ServerDependencies holds the optional collaborators of a Server. Leave fields
// nil to use the defaults.
type ServerDependencies struct {
	HandlerFactory HandlerFactory
	Logger         loggingpkg.ServiceLogger
}

// Server binds a transport handler to the registered listeners and tracks the
// clients the transport reports.
type Server struct {
	conf     *configpkg.Config
	Logger   loggingpkg.ServiceLogger
	wmLogger watermill.LoggerAdapter
	factory  HandlerFactory

	listeners *ListenerRegistry
	clients   *ClientRegistry

	mu       sync.RWMutex
	h        transport.Handler
	starting bool
	running  bool
	admin    *adminServer

	// requests answers Request events; HTTPServer replaces it with its pipeline.
	requests Handler
}

// NewServer constructs a Server for conf. The transport is built on Start.
func NewServer(conf *configpkg.Config, deps ServerDependencies) (*Server, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	log := deps.Logger
	if log == nil {
		log = loggingpkg.NewNopServiceLogger()
	}
	factory := deps.HandlerFactory
	if factory == nil {
		factory = DefaultHandlerFactory()
	}

	s := &Server{
		conf:      conf,
		Logger:    log,
		wmLogger:  loggingpkg.NewWatermillAdapter(log),
		factory:   factory,
		listeners: NewListenerRegistry(),
		clients:   NewClientRegistry(),
	}
	s.requests = HandlerFunc(s.answerRequest)
	return s, nil
}

// Configuration returns the configuration the server was created with.
func (s *Server) Configuration() *configpkg.Config { return s.conf }

// Listeners exposes the listener registry.
func (s *Server) Listeners() *ListenerRegistry { return s.listeners }

// Clients exposes the client registry. It is read-only for listener code.
func (s *Server) Clients() *ClientRegistry { return s.clients }

// AddListener registers listener for every event kind it implements.
func (s *Server) AddListener(listener any) {
	s.listeners.Add(listener)
}

// RemoveListener drops every registration of listener.
func (s *Server) RemoveListener(listener any) bool {
	return s.listeners.Remove(listener)
}

// HasListener reports whether this exact listener is registered.
func (s *Server) HasListener(listener any) bool {
	return s.listeners.Has(listener)
}

// GetClient returns the connected client with the given identifier.
func (s *Server) GetClient(id int) (*Client, error) {
	return s.clients.Get(id)
}

// IsRunning reports whether Start succeeded and Stop has not been called since.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Transport returns the active transport handler, or nil when idle.
func (s *Server) Transport() transport.Handler {
	return s.handler()
}

// Capabilities reports the active transport's capabilities. The zero value is
// returned when the server is idle or the transport does not report them.
func (s *Server) Capabilities() transport.Capabilities {
	if p, ok := s.handler().(transport.CapabilitiesProvider); ok {
		return p.Capabilities()
	}
	return transport.Capabilities{}
}

func (s *Server) handler() transport.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.h
}

// Start builds the transport, subscribes the dispatchers and starts serving.
// Transports serve in the background; use Run to block until cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.h != nil || s.starting {
		s.mu.Unlock()
		return &errspkg.ServerError{Method: "Start", Err: errspkg.ErrAlreadyStarted}
	}
	s.starting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}()

	h, err := s.factory.Build(ctx, s.conf, s.wmLogger)
	if err != nil {
		return fmt.Errorf("build transport: %w", err)
	}
	if h == nil {
		return fmt.Errorf("%w: factory returned no handler", errspkg.ErrHandlerFactoryRequired)
	}
	s.subscribe(h)

	// Clients left over from a previous transport are unreachable. The handler
	// is published before Start because some transports fire the Start event
	// synchronously.
	s.clients.clear()
	s.mu.Lock()
	s.h = h
	s.mu.Unlock()

	if err := h.Start(); err != nil {
		_ = h.Shutdown()
		s.mu.Lock()
		s.h = nil
		s.mu.Unlock()
		return fmt.Errorf("start transport: %w", err)
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	if err := s.startAdmin(); err != nil {
		s.Logger.Error("Failed to start admin server", err, nil)
	}

	s.Logger.Info("Server started", loggingpkg.LogFields{
		"transport": s.conf.Transport,
		"address":   s.conf.ListenAddress(),
	})
	return nil
}

// Stop shuts the transport down. Calling Stop on an idle server is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	h := s.h
	s.mu.Unlock()

	var errs []error
	if h != nil {
		if err := h.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("shutdown transport: %w", err))
		}
		// A synchronous transport has fired all of its Close events by now;
		// clients it never closed are dropped. Event loop transports still
		// drain theirs, so their clients are cleared on the next Start.
		if _, async := h.(transport.Waiter); !async {
			s.clients.clear()
		}
		s.Logger.Info("Server stopped", loggingpkg.LogFields{"transport": s.conf.Transport})
	}

	s.mu.Lock()
	s.h = nil
	s.running = false
	s.mu.Unlock()

	errs = append(errs, s.stopAdmin())
	return errors.Join(errs...)
}

// Run starts the server, blocks until ctx is cancelled and then stops it. It
// returns once the transport has finished its last callback.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	h := s.handler()

	<-ctx.Done()
	err := s.Stop()

	if w, ok := h.(transport.Waiter); ok {
		<-w.Done()
	}
	return err
}

// ServerStats returns the transport statistics.
func (s *Server) ServerStats() (ServerStats, error) {
	h := s.handler()
	if h == nil {
		return ServerStats{}, &errspkg.ServerError{Method: "ServerStats", Err: errspkg.ErrIdleServer}
	}
	return parseServerStats(h.Stats()), nil
}

// ClientStats returns the transport's details for one client.
func (s *Server) ClientStats(id int) (ClientInfo, error) {
	h := s.handler()
	if h == nil {
		return ClientInfo{}, &errspkg.ServerError{Method: "ClientStats", Err: errspkg.ErrIdleServer}
	}
	raw := h.ClientInfo(id)
	if raw == nil {
		return ClientInfo{}, errspkg.NewClientNotFoundError(id)
	}
	return parseClientInfo(id, raw), nil
}

func (s *Server) subscribe(h transport.Handler) {
	h.On(transport.EventStart, s.onStart)
	h.On(transport.EventConnect, s.onConnect)
	h.On(transport.EventReceive, s.onReceive)
	h.On(transport.EventClose, s.onClose)
	h.On(transport.EventShutdown, s.onShutdown)
	h.On(transport.EventRequest, s.onRequest)
}

func (s *Server) onStart(transport.Event) error {
	var errs []error
	for _, l := range s.listeners.Snapshot(transport.EventStart) {
		errs = append(errs, l.(StartListener).OnStart(s))
	}
	return errors.Join(errs...)
}

func (s *Server) onConnect(ev transport.Event) error {
	client := s.clients.add(newClient(s, ev.ClientID))

	var errs []error
	for _, l := range s.listeners.Snapshot(transport.EventConnect) {
		errs = append(errs, l.(ConnectListener).OnConnect(s, client))
	}
	return errors.Join(errs...)
}

func (s *Server) onReceive(ev transport.Event) error {
	client, err := s.clients.Get(ev.ClientID)
	if err != nil {
		return err
	}

	var errs []error
	for _, l := range s.listeners.Snapshot(transport.EventReceive) {
		errs = append(errs, l.(ReceiveListener).OnReceive(s, client, ev.Data))
	}
	return errors.Join(errs...)
}

func (s *Server) onClose(ev transport.Event) error {
	client, err := s.clients.Get(ev.ClientID)
	if err != nil {
		return err
	}
	defer s.clients.remove(ev.ClientID)

	var errs []error
	for _, l := range s.listeners.Snapshot(transport.EventClose) {
		errs = append(errs, l.(CloseListener).OnClose(s, client))
	}
	return errors.Join(errs...)
}

func (s *Server) onShutdown(transport.Event) error {
	var errs []error
	for _, l := range s.listeners.Snapshot(transport.EventShutdown) {
		errs = append(errs, l.(ShutdownListener).OnShutdown(s))
	}
	return errors.Join(errs...)
}

func (s *Server) onRequest(ev transport.Event) error {
	if ev.Request == nil || ev.Response == nil {
		return nil
	}
	req := newRequestFromTransport(ev.Request)
	resp, err := s.requests.Handle(req)
	if err != nil {
		return err
	}
	if resp == nil {
		resp = Empty()
	}
	return writeResponse(req, resp, ev.Response)
}

// answerRequest runs every request listener. The last non-nil response wins;
// with none the request is answered with an empty 200.
func (s *Server) answerRequest(req *Request) (*Response, error) {
	var (
		resp *Response
		errs []error
	)
	for _, l := range s.listeners.Snapshot(transport.EventRequest) {
		r, err := l.(RequestListener).OnRequest(req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if r != nil {
			resp = r
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if resp == nil {
		resp = Empty()
	}
	return resp, nil
}
