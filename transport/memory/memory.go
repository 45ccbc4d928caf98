// Package memory provides an in-process transport for netshell. Connections are
// simulated by calling Connect, Receive, Disconnect and Request on the handler,
// which makes it useful for tests and for embedding a server without sockets.
//
// Events fired while another event is being dispatched are queued and run after
// the current callback returns, so callbacks never interleave.
package memory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/netshell/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "memory"

var (
	ErrNotStarted     = errors.New("memory: handler is not started")
	ErrAlreadyStarted = errors.New("memory: handler already started")
	ErrUnknownClient  = errors.New("memory: unknown client")
)

func init() {
	Register()
}

// Register adds the memory transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.MemoryCapabilities)
}

// Build creates a new memory handler.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Handler, error) {
	return New(cfg, logger), nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.MemoryCapabilities
}

type clientState struct {
	id          int
	connectedAt time.Time
	lastAt      time.Time
	paused      bool
	protected   bool
	confirmed   bool
	closing     bool
	// serverClose marks a Close from the server side; writes are accepted
	// until the Close callback has returned.
	serverClose bool
	pending     [][]byte
	sent        [][]byte
}

type queuedEvent struct {
	event transport.Event
	after func()
}

// Handler is an in-process transport.Handler.
type Handler struct {
	mu        sync.Mutex
	logger    watermill.LoggerAdapter
	callbacks map[transport.EventKind]transport.Callback

	delayReceive bool
	port         int

	clients  map[int]*clientState
	farewell map[int][][]byte
	nextID   int
	started  bool
	startAt  time.Time
	accepted int
	closed   int
	requests int

	failSends bool

	queue    []queuedEvent
	draining bool
	errs     []error
}

// New creates a handler. cfg may be nil.
func New(cfg transport.Config, logger watermill.LoggerAdapter) *Handler {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	h := &Handler{
		logger:    logger,
		callbacks: make(map[transport.EventKind]transport.Callback),
		clients:   make(map[int]*clientState),
		farewell:  make(map[int][][]byte),
	}
	if cfg != nil {
		h.delayReceive = cfg.GetDelayReceive()
		h.port = cfg.GetPort()
	}
	return h
}

// Capabilities reports the memory transport capabilities.
func (h *Handler) Capabilities() transport.Capabilities {
	return transport.MemoryCapabilities
}

func (h *Handler) On(kind transport.EventKind, cb transport.Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks[kind] = cb
}

// Subscribed reports whether a callback is registered for kind.
func (h *Handler) Subscribed(kind transport.EventKind) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.callbacks[kind]
	return ok
}

func (h *Handler) Start() error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return ErrAlreadyStarted
	}
	h.started = true
	h.startAt = time.Now()
	h.mu.Unlock()

	return h.fire(queuedEvent{event: transport.Event{Kind: transport.EventStart}})
}

// Shutdown closes every remaining client and fires Shutdown.
func (h *Handler) Shutdown() error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = false
	ids := make([]int, 0, len(h.clients))
	for id, c := range h.clients {
		if !c.closing {
			ids = append(ids, id)
		}
	}
	h.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := h.Disconnect(id); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, h.fire(queuedEvent{event: transport.Event{Kind: transport.EventShutdown}}))
	return errors.Join(errs...)
}

// Running reports whether Start has been called without a matching Shutdown.
func (h *Handler) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

// Connect simulates a new connection and returns its identifier.
func (h *Handler) Connect() (int, error) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	for h.clients[id] != nil {
		h.nextID++
		id = h.nextID
	}
	h.mu.Unlock()
	return id, h.ConnectID(id)
}

// ConnectID simulates a new connection with a caller chosen identifier.
func (h *Handler) ConnectID(id int) error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return ErrNotStarted
	}
	if _, exists := h.clients[id]; !exists {
		now := time.Now()
		h.clients[id] = &clientState{id: id, connectedAt: now, lastAt: now, confirmed: !h.delayReceive}
		delete(h.farewell, id)
		h.accepted++
	}
	h.mu.Unlock()

	return h.fire(queuedEvent{event: transport.Event{Kind: transport.EventConnect, ClientID: id}})
}

// Receive simulates inbound data. Data for paused or unconfirmed clients is held
// back until Resume or Confirm.
func (h *Handler) Receive(id int, data []byte) error {
	h.mu.Lock()
	c, ok := h.clients[id]
	if !ok || c.closing {
		h.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownClient, id)
	}
	c.lastAt = time.Now()
	payload := append([]byte(nil), data...)
	if c.paused || !c.confirmed {
		c.pending = append(c.pending, payload)
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	return h.fire(queuedEvent{event: transport.Event{Kind: transport.EventReceive, ClientID: id, Data: payload}})
}

// Disconnect simulates the peer closing the connection. Close callbacks run
// before the client is forgotten.
func (h *Handler) Disconnect(id int) error {
	h.mu.Lock()
	c, ok := h.clients[id]
	if !ok || c.closing {
		h.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownClient, id)
	}
	c.closing = true
	h.mu.Unlock()

	return h.fire(h.closeEvent(id))
}

func (h *Handler) closeEvent(id int) queuedEvent {
	return queuedEvent{
		event: transport.Event{Kind: transport.EventClose, ClientID: id},
		after: func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.clients[id]; ok && len(c.sent) > 0 {
				h.farewell[id] = c.sent
			}
			delete(h.clients, id)
			h.closed++
		},
	}
}

// Request simulates an HTTP request and returns the recorded response once every
// callback has finished.
func (h *Handler) Request(req *transport.HTTPRequest) (*ResponseRecorder, error) {
	if req == nil {
		return nil, errors.New("memory: request is required")
	}
	if req.Header == nil {
		req.Header = http.Header{}
	}
	if req.Context == nil {
		req.Context = context.Background()
	}
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil, ErrNotStarted
	}
	h.requests++
	h.mu.Unlock()

	rec := NewResponseRecorder()
	err := h.fire(queuedEvent{event: transport.Event{
		Kind:     transport.EventRequest,
		ClientID: req.ClientID,
		Request:  req,
		Response: rec,
	}})
	return rec, err
}

// fire queues an event and drains the queue unless a drain is already running
// further up the stack. Only the outermost call reports callback errors.
func (h *Handler) fire(ev queuedEvent) error {
	h.mu.Lock()
	h.queue = append(h.queue, ev)
	if h.draining {
		h.mu.Unlock()
		return nil
	}
	h.draining = true
	h.errs = nil

	for len(h.queue) > 0 {
		next := h.queue[0]
		h.queue = h.queue[1:]
		cb := h.callbacks[next.event.Kind]
		h.mu.Unlock()

		if cb != nil {
			if err := cb(next.event); err != nil {
				h.logger.Error("Event callback failed", err, watermill.LogFields{
					"event":     next.event.Kind.String(),
					"client_id": next.event.ClientID,
				})
				h.mu.Lock()
				h.errs = append(h.errs, err)
				h.mu.Unlock()
			}
		}
		if next.after != nil {
			next.after()
		}
		h.mu.Lock()
	}

	h.draining = false
	errs := h.errs
	h.errs = nil
	h.mu.Unlock()
	return errors.Join(errs...)
}

// FailSends makes Send and SendAndWait report failure.
func (h *Handler) FailSends(fail bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failSends = fail
}

// Sent returns the frames written to a client. Frames of a closed client stay
// readable until the identifier connects again.
func (h *Handler) Sent(id int) [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	sent := h.farewell[id]
	if c, ok := h.clients[id]; ok {
		sent = c.sent
	}
	if sent == nil {
		return nil
	}
	out := make([][]byte, len(sent))
	copy(out, sent)
	return out
}

// Paused reports whether delivery to a client is paused.
func (h *Handler) Paused(id int) bool {
	return h.flag(id, func(c *clientState) bool { return c.paused })
}

// Protected reports whether a client is exempt from idle checks.
func (h *Handler) Protected(id int) bool {
	return h.flag(id, func(c *clientState) bool { return c.protected })
}

func (h *Handler) flag(id int, get func(*clientState) bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	return ok && get(c)
}

func (h *Handler) live(id int) (*clientState, bool) {
	c, ok := h.clients[id]
	if !ok || c.closing {
		return nil, false
	}
	return c, true
}

// writable returns the client while writes still reach it. h.mu must be held.
func (h *Handler) writable(id int) (*clientState, bool) {
	c, ok := h.clients[id]
	if !ok || (c.closing && !c.serverClose) {
		return nil, false
	}
	return c, true
}

func (h *Handler) Send(id int, data []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.writable(id)
	if !ok || h.failSends {
		return false
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return true
}

func (h *Handler) SendAndWait(id int, data []byte) bool {
	return h.Send(id, data)
}

func (h *Handler) Pause(id int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.live(id)
	if !ok {
		return false
	}
	c.paused = true
	return true
}

func (h *Handler) Resume(id int) bool {
	h.mu.Lock()
	c, ok := h.live(id)
	if !ok {
		h.mu.Unlock()
		return false
	}
	c.paused = false
	h.mu.Unlock()
	h.flush(id)
	return true
}

func (h *Handler) Protect(id int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.live(id)
	if !ok {
		return false
	}
	c.protected = true
	return true
}

func (h *Handler) Confirm(id int) bool {
	h.mu.Lock()
	c, ok := h.live(id)
	if !ok || c.confirmed {
		h.mu.Unlock()
		return false
	}
	c.confirmed = true
	h.mu.Unlock()
	h.flush(id)
	return true
}

// flush delivers data held back for a client that can receive again.
func (h *Handler) flush(id int) {
	h.mu.Lock()
	c, ok := h.live(id)
	if !ok || c.paused || !c.confirmed || len(c.pending) == 0 {
		h.mu.Unlock()
		return
	}
	pending := c.pending
	c.pending = nil
	h.mu.Unlock()

	for _, data := range pending {
		if err := h.fire(queuedEvent{event: transport.Event{Kind: transport.EventReceive, ClientID: id, Data: data}}); err != nil {
			h.logger.Error("Failed to deliver held back data", err, watermill.LogFields{"client_id": id})
		}
	}
}

// Close closes a connection from the server side. The Close event is delivered
// after the current callback returns.
func (h *Handler) Close(id int) bool {
	h.mu.Lock()
	c, ok := h.live(id)
	if !ok {
		h.mu.Unlock()
		return false
	}
	c.closing = true
	c.serverClose = true
	h.mu.Unlock()

	if err := h.fire(h.closeEvent(id)); err != nil {
		h.logger.Error("Close callback failed", err, watermill.LogFields{"client_id": id})
	}
	return true
}

func (h *Handler) Exists(id int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.live(id)
	return ok
}

func (h *Handler) ClientInfo(id int) map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return nil
	}
	return map[string]any{
		"reactor_id":   0,
		"server_port":  h.port,
		"remote_ip":    "127.0.0.1",
		"remote_port":  40000 + id,
		"connect_time": c.connectedAt.Unix(),
		"last_time":    c.lastAt.Unix(),
	}
}

func (h *Handler) Stats() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	active := 0
	for _, c := range h.clients {
		if !c.closing {
			active++
		}
	}
	return map[string]any{
		"start_time":     h.startAt.Unix(),
		"connection_num": active,
		"accept_count":   h.accepted,
		"close_count":    h.closed,
		"request_count":  h.requests,
	}
}

// ResponseRecorder captures what a server wrote to an HTTP response.
type ResponseRecorder struct {
	mu         sync.Mutex
	StatusCode int
	Headers    http.Header
	Deleted    []string
	Body       []byte
	GzipLevel  int
	Ended      bool
}

// NewResponseRecorder returns a recorder with status 200.
func NewResponseRecorder() *ResponseRecorder {
	return &ResponseRecorder{StatusCode: http.StatusOK, Headers: http.Header{}}
}

func (r *ResponseRecorder) Header(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Headers.Add(key, value)
}

func (r *ResponseRecorder) DelHeader(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Headers.Del(key)
	r.Deleted = append(r.Deleted, key)
}

func (r *ResponseRecorder) Status(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StatusCode = code
}

func (r *ResponseRecorder) Gzip(level int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.GzipLevel = level
	return true
}

func (r *ResponseRecorder) End(body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Ended {
		return errors.New("memory: response already ended")
	}
	r.Body = append([]byte(nil), body...)
	r.Ended = true
	return nil
}
