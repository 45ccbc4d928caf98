// Package http provides a net/http based transport for netshell. Every request
// becomes one Request event; the connection carrying it is reported through
// Connect and Close events.
package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/klauspost/compress/gzip"

	"github.com/drblury/netshell/transport"
	"github.com/drblury/netshell/transport/internal/reactor"
	"github.com/drblury/netshell/transport/tcp"
)

// TransportName is the name used to register this transport.
const TransportName = "http"

// MaxBodySize limits how much of a request body is read into an event.
const MaxBodySize = 8 << 20

var (
	ErrAlreadyStarted      = errors.New("http: handler already started")
	ErrResponseEnded       = errors.New("http: response already ended")
	ErrRawWriteUnsupported = errors.New("http: connection does not accept raw writes")
)

type connKey struct{}

func init() {
	Register()
}

// Register adds the http transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.HTTPCapabilities)
}

// Build creates a new HTTP handler from config.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Handler, error) {
	if cfg == nil {
		return nil, errors.New("http: config is required")
	}
	return New(cfg, logger), nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}

// Handler serves HTTP/1.1 requests.
type Handler struct {
	*reactor.Reactor

	cfg    transport.Config
	logger watermill.LoggerAdapter

	mu       sync.Mutex
	server   *nethttp.Server
	listener net.Listener
	started  bool
	serveWG  sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]int
}

// New creates a handler. It does not bind until Start.
func New(cfg transport.Config, logger watermill.LoggerAdapter) *Handler {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	h := &Handler{
		cfg:    cfg,
		logger: logger,
		conns:  make(map[net.Conn]int),
	}
	h.Reactor = reactor.New(reactor.Options{
		Logger:         logger,
		MaxConnections: cfg.GetMaxConnections(),
		Port:           h.Port,
	})
	return h
}

// Capabilities reports the http transport capabilities.
func (h *Handler) Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}

// Start binds the listener and serves requests in the background.
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
	address := net.JoinHostPort(h.cfg.GetAddress(), strconv.Itoa(h.cfg.GetPort()))
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("http: listen on %s: %w", address, err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	h.server = &nethttp.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ConnState:         h.connState,
		ConnContext: func(ctx context.Context, c net.Conn) context.Context {
			return context.WithValue(ctx, connKey{}, c)
		},
	}
	h.listener = ln
	h.started = true

	h.logger.Info("HTTP transport listening", watermill.LogFields{
		"address": ln.Addr().String(),
		"tls":     tlsConfig != nil,
	})

	h.Reactor.Start()
	h.serveWG.Add(1)
	go func() {
		defer h.serveWG.Done()
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			h.logger.Error("HTTP server stopped", err, nil)
		}
	}()
	return nil
}

func (h *Handler) connState(c net.Conn, state nethttp.ConnState) {
	switch state {
	case nethttp.StateNew:
		id, ok := h.Accept(connPeer{c})
		if !ok {
			_ = c.Close()
			return
		}
		h.connMu.Lock()
		h.conns[c] = id
		h.connMu.Unlock()
	case nethttp.StateClosed, nethttp.StateHijacked:
		h.connMu.Lock()
		id, ok := h.conns[c]
		delete(h.conns, c)
		h.connMu.Unlock()
		if ok {
			h.Detach(id)
		}
	}
}

func (h *Handler) clientID(r *nethttp.Request) (int, bool) {
	c, ok := r.Context().Value(connKey{}).(net.Conn)
	if !ok {
		return 0, false
	}
	h.connMu.Lock()
	defer h.connMu.Unlock()
	id, ok := h.conns[c]
	return id, ok
}

// ServeHTTP turns the request into a Request event and waits for the server
// callbacks to finish with it.
func (h *Handler) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	id, ok := h.clientID(r)
	if !ok {
		nethttp.Error(w, "connection is not tracked", nethttp.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(nethttp.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		nethttp.Error(w, err.Error(), nethttp.StatusRequestEntityTooLarge)
		return
	}

	req := &transport.HTTPRequest{
		ClientID:   id,
		Method:     r.Method,
		URI:        r.URL.RequestURI(),
		Proto:      r.Proto,
		Header:     r.Header.Clone(),
		Body:       body,
		RemoteAddr: r.RemoteAddr,
		Context:    r.Context(),
	}
	resp := newResponse(w)

	h.CountRequest()
	err = h.Call(transport.Event{
		Kind:     transport.EventRequest,
		ClientID: id,
		Request:  req,
		Response: resp,
	})
	if resp.isEnded() {
		return
	}
	switch {
	case errors.Is(err, reactor.ErrNotRunning):
		resp.Status(nethttp.StatusServiceUnavailable)
	case err != nil:
		resp.Status(nethttp.StatusInternalServerError)
	}
	_ = resp.End(nil)
}

// Shutdown closes the listener and every connection, then dispatches Shutdown.
// Wait on Done for the remaining callbacks.
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
		return fmt.Errorf("http: close server: %w", err)
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

// connPeer tracks an HTTP connection in the reactor. net/http owns reads and
// writes, so raw sends are refused.
type connPeer struct {
	net.Conn
}

func (connPeer) ReadFrame() ([]byte, error) { return nil, io.EOF }

func (connPeer) WriteFrame([]byte) error { return ErrRawWriteUnsupported }

// response writes one HTTP response through net/http.
type response struct {
	w nethttp.ResponseWriter

	mu        sync.Mutex
	status    int
	gzipLevel int
	ended     bool
}

func newResponse(w nethttp.ResponseWriter) *response {
	return &response{w: w, status: nethttp.StatusOK}
}

func (r *response) Header(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w.Header().Add(key, value)
}

func (r *response) DelHeader(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w.Header().Del(key)
}

// Status sets the response status. net/http panics on codes outside
// 100-999, so those are answered with 500.
func (r *response) Status(code int) {
	if code < 100 || code > 999 {
		code = nethttp.StatusInternalServerError
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = code
}

// Gzip compresses the body written by End at the given level.
func (r *response) Gzip(level int) bool {
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gzipLevel = level
	return true
}

func (r *response) End(body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return ErrResponseEnded
	}
	r.ended = true

	if r.gzipLevel > 0 {
		var buf bytes.Buffer
		zw, err := gzip.NewWriterLevel(&buf, r.gzipLevel)
		if err != nil {
			return err
		}
		if _, err := zw.Write(body); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		body = buf.Bytes()
		r.w.Header().Set("Content-Encoding", "gzip")
		r.w.Header().Add("Vary", "Accept-Encoding")
	}
	if !bodyAllowed(r.status) {
		r.w.WriteHeader(r.status)
		return nil
	}
	r.w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	r.w.WriteHeader(r.status)
	_, err := r.w.Write(body)
	return err
}

func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == nethttp.StatusNoContent, status == nethttp.StatusNotModified:
		return false
	}
	return true
}

func (r *response) isEnded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}
