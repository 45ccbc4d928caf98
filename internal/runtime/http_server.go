package runtime

import (
	"sync"

	configpkg "github.com/drblury/netshell/internal/runtime/config"
)

// HTTPServer is a Server whose Request events run through a middleware
// pipeline. ErrorMiddleware always runs first, followed by the middlewares
// added with Use, and finally every request listener.
type HTTPServer struct {
	*Server

	mu          sync.RWMutex
	errorMW     *ErrorMiddleware
	middlewares []Middleware
}

// HTTPServerOption configures an HTTPServer.
type HTTPServerOption func(*HTTPServer)

// WithErrorMiddleware replaces the default ErrorMiddleware.
func WithErrorMiddleware(m *ErrorMiddleware) HTTPServerOption {
	return func(s *HTTPServer) {
		if m != nil {
			s.errorMW = m
		}
	}
}

// WithMiddlewares appends middlewares after ErrorMiddleware.
func WithMiddlewares(middlewares ...Middleware) HTTPServerOption {
	return func(s *HTTPServer) {
		s.Use(middlewares...)
	}
}

// NewHTTPServer constructs an HTTPServer for conf.
func NewHTTPServer(conf *configpkg.Config, deps ServerDependencies, opts ...HTTPServerOption) (*HTTPServer, error) {
	base, err := NewServer(conf, deps)
	if err != nil {
		return nil, err
	}
	s := &HTTPServer{Server: base, errorMW: NewErrorMiddleware()}
	for _, opt := range opts {
		opt(s)
	}
	base.requests = HandlerFunc(s.Handle)
	return s, nil
}

// Use appends middlewares to the pipeline. Middlewares added while requests
// are in flight apply to the next request.
func (s *HTTPServer) Use(middlewares ...Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mw := range middlewares {
		if mw != nil {
			s.middlewares = append(s.middlewares, mw)
		}
	}
}

// Handle runs req through the pipeline. It is what the transport's Request
// events end up calling and can be used directly in tests.
func (s *HTTPServer) Handle(req *Request) (*Response, error) {
	s.mu.RLock()
	chain := make([]Middleware, 0, len(s.middlewares)+1)
	chain = append(chain, s.errorMW)
	chain = append(chain, s.middlewares...)
	s.mu.RUnlock()

	return NewNext(HandlerFunc(s.answerRequest), chain...).Handle(req)
}
