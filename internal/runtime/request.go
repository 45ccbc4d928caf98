package runtime

import (
	"context"
	"net/http"
	"net/url"

	"github.com/drblury/netshell/transport"
)

// Request is one inbound HTTP request as seen by middlewares and request
// listeners.
type Request struct {
	ClientID   int
	Method     string
	URI        string
	Proto      string
	Header     http.Header
	Body       []byte
	RemoteAddr string

	ctx      context.Context
	warnings *warningState
}

// NewRequest builds a request, mostly useful in tests.
func NewRequest(method, uri string, body []byte) *Request {
	return &Request{
		Method:   method,
		URI:      uri,
		Proto:    "HTTP/1.1",
		Header:   http.Header{},
		Body:     body,
		ctx:      context.Background(),
		warnings: &warningState{},
	}
}

func newRequestFromTransport(r *transport.HTTPRequest) *Request {
	header := r.Header
	if header == nil {
		header = http.Header{}
	}
	ctx := r.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return &Request{
		ClientID:   r.ClientID,
		Method:     r.Method,
		URI:        r.URI,
		Proto:      r.Proto,
		Header:     header,
		Body:       r.Body,
		RemoteAddr: r.RemoteAddr,
		ctx:        ctx,
		warnings:   &warningState{},
	}
}

// Context returns the request context, never nil.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r carrying ctx. The copy shares the
// warning scope of r.
func (r *Request) WithContext(ctx context.Context) *Request {
	if ctx == nil {
		panic("netshell: nil context")
	}
	r2 := *r
	r2.ctx = ctx
	r2.warnings = r.state()
	return &r2
}

// Path returns the path component of URI.
func (r *Request) Path() string {
	u, err := url.ParseRequestURI(r.URI)
	if err != nil {
		return r.URI
	}
	return u.Path
}

// Query returns the parsed query string of URI.
func (r *Request) Query() url.Values {
	u, err := url.ParseRequestURI(r.URI)
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}

func (r *Request) state() *warningState {
	if r.warnings == nil {
		r.warnings = &warningState{}
	}
	return r.warnings
}
