package runtime

import (
	"sync"

	errspkg "github.com/drblury/netshell/internal/runtime/errors"
)

// Handler produces the response for a request.
type Handler interface {
	Handle(req *Request) (*Response, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req *Request) (*Response, error)

func (f HandlerFunc) Handle(req *Request) (*Response, error) { return f(req) }

// Middleware processes a request and either answers it or delegates to next.
type Middleware interface {
	Process(req *Request, next Handler) (*Response, error)
}

// MiddlewareFunc adapts a function to Middleware. Returning neither a response
// nor an error is reported as ErrInvalidMiddlewareResponse.
type MiddlewareFunc func(req *Request, next Handler) (*Response, error)

func (f MiddlewareFunc) Process(req *Request, next Handler) (*Response, error) {
	resp, err := f(req, next)
	if resp == nil && err == nil {
		return nil, errspkg.ErrInvalidMiddlewareResponse
	}
	return resp, err
}

// middlewareQueue is consumed by one traversal. Continuations created from the
// same Next share it, so every middleware runs at most once.
type middlewareQueue struct {
	mu    sync.Mutex
	items []Middleware
}

func (q *middlewareQueue) pop() (Middleware, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true
}

// Next is the continuation handed to a middleware. Handle runs the next
// middleware in the queue, or the terminal handler once the queue is empty.
type Next struct {
	queue    *middlewareQueue
	terminal Handler
}

// NewNext builds a traversal over middlewares ending in terminal. A nil
// terminal answers with NotFoundError.
func NewNext(terminal Handler, middlewares ...Middleware) *Next {
	items := make([]Middleware, 0, len(middlewares))
	for _, mw := range middlewares {
		if mw != nil {
			items = append(items, mw)
		}
	}
	return &Next{queue: &middlewareQueue{items: items}, terminal: terminal}
}

func (n *Next) Handle(req *Request) (*Response, error) {
	head, ok := n.queue.pop()
	if !ok {
		if n.terminal == nil {
			return nil, NotFoundError(req.URI, req.Method)
		}
		return n.terminal.Handle(req)
	}
	return head.Process(req, &Next{queue: n.queue, terminal: n.terminal})
}

// Pipe is an ordered, reusable list of middlewares. Each Handle or Process
// call starts a fresh traversal.
type Pipe struct {
	mu          sync.RWMutex
	middlewares []Middleware
}

// NewPipe returns a pipe running middlewares in order.
func NewPipe(middlewares ...Middleware) *Pipe {
	p := &Pipe{}
	for _, mw := range middlewares {
		p.Add(mw)
	}
	return p
}

// Add appends mw to the pipe.
func (p *Pipe) Add(mw Middleware) *Pipe {
	if mw == nil {
		return p
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.middlewares = append(p.middlewares, mw)
	return p
}

// Len returns the number of middlewares in the pipe.
func (p *Pipe) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.middlewares)
}

func (p *Pipe) snapshot() []Middleware {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Middleware(nil), p.middlewares...)
}

// Handle runs the pipe on its own. An empty pipe fails with ErrEmptyPipeline;
// a request every middleware delegates ends in NotFoundError.
func (p *Pipe) Handle(req *Request) (*Response, error) {
	mws := p.snapshot()
	if len(mws) == 0 {
		return nil, errspkg.ErrEmptyPipeline
	}
	return NewNext(nil, mws...).Handle(req)
}

// Process runs the pipe nested in another chain, continuing with next.
func (p *Pipe) Process(req *Request, next Handler) (*Response, error) {
	return NewNext(next, p.snapshot()...).Handle(req)
}
