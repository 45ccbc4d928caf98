package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// ErrorMiddleware turns every failure of the rest of the chain into a
// response. HTTPError failures answer with their own response, anything else
// with a 500 carrying the error message. While it runs, request warnings at or
// above its level are promoted to failures.
type ErrorMiddleware struct {
	translate func(error) error
	level     slog.Level
}

// ErrorMiddlewareOption configures an ErrorMiddleware.
type ErrorMiddlewareOption func(*ErrorMiddleware)

// WithErrorTranslator installs a callback that sees every failure first. A
// non-nil result replaces the failure.
func WithErrorTranslator(translate func(error) error) ErrorMiddlewareOption {
	return func(m *ErrorMiddleware) {
		m.translate = translate
	}
}

// WithWarningLevel sets the lowest warning level that is promoted to a failure.
// The default is slog.LevelWarn.
func WithWarningLevel(level slog.Level) ErrorMiddlewareOption {
	return func(m *ErrorMiddleware) {
		m.level = level
	}
}

// NewErrorMiddleware returns an ErrorMiddleware configured by opts.
func NewErrorMiddleware(opts ...ErrorMiddlewareOption) *ErrorMiddleware {
	m := &ErrorMiddleware{level: slog.LevelWarn}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *ErrorMiddleware) Process(req *Request, next Handler) (*Response, error) {
	var promoted error
	restore := req.installWarningHandler(func(w Warning) error {
		if w.Level < m.level {
			return nil
		}
		err := &WarningError{Warning: w}
		if promoted == nil {
			promoted = err
		}
		return err
	})
	defer restore()

	resp, err := m.run(req, next)
	if err == nil && promoted != nil {
		err = promoted
	}
	if err == nil {
		return resp, nil
	}
	return m.respond(err), nil
}

func (m *ErrorMiddleware) run(req *Request, next Handler) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = fmt.Errorf("panic: %w", rerr)
				return
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return next.Handle(req)
}

func (m *ErrorMiddleware) respond(err error) *Response {
	if m.translate != nil {
		if replaced := m.translate(err); replaced != nil {
			err = replaced
		}
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		if resp := httpErr.Response(); resp != nil {
			return resp
		}
	}
	return Text(err.Error()).WithStatus(http.StatusInternalServerError)
}
