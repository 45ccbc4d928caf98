package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingHandler(err error) Handler {
	return HandlerFunc(func(*Request) (*Response, error) { return nil, err })
}

func TestErrorMiddlewareConvertsFailures(t *testing.T) {
	resp, err := NewErrorMiddleware().Process(NewRequest(http.MethodGet, "/", nil), failingHandler(errors.New("database is on fire")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "database is on fire", string(resp.Body()))
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
}

func TestErrorMiddlewareUsesHTTPErrorResponse(t *testing.T) {
	cause := NewStatusError(http.StatusBadRequest, "missing name")
	wrapped := fmt.Errorf("validate: %w", cause)

	resp, err := NewErrorMiddleware().Process(NewRequest(http.MethodPost, "/", nil), failingHandler(wrapped))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "missing name", string(resp.Body()))
}

func TestErrorMiddlewarePassesResponsesThrough(t *testing.T) {
	want := Text("fine").WithStatus(http.StatusAccepted)
	resp, err := NewErrorMiddleware().Process(NewRequest(http.MethodGet, "/", nil), HandlerFunc(func(*Request) (*Response, error) {
		return want, nil
	}))
	require.NoError(t, err)
	assert.Same(t, want, resp)
}

func TestErrorMiddlewareTranslator(t *testing.T) {
	var seen error
	mw := NewErrorMiddleware(WithErrorTranslator(func(err error) error {
		seen = err
		return NewStatusError(http.StatusConflict, "translated")
	}))
	original := errors.New("original")

	resp, err := mw.Process(NewRequest(http.MethodGet, "/", nil), failingHandler(original))
	require.NoError(t, err)
	assert.Same(t, original, seen)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "translated", string(resp.Body()))
}

func TestErrorMiddlewareTranslatorKeepsFailure(t *testing.T) {
	var calls int
	mw := NewErrorMiddleware(WithErrorTranslator(func(error) error {
		calls++
		return nil
	}))

	resp, err := mw.Process(NewRequest(http.MethodGet, "/", nil), failingHandler(errors.New("kept")))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "kept", string(resp.Body()))
}

func TestErrorMiddlewareRecoversPanics(t *testing.T) {
	resp, err := NewErrorMiddleware().Process(NewRequest(http.MethodGet, "/", nil), HandlerFunc(func(*Request) (*Response, error) {
		panic("nil map")
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "panic: nil map", string(resp.Body()))

	resp, err = NewErrorMiddleware().Process(NewRequest(http.MethodGet, "/", nil), HandlerFunc(func(*Request) (*Response, error) {
		panic(NewStatusError(http.StatusTeapot, "short and stout"))
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestErrorMiddlewarePromotesWarnings(t *testing.T) {
	resp, err := NewErrorMiddleware().Process(NewRequest(http.MethodGet, "/", nil), HandlerFunc(func(req *Request) (*Response, error) {
		if err := req.Warn(slog.LevelWarn, "undefined index %q", "name"); err != nil {
			return nil, err
		}
		return Text("unreachable"), nil
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, `WARN: undefined index "name"`, string(resp.Body()))
}

func TestErrorMiddlewarePromotesIgnoredWarnings(t *testing.T) {
	resp, err := NewErrorMiddleware().Process(NewRequest(http.MethodGet, "/", nil), HandlerFunc(func(req *Request) (*Response, error) {
		_ = req.Warn(slog.LevelError, "half written")
		return Text("partial"), nil
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "ERROR: half written", string(resp.Body()))
}

func TestErrorMiddlewareWarningLevel(t *testing.T) {
	req := NewRequest(http.MethodGet, "/", nil)
	mw := NewErrorMiddleware(WithWarningLevel(slog.LevelError))

	resp, err := mw.Process(req, HandlerFunc(func(req *Request) (*Response, error) {
		if err := req.Warn(slog.LevelWarn, "deprecated call"); err != nil {
			return nil, err
		}
		return Text("ok"), nil
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []Warning{{Level: slog.LevelWarn, Message: "deprecated call"}}, req.Warnings())
}

func TestErrorMiddlewareRestoresWarningHandler(t *testing.T) {
	req := NewRequest(http.MethodGet, "/", nil)

	_, err := NewErrorMiddleware().Process(req, failingHandler(errors.New("boom")))
	require.NoError(t, err)

	require.NoError(t, req.Warn(slog.LevelError, "after the middleware"), "warnings are recorded again once the middleware returned")
	assert.Len(t, req.Warnings(), 1)
}

func TestNestedErrorMiddlewareRestoresOuterHandler(t *testing.T) {
	req := NewRequest(http.MethodGet, "/", nil)
	outer := NewErrorMiddleware()
	inner := NewErrorMiddleware(WithWarningLevel(slog.LevelError))

	resp, err := outer.Process(req, HandlerFunc(func(req *Request) (*Response, error) {
		if _, err := inner.Process(req, HandlerFunc(func(*Request) (*Response, error) { return Text("inner"), nil })); err != nil {
			return nil, err
		}
		if err := req.Warn(slog.LevelWarn, "outer level applies"); err != nil {
			return nil, err
		}
		return Text("ok"), nil
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestWarningsWithoutErrorMiddleware(t *testing.T) {
	req := NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, req.Warn(slog.LevelError, "recorded %d", 1))
	assert.Equal(t, []Warning{{Level: slog.LevelError, Message: "recorded 1"}}, req.Warnings())

	var werr *WarningError
	assert.False(t, errors.As(req.Warn(slog.LevelInfo, "x"), &werr))
}
