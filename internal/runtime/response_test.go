package runtime

import (
	"context"
	"encoding/xml"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	errspkg "github.com/drblury/netshell/internal/runtime/errors"
)

func TestResponseConstructors(t *testing.T) {
	assert.Equal(t, http.StatusOK, Empty().StatusCode)
	assert.Empty(t, Empty().Header.Get("Content-Type"))
	assert.Equal(t, "text/html; charset=utf-8", HTML("<b>x</b>").Header.Get("Content-Type"))

	resp, err := JSON(map[string]int{"answer": 42})
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":42}`, string(resp.Body()))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	resp, err = JSON(`{"raw":true}`)
	require.NoError(t, err)
	assert.Equal(t, `{"raw":true}`, string(resp.Body()), "valid JSON strings are passed through")

	resp, err = XML(struct {
		XMLName xml.Name `xml:"greeting"`
		Name    string   `xml:"name"`
	}{Name: "netshell"})
	require.NoError(t, err)
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?>`+"\n"+`<greeting><name>netshell</name></greeting>`, string(resp.Body()))

	resp, err = XML("<raw/>")
	require.NoError(t, err)
	assert.Equal(t, "<raw/>", string(resp.Body()))

	resp, err = Proto(wrapperspb.String("hello"))
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, string(resp.Body()))
}

func TestResponseCopies(t *testing.T) {
	base := Text("body")
	withStatus := base.WithStatus(http.StatusNotFound)
	withHeader := base.WithHeader("X-Trace", "1")

	assert.Equal(t, http.StatusOK, base.StatusCode)
	assert.Equal(t, http.StatusNotFound, withStatus.StatusCode)
	assert.Empty(t, base.Header.Get("X-Trace"))
	assert.Equal(t, "1", withHeader.Header.Get("X-Trace"))

	_, err := withStatus.Write([]byte(" more"))
	require.NoError(t, err)
	assert.Equal(t, "body", string(base.Body()))
	assert.Equal(t, "body more", string(withStatus.Body()))

	zero := (&Response{}).WithHeader("A", "b")
	assert.Equal(t, "b", zero.Header.Get("A"))
}

func TestResponseEnd(t *testing.T) {
	resp := Empty()
	_, err := resp.Write([]byte("chunk"))
	require.NoError(t, err)
	require.NoError(t, resp.End())
	assert.True(t, resp.IsComplete())

	_, err = resp.Write([]byte("late"))
	assert.ErrorIs(t, err, errspkg.ErrResponseComplete)
	assert.ErrorIs(t, resp.End(), errspkg.ErrResponseComplete)
	assert.Equal(t, "chunk", string(resp.Body()))
}

func TestStatusErrors(t *testing.T) {
	err := NewStatusError(http.StatusGone, "")
	assert.Equal(t, "Gone", err.Error())

	err.Err = errors.New("deleted yesterday")
	assert.Equal(t, "Gone: deleted yesterday", err.Error())
	assert.Equal(t, "Gone", string(err.Response().Body()), "the cause is not exposed")

	notFound := NotFoundError("/missing", http.MethodGet)
	assert.Equal(t, "No route matches requested uri: GET `/missing`.", notFound.Error())
	assert.Equal(t, http.StatusNotFound, notFound.Response().StatusCode)

	notAllowed := MethodNotAllowedError("/items", []string{http.MethodGet, http.MethodHead})
	resp := notAllowed.Response()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "GET, HEAD", resp.Header.Get("Allow"))
	assert.Equal(t, "This uri `/items` allows only GET, HEAD http methods.", string(resp.Body()))
}

func TestRequestURI(t *testing.T) {
	req := NewRequest(http.MethodGet, "/search?q=net&page=2", nil)
	assert.Equal(t, "/search", req.Path())
	assert.Equal(t, "net", req.Query().Get("q"))
	assert.Equal(t, "2", req.Query().Get("page"))

	bad := NewRequest(http.MethodGet, "not a uri", nil)
	assert.Equal(t, "not a uri", bad.Path())
	assert.Empty(t, bad.Query())
}

func TestRequestWithContext(t *testing.T) {
	req := NewRequest(http.MethodGet, "/", nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	derived := req.WithContext(ctx)
	assert.Equal(t, ctx, derived.Context())
	assert.NotEqual(t, ctx, req.Context())

	require.NoError(t, derived.Warn(slog.LevelInfo, "shared"))
	assert.Len(t, req.Warnings(), 1)

	assert.Panics(t, func() { req.WithContext(nil) })
	assert.NotNil(t, (&Request{}).Context())
}

func TestParseStats(t *testing.T) {
	started := time.Unix(1_700_000_000, 0)
	stats := parseServerStats(map[string]any{
		"start_time":     started.Unix(),
		"connection_num": "3",
		"accept_count":   int64(10),
		"close_count":    7.0,
		"request_count":  nil,
	})
	assert.Equal(t, started, stats.StartTime)
	assert.Equal(t, 3, stats.Connections)
	assert.Equal(t, 10, stats.Accepted)
	assert.Equal(t, 7, stats.Closed)
	assert.Zero(t, stats.Requests)

	info := parseClientInfo(5, map[string]any{
		"remote_ip":    "10.0.0.1",
		"remote_port":  uint16(5555),
		"connect_time": started,
		"last_time":    0,
	})
	assert.Equal(t, 5, info.ID)
	assert.Equal(t, "10.0.0.1", info.IP)
	assert.Equal(t, 5555, info.Port)
	assert.Equal(t, started, info.ConnectTime)
	assert.True(t, info.LastTime.IsZero())
}
