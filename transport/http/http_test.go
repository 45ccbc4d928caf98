package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/netshell/transport"
)

type mockConfig struct {
	maxConn int
}

func (m *mockConfig) GetTransport() string            { return TransportName }
func (m *mockConfig) GetAddress() string              { return "127.0.0.1" }
func (m *mockConfig) GetPort() int                    { return 0 }
func (m *mockConfig) GetTLSCertFile() string          { return "" }
func (m *mockConfig) GetTLSKeyFile() string           { return "" }
func (m *mockConfig) GetMaxConnections() int          { return m.maxConn }
func (m *mockConfig) GetHeartbeatIdle() time.Duration { return 0 }
func (m *mockConfig) GetDelayReceive() bool           { return false }
func (m *mockConfig) GetWebSocketPath() string        { return "/" }
func (m *mockConfig) GetSettings() map[string]any     { return nil }

func start(t *testing.T, cb transport.Callback) *Handler {
	t.Helper()
	h := New(&mockConfig{}, nil)
	h.On(transport.EventRequest, cb)
	require.NoError(t, h.Start())
	t.Cleanup(func() { _ = h.Shutdown() })
	return h
}

func url(h *Handler, path string) string {
	return "http://" + h.Addr().String() + path
}

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	t.Cleanup(func() { transport.DefaultRegistry = original })
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "http", caps.Name)
	assert.True(t, caps.SupportsHTTP)
	assert.False(t, caps.SupportsStreaming())

	h, err := transport.Build(context.Background(), &mockConfig{}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.IsType(t, &Handler{}, h)
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, transport.HTTPCapabilities, Capabilities())
	assert.Equal(t, "http", TransportName)
}

func TestRequestEvent(t *testing.T) {
	var got *transport.HTTPRequest
	h := start(t, func(ev transport.Event) error {
		got = ev.Request
		ev.Response.Status(nethttp.StatusCreated)
		ev.Response.Header("X-Reply", "one")
		ev.Response.Header("X-Reply", "two")
		return ev.Response.End([]byte("stored"))
	})
	assert.ErrorIs(t, h.Start(), ErrAlreadyStarted)

	req, err := nethttp.NewRequest(nethttp.MethodPost, url(h, "/items?x=1"), strings.NewReader("payload"))
	require.NoError(t, err)
	req.Header.Set("X-Trace", "abc")
	resp, err := nethttp.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	assert.Equal(t, "stored", string(body))
	assert.Equal(t, []string{"one", "two"}, resp.Header.Values("X-Reply"))

	require.NotNil(t, got)
	assert.Equal(t, nethttp.MethodPost, got.Method)
	assert.Equal(t, "/items?x=1", got.URI)
	assert.Equal(t, "payload", string(got.Body))
	assert.Equal(t, "abc", got.Header.Get("X-Trace"))
	assert.NotZero(t, got.ClientID)
	assert.Equal(t, 1, h.Stats()["request_count"])
}

func TestInvalidStatusIsAnsweredWith500(t *testing.T) {
	for _, code := range []int{42, -1, 1000} {
		h := start(t, func(ev transport.Event) error {
			ev.Response.Status(code)
			return ev.Response.End([]byte("odd status"))
		})

		resp, err := nethttp.Get(url(h, "/"))
		require.NoError(t, err, "status %d", code)
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, nethttp.StatusInternalServerError, resp.StatusCode, "status %d", code)
		assert.Equal(t, "odd status", string(body))
	}
}

func TestGzipResponse(t *testing.T) {
	h := start(t, func(ev transport.Event) error {
		assert.True(t, ev.Response.Gzip(1))
		return ev.Response.End([]byte(strings.Repeat("netshell ", 20)))
	})

	req, err := nethttp.NewRequest(nethttp.MethodGet, url(h, "/"), nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := nethttp.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("netshell ", 20), string(plain))
}

func TestGzipRejectsInvalidLevel(t *testing.T) {
	r := newResponse(nil)
	assert.False(t, r.Gzip(0))
	assert.False(t, r.Gzip(10))
	assert.True(t, r.Gzip(9))
}

func TestUnfinishedResponses(t *testing.T) {
	t.Run("callback error becomes 500", func(t *testing.T) {
		h := start(t, func(transport.Event) error { return errors.New("boom") })
		resp, err := nethttp.Get(url(h, "/"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, nethttp.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("no End writes the chosen status", func(t *testing.T) {
		h := start(t, func(ev transport.Event) error {
			ev.Response.Status(nethttp.StatusAccepted)
			return nil
		})
		resp, err := nethttp.Get(url(h, "/"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, nethttp.StatusAccepted, resp.StatusCode)
	})

	t.Run("ending twice fails", func(t *testing.T) {
		errs := make(chan error, 1)
		h := start(t, func(ev transport.Event) error {
			assert.NoError(t, ev.Response.End(nil))
			errs <- ev.Response.End(nil)
			return nil
		})
		resp, err := nethttp.Get(url(h, "/"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.ErrorIs(t, <-errs, ErrResponseEnded)
	})
}

func TestConnectionEvents(t *testing.T) {
	h := New(&mockConfig{}, nil)
	events := make(chan transport.EventKind, 8)
	for _, kind := range []transport.EventKind{transport.EventConnect, transport.EventClose} {
		h.On(kind, func(ev transport.Event) error {
			events <- ev.Kind
			return nil
		})
	}
	h.On(transport.EventRequest, func(ev transport.Event) error {
		assert.False(t, h.Send(ev.ClientID, []byte("raw")), "raw writes are refused")
		return ev.Response.End([]byte("ok"))
	})
	require.NoError(t, h.Start())
	defer h.Shutdown()

	client := &nethttp.Client{Transport: &nethttp.Transport{DisableKeepAlives: true}}
	resp, err := client.Get(url(h, "/"))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	for _, want := range []transport.EventKind{transport.EventConnect, transport.EventClose} {
		select {
		case got := <-events:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}
