package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/netshell"
	"github.com/drblury/netshell/transport"
	"github.com/drblury/netshell/transport/memory"
)

func startDemo(t *testing.T, mode string) *memory.Handler {
	t.Helper()
	conf := netshell.NewConfig(9501, "127.0.0.1")
	conf.Transport = memory.TransportName

	srv, cleanup, err := buildServer(t.Context(), mode, conf, netshell.NewNopServiceLogger())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	require.NoError(t, srv.Start(t.Context()))
	t.Cleanup(func() { _ = srv.Stop() })

	h, ok := srv.Transport().(*memory.Handler)
	require.True(t, ok)
	return h
}

func TestEchoMode(t *testing.T) {
	h := startDemo(t, modeEcho)
	require.NoError(t, h.ConnectID(1))
	require.NoError(t, h.Receive(1, []byte("ping")))
	assert.Equal(t, [][]byte{[]byte("ping")}, h.Sent(1))
}

func TestHTTPMode(t *testing.T) {
	h := startDemo(t, modeHTTP)
	rec, err := h.Request(&transport.HTTPRequest{Method: http.MethodGet, URI: "/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.StatusCode)
	assert.Equal(t, "Hello from http server", string(rec.Body))
	assert.NotEmpty(t, rec.Headers.Get(netshell.RequestIDHeader))
}

func TestUnknownMode(t *testing.T) {
	_, _, err := buildServer(t.Context(), "chat", netshell.NewConfig(0, ""), netshell.NewNopServiceLogger())
	assert.ErrorContains(t, err, `unknown mode "chat"`)
}

func TestBridgeConfigured(t *testing.T) {
	conf := netshell.NewConfig(9501, "127.0.0.1")
	conf.Transport = memory.TransportName
	conf.BridgeSystem = "channel"

	srv, cleanup, err := buildServer(t.Context(), modeEcho, conf, netshell.NewNopServiceLogger())
	require.NoError(t, err)
	defer cleanup()
	assert.True(t, srv.Listeners().Count(netshell.EventConnect) >= 2)
}

func TestServeFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("NETSHELL_TRANSPORT", "websocket")
	t.Setenv("NETSHELL_PORT", "7000")

	cmd := newServeCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--port", "7100"}))

	conf, err := netshell.ConfigFromEnv()
	require.NoError(t, err)
	opts := &serveOptions{transport: "tcp", address: "0.0.0.0", port: 7100}
	opts.apply(cmd, conf)

	assert.Equal(t, "websocket", conf.Transport, "environment wins over flag defaults")
	assert.Equal(t, 7100, conf.Port)
	assert.Equal(t, "0.0.0.0", conf.Address)
}
