package runtime

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/netshell/internal/runtime/config"
	loggingpkg "github.com/drblury/netshell/internal/runtime/logging"
	"github.com/drblury/netshell/transport"
	"github.com/drblury/netshell/transport/memory"
)

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func newTestConfig() *configpkg.Config {
	conf := configpkg.New(9501, "127.0.0.1")
	conf.Transport = memory.TransportName
	return conf
}

// memoryFactory hands out the same memory handler on every Build.
func memoryFactory(h *memory.Handler) HandlerFactory {
	return HandlerFactoryFunc(func(context.Context, *configpkg.Config, watermill.LoggerAdapter) (transport.Handler, error) {
		return h, nil
	})
}

func newTestServer(t *testing.T, conf *configpkg.Config) (*Server, *memory.Handler) {
	t.Helper()
	if conf == nil {
		conf = newTestConfig()
	}
	h := memory.New(conf, nil)
	srv, err := NewServer(conf, ServerDependencies{HandlerFactory: memoryFactory(h), Logger: newTestLogger()})
	require.NoError(t, err)
	return srv, h
}

func startTestServer(t *testing.T, conf *configpkg.Config) (*Server, *memory.Handler) {
	t.Helper()
	srv, h := newTestServer(t, conf)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })
	return srv, h
}

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

type logEntry struct {
	level  string
	msg    string
	err    error
	fields loggingpkg.LogFields
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (r *recordingLogger) record(e logEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingLogger) With(loggingpkg.LogFields) loggingpkg.ServiceLogger { return r }
func (r *recordingLogger) Debug(msg string, fields loggingpkg.LogFields) {
	r.record(logEntry{level: "debug", msg: msg, fields: fields})
}
func (r *recordingLogger) Info(msg string, fields loggingpkg.LogFields) {
	r.record(logEntry{level: "info", msg: msg, fields: fields})
}
func (r *recordingLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	r.record(logEntry{level: "error", msg: msg, err: err, fields: fields})
}
func (r *recordingLogger) Trace(msg string, fields loggingpkg.LogFields) {
	r.record(logEntry{level: "trace", msg: msg, fields: fields})
}

func (r *recordingLogger) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.msg)
	}
	return out
}
