package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Mock config for testing
type mockConfig struct {
	transport string
}

func (m *mockConfig) GetTransport() string            { return m.transport }
func (m *mockConfig) GetAddress() string              { return "127.0.0.1" }
func (m *mockConfig) GetPort() int                    { return 0 }
func (m *mockConfig) GetTLSCertFile() string          { return "" }
func (m *mockConfig) GetTLSKeyFile() string           { return "" }
func (m *mockConfig) GetMaxConnections() int          { return 0 }
func (m *mockConfig) GetHeartbeatIdle() time.Duration { return 0 }
func (m *mockConfig) GetDelayReceive() bool           { return false }
func (m *mockConfig) GetWebSocketPath() string        { return "/" }
func (m *mockConfig) GetSettings() map[string]any     { return map[string]any{} }

// Mock handler for testing
type mockHandler struct{}

func (m *mockHandler) On(EventKind, Callback)           {}
func (m *mockHandler) Start() error                     { return nil }
func (m *mockHandler) Shutdown() error                  { return nil }
func (m *mockHandler) Send(int, []byte) bool            { return true }
func (m *mockHandler) SendAndWait(int, []byte) bool     { return true }
func (m *mockHandler) Pause(int) bool                   { return true }
func (m *mockHandler) Resume(int) bool                  { return true }
func (m *mockHandler) Protect(int) bool                 { return true }
func (m *mockHandler) Confirm(int) bool                 { return true }
func (m *mockHandler) Close(int) bool                   { return true }
func (m *mockHandler) Exists(int) bool                  { return true }
func (m *mockHandler) ClientInfo(int) map[string]any    { return nil }
func (m *mockHandler) Stats() map[string]any            { return nil }

func TestEventKindString(t *testing.T) {
	tests := map[EventKind]string{
		EventStart:    "Start",
		EventConnect:  "Connect",
		EventReceive:  "Receive",
		EventClose:    "Close",
		EventShutdown: "Shutdown",
		EventRequest:  "Request",
		EventKind(99): "Unknown",
	}
	for kind, want := range tests {
		assert.Equal(t, want, kind.String())
	}
}

func TestKinds(t *testing.T) {
	kinds := Kinds()
	assert.Len(t, kinds, 6)
	assert.Equal(t, EventStart, kinds[0])
	assert.Equal(t, EventRequest, kinds[5])
}
