package runtime

import (
	"fmt"
	"log/slog"
	"sync"
)

// Warning is a non-fatal problem reported while handling a request.
type Warning struct {
	Level   slog.Level
	Message string
}

// WarningError is returned for a warning that was promoted to a failure.
type WarningError struct {
	Warning Warning
}

func (e *WarningError) Error() string {
	return fmt.Sprintf("%s: %s", e.Warning.Level, e.Warning.Message)
}

type warningState struct {
	mu       sync.Mutex
	handler  func(Warning) error
	recorded []Warning
}

// Warn reports a warning. Inside ErrorMiddleware warnings at or above its
// level come back as a *WarningError the caller should return; otherwise the
// warning is recorded and Warn returns nil.
func (r *Request) Warn(level slog.Level, format string, args ...any) error {
	w := Warning{Level: level, Message: fmt.Sprintf(format, args...)}
	st := r.state()

	st.mu.Lock()
	handler := st.handler
	st.mu.Unlock()

	if handler != nil {
		if err := handler(w); err != nil {
			return err
		}
	}

	st.mu.Lock()
	st.recorded = append(st.recorded, w)
	st.mu.Unlock()
	return nil
}

// Warnings returns the warnings recorded on the request.
func (r *Request) Warnings() []Warning {
	st := r.state()
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]Warning(nil), st.recorded...)
}

// installWarningHandler swaps the warning handler of the request scope. The
// returned function puts the previous handler back.
func (r *Request) installWarningHandler(handler func(Warning) error) (restore func()) {
	st := r.state()
	st.mu.Lock()
	previous := st.handler
	st.handler = handler
	st.mu.Unlock()

	return func() {
		st.mu.Lock()
		st.handler = previous
		st.mu.Unlock()
	}
}
