package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrClientNotFound", ErrClientNotFound, "netshell: client not found"},
		{"ErrIdleServer", ErrIdleServer, "netshell: server hasn't started yet"},
		{"ErrAlreadyStarted", ErrAlreadyStarted, "netshell: server already started"},
		{"ErrEmptyPipeline", ErrEmptyPipeline, "netshell: cannot process request with empty middleware pipeline"},
		{"ErrResponseComplete", ErrResponseComplete, "netshell: response already completed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestClientErrorCarriesLengthNotPayload(t *testing.T) {
	err := &ClientError{Op: "send", ClientID: 7, Length: 5, Err: ErrSendFailed}

	if got, want := err.Error(), "netshell: could not send data[5] to client 7"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrSendFailed) {
		t.Error("errors.Is should match ErrSendFailed")
	}
	if errors.Is(err, ErrWaitFailed) {
		t.Error("send failure must be distinguishable from wait failure")
	}

	wait := &ClientError{Op: "wait", ClientID: 7, Length: 5, Err: ErrWaitFailed}
	if !strings.Contains(wait.Error(), "wait") {
		t.Errorf("expected wait failure message, got %q", wait.Error())
	}
}

func TestNewClientNotFoundError(t *testing.T) {
	err := NewClientNotFoundError(42)
	if !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected *ClientError, got %T", err)
	}
	if clientErr.ClientID != 42 {
		t.Errorf("ClientID = %d, want 42", clientErr.ClientID)
	}
	if got, want := err.Error(), "netshell: client with id 42 does not exist"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestServerError(t *testing.T) {
	err := &ServerError{Method: "ServerStats", Err: ErrIdleServer}

	if got, want := err.Error(), "netshell: cannot call method ServerStats - server hasn't started yet"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrIdleServer) {
		t.Error("errors.Is should match ErrIdleServer")
	}
}

func TestConfigValidationError(t *testing.T) {
	inner := errors.New("invalid port")
	err := ConfigValidationError{Err: inner}

	want := "netshell: invalid configuration: invalid port"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is should match wrapped error")
	}
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Error("errors.Is should match ErrInvalidConfiguration")
	}
}

func TestNewConfigValidationError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if err := NewConfigValidationError(nil); err != nil {
			t.Errorf("NewConfigValidationError(nil) = %v, want nil", err)
		}
	})

	t.Run("wraps error correctly", func(t *testing.T) {
		inner := errors.New("bad config")
		err := NewConfigValidationError(inner)

		var cfgErr ConfigValidationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigValidationError, got %T", err)
		}
		if cfgErr.Err != inner {
			t.Errorf("wrapped error = %v, want %v", cfgErr.Err, inner)
		}
	})
}

func TestNewSettingError(t *testing.T) {
	inner := errors.New("does not exist")
	err := NewSettingError("chroot", "/missing", inner)

	if got, want := err.Error(), "netshell: invalid configuration: chroot /missing: does not exist"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is should match wrapped error")
	}
}
