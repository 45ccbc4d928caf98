package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrClientNotFound            = sterrors.New("netshell: client not found")
	ErrSendFailed                = sterrors.New("netshell: send failed")
	ErrWaitFailed                = sterrors.New("netshell: wait failed")
	ErrClientOperationFailed     = sterrors.New("netshell: client operation failed")
	ErrIdleServer                = sterrors.New("netshell: server hasn't started yet")
	ErrAlreadyStarted            = sterrors.New("netshell: server already started")
	ErrConfigRequired            = sterrors.New("netshell: configuration is required")
	ErrHandlerFactoryRequired    = sterrors.New("netshell: handler factory is required")
	ErrEmptyPipeline             = sterrors.New("netshell: cannot process request with empty middleware pipeline")
	ErrInvalidMiddlewareResponse = sterrors.New("netshell: middleware returned neither a response nor an error")
	ErrResponseComplete          = sterrors.New("netshell: response already completed")
	ErrInvalidConfiguration      = sterrors.New("netshell: invalid configuration")
)

// ClientError reports a failed client operation. Length is the size of the
// payload that could not be delivered; the payload itself is never retained.
type ClientError struct {
	Op       string
	ClientID int
	Length   int
	Err      error
}

func (e *ClientError) Error() string {
	switch {
	case sterrors.Is(e.Err, ErrSendFailed):
		return fmt.Sprintf("netshell: could not send data[%d] to client %d", e.Length, e.ClientID)
	case sterrors.Is(e.Err, ErrWaitFailed):
		return fmt.Sprintf("netshell: could not send data[%d] to client %d and wait for delivery", e.Length, e.ClientID)
	case sterrors.Is(e.Err, ErrClientNotFound):
		return fmt.Sprintf("netshell: client with id %d does not exist", e.ClientID)
	}
	return fmt.Sprintf("netshell: %s on client %d: %v", e.Op, e.ClientID, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

// NewClientNotFoundError returns the error raised for lookups of unknown clients.
func NewClientNotFoundError(id int) error {
	return &ClientError{Op: "lookup", ClientID: id, Err: ErrClientNotFound}
}

// ServerError reports a method that was called in the wrong server state.
type ServerError struct {
	Method string
	Err    error
}

func (e *ServerError) Error() string {
	if sterrors.Is(e.Err, ErrIdleServer) {
		return fmt.Sprintf("netshell: cannot call method %s - server hasn't started yet", e.Method)
	}
	return fmt.Sprintf("netshell: %s: %v", e.Method, e.Err)
}

func (e *ServerError) Unwrap() error { return e.Err }

// ConfigValidationError wraps validation failures raised by configuration setters
// and Config.Validate.
type ConfigValidationError struct {
	Setting string
	Value   any
	Err     error
}

func (e ConfigValidationError) Error() string {
	if e.Setting == "" {
		return fmt.Sprintf("%v: %v", ErrInvalidConfiguration, e.Err)
	}
	return fmt.Sprintf("%v: %s %v: %v", ErrInvalidConfiguration, e.Setting, e.Value, e.Err)
}

func (e ConfigValidationError) Unwrap() []error {
	return []error{ErrInvalidConfiguration, e.Err}
}

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// NewSettingError builds the error for a single rejected setting value.
func NewSettingError(setting string, value any, err error) error {
	return ConfigValidationError{Setting: setting, Value: value, Err: err}
}
