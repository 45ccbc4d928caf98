package runtime

import (
	"fmt"
	"net/http"
	"strings"
)

// HTTPError is implemented by failures that know their own HTTP response.
// ErrorMiddleware answers them with Response instead of a generic 500.
type HTTPError interface {
	error
	Response() *Response
}

// StatusError is an HTTPError answered with a plain text message.
type StatusError struct {
	Status  int
	Message string
	Header  http.Header
	Err     error
}

// NewStatusError returns a StatusError for status. An empty message falls back
// to the status text.
func NewStatusError(status int, message string) *StatusError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &StatusError{Status: status, Message: message}
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *StatusError) Unwrap() error { return e.Err }

// Response renders the error as a text response.
func (e *StatusError) Response() *Response {
	resp := Text(e.Message).WithStatus(e.Status)
	for key, values := range e.Header {
		for _, v := range values {
			resp.Header.Add(key, v)
		}
	}
	return resp
}

// NotFoundError is returned when nothing handles the requested uri.
func NotFoundError(uri, method string) *StatusError {
	return NewStatusError(http.StatusNotFound, fmt.Sprintf("No route matches requested uri: %s `%s`.", method, uri))
}

// MethodNotAllowedError is returned when uri exists but not for the request
// method. The allowed methods are advertised in the Allow header.
func MethodNotAllowedError(uri string, allowed []string) *StatusError {
	list := strings.Join(allowed, ", ")
	err := NewStatusError(http.StatusMethodNotAllowed, fmt.Sprintf("This uri `%s` allows only %s http methods.", uri, list))
	err.Header = http.Header{"Allow": []string{list}}
	return err
}
