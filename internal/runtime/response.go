package runtime

import (
	"encoding/xml"
	"fmt"
	"net/http"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/netshell/internal/runtime/errors"
	"github.com/drblury/netshell/internal/runtime/jsoncodec"
)

// Response is the value produced by the request pipeline. Write appends to the
// body until End marks the response complete.
type Response struct {
	StatusCode int
	Header     http.Header

	body     []byte
	complete bool
}

// NewResponse returns a response with the given status, body and content type.
// An empty content type leaves the header unset.
func NewResponse(status int, body []byte, contentType string) *Response {
	r := &Response{StatusCode: status, Header: http.Header{}, body: body}
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return r
}

// Empty returns a 200 response without a body.
func Empty() *Response {
	return NewResponse(http.StatusOK, nil, "")
}

// Text returns a 200 plain text response.
func Text(body string) *Response {
	return NewResponse(http.StatusOK, []byte(body), "text/plain; charset=utf-8")
}

// HTML returns a 200 html response.
func HTML(body string) *Response {
	return NewResponse(http.StatusOK, []byte(body), "text/html; charset=utf-8")
}

// JSON returns a 200 response with v encoded as JSON. Strings and byte slices
// holding valid JSON are passed through.
func JSON(v any) (*Response, error) {
	body, err := jsoncodec.MarshalBody(v)
	if err != nil {
		return nil, fmt.Errorf("encode json response: %w", err)
	}
	return NewResponse(http.StatusOK, body, jsoncodec.ContentType), nil
}

// XML returns a 200 response with v encoded as XML. Strings are sent as is.
func XML(v any) (*Response, error) {
	var body []byte
	switch val := v.(type) {
	case string:
		body = []byte(val)
	case []byte:
		body = val
	default:
		encoded, err := xml.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode xml response: %w", err)
		}
		body = append([]byte(xml.Header), encoded...)
	}
	return NewResponse(http.StatusOK, body, "application/xml; charset=utf-8"), nil
}

// Proto returns a 200 response with msg encoded with protojson.
func Proto(msg proto.Message) (*Response, error) {
	body, err := protojson.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode proto response: %w", err)
	}
	return NewResponse(http.StatusOK, body, jsoncodec.ContentType), nil
}

// WithStatus returns a copy of r with a different status code.
func (r *Response) WithStatus(status int) *Response {
	clone := *r
	clone.StatusCode = status
	clone.Header = r.Header.Clone()
	if clone.Header == nil {
		clone.Header = http.Header{}
	}
	clone.body = append([]byte(nil), r.body...)
	return &clone
}

// WithHeader returns a copy of r with key set to value.
func (r *Response) WithHeader(key, value string) *Response {
	clone := r.WithStatus(r.StatusCode)
	clone.Header.Set(key, value)
	return clone
}

// Write appends p to the body.
func (r *Response) Write(p []byte) (int, error) {
	if r.complete {
		return 0, errspkg.ErrResponseComplete
	}
	r.body = append(r.body, p...)
	return len(p), nil
}

// End marks the response complete. Further writes fail.
func (r *Response) End() error {
	if r.complete {
		return errspkg.ErrResponseComplete
	}
	r.complete = true
	return nil
}

// IsComplete reports whether End has been called.
func (r *Response) IsComplete() bool { return r.complete }

// Body returns the response body.
func (r *Response) Body() []byte { return r.body }
