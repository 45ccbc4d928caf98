package runtime

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/klauspost/compress/flate"

	"github.com/drblury/netshell/transport"
)

// Encoding is the outcome of content encoding negotiation.
type Encoding int

const (
	EncodingIdentity Encoding = iota
	EncodingGzip
	EncodingDeflate
)

// gzipLevel is the level requested from transports that compress on End.
const gzipLevel = 1

// identifyingHeaders are cleared on every response so transports do not
// advertise their software.
var identifyingHeaders = []string{"Server", "Software-Server"}

// NegotiateEncoding picks the response encoding from an Accept-Encoding value.
// gzip wins over deflate, anything else sends the body unmodified.
func NegotiateEncoding(acceptEncoding string) Encoding {
	var deflate bool
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "gzip":
			return EncodingGzip
		case "deflate":
			deflate = true
		}
	}
	if deflate {
		return EncodingDeflate
	}
	return EncodingIdentity
}

// writeResponse copies resp onto the transport response and ends it.
func writeResponse(req *Request, resp *Response, out transport.HTTPResponse) error {
	for key, values := range resp.Header {
		for _, v := range values {
			out.Header(key, v)
		}
	}
	for _, key := range identifyingHeaders {
		out.DelHeader(key)
	}

	body := resp.Body()
	switch NegotiateEncoding(req.Header.Get("Accept-Encoding")) {
	case EncodingGzip:
		out.Gzip(gzipLevel)
	case EncodingDeflate:
		compressed, err := deflateBody(body)
		if err != nil {
			return err
		}
		out.Header("Content-Encoding", "deflate")
		body = compressed
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	out.Status(status)
	return out.End(body)
}

func deflateBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("deflate response: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return nil, fmt.Errorf("deflate response: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("deflate response: %w", err)
	}
	return buf.Bytes(), nil
}
