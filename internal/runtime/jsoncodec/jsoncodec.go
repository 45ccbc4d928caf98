package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

// ContentType is the media type written for JSON bodies.
const ContentType = "application/json"

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// Valid reports whether data is a well-formed JSON document.
func Valid(data []byte) bool {
	return defaultConfig.Valid(data)
}

// MarshalBody encodes v for a response body. Byte slices and raw strings that
// already hold JSON are passed through untouched.
func MarshalBody(v any) ([]byte, error) {
	switch value := v.(type) {
	case []byte:
		if Valid(value) {
			return value, nil
		}
	case string:
		if Valid([]byte(value)) {
			return []byte(value), nil
		}
	}
	return Marshal(v)
}

func Encode(w io.Writer, v any) error {
	enc := defaultConfig.NewEncoder(w)
	return enc.Encode(v)
}

func Decode(r io.Reader, v any) error {
	dec := defaultConfig.NewDecoder(r)
	return dec.Decode(v)
}
