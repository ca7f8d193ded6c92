package httpclient

import (
	"bytes"
	"io"
	"net/http"
)

type BodySource interface {
	NewReader() (io.ReadCloser, error)
	ContentLength() (int64, bool)
}

// NewBodySource wraps the payload of a run. Each attempt gets a fresh reader.
func NewBodySource(payload []byte) BodySource {
	if len(payload) == 0 {
		return emptyBodySource{}
	}
	data := append([]byte(nil), payload...)
	return &inlineBodySource{data: data}
}

type inlineBodySource struct {
	data []byte
}

func (s *inlineBodySource) NewReader() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func (s *inlineBodySource) ContentLength() (int64, bool) {
	return int64(len(s.data)), true
}

type emptyBodySource struct{}

func (emptyBodySource) NewReader() (io.ReadCloser, error) {
	return http.NoBody, nil
}

func (emptyBodySource) ContentLength() (int64, bool) {
	return 0, true
}
