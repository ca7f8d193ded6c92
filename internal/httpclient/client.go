package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/torosent/volley/internal/loadtest"
)

// RequestBuilder produces identical requests for every attempt of a run.
type RequestBuilder struct {
	method  string
	target  string
	host    string
	headers http.Header
	body    BodySource
}

func NewRequestBuilder(cfg loadtest.TestConfig) (*RequestBuilder, error) {
	target := strings.TrimSpace(cfg.TargetURL)
	if target == "" {
		return nil, errors.New("target URL is required")
	}

	headers := http.Header{}
	var host string
	for key, value := range cfg.Headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		if strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)

		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}

		// net/http ignores Host in req.Header.
		if canonicalKey == "Host" {
			host = strings.TrimSpace(value)
			continue
		}
		headers.Set(canonicalKey, value)
	}

	return &RequestBuilder{
		method:  cfg.Method(),
		target:  target,
		host:    host,
		headers: headers,
		body:    NewBodySource(cfg.Payload),
	}, nil
}

// Method returns the HTTP verb every built request uses.
func (b *RequestBuilder) Method() string {
	return b.method
}

func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	reader, err := b.body.NewReader()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, b.method, b.target, reader)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	req.Header = b.headers.Clone()
	if b.host != "" {
		req.Host = b.host
	}

	if length, ok := b.body.ContentLength(); ok {
		req.ContentLength = length
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return b.body.NewReader()
	}

	return req, nil
}

// NewClient returns a client tuned for load generation. timeout bounds each request
// end to end; zero disables the bound.
func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
