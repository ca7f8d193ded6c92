// Package client talks to a running volley server: it drives the control API
// and follows the outcome stream over WebSocket or SSE.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/torosent/volley/internal/control"
	"github.com/torosent/volley/internal/server"
)

// DefaultTimeout bounds each control API call.
const DefaultTimeout = 10 * time.Second

// APIError is returned for any non-success response from the control API.
type APIError struct {
	StatusCode int
	Message    string
	Issues     []string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if len(e.Issues) > 0 {
		msg += ": " + strings.Join(e.Issues, "; ")
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, msg)
}

type Config struct {
	// BaseURL is the server root, e.g. http://localhost:8000.
	BaseURL string
	Timeout time.Duration
	Headers http.Header
}

type Client struct {
	base    *url.URL
	http    *http.Client
	headers http.Header
}

func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("server URL is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: missing host", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	base.Path = strings.TrimSuffix(base.Path, "/")
	return &Client{
		base:    base,
		http:    &http.Client{Timeout: cfg.Timeout},
		headers: cfg.Headers,
	}, nil
}

// Start asks the server to begin a run.
func (c *Client) Start(ctx context.Context, req server.StartRequest) (server.StartResponse, error) {
	var resp server.StartResponse
	status, err := c.do(ctx, http.MethodPost, "/start", req, &resp)
	if err != nil {
		return resp, err
	}
	if status != http.StatusAccepted || !resp.Accepted {
		return resp, &APIError{StatusCode: status, Message: resp.Error, Issues: resp.Issues}
	}
	return resp, nil
}

// Stop requests cancellation of the active run. It reports whether a run was active.
func (c *Client) Stop(ctx context.Context) (bool, error) {
	var resp server.StopResponse
	status, err := c.do(ctx, http.MethodPost, "/stop", nil, &resp)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, &APIError{StatusCode: status}
	}
	return resp.Stopped, nil
}

func (c *Client) Status(ctx context.Context) (control.Status, error) {
	var st control.Status
	status, err := c.do(ctx, http.MethodGet, "/status", nil, &st)
	if err != nil {
		return st, err
	}
	if status != http.StatusOK {
		return st, &APIError{StatusCode: status}
	}
	return st, nil
}

func (c *Client) endpoint(path string) *url.URL {
	u := *c.base
	u.Path = c.base.Path + path
	return &u
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path).String(), body)
	if err != nil {
		return 0, err
	}
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			if resp.StatusCode >= 400 {
				return resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
			}
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
