// Package sse carries the outcome stream as Server-Sent Events: the server end
// registered with the hub and the client used by watchers.
package sse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/torosent/volley/internal/clientmetrics"
)

// ErrStreamClosed is returned when the server ends the event stream.
var ErrStreamClosed = errors.New("stream closed by server")

// Event represents a Server-Sent Event.
type Event struct {
	ID    string
	Event string
	Data  string
}

// StatusError is returned when the SSE endpoint responds with a non-200 status code.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// Client represents an SSE client connection.
type Client struct {
	url        string
	headers    http.Header
	httpClient *http.Client

	mu      sync.Mutex
	resp    *http.Response
	reader  *bufio.Reader
	metrics *clientmetrics.ConnStats
}

// Config configures the SSE client behavior.
type Config struct {
	URL     string
	Headers http.Header
	// Timeout bounds the wait for response headers; the stream itself is unbounded.
	Timeout time.Duration
}

// NewClient creates a new SSE client with the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout

	return &Client{
		url:        cfg.URL,
		headers:    cfg.Headers,
		httpClient: &http.Client{Transport: transport},
		metrics:    clientmetrics.New(),
	}
}

// Connect establishes an SSE connection. The stream lives until Close or
// until ctx is cancelled.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resp != nil {
		return fmt.Errorf("already connected")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		c.metrics.RecordError()
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for key, values := range c.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordError()
		return fmt.Errorf("http request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordError()
		resp.Body.Close()
		return &StatusError{Code: resp.StatusCode}
	}

	c.resp = resp
	c.reader = bufio.NewReader(resp.Body)
	c.metrics.MarkConnected()
	return nil
}

// ReadEvent reads the next SSE event from the stream.
func (c *Client) ReadEvent(ctx context.Context) (Event, error) {
	c.mu.Lock()
	reader := c.reader
	resp := c.resp
	c.mu.Unlock()

	if reader == nil {
		return Event{}, fmt.Errorf("not connected")
	}

	stop := context.AfterFunc(ctx, func() { _ = resp.Body.Close() })
	defer stop()

	event := Event{}
	var dataLines []string
	var size int

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return Event{}, ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return Event{}, ErrStreamClosed
			}
			c.metrics.RecordError()
			return Event{}, fmt.Errorf("read line: %w", err)
		}
		size += len(line)

		line = strings.TrimRight(line, "\r\n")

		// blank line dispatches the event
		if line == "" {
			if len(dataLines) > 0 || event.Event != "" || event.ID != "" {
				event.Data = strings.Join(dataLines, "\n")
				c.metrics.RecordReceived(size)
				return event, nil
			}
			size = 0
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "id":
			event.ID = value
		case "event":
			event.Event = value
		case "data":
			dataLines = append(dataLines, value)
		}
	}
}

// Close closes the SSE connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resp == nil {
		return nil
	}

	err := c.resp.Body.Close()
	c.resp = nil
	c.reader = nil
	c.metrics.MarkDisconnected()
	return err
}

// Metrics returns the current metrics snapshot.
func (c *Client) Metrics() clientmetrics.Snapshot {
	return c.metrics.Snapshot()
}
