// Package websocket carries the outcome stream over WebSocket: the server end
// registered with the hub and the client used by watchers.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/torosent/volley/internal/clientmetrics"
)

// Client represents a WebSocket client connection.
type Client struct {
	url     string
	headers http.Header
	dialer  *websocket.Dialer
	maxSize int64

	mu      sync.Mutex
	conn    *websocket.Conn
	metrics *clientmetrics.ConnStats
}

// Config configures the WebSocket client behavior.
type Config struct {
	URL              string
	Headers          http.Header
	HandshakeTimeout time.Duration
	MaxMessageSize   int64
}

// NewClient creates a new WebSocket client with the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = 1024 * 1024
	}

	return &Client{
		url:     cfg.URL,
		headers: cfg.Headers,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
		maxSize: cfg.MaxMessageSize,
		metrics: clientmetrics.New(),
	}
}

// Connect establishes a WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("already connected")
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.headers)
	if err != nil {
		c.metrics.RecordError()
		if resp != nil {
			return fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	conn.SetReadLimit(c.maxSize)

	c.conn = conn
	c.metrics.MarkConnected()
	return nil
}

// ReceiveMessage blocks for the next message. Cancelling ctx closes the
// connection to unblock the read.
func (c *Client) ReceiveMessage(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_, data, err := conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, ErrStreamClosed
		}
		c.metrics.RecordError()
		return nil, fmt.Errorf("read message: %w", err)
	}

	c.metrics.RecordReceived(len(data))
	return data, nil
}

// Close closes the WebSocket connection gracefully.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(5*time.Second),
	)

	closeErr := c.conn.Close()
	c.conn = nil
	c.metrics.MarkDisconnected()

	if err != nil && err != websocket.ErrCloseSent {
		return err
	}
	return closeErr
}

// Metrics returns the current metrics snapshot.
func (c *Client) Metrics() clientmetrics.Snapshot {
	return c.metrics.Snapshot()
}
