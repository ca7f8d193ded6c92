package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const Transport = "websocket"

// ServerConfig configures the upgrade of subscriber connections.
type ServerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
	// MaxMessageSize bounds frames read from subscribers, which are discarded.
	MaxMessageSize int64
}

// ServerConn is the server end of an outcome stream subscriber.
// Send must not be called concurrently; Wait may run alongside it.
type ServerConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

// Upgrade switches the request to the WebSocket protocol.
func Upgrade(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (*ServerConn, error) {
	if cfg.CheckOrigin == nil {
		cfg.CheckOrigin = func(*http.Request) bool { return true }
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = 4096
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     cfg.CheckOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	conn.SetReadLimit(cfg.MaxMessageSize)
	return &ServerConn{conn: conn}, nil
}

func (c *ServerConn) Transport() string { return Transport }

// Send writes msg as one text message. The write deadline follows ctx.
func (c *ServerConn) Send(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	// Cancellation unblocks a write stuck on a peer that stopped reading.
	stop := context.AfterFunc(ctx, func() { _ = c.conn.NetConn().SetWriteDeadline(time.Now()) })
	defer stop()
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Wait reads and discards frames until the peer goes away or the connection
// is closed, then returns. Reading is required for close and ping handling.
func (c *ServerConn) Wait() error {
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
	}
}

// Close sends a normal closure frame and closes the connection.
func (c *ServerConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		// best effort; the peer may already be gone
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
