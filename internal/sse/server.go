package sse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
)

const (
	Transport = "sse"

	// EventOutcome names the event carrying one outcome record.
	EventOutcome = "outcome"
)

// ServerConn is the server end of an outcome stream subscriber. It writes one
// event per Send with a sequential id.
type ServerConn struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	seq    uint64
	closed chan struct{}
	once   sync.Once
}

// NewServerConn writes the event-stream response headers and flushes them.
func NewServerConn(w http.ResponseWriter) (*ServerConn, error) {
	rc := http.NewResponseController(w)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("sse: response cannot be flushed: %w", err)
	}
	return &ServerConn{w: w, rc: rc, closed: make(chan struct{})}, nil
}

func (c *ServerConn) Transport() string { return Transport }

// Send writes msg as the data of one outcome event and flushes it.
func (c *ServerConn) Send(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.closed:
		return errors.New("sse: connection closed")
	default:
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}

	c.seq++
	frame := make([]byte, 0, len(msg)+48)
	frame = append(frame, "id: "...)
	frame = strconv.AppendUint(frame, c.seq, 10)
	frame = append(frame, "\nevent: "+EventOutcome+"\ndata: "...)
	frame = append(frame, msg...)
	frame = append(frame, "\n\n"...)

	if _, err := c.w.Write(frame); err != nil {
		return fmt.Errorf("sse: write event: %w", err)
	}
	if err := c.rc.Flush(); err != nil {
		return fmt.Errorf("sse: flush: %w", err)
	}
	return nil
}

// Closed is closed once Close has been called.
func (c *ServerConn) Closed() <-chan struct{} { return c.closed }

// Close marks the stream finished. The HTTP handler ends the response.
func (c *ServerConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}
