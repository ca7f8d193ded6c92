package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/torosent/volley/internal/clientmetrics"
	"github.com/torosent/volley/internal/loadtest"
	"github.com/torosent/volley/internal/sse"
	"github.com/torosent/volley/internal/websocket"
)

// Transport names accepted by Watch.
const (
	TransportWebSocket = websocket.Transport
	TransportSSE       = sse.Transport
)

// ErrStop may be returned by a watch callback to end the stream without error.
var ErrStop = errors.New("stop watching")

// OutcomeFunc receives each outcome in arrival order.
type OutcomeFunc func(loadtest.Outcome) error

type stream interface {
	Connect(ctx context.Context) error
	next(ctx context.Context) ([]byte, error)
	Close() error
	Metrics() clientmetrics.Snapshot
}

type wsStream struct{ *websocket.Client }

func (s wsStream) next(ctx context.Context) ([]byte, error) {
	data, err := s.ReceiveMessage(ctx)
	if errors.Is(err, websocket.ErrStreamClosed) {
		return nil, errStreamEnded
	}
	return data, err
}

type sseStream struct{ *sse.Client }

func (s sseStream) next(ctx context.Context) ([]byte, error) {
	for {
		ev, err := s.ReadEvent(ctx)
		if errors.Is(err, sse.ErrStreamClosed) {
			return nil, errStreamEnded
		}
		if err != nil {
			return nil, err
		}
		if ev.Event == "" || ev.Event == sse.EventOutcome {
			return []byte(ev.Data), nil
		}
	}
}

var errStreamEnded = errors.New("stream ended")

// WatchOption customizes a single Watch call.
type WatchOption func(*watchOptions)

type watchOptions struct {
	onConnect func()
}

// OnConnect registers fn to run once the stream handshake has completed,
// before the first outcome is read.
func OnConnect(fn func()) WatchOption {
	return func(o *watchOptions) { o.onConnect = fn }
}

// Watch subscribes to the outcome stream and calls fn for every outcome until
// ctx ends, the server closes the stream, or fn returns an error. Server
// closure, ctx cancellation and ErrStop all end the watch cleanly.
func (c *Client) Watch(ctx context.Context, transport string, fn OutcomeFunc, opts ...WatchOption) (clientmetrics.Snapshot, error) {
	var wo watchOptions
	for _, opt := range opts {
		opt(&wo)
	}
	s, err := c.stream(transport)
	if err != nil {
		return clientmetrics.Snapshot{}, err
	}
	if err := s.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return s.Metrics(), nil
		}
		return s.Metrics(), err
	}
	defer s.Close()
	if wo.onConnect != nil {
		wo.onConnect()
	}

	for {
		data, err := s.next(ctx)
		if err != nil {
			if errors.Is(err, errStreamEnded) || ctx.Err() != nil {
				return s.Metrics(), nil
			}
			return s.Metrics(), err
		}
		var o loadtest.Outcome
		if err := json.Unmarshal(data, &o); err != nil {
			return s.Metrics(), fmt.Errorf("decode outcome: %w", err)
		}
		if err := fn(o); err != nil {
			if errors.Is(err, ErrStop) {
				return s.Metrics(), nil
			}
			return s.Metrics(), err
		}
	}
}

func (c *Client) stream(transport string) (stream, error) {
	switch strings.ToLower(strings.TrimSpace(transport)) {
	case "", TransportWebSocket, "ws":
		u := c.endpoint("/stream")
		if u.Scheme == "https" {
			u.Scheme = "wss"
		} else {
			u.Scheme = "ws"
		}
		return wsStream{websocket.NewClient(websocket.Config{URL: u.String(), Headers: c.headers})}, nil
	case TransportSSE:
		return sseStream{sse.NewClient(sse.Config{URL: c.endpoint("/events").String(), Headers: c.headers})}, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q (want websocket or sse)", transport)
	}
}
