// Package hub fans outcome records out to a dynamic set of stream subscribers.
//
// Every subscriber owns a bounded queue and a writer goroutine. Publish never
// blocks: a subscriber whose queue is full, or whose connection fails a write,
// is removed. A subscriber therefore sees every outcome published while it is
// registered, in publish order, or it is disconnected.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/torosent/volley/internal/clientmetrics"
	"github.com/torosent/volley/internal/loadtest"
	"github.com/torosent/volley/internal/metrics"
)

const (
	DefaultBuffer      = 1024
	DefaultSendTimeout = 5 * time.Second
)

// ErrSlowSubscriber is reported when a subscriber's queue overflows.
var ErrSlowSubscriber = errors.New("subscriber too slow: delivery queue full")

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("hub closed")

// Conn is the transport end of one subscriber. Send is only ever called from
// the subscriber's writer goroutine.
type Conn interface {
	Transport() string
	Send(ctx context.Context, msg []byte) error
	Close() error
}

// Options configure a Hub.
type Options struct {
	Buffer      int
	SendTimeout time.Duration
	Logger      *log.Entry
}

// Hub is the broadcast point between the dispatcher and the stream subscribers.
type Hub struct {
	buffer      int
	sendTimeout time.Duration
	logger      *log.Entry

	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
}

func New(opt Options) *Hub {
	if opt.Buffer <= 0 {
		opt.Buffer = DefaultBuffer
	}
	if opt.SendTimeout <= 0 {
		opt.SendTimeout = DefaultSendTimeout
	}
	if opt.Logger == nil {
		opt.Logger = log.WithField("component", "hub")
	}
	return &Hub{
		buffer:      opt.Buffer,
		sendTimeout: opt.SendTimeout,
		logger:      opt.Logger,
		subs:        map[string]*Subscription{},
	}
}

// Subscribe registers conn and starts its writer. The returned Subscription's
// Done channel closes once the writer has stopped and conn is closed.
func (h *Hub) Subscribe(conn Conn) (*Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		id:     uuid.NewString(),
		conn:   conn,
		queue:  make(chan []byte, h.buffer),
		stats:  clientmetrics.New(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	sub.stats.MarkConnected()
	metrics.Get().SubscriberAdded(conn.Transport())
	h.logger.WithFields(log.Fields{"subscriber": sub.id, "transport": conn.Transport()}).Info("subscriber connected")

	go h.writeLoop(sub)
	return sub, nil
}

// Unsubscribe removes the subscriber with id. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.remove(id, nil)
}

// Publish serialises o once and queues it for every registered subscriber.
func (h *Hub) Publish(o loadtest.Outcome) {
	msg, err := json.Marshal(o)
	if err != nil {
		h.logger.WithError(err).Error("encode outcome")
		return
	}
	h.Broadcast(msg)
}

// Broadcast queues msg for every registered subscriber without blocking.
func (h *Hub) Broadcast(msg []byte) {
	var slow []string
	h.mu.RLock()
	for id, sub := range h.subs {
		select {
		case sub.queue <- msg:
		default:
			slow = append(slow, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range slow {
		h.remove(id, ErrSlowSubscriber)
	}
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// SubscriberInfo describes one registered subscriber.
type SubscriberInfo struct {
	ID        string                 `json:"id" yaml:"id"`
	Transport string                 `json:"transport" yaml:"transport"`
	Stats     clientmetrics.Snapshot `json:"stats" yaml:"stats"`
}

// Subscribers returns a snapshot of the registered subscribers.
func (h *Hub) Subscribers() []SubscriberInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]SubscriberInfo, 0, len(h.subs))
	for _, sub := range h.subs {
		out = append(out, SubscriberInfo{
			ID:        sub.id,
			Transport: sub.conn.Transport(),
			Stats:     sub.stats.Snapshot(),
		})
	}
	return out
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	ids := make([]string, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.remove(id, nil)
	}
}

func (h *Hub) remove(id string, cause error) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	sub.cancel()
	transport := sub.conn.Transport()
	metrics.Get().SubscriberRemoved(transport)
	entry := h.logger.WithFields(log.Fields{
		"subscriber": id,
		"transport":  transport,
		"delivered":  sub.stats.Sent(),
	})
	if cause == nil {
		entry.Info("subscriber disconnected")
		return
	}
	reason := "send_error"
	if errors.Is(cause, ErrSlowSubscriber) {
		reason = "slow"
	}
	metrics.Get().SubscriberDropped(reason)
	entry.WithError(cause).Warn("subscriber dropped")
}

func (h *Hub) writeLoop(sub *Subscription) {
	defer func() {
		sub.stats.MarkDisconnected()
		if err := sub.conn.Close(); err != nil {
			h.logger.WithError(err).WithField("subscriber", sub.id).Debug("close subscriber connection")
		}
		close(sub.done)
	}()

	for {
		select {
		case <-sub.ctx.Done():
			return
		case msg := <-sub.queue:
			ctx, cancel := context.WithTimeout(sub.ctx, h.sendTimeout)
			err := sub.conn.Send(ctx, msg)
			cancel()
			if err != nil {
				sub.stats.RecordError()
				h.remove(sub.id, err)
				return
			}
			sub.stats.RecordSent(len(msg))
			metrics.Get().Delivered()
		}
	}
}
