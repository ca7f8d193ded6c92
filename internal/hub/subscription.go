package hub

import (
	"context"

	"github.com/torosent/volley/internal/clientmetrics"
)

// Subscription is a registered subscriber.
type Subscription struct {
	id    string
	conn  Conn
	queue chan []byte
	stats *clientmetrics.ConnStats

	// ctx is cancelled on removal; it also aborts a write in progress.
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Subscription) ID() string { return s.id }

// Done closes after the subscriber has been removed and its connection closed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Delivered returns the number of messages written to the connection.
func (s *Subscription) Delivered() int64 { return s.stats.Sent() }
