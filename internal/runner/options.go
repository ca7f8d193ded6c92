package runner

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/torosent/volley/internal/loadtest"
)

// Requester performs one request attempt against the target. Any response,
// whatever its status, is returned as a status code with a nil error; a non-nil
// error means the transport exchange did not complete.
type Requester interface {
	Do(ctx context.Context) (int, error)
}

// RequesterFunc adapts a function to the Requester interface.
type RequesterFunc func(ctx context.Context) (int, error)

func (f RequesterFunc) Do(ctx context.Context) (int, error) { return f(ctx) }

// Publisher receives every Outcome as soon as its attempt resolves.
type Publisher interface {
	Publish(o loadtest.Outcome)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(o loadtest.Outcome)

func (f PublisherFunc) Publish(o loadtest.Outcome) { f(o) }

// Options configure the Dispatcher.
type Options struct {
	Requester Requester // request executor (required)
	Publisher Publisher // outcome sink; nil discards outcomes
	Logger    *log.Entry

	// Sleep waits d or until ctx ends. Tests inject a fake to avoid real pacing delays.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

func (o *Options) normalize() {
	if o.Publisher == nil {
		o.Publisher = PublisherFunc(func(loadtest.Outcome) {})
	}
	if o.Logger == nil {
		o.Logger = log.WithField("component", "dispatcher")
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
