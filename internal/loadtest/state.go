package loadtest

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// Reason describes how a run ended.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonCompleted Reason = "completed"
	ReasonCancelled Reason = "cancelled"
)

// RunState is the mutable lifecycle record of one run. The control plane owns it;
// the dispatcher only touches it through the methods below.
type RunState struct {
	ID        string
	Config    TestConfig
	StartedAt time.Time

	cancelled atomic.Bool
	sent      atomic.Int64

	finishOnce sync.Once
	done       chan struct{}
	mu         sync.Mutex
	finishedAt time.Time
	reason     Reason
}

// NewRunState creates the state for a validated configuration.
func NewRunState(cfg TestConfig) *RunState {
	now := time.Now()
	return &RunState{
		ID:        ulid.Make().String(),
		Config:    cfg,
		StartedAt: now,
		done:      make(chan struct{}),
	}
}

// Cancel raises the cancellation flag. Safe to call repeatedly.
func (s *RunState) Cancel() {
	s.cancelled.Store(true)
}

// Cancelled reports whether cancellation was requested.
func (s *RunState) Cancelled() bool {
	return s.cancelled.Load()
}

// Sent returns the number of resolved attempts.
func (s *RunState) Sent() int64 {
	return s.sent.Load()
}

// Total returns the configured request count.
func (s *RunState) Total() int64 {
	return int64(s.Config.TotalRequests)
}

// MarkSent records one resolved attempt and returns the new count.
func (s *RunState) MarkSent() int64 {
	return s.sent.Add(1)
}

// Finish records the terminal reason and closes Done. Only the first call has effect.
func (s *RunState) Finish() {
	s.finishOnce.Do(func() {
		reason := ReasonCompleted
		if s.Cancelled() && s.Sent() < s.Total() {
			reason = ReasonCancelled
		}
		s.mu.Lock()
		s.finishedAt = time.Now()
		s.reason = reason
		s.mu.Unlock()
		close(s.done)
	})
}

// Done is closed once the dispatcher bound to this state has returned.
func (s *RunState) Done() <-chan struct{} {
	return s.done
}

// Active reports whether the run has not finished yet.
func (s *RunState) Active() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// FinishedAt returns the finish time and terminal reason; zero values while active.
func (s *RunState) FinishedAt() (time.Time, Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedAt, s.reason
}
