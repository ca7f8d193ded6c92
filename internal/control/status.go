package control

import (
	"time"

	"github.com/torosent/volley/internal/loadtest"
	"github.com/torosent/volley/internal/metrics"
)

// Status is a point-in-time view of the current or most recent run.
type Status struct {
	Active      bool            `json:"active" yaml:"active"`
	Sent        int64           `json:"sent" yaml:"sent"`
	Total       int64           `json:"total" yaml:"total"`
	RunID       string          `json:"runId,omitempty" yaml:"run_id,omitempty"`
	StartedAt   *time.Time      `json:"startedAt,omitempty" yaml:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty" yaml:"finished_at,omitempty"`
	Reason      loadtest.Reason `json:"reason,omitempty" yaml:"reason,omitempty"`
	Subscribers int             `json:"subscribers" yaml:"subscribers"`
	Summary     *metrics.Stats  `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Status reports on the current run, or the last finished one. It never
// changes run state.
func (c *ControlPlane) Status() Status {
	c.mu.Lock()
	run := c.current
	collector := c.collector
	c.mu.Unlock()

	var st Status
	if c.opt.Hub != nil {
		st.Subscribers = c.opt.Hub.Len()
	}
	if run == nil {
		return st
	}

	st.Active = run.Active()
	st.Sent = run.Sent()
	st.Total = run.Total()
	st.RunID = run.ID
	started := run.StartedAt
	st.StartedAt = &started

	elapsed := time.Since(started)
	if finishedAt, reason := run.FinishedAt(); !finishedAt.IsZero() {
		st.FinishedAt = &finishedAt
		st.Reason = reason
		elapsed = finishedAt.Sub(started)
	}
	if collector != nil {
		summary := collector.Stats(elapsed)
		st.Summary = &summary
	}
	return st
}
