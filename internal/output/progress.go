package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/volley/internal/metrics"
)

// ProgressReporter periodically prints a one-line summary of a collector.
type ProgressReporter struct {
	collector *metrics.Collector
	interval  time.Duration
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(collector *metrics.Collector, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		collector: collector,
		interval:  interval,
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return
	}
	go p.run()
}

// Stop halts progress updates and terminates the line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fmt.Fprint(p.writer, "\r"+ProgressLine(p.collector.Stats(p.collector.Elapsed())))
		case <-p.done:
			return
		}
	}
}

// ProgressLine formats stats as a compact single line.
func ProgressLine(stats metrics.Stats) string {
	line := fmt.Sprintf("Outcomes: %d | Successes: %d | Failures: %d | RPS: %.1f",
		stats.Total, stats.Successes, stats.Failures, stats.RequestsPerSec)
	if stats.Total > 0 {
		line += fmt.Sprintf(" | P99: %.1fms", stats.P99LatencyMs)
	}
	if len(stats.StatusBuckets) > 0 {
		top := stats.StatusBuckets[0]
		line += fmt.Sprintf(" | Top: %s (%d)", top.Code, top.Count)
	}
	return line
}
