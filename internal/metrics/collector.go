package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/volley/internal/loadtest"
)

const maxTrackedErrors = 32

// Collector aggregates outcomes in a thread-safe manner.
type Collector struct {
	mu          sync.Mutex
	hist        *hdrhistogram.Histogram
	successes   int64
	failures    int64
	httpErrors  int64
	minLatency  time.Duration
	maxLatency  time.Duration
	sumLatency  time.Duration
	statusCodes map[int]int64
	errors      map[string]int64
	start       time.Time
}

// Stats represents aggregated metrics.
type Stats struct {
	Total          int64         `json:"total" yaml:"total"`
	Successes      int64         `json:"successes" yaml:"successes"`
	Failures       int64         `json:"failures" yaml:"failures"`
	HTTPErrors     int64         `json:"http_errors" yaml:"http_errors"`
	ErrorRate      float64       `json:"error_rate" yaml:"error_rate"`
	MinLatency     time.Duration `json:"-" yaml:"-"`
	MaxLatency     time.Duration `json:"-" yaml:"-"`
	MeanLatency    time.Duration `json:"-" yaml:"-"`
	P50Latency     time.Duration `json:"-" yaml:"-"`
	P90Latency     time.Duration `json:"-" yaml:"-"`
	P99Latency     time.Duration `json:"-" yaml:"-"`
	Duration       time.Duration `json:"-" yaml:"-"`
	RequestsPerSec float64       `json:"requests_per_sec" yaml:"requests_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64        `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64        `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64        `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64        `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64        `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P99LatencyMs  float64        `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	DurationMs    float64        `json:"duration_ms" yaml:"duration_ms"`
	StatusBuckets []StatusBucket `json:"status_buckets,omitempty" yaml:"status_buckets,omitempty"`
	Errors        map[string]int `json:"errors,omitempty" yaml:"errors,omitempty"`
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Collector{
		hist:        h,
		statusCodes: make(map[int]int64),
		errors:      make(map[string]int64),
		start:       time.Now(),
	}
}

// Start resets the reference time used by Elapsed.
func (c *Collector) Start() {
	c.mu.Lock()
	c.start = time.Now()
	c.mu.Unlock()
}

// Elapsed returns the time since the collector was created or last started.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// Publish satisfies the dispatcher's publisher contract.
func (c *Collector) Publish(o loadtest.Outcome) {
	c.Record(o)
}

// Record adds a single outcome.
func (c *Collector) Record(o loadtest.Outcome) {
	latency := o.Latency()

	c.mu.Lock()
	defer c.mu.Unlock()

	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency

	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	if o.Success {
		c.successes++
		c.statusCodes[o.Code()]++
		if o.Code() >= 400 {
			c.httpErrors++
		}
		return
	}

	c.failures++
	msg := o.Error()
	if _, ok := c.errors[msg]; ok || len(c.errors) < maxTrackedErrors {
		c.errors[msg]++
	} else {
		c.errors["other"]++
	}
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Total:      total,
		Successes:  c.successes,
		Failures:   c.failures,
		HTTPErrors: c.httpErrors,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
		stats.ErrorRate = float64(c.failures+c.httpErrors) / float64(total)
	}

	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinLatencyMs = float64(stats.MinLatency) / float64(time.Millisecond)
	stats.MaxLatencyMs = float64(stats.MaxLatency) / float64(time.Millisecond)
	stats.MeanLatencyMs = float64(stats.MeanLatency) / float64(time.Millisecond)
	stats.P50LatencyMs = float64(stats.P50Latency) / float64(time.Millisecond)
	stats.P90LatencyMs = float64(stats.P90Latency) / float64(time.Millisecond)
	stats.P99LatencyMs = float64(stats.P99Latency) / float64(time.Millisecond)

	stats.Duration = elapsed
	stats.DurationMs = float64(elapsed) / float64(time.Millisecond)
	if elapsed > 0 && total > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
	}

	if len(c.statusCodes) > 0 {
		codes := make(map[string]int, len(c.statusCodes))
		for code, n := range c.statusCodes {
			codes[strconv.Itoa(code)] = int(n)
		}
		stats.StatusBuckets = FlattenStatusBuckets(codes)
	}

	if len(c.errors) > 0 {
		stats.Errors = make(map[string]int, len(c.errors))
		for k, v := range c.errors {
			stats.Errors[k] = int(v)
		}
	}

	return stats
}
