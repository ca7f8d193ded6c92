// Package threshold evaluates pass/fail assertions against a run summary, so
// that a watcher can exit non-zero when a run misses its targets.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/volley/internal/metrics"
)

// Threshold is one parsed assertion, e.g. "latency:p99 < 250".
type Threshold struct {
	Metric    string
	Aggregate string
	Operator  string
	Value     float64
	Raw       string
}

type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

var pattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*(<=|>=|==|<|>)\s*([0-9]*\.?[0-9]+)$`)

// aggregates lists what each metric supports. Latency values are milliseconds.
var aggregates = map[string][]string{
	"latency":     {"p50", "p90", "p99", "avg", "min", "max"},
	"failures":    {"count", "rate"},
	"http_errors": {"count", "rate"},
	"requests":    {"count", "rate"},
}

// Parse reads "metric:aggregate op value". Supported forms:
//
//	latency:p99 < 250        (ms; also p50, p90, avg, min, max)
//	failures:rate < 0.01     (transport failures / total; also count)
//	http_errors:count == 0   (completed with status >= 400; also rate)
//	requests:rate > 100      (outcomes per second; also count)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold")
	}
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid threshold %q (expected metric:aggregate op value, e.g. 'latency:p99 < 250')", s)
	}
	allowed, ok := aggregates[m[1]]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric %q (supported: latency, failures, http_errors, requests)", m[1])
	}
	if !contains(allowed, m[2]) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", m[2], m[1], strings.Join(allowed, ", "))
	}
	value, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %w", m[4], err)
	}
	return Threshold{Metric: m[1], Aggregate: m[2], Operator: m[3], Value: value, Raw: s}, nil
}

// ParseAll parses every entry and reports all malformed ones together.
func ParseAll(values []string) ([]Threshold, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]Threshold, 0, len(values))
	var problems []string
	for i, v := range values {
		t, err := Parse(v)
		if err != nil {
			problems = append(problems, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		out = append(out, t)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return out, nil
}

// Evaluate checks every threshold against stats.
func Evaluate(thresholds []Threshold, stats metrics.Stats) []Result {
	if len(thresholds) == 0 {
		return nil
	}
	results := make([]Result, 0, len(thresholds))
	for _, t := range thresholds {
		actual := value(t, stats)
		pass := compare(actual, t.Operator, t.Value)
		mark := "PASS"
		if !pass {
			mark = "FAIL"
		}
		results = append(results, Result{
			Threshold: t,
			Actual:    actual,
			Pass:      pass,
			Message:   fmt.Sprintf("%s %s (actual %.4g)", mark, t.Raw, actual),
		})
	}
	return results
}

// Failed counts results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Pass {
			n++
		}
	}
	return n
}

func value(t Threshold, stats metrics.Stats) float64 {
	switch t.Metric {
	case "latency":
		switch t.Aggregate {
		case "p50":
			return stats.P50LatencyMs
		case "p90":
			return stats.P90LatencyMs
		case "p99":
			return stats.P99LatencyMs
		case "avg":
			return stats.MeanLatencyMs
		case "min":
			return stats.MinLatencyMs
		case "max":
			return stats.MaxLatencyMs
		}
	case "failures":
		return countOrRate(t.Aggregate, stats.Failures, stats.Total)
	case "http_errors":
		return countOrRate(t.Aggregate, stats.HTTPErrors, stats.Total)
	case "requests":
		if t.Aggregate == "rate" {
			return stats.RequestsPerSec
		}
		return float64(stats.Total)
	}
	return math.NaN()
}

func countOrRate(aggregate string, n, total int64) float64 {
	if aggregate == "count" {
		return float64(n)
	}
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func compare(actual float64, op string, expected float64) bool {
	const epsilon = 1e-9
	switch op {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
