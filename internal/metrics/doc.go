// Package metrics aggregates request outcomes for run summaries and exposes
// process metrics to Prometheus.
//
// # Collector
//
// A [Collector] is created per run and fed every outcome the dispatcher emits:
//
//	collector := metrics.NewCollector()
//	collector.Record(outcome)
//	stats := collector.Stats(elapsed)
//
// Latency percentiles come from an HDR histogram tracking 1µs to 60s. Transport
// failures are counted separately from completed exchanges that returned a 4xx or
// 5xx status; both contribute to [Stats.ErrorRate].
//
// # Prometheus
//
// [Get] returns the process-wide [Recorder]. Its series use the "volley_" prefix
// and are registered with the default registry on package load.
package metrics
