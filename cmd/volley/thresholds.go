package main

import (
	"fmt"
	"io"

	"github.com/torosent/volley/internal/metrics"
	"github.com/torosent/volley/internal/threshold"
)

// checkThresholds prints one line per assertion and fails if any did not pass.
func checkThresholds(w io.Writer, thresholds []threshold.Threshold, stats metrics.Stats) error {
	if len(thresholds) == 0 {
		return nil
	}
	results := threshold.Evaluate(thresholds, stats)
	fmt.Fprintln(w, "\nThresholds:")
	for _, r := range results {
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
	if n := threshold.Failed(results); n > 0 {
		return fmt.Errorf("%d of %d thresholds failed", n, len(results))
	}
	return nil
}
