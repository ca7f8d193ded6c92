package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/volley/internal/control"
	"github.com/torosent/volley/internal/loadtest"
	"github.com/torosent/volley/internal/metrics"
)

// Format selects how reports are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "text", "json" or "yaml" (case-insensitive). Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want text, json or yaml)", s)
	}
}

// PrintReport outputs a human-readable summary report. Only the millisecond
// fields are read so that stats decoded from JSON render the same way.
func PrintReport(w io.Writer, stats metrics.Stats) {
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	fmt.Fprintf(w, "Total Requests:    %d\n", stats.Total)
	fmt.Fprintf(w, "Successful:        %d\n", stats.Successes)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failures)
	fmt.Fprintf(w, "HTTP Errors:       %d\n", stats.HTTPErrors)
	fmt.Fprintf(w, "Duration:          %s\n", msDuration(stats.DurationMs))
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", stats.RequestsPerSec)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", msDuration(stats.MinLatencyMs))
	fmt.Fprintf(w, "  Max:             %s\n", msDuration(stats.MaxLatencyMs))
	fmt.Fprintf(w, "  Mean:            %s\n", msDuration(stats.MeanLatencyMs))
	fmt.Fprintf(w, "  P50:             %s\n", msDuration(stats.P50LatencyMs))
	fmt.Fprintf(w, "  P90:             %s\n", msDuration(stats.P90LatencyMs))
	fmt.Fprintf(w, "  P99:             %s\n", msDuration(stats.P99LatencyMs))
	if len(stats.StatusBuckets) > 0 {
		fmt.Fprintln(w, "\nStatus Codes:")
		writeStatusBuckets(w, stats.StatusBuckets, "  ")
	}
	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		writeErrors(w, stats.Errors, "  ")
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, stats metrics.Stats) error {
	return writeJSON(w, stats)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, stats metrics.Stats) error {
	return writeYAML(w, stats)
}

// PrintStatus renders a control plane status in the requested format.
func PrintStatus(w io.Writer, st control.Status, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, st)
	case FormatYAML:
		return writeYAML(w, st)
	}

	state := "idle"
	if st.Active {
		state = "running"
	} else if st.Reason != "" {
		state = string(st.Reason)
	}
	fmt.Fprintf(w, "State:             %s\n", state)
	if st.RunID != "" {
		fmt.Fprintf(w, "Run:               %s\n", st.RunID)
	}
	if st.StartedAt != nil {
		fmt.Fprintf(w, "Started:           %s\n", st.StartedAt.Format(time.RFC3339))
	}
	if st.FinishedAt != nil {
		fmt.Fprintf(w, "Finished:          %s\n", st.FinishedAt.Format(time.RFC3339))
	}
	if st.RunID != "" {
		fmt.Fprintf(w, "Sent:              %d/%d\n", st.Sent, st.Total)
	}
	fmt.Fprintf(w, "Subscribers:       %d\n", st.Subscribers)
	if st.Summary != nil {
		PrintReport(w, *st.Summary)
	}
	return nil
}

// PrintOutcome writes one outcome as a single line.
func PrintOutcome(w io.Writer, o loadtest.Outcome) {
	code := "---"
	if o.StatusCode != nil {
		code = fmt.Sprintf("%d", *o.StatusCode)
	}
	line := fmt.Sprintf("%s %8.2fms", code, o.ResponseTime*1000)
	if o.ErrorMessage != nil {
		line += " error=" + *o.ErrorMessage
	}
	fmt.Fprintln(w, line)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func msDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond)).Round(time.Microsecond)
}

func writeStatusBuckets(w io.Writer, buckets []metrics.StatusBucket, indent string) {
	for _, row := range buckets {
		fmt.Fprintf(w, "%s%s: %d\n", indent, row.Code, row.Count)
	}
}

func writeErrors(w io.Writer, errs map[string]int, indent string) {
	msgs := make([]string, 0, len(errs))
	for msg := range errs {
		msgs = append(msgs, msg)
	}
	sort.Slice(msgs, func(i, j int) bool {
		if errs[msgs[i]] == errs[msgs[j]] {
			return msgs[i] < msgs[j]
		}
		return errs[msgs[i]] > errs[msgs[j]]
	})
	for _, msg := range msgs {
		fmt.Fprintf(w, "%s%dx %s\n", indent, errs[msg], msg)
	}
}
