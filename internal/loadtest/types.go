// Package loadtest holds the records shared by the dispatcher, the hub and the
// control plane: the run configuration, the run state and request outcomes.
package loadtest

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TestConfig describes one load test run.
type TestConfig struct {
	TargetURL     string            `json:"url" yaml:"url"`
	TotalRequests int               `json:"totalRequests" yaml:"totalRequests"`
	Concurrency   int               `json:"concurrency" yaml:"concurrency"`
	Rate          float64           `json:"rate" yaml:"rate"`
	Headers       map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Payload       []byte            `json:"-" yaml:"-"`
	// Timeout bounds a single request. Zero defers to the server default.
	Timeout time.Duration `json:"-" yaml:"-"`
}

// Method returns POST when a payload is present and GET otherwise.
func (c TestConfig) Method() string {
	if len(c.Payload) > 0 {
		return http.MethodPost
	}
	return http.MethodGet
}

// IssueInterval is the wait before each individual request. The aggregate rate is
// divided across the concurrent lanes of a batch.
func (c TestConfig) IssueInterval() time.Duration {
	if !(c.Rate > 0) || c.Concurrency <= 0 {
		return 0
	}
	d := float64(time.Second) / (c.Rate * float64(c.Concurrency))
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// maxIssueInterval caps the pacing wait a run may ask for.
const maxIssueInterval = 24 * time.Hour

// Validate reports every problem with the configuration at once.
func (c TestConfig) Validate() error {
	var issues []string

	target := strings.TrimSpace(c.TargetURL)
	if target == "" {
		issues = append(issues, "url is required")
	} else if u, err := url.Parse(target); err != nil {
		issues = append(issues, fmt.Sprintf("url is invalid: %v", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		issues = append(issues, fmt.Sprintf("url scheme %q is not supported (use http or https)", u.Scheme))
	} else if u.Host == "" {
		issues = append(issues, "url must include a host")
	}

	if c.TotalRequests < 1 {
		issues = append(issues, "totalRequests must be >= 1")
	}
	if c.Concurrency < 1 {
		issues = append(issues, "concurrency must be >= 1")
	}
	switch {
	case !(c.Rate > 0):
		issues = append(issues, "rate must be > 0")
	case math.IsInf(c.Rate, 1):
		issues = append(issues, "rate must be finite")
	case c.Concurrency >= 1 && float64(time.Second)/(c.Rate*float64(c.Concurrency)) > float64(maxIssueInterval):
		issues = append(issues, fmt.Sprintf("rate is too low: the wait between requests would exceed %s", maxIssueInterval))
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}

	seen := make(map[string]string, len(c.Headers))
	for key, value := range c.Headers {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" || strings.ContainsAny(trimmed, "\r\n") {
			issues = append(issues, fmt.Sprintf("invalid header key %q", key))
			continue
		}
		canonical := http.CanonicalHeaderKey(trimmed)
		if prev, dup := seen[canonical]; dup {
			issues = append(issues, fmt.Sprintf("duplicate header %q (also given as %q)", canonical, prev))
			continue
		}
		seen[canonical] = key
		if strings.ContainsAny(value, "\r\n") {
			issues = append(issues, fmt.Sprintf("invalid header value for %s", canonical))
		}
	}

	if len(issues) > 0 {
		return &InvalidConfigError{issues: issues}
	}
	return nil
}

// Outcome is the immutable record of one request attempt.
type Outcome struct {
	StatusCode   *int    `json:"statusCode"`
	ResponseTime float64 `json:"responseTimeSeconds"`
	Success      bool    `json:"success"`
	ErrorMessage *string `json:"errorMessage"`
}

// Completed builds the outcome of a finished transport exchange. Any HTTP status
// counts as a successful exchange.
func Completed(statusCode int, elapsed time.Duration) Outcome {
	code := statusCode
	return Outcome{
		StatusCode:   &code,
		ResponseTime: elapsed.Seconds(),
		Success:      true,
	}
}

// Failed builds the outcome of a transport-level failure.
func Failed(err error, elapsed time.Duration) Outcome {
	msg := "transport error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Outcome{
		ResponseTime: elapsed.Seconds(),
		ErrorMessage: &msg,
	}
}

// Latency returns the response time as a duration.
func (o Outcome) Latency() time.Duration {
	return time.Duration(o.ResponseTime * float64(time.Second))
}

// Code returns the status code, or 0 when the exchange did not complete.
func (o Outcome) Code() int {
	if o.StatusCode == nil {
		return 0
	}
	return *o.StatusCode
}

// Error returns the recorded error message, if any.
func (o Outcome) Error() string {
	if o.ErrorMessage == nil {
		return ""
	}
	return *o.ErrorMessage
}
