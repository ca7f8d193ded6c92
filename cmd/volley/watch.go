package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/volley/internal/client"
	"github.com/torosent/volley/internal/control"
	"github.com/torosent/volley/internal/loadtest"
	"github.com/torosent/volley/internal/metrics"
	"github.com/torosent/volley/internal/output"
	"github.com/torosent/volley/internal/threshold"
)

// pollInterval is how often watch checks whether the observed run has finished.
// drainTimeout bounds the wait for outcomes still in the stream after it does.
var (
	pollInterval = 250 * time.Millisecond
	drainTimeout = 2 * time.Second
)

func watchCmd(newClient clientFactory) *cobra.Command {
	var (
		transport  string
		jsonOut    bool
		follow     bool
		thresholds []string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the outcome stream",
		Long: `Subscribe to the outcome stream and report progress.

Without --follow, watch exits once the active run (or the next one to start)
finishes and prints the run summary. With --json every outcome is written as
one JSON line instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := threshold.ParseAll(thresholds)
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			collector := metrics.NewCollector()
			collector.Start()
			var received atomic.Int64

			var progress *output.ProgressReporter
			if !jsonOut {
				progress = output.NewProgressReporter(collector, time.Second, cmd.ErrOrStderr())
				progress.Start()
			}
			enc := json.NewEncoder(out)

			connected := make(chan struct{})
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				defer cancel()
				_, err := c.Watch(gctx, transport, func(o loadtest.Outcome) error {
					collector.Record(o)
					defer received.Add(1)
					if jsonOut {
						return enc.Encode(o)
					}
					return nil
				}, client.OnConnect(func() { close(connected) }))
				return err
			})

			var final *control.Status
			if !follow {
				g.Go(func() error {
					st, err := waitForRun(gctx, c, connected, &received)
					if err != nil {
						return err
					}
					final = st
					cancel()
					return nil
				})
			}

			err = g.Wait()
			if progress != nil {
				progress.Stop()
			}
			if err != nil {
				return err
			}
			summary := collector.Stats(collector.Elapsed())
			if final != nil && final.Summary != nil {
				summary = *final.Summary
			}
			if !jsonOut {
				if final != nil {
					fmt.Fprintf(out, "Run %s %s\n", final.RunID, final.Reason)
				}
				output.PrintReport(out, summary)
			}
			return checkThresholds(cmd.ErrOrStderr(), parsed, summary)
		},
	}
	f := cmd.Flags()
	f.StringVar(&transport, "transport", client.TransportWebSocket, "Stream transport: websocket or sse")
	f.BoolVar(&jsonOut, "json", false, "Print each outcome as a JSON line")
	f.BoolVar(&follow, "follow", false, "Keep watching across runs until interrupted")
	f.StringArrayVar(&thresholds, "threshold", nil, "Assertion on the run summary, e.g. 'failures:rate < 0.01' (repeatable)")
	return cmd
}

// waitForRun polls status until the run that was active when the subscription
// took effect, or the next one to start, has finished and its outcomes have
// arrived. It returns nil, nil when ctx ends first.
func waitForRun(ctx context.Context, c *client.Client, connected <-chan struct{}, received *atomic.Int64) (*control.Status, error) {
	select {
	case <-ctx.Done():
		return nil, nil
	case <-connected:
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	initial, early, err := subscribedStatus(ctx, c, ticker.C, received)
	if err != nil || ctx.Err() != nil {
		return nil, err
	}
	var runID string
	var baseline int64
	if initial.Active {
		runID = initial.RunID
		baseline = initial.Sent - early
	}

	var drainUntil time.Time
	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case <-ticker.C:
		}

		st, err := c.Status(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			return nil, err
		}

		switch {
		case st.RunID == "":
			continue
		case runID == "" && st.RunID == initial.RunID:
			// Still the run that had already finished before we subscribed.
			continue
		case st.RunID != runID:
			runID = st.RunID
			baseline = 0
			drainUntil = time.Time{}
		}
		if st.Active {
			continue
		}

		if drainUntil.IsZero() {
			drainUntil = time.Now().Add(drainTimeout)
		}
		if received.Load() >= st.Sent-baseline || time.Now().After(drainUntil) {
			return &st, nil
		}
	}
}

// subscribedStatus returns the first status taken once the server lists a
// subscriber, along with how many outcomes had already arrived before it was
// requested. The server registers a stream just after its handshake.
func subscribedStatus(ctx context.Context, c *client.Client, tick <-chan time.Time, received *atomic.Int64) (control.Status, int64, error) {
	for {
		early := received.Load()
		st, err := c.Status(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return control.Status{}, 0, nil
			}
			return control.Status{}, 0, err
		}
		if st.Subscribers > 0 {
			return st, early, nil
		}
		select {
		case <-ctx.Done():
			return control.Status{}, 0, nil
		case <-tick:
		}
	}
}
