package runner

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/volley/internal/loadtest"
)

// Result captures execution summary.
type Result struct {
	Issued    int64
	Batches   int
	Duration  time.Duration
	Cancelled bool
}

// Dispatcher issues the requests of one run in barriered batches.
type Dispatcher struct {
	opt Options
}

func New(opt Options) *Dispatcher {
	opt.normalize()
	return &Dispatcher{opt: opt}
}

// Run executes run to completion or until its cancellation flag is observed at
// a batch boundary. ctx is the process lifetime: when it ends, no further
// requests are issued. Run does not call run.Finish; the caller owns the
// RunState lifecycle.
func (d *Dispatcher) Run(ctx context.Context, run *loadtest.RunState) Result {
	start := d.opt.Now()
	cfg := run.Config
	total := int64(cfg.TotalRequests)
	interval := cfg.IssueInterval()
	logger := d.opt.Logger.WithField("run_id", run.ID)

	var res Result
	stopped := false
	for res.Issued < total && !stopped {
		if run.Cancelled() {
			res.Cancelled = true
			break
		}
		if ctx.Err() != nil {
			break
		}

		size := int64(cfg.Concurrency)
		if remaining := total - res.Issued; remaining < size {
			size = remaining
		}

		var g errgroup.Group
		var issued int64
		for ; issued < size; issued++ {
			if err := d.opt.Sleep(ctx, interval); err != nil {
				stopped = true
				break
			}
			g.Go(func() error {
				d.attempt(ctx, run)
				return nil
			})
		}
		_ = g.Wait()
		res.Issued += issued
		if issued == 0 {
			break
		}
		res.Batches++
		logger.WithField("batch", res.Batches).WithField("sent", run.Sent()).Debug("batch complete")
	}

	res.Duration = d.opt.Now().Sub(start)
	logger.WithFields(log.Fields{
		"issued":    res.Issued,
		"batches":   res.Batches,
		"cancelled": res.Cancelled,
		"duration":  res.Duration.String(),
	}).Info("dispatcher finished")
	return res
}

func (d *Dispatcher) attempt(ctx context.Context, run *loadtest.RunState) {
	begin := d.opt.Now()
	code, err := d.opt.Requester.Do(ctx)
	elapsed := d.opt.Now().Sub(begin)

	var outcome loadtest.Outcome
	if err != nil {
		outcome = loadtest.Failed(err, elapsed)
	} else {
		outcome = loadtest.Completed(code, elapsed)
	}
	d.opt.Publisher.Publish(outcome)
	run.MarkSent()
}
