// Package control owns the run lifecycle: it admits at most one active run,
// starts a Dispatcher for it, relays cancellation and reports status.
package control

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/volley/internal/httpclient"
	"github.com/torosent/volley/internal/loadtest"
	"github.com/torosent/volley/internal/logging"
	"github.com/torosent/volley/internal/metrics"
	"github.com/torosent/volley/internal/runner"
)

// Broadcaster receives every outcome for live subscribers.
type Broadcaster interface {
	Publish(o loadtest.Outcome)
	Len() int
}

// RequesterFactory builds the target requester for a validated run config.
type RequesterFactory func(cfg loadtest.TestConfig) (runner.Requester, error)

// Options configure a ControlPlane.
type Options struct {
	Hub            Broadcaster
	RequestTimeout time.Duration // used when a run does not set its own timeout
	Tracer         trace.Tracer  // nil disables request spans
	PropagateTrace bool
	Logger         *log.Entry
	NewRequester   RequesterFactory
	// Sleep overrides the dispatcher's pacing wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// RunInfo identifies a started run.
type RunInfo struct {
	ID        string    `json:"runId"`
	StartedAt time.Time `json:"startedAt"`
}

// ControlPlane is safe for concurrent use.
type ControlPlane struct {
	ctx context.Context
	opt Options

	mu        sync.Mutex
	current   *loadtest.RunState
	collector *metrics.Collector
	wg        sync.WaitGroup
}

// New creates a ControlPlane. ctx bounds the lifetime of every run it starts.
func New(ctx context.Context, opt Options) *ControlPlane {
	if opt.RequestTimeout <= 0 {
		opt.RequestTimeout = 30 * time.Second
	}
	if opt.Logger == nil {
		opt.Logger = logging.WithComponent("control")
	}
	if opt.NewRequester == nil {
		propagate := opt.PropagateTrace
		opt.NewRequester = func(cfg loadtest.TestConfig) (runner.Requester, error) {
			return newHTTPRequester(cfg, propagate)
		}
	}
	return &ControlPlane{ctx: ctx, opt: opt}
}

func newHTTPRequester(cfg loadtest.TestConfig, propagate bool) (runner.Requester, error) {
	builder, err := httpclient.NewRequestBuilder(cfg)
	if err != nil {
		return nil, err
	}
	client := httpclient.NewClient(cfg.Timeout)
	return httpclient.NewRequester(client, builder).WithTracePropagation(propagate), nil
}

// Start admits a new run and returns without waiting for it. It fails with
// loadtest.ErrAlreadyRunning while another run is active and with a
// *loadtest.InvalidConfigError when cfg is rejected.
func (c *ControlPlane) Start(cfg loadtest.TestConfig) (RunInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.current.Active() {
		return RunInfo{}, loadtest.ErrAlreadyRunning
	}
	if err := cfg.Validate(); err != nil {
		return RunInfo{}, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = c.opt.RequestTimeout
	}

	base, err := c.opt.NewRequester(cfg)
	if err != nil {
		return RunInfo{}, loadtest.NewInvalidConfigError(err.Error())
	}

	run := loadtest.NewRunState(cfg)
	collector := metrics.NewCollector()
	c.current = run
	c.collector = collector

	logger := c.opt.Logger.WithField("run_id", run.ID)
	req := runner.WithLogging(base, logging.NewFailureLogger(logger, 0))
	req = runner.WithTracing(req, c.opt.Tracer, cfg.Method(), run.ID)

	pub := fanout{collector, metrics.Get()}
	if c.opt.Hub != nil {
		pub = append(pub, c.opt.Hub)
	}
	dispatcher := runner.New(runner.Options{
		Requester: req,
		Publisher: pub,
		Logger:    logger,
		Sleep:     c.opt.Sleep,
	})

	metrics.Get().RunStarted()
	logger.WithFields(log.Fields{
		"target":      cfg.TargetURL,
		"method":      cfg.Method(),
		"total":       cfg.TotalRequests,
		"concurrency": cfg.Concurrency,
		"rate":        cfg.Rate,
	}).Info("run started")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		dispatcher.Run(c.ctx, run)
		run.Finish()
		if closer, ok := base.(interface{ CloseIdleConnections() }); ok {
			closer.CloseIdleConnections()
		}
		_, reason := run.FinishedAt()
		metrics.Get().RunFinished(reason)
		logger.WithFields(log.Fields{"reason": reason, "sent": run.Sent()}).Info("run finished")
	}()

	return RunInfo{ID: run.ID, StartedAt: run.StartedAt}, nil
}

// Stop raises the cancellation flag of the active run. It reports whether a
// run was signalled; with no active run it does nothing.
func (c *ControlPlane) Stop() bool {
	c.mu.Lock()
	run := c.current
	c.mu.Unlock()

	if run == nil || !run.Active() {
		return false
	}
	run.Cancel()
	c.opt.Logger.WithField("run_id", run.ID).Info("run cancellation requested")
	return true
}

// Done returns the completion channel of the current or most recent run. With
// no run yet the channel is already closed.
func (c *ControlPlane) Done() <-chan struct{} {
	c.mu.Lock()
	run := c.current
	c.mu.Unlock()
	if run == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return run.Done()
}

// Wait blocks until the current run finishes or ctx ends.
func (c *ControlPlane) Wait(ctx context.Context) error {
	select {
	case <-c.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the active run and waits, bounded by ctx, for its dispatcher
// to return.
func (c *ControlPlane) Close(ctx context.Context) error {
	c.Stop()
	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fanout delivers each outcome to every sink in order.
type fanout []runner.Publisher

func (f fanout) Publish(o loadtest.Outcome) {
	for _, p := range f {
		p.Publish(o)
	}
}
