package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/volley/internal/config"
	"github.com/torosent/volley/internal/control"
	"github.com/torosent/volley/internal/hub"
	"github.com/torosent/volley/internal/logging"
	"github.com/torosent/volley/internal/server"
	"github.com/torosent/volley/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		// Flags belong to the config loader so a config file and flags share one parser.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), args, cmd.OutOrStdout(), nil)
		},
	}
}

// runServe blocks until ctx ends. ready, when set, receives the bound address.
func runServe(ctx context.Context, args []string, logOut io.Writer, ready chan<- net.Addr) error {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logging.Configure(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, logOut); err != nil {
		return err
	}
	logger := logging.WithComponent("serve")

	if cfg.LockFile != "" {
		unlock, err := acquireLock(cfg.LockFile)
		if err != nil {
			return err
		}
		defer unlock()
	}

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracing shutdown")
		}
	}()
	var tracer trace.Tracer
	if tp.Enabled() {
		tracer = tp.Tracer()
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	if ready != nil {
		ready <- ln.Addr()
	}

	h := hub.New(hub.Options{
		Buffer:      cfg.Hub.Buffer,
		SendTimeout: cfg.Hub.SendTimeout,
		Logger:      logging.WithComponent("hub"),
	})
	cp := control.New(ctx, control.Options{
		Hub:            h,
		RequestTimeout: cfg.RequestTimeout,
		Tracer:         tracer,
		PropagateTrace: tp.ShouldPropagate(),
		Logger:         logging.WithComponent("control"),
	})
	srv := server.New(server.Options{
		Control:         cp,
		Hub:             h,
		Logger:          logging.WithComponent("server"),
		ShutdownTimeout: cfg.ShutdownTimeout,
	})

	logger.WithField("config", cfg.ConfigFile).Debug("configuration loaded")
	return srv.Run(ctx, ln)
}

// acquireLock takes an exclusive lock on path so two servers cannot share it.
func acquireLock(path string) (func(), error) {
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s: another volley server is running", path)
	}
	return func() { _ = lock.Unlock() }, nil
}
