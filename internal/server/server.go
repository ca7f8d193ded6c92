// Package server exposes the control plane and the outcome stream over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/torosent/volley/internal/control"
	"github.com/torosent/volley/internal/hub"
	"github.com/torosent/volley/internal/loadtest"
	"github.com/torosent/volley/internal/websocket"
)

// Controller is the run lifecycle surface the API drives.
type Controller interface {
	Start(cfg loadtest.TestConfig) (control.RunInfo, error)
	Stop() bool
	Status() control.Status
	Close(ctx context.Context) error
}

// Options configure a Server.
type Options struct {
	Control         Controller
	Hub             *hub.Hub
	Logger          *log.Entry
	WebSocket       websocket.ServerConfig
	ShutdownTimeout time.Duration
	// MaxBodyBytes caps the size of a start request.
	MaxBodyBytes int64
}

type Server struct {
	opt Options
}

func New(opt Options) *Server {
	if opt.Logger == nil {
		opt.Logger = log.WithField("component", "server")
	}
	if opt.ShutdownTimeout <= 0 {
		opt.ShutdownTimeout = 10 * time.Second
	}
	if opt.MaxBodyBytes <= 0 {
		opt.MaxBodyBytes = 1 << 20
	}
	return &Server{opt: opt}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /stream", s.handleStream)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Run serves on ln until ctx ends, then cancels the active run, disconnects
// subscribers and shuts the listener down within ShutdownTimeout.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.opt.Logger.WithField("addr", ln.Addr().String()).Info("api server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.opt.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opt.ShutdownTimeout)
	defer cancel()

	if s.opt.Control != nil {
		if err := s.opt.Control.Close(shutdownCtx); err != nil {
			s.opt.Logger.WithError(err).Warn("active run did not finish before shutdown timeout")
		}
	}
	if s.opt.Hub != nil {
		s.opt.Hub.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
