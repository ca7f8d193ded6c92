package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/torosent/volley/internal/control"
	"github.com/torosent/volley/internal/loadtest"
)

// StartRequest is the body of POST /start.
type StartRequest struct {
	URL           string            `json:"url"`
	TotalRequests int               `json:"totalRequests"`
	Concurrency   int               `json:"concurrency"`
	Rate          float64           `json:"rate"`
	Headers       map[string]string `json:"headers,omitempty"`
	Payload       *string           `json:"payload,omitempty"`
	Timeout       string            `json:"timeout,omitempty"`
}

// TestConfig converts the request body into a run configuration.
func (r StartRequest) TestConfig() (loadtest.TestConfig, error) {
	cfg := loadtest.TestConfig{
		TargetURL:     strings.TrimSpace(r.URL),
		TotalRequests: r.TotalRequests,
		Concurrency:   r.Concurrency,
		Rate:          r.Rate,
		Headers:       r.Headers,
	}
	if r.Payload != nil {
		cfg.Payload = []byte(*r.Payload)
	}
	if t := strings.TrimSpace(r.Timeout); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return cfg, loadtest.NewInvalidConfigError("timeout: " + err.Error())
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

// StartResponse is the body returned by POST /start.
type StartResponse struct {
	Accepted  bool       `json:"accepted"`
	RunID     string     `json:"runId,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	Error     string     `json:"error,omitempty"`
	Issues    []string   `json:"issues,omitempty"`
}

// StopResponse is the body returned by POST /stop.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opt.MaxBodyBytes)
	var req StartRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, StartResponse{
			Error:  "malformed request body",
			Issues: []string{err.Error()},
		})
		return
	}

	cfg, err := req.TestConfig()
	if err == nil {
		var info control.RunInfo
		if info, err = s.opt.Control.Start(cfg); err == nil {
			s.opt.Logger.WithField("run_id", info.ID).Info("start accepted")
			started := info.StartedAt
			writeJSON(w, http.StatusAccepted, StartResponse{Accepted: true, RunID: info.ID, StartedAt: &started})
			return
		}
	}

	var invalid *loadtest.InvalidConfigError
	switch {
	case errors.Is(err, loadtest.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, StartResponse{Error: err.Error()})
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, StartResponse{Error: loadtest.ErrInvalidConfig.Error(), Issues: invalid.Issues()})
	default:
		s.opt.Logger.WithError(err).Error("start failed")
		writeJSON(w, http.StatusInternalServerError, StartResponse{Error: err.Error()})
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StopResponse{Stopped: s.opt.Control.Stop()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opt.Control.Status())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
