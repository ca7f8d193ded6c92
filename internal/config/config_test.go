package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/volley/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Listen != ":8000" {
		t.Errorf("Listen = %q, want :8000", cfg.Listen)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %s, want 30s", cfg.RequestTimeout)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %s, want 10s", cfg.ShutdownTimeout)
	}
	if cfg.Hub.Buffer != 1024 {
		t.Errorf("Hub.Buffer = %d, want 1024", cfg.Hub.Buffer)
	}
	if cfg.Hub.SendTimeout != 5*time.Second {
		t.Errorf("Hub.SendTimeout = %s, want 5s", cfg.Hub.SendTimeout)
	}
	if cfg.Tracing.Enabled() {
		t.Error("Tracing.Enabled() = true, want false by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "volley.yaml")
	content := strings.Join([]string{
		"listen: 127.0.0.1:9100",
		"request_timeout: 2s",
		"shutdown_timeout: 3s",
		"lock_file: /tmp/volley.lock",
		"hub:",
		"  buffer: 16",
		"  send_timeout: 250ms",
		"log:",
		"  level: debug",
		"  format: json",
		"tracing:",
		"  endpoint: localhost:4318",
		"  protocol: http",
		"  insecure: true",
		"  propagate: false",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Listen != "127.0.0.1:9100" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.RequestTimeout != 2*time.Second {
		t.Errorf("RequestTimeout = %s, want 2s", cfg.RequestTimeout)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Errorf("ShutdownTimeout = %s, want 3s", cfg.ShutdownTimeout)
	}
	if cfg.LockFile != "/tmp/volley.lock" {
		t.Errorf("LockFile = %q", cfg.LockFile)
	}
	if cfg.Hub.Buffer != 16 || cfg.Hub.SendTimeout != 250*time.Millisecond {
		t.Errorf("Hub = %+v, want buffer 16 send_timeout 250ms", cfg.Hub)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if !cfg.Tracing.Enabled() || cfg.Tracing.Protocol != "http" || !cfg.Tracing.Insecure {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Tracing.SampleRate != 1 {
		t.Errorf("Tracing.SampleRate = %g, want default 1", cfg.Tracing.SampleRate)
	}
	if cfg.Tracing.ShouldPropagate() {
		t.Error("Tracing.ShouldPropagate() = true, want false")
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "volley.json")
	if err := os.WriteFile(path, []byte(`{
		"listen": ":7000",
		"hub": {"buffer": 8},
		"log": {"level": "warn"}
	}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{
		"--config", path,
		"--listen", ":7001",
		"--hub-send-timeout", "1s",
		"--log-format", "JSON",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Listen != ":7001" {
		t.Errorf("Listen = %q, want flag value :7001", cfg.Listen)
	}
	if cfg.Hub.Buffer != 8 {
		t.Errorf("Hub.Buffer = %d, want file value 8", cfg.Hub.Buffer)
	}
	if cfg.Hub.SendTimeout != time.Second {
		t.Errorf("Hub.SendTimeout = %s, want 1s", cfg.Hub.SendTimeout)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
}

func TestLoadHelpRequested(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--help"})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load(--help) error = %v, want ErrHelpRequested", err)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	if err == nil {
		t.Fatal("Load() with missing file should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"empty listen", func(c *config.Config) { c.Listen = "" }, "listen address is required"},
		{"listen without port", func(c *config.Config) { c.Listen = "localhost" }, "listen address"},
		{"zero request timeout", func(c *config.Config) { c.RequestTimeout = 0 }, "request_timeout"},
		{"negative shutdown timeout", func(c *config.Config) { c.ShutdownTimeout = -time.Second }, "shutdown_timeout"},
		{"zero hub buffer", func(c *config.Config) { c.Hub.Buffer = 0 }, "hub.buffer"},
		{"zero send timeout", func(c *config.Config) { c.Hub.SendTimeout = 0 }, "hub.send_timeout"},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad log level", func(c *config.Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad tracing protocol", func(c *config.Config) { c.Tracing.Protocol = "thrift" }, "tracing.protocol"},
		{"bad sample rate", func(c *config.Config) { c.Tracing.SampleRate = 1.5 }, "tracing.sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			var verr config.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error type = %T, want ValidationError", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidationErrorCollectsIssues(t *testing.T) {
	cfg := config.Defaults()
	cfg.Listen = ""
	cfg.Hub.Buffer = 0
	cfg.Hub.SendTimeout = 0

	var verr config.ValidationError
	if !errors.As(cfg.Validate(), &verr) {
		t.Fatal("Validate() did not return ValidationError")
	}
	if got := len(verr.Issues()); got != 3 {
		t.Errorf("Issues() len = %d, want 3: %v", got, verr.Issues())
	}
}

func TestTracingShouldPropagate(t *testing.T) {
	off := false
	tests := []struct {
		name string
		cfg  config.TracingConfig
		want bool
	}{
		{"disabled", config.TracingConfig{}, false},
		{"enabled default", config.TracingConfig{Endpoint: "localhost:4317"}, true},
		{"enabled explicit off", config.TracingConfig{Endpoint: "localhost:4317", Propagate: &off}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ShouldPropagate(); got != tt.want {
				t.Errorf("ShouldPropagate() = %v, want %v", got, tt.want)
			}
		})
	}
}
