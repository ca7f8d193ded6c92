package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	DefaultListen          = ":8000"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultHubBuffer       = 1024
	DefaultHubSendTimeout  = 5 * time.Second
)

// Config holds the settings of a volley API server process.
type Config struct {
	Listen          string        `mapstructure:"listen"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LockFile        string        `mapstructure:"lock_file"`
	Hub             HubConfig     `mapstructure:"hub"`
	Log             LogConfig     `mapstructure:"log"`
	Tracing         TracingConfig `mapstructure:"tracing"`
	ConfigFile      string        `mapstructure:"-"`
}

// HubConfig sizes the per-subscriber delivery path.
type HubConfig struct {
	Buffer      int           `mapstructure:"buffer"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig configures OpenTelemetry export for target requests.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint is configured.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate defaults to true when tracing is enabled and propagate is unset.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// Defaults returns a Config populated with the server defaults.
func Defaults() Config {
	return Config{
		Listen:          DefaultListen,
		RequestTimeout:  DefaultRequestTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		Hub: HubConfig{
			Buffer:      DefaultHubBuffer,
			SendTimeout: DefaultHubSendTimeout,
		},
		Log:     LogConfig{Level: "info", Format: "text"},
		Tracing: TracingConfig{SampleRate: 1},
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.Listen) == "" {
		issues = append(issues, "listen address is required")
	} else if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		issues = append(issues, fmt.Sprintf("listen address %q: %v", c.Listen, err))
	}
	if c.RequestTimeout <= 0 {
		issues = append(issues, "request_timeout must be > 0")
	}
	if c.ShutdownTimeout < 0 {
		issues = append(issues, "shutdown_timeout must be >= 0")
	}
	if c.Hub.Buffer < 1 {
		issues = append(issues, "hub.buffer must be >= 1")
	}
	if c.Hub.SendTimeout <= 0 {
		issues = append(issues, "hub.send_timeout must be > 0")
	}

	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		issues = append(issues, fmt.Sprintf("log.level %q is not a known level", c.Log.Level))
	}

	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing.protocol %q must be grpc or http", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing.sample_rate must be between 0 and 1")
	}
	return issues
}
