// Package logging configures the process logger and provides the rate-limited
// failure logger used by the dispatcher.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Config selects level and output format.
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Configure applies cfg to the standard logrus logger.
func Configure(cfg Config, out io.Writer) error {
	if out == nil {
		out = os.Stdout
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	log.SetOutput(out)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unsupported log format %q (use text or json)", cfg.Format)
	}
	return nil
}

// ParseLevel maps a level name to a logrus level. Empty means info.
func ParseLevel(s string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return log.InfoLevel, nil
	case "warning":
		return log.WarnLevel, nil
	}
	level, err := log.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return log.InfoLevel, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

// WithComponent returns an entry tagged with the component name.
func WithComponent(name string) *log.Entry {
	return log.WithField("component", name)
}
