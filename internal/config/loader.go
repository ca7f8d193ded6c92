package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and an optional configuration file into a
// Config. Flags override file settings, which override the defaults.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(&cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Listen = strings.TrimSpace(cfg.Listen)
	cfg.LockFile = strings.TrimSpace(cfg.LockFile)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))

	return &cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "listen"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		if strings.TrimSpace(val) != "" {
			cfg.Listen = val
		}
	}
	if raw, ok := lookupSetting(settings, "request_timeout", "requestTimeout"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
		cfg.RequestTimeout = val
	}
	if raw, ok := lookupSetting(settings, "shutdown_timeout", "shutdownTimeout"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("shutdown_timeout: %w", err)
		}
		cfg.ShutdownTimeout = val
	}
	if raw, ok := lookupSetting(settings, "lock_file", "lockFile"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("lock_file: %w", err)
		}
		cfg.LockFile = val
	}

	if raw, ok := lookupSetting(settings, "hub"); ok {
		hub, err := parseHubConfig(raw, cfg.Hub)
		if err != nil {
			return fmt.Errorf("hub: %w", err)
		}
		cfg.Hub = hub
	}
	if raw, ok := lookupSetting(settings, "log"); ok {
		lc, err := parseLogConfig(raw, cfg.Log)
		if err != nil {
			return fmt.Errorf("log: %w", err)
		}
		cfg.Log = lc
	}
	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tc, err := parseTracingConfig(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tc
	}

	return nil
}

func parseHubConfig(value interface{}, base HubConfig) (HubConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return base, err
	}
	hub := base
	if raw, ok := lookupSetting(settings, "buffer"); ok {
		val, err := asInt(raw)
		if err != nil {
			return base, fmt.Errorf("buffer: %w", err)
		}
		hub.Buffer = val
	}
	if raw, ok := lookupSetting(settings, "send_timeout", "sendtimeout"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return base, fmt.Errorf("send_timeout: %w", err)
		}
		hub.SendTimeout = val
	}
	return hub, nil
}

func parseLogConfig(value interface{}, base LogConfig) (LogConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return base, err
	}
	lc := base
	if raw, ok := lookupSetting(settings, "level"); ok {
		val, err := asString(raw)
		if err != nil {
			return base, fmt.Errorf("level: %w", err)
		}
		lc.Level = val
	}
	if raw, ok := lookupSetting(settings, "format"); ok {
		val, err := asString(raw)
		if err != nil {
			return base, fmt.Errorf("format: %w", err)
		}
		lc.Format = val
	}
	return lc, nil
}

func parseTracingConfig(value interface{}, base TracingConfig) (TracingConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return base, err
	}
	tc := base
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		if tc.Endpoint, err = asString(raw); err != nil {
			return tc, fmt.Errorf("endpoint: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		if tc.Protocol, err = asString(raw); err != nil {
			return tc, fmt.Errorf("protocol: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		if tc.Insecure, err = asBool(raw); err != nil {
			return tc, fmt.Errorf("insecure: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "service_name", "servicename"); ok {
		if tc.ServiceName, err = asString(raw); err != nil {
			return tc, fmt.Errorf("service_name: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate"); ok {
		if tc.SampleRate, err = asFloat64(raw); err != nil {
			return tc, fmt.Errorf("sample_rate: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return tc, fmt.Errorf("propagate: %w", err)
		}
		tc.Propagate = &val
	}
	return tc, nil
}
