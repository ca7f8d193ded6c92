package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers the server flags on a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "volley serve",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.String("listen", DefaultListen, "Address the API server listens on")
	flags.Duration("request-timeout", DefaultRequestTimeout, "Default per-request timeout for target requests")
	flags.Duration("shutdown-timeout", DefaultShutdownTimeout, "How long to wait for the active run and connections on shutdown")
	flags.String("lock-file", "", "Path to a lock file guarding against a second server instance")

	flags.Int("hub-buffer", DefaultHubBuffer, "Outcomes queued per subscriber before it is dropped as too slow")
	flags.Duration("hub-send-timeout", DefaultHubSendTimeout, "Write deadline for a single delivery to a subscriber")

	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text or json)")

	flags.String("tracing-endpoint", "", "OTLP collector endpoint; tracing is disabled when empty")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Disable TLS to the OTLP collector")
	flags.String("tracing-service-name", "", "Service name reported on spans")
	flags.Float64("tracing-sample-rate", 1, "Fraction of request spans sampled (0..1)")
	flags.Bool("tracing-propagate", true, "Inject W3C trace context into target requests")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s [flags]\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("listen") {
		val, err := fs.GetString("listen")
		if err != nil {
			return err
		}
		cfg.Listen = strings.TrimSpace(val)
	}
	if fs.Changed("request-timeout") {
		val, err := fs.GetDuration("request-timeout")
		if err != nil {
			return err
		}
		cfg.RequestTimeout = val
	}
	if fs.Changed("shutdown-timeout") {
		val, err := fs.GetDuration("shutdown-timeout")
		if err != nil {
			return err
		}
		cfg.ShutdownTimeout = val
	}
	if fs.Changed("lock-file") {
		val, err := fs.GetString("lock-file")
		if err != nil {
			return err
		}
		cfg.LockFile = val
	}
	if fs.Changed("hub-buffer") {
		val, err := fs.GetInt("hub-buffer")
		if err != nil {
			return err
		}
		cfg.Hub.Buffer = val
	}
	if fs.Changed("hub-send-timeout") {
		val, err := fs.GetDuration("hub-send-timeout")
		if err != nil {
			return err
		}
		cfg.Hub.SendTimeout = val
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.Log.Level = val
	}
	if fs.Changed("log-format") {
		val, err := fs.GetString("log-format")
		if err != nil {
			return err
		}
		cfg.Log.Format = val
	}
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		cfg.Tracing.ServiceName = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}
	return nil
}
