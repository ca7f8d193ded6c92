package main

import (
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/torosent/volley/internal/client"
)

const defaultServer = "http://localhost:8000"

// rootCmd wires every subcommand. Client commands read the server address from
// --server or VOLLEY_SERVER.
func rootCmd(stdout, stderr io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("volley")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "volley",
		Short: "HTTP load generator with a live outcome stream",
		Long: `volley runs load tests against an HTTP endpoint from a long-lived server.

Start the server with "volley serve", then drive it with start, stop and status.
Every request outcome is broadcast to subscribers of /stream (WebSocket) and
/events (Server-Sent Events); "volley watch" follows that stream.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().String("server", defaultServer, "Base URL of the volley server")
	cmd.PersistentFlags().Duration("api-timeout", client.DefaultTimeout, "Timeout for each control API call")
	_ = v.BindPFlag("server", cmd.PersistentFlags().Lookup("server"))
	_ = v.BindPFlag("api_timeout", cmd.PersistentFlags().Lookup("api-timeout"))

	newClient := func() (*client.Client, error) {
		return client.New(client.Config{
			BaseURL: v.GetString("server"),
			Timeout: v.GetDuration("api_timeout"),
		})
	}

	cmd.AddCommand(
		serveCmd(),
		startCmd(newClient),
		stopCmd(newClient),
		statusCmd(newClient),
		watchCmd(newClient),
	)
	return cmd
}

type clientFactory func() (*client.Client, error)
