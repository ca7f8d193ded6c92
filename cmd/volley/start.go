package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/torosent/volley/internal/server"
)

func startCmd(newClient clientFactory) *cobra.Command {
	var (
		req     server.StartRequest
		headers []string
		payload string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a load test run on the server",
		Example: `  volley start --url https://example.com/ -n 1000 -c 10 -r 50
  volley start --url https://example.com/api -n 20 -c 2 -r 5 -H "Content-Type=application/json" --payload '{"k":1}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseHeaders(headers)
			if err != nil {
				return err
			}
			req.Headers = parsed
			if cmd.Flags().Changed("payload") {
				req.Payload = &payload
			}
			if timeout > 0 {
				req.Timeout = timeout.String()
			}

			c, err := newClient()
			if err != nil {
				return err
			}
			resp, err := c.Start(cmd.Context(), req)
			if err != nil {
				return err
			}
			if resp.StartedAt == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Run %s started\n", resp.RunID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s started at %s\n", resp.RunID, resp.StartedAt.Format(time.RFC3339))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.URL, "url", "", "Target URL")
	f.IntVarP(&req.TotalRequests, "total", "n", 0, "Total number of requests")
	f.IntVarP(&req.Concurrency, "concurrency", "c", 1, "Requests per batch")
	f.Float64VarP(&req.Rate, "rate", "r", 0, "Request issuances per second")
	f.StringArrayVarP(&headers, "header", "H", nil, "Request header as Key=Value or 'Key: Value' (repeatable)")
	f.StringVar(&payload, "payload", "", "Request body; its presence makes requests POST")
	f.DurationVar(&timeout, "timeout", 0, "Per-request timeout (server default when zero)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

// parseHeaders accepts Key=Value or Key: Value.
func parseHeaders(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(values))
	for _, raw := range values {
		sep := strings.IndexAny(raw, "=:")
		if sep <= 0 {
			return nil, fmt.Errorf("invalid header %q: expected Key=Value", raw)
		}
		key := strings.TrimSpace(raw[:sep])
		if key == "" {
			return nil, fmt.Errorf("invalid header %q: empty key", raw)
		}
		headers[key] = strings.TrimSpace(raw[sep+1:])
	}
	return headers, nil
}
