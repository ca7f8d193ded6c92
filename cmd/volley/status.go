package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/torosent/volley/internal/output"
	"github.com/torosent/volley/internal/threshold"
)

func statusCmd(newClient clientFactory) *cobra.Command {
	var (
		format     string
		thresholds []string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the active or most recent run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			parsed, err := threshold.ParseAll(thresholds)
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			if err := output.PrintStatus(cmd.OutOrStdout(), st, f); err != nil {
				return err
			}
			if len(parsed) == 0 {
				return nil
			}
			if st.Summary == nil {
				return errors.New("no run to check thresholds against")
			}
			return checkThresholds(cmd.ErrOrStderr(), parsed, *st.Summary)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format: text, json or yaml")
	cmd.Flags().StringArrayVar(&thresholds, "threshold", nil, "Assertion on the run summary, e.g. 'latency:p99 < 250' (repeatable)")
	return cmd
}
