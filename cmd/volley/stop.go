package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func stopCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Cancel the active run",
		Long:  "Cancel the active run. Requests already in flight finish; no new batch starts.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			stopped, err := c.Stop(cmd.Context())
			if err != nil {
				return err
			}
			if stopped {
				fmt.Fprintln(cmd.OutOrStdout(), "Stop requested")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "No active run")
			}
			return nil
		},
	}
}
