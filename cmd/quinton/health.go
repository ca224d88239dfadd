package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			if err := a.backend.Health(cmd.Context()); err != nil {
				return fmt.Errorf("backend at %s is not healthy: %w", a.cfg.BackendURL, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), infoStyle.Render("Backend at "+a.cfg.BackendURL+" is healthy"))
			return nil
		},
	}
}
