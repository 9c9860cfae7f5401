package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func gcCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Run one garbage collection cycle and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			m, err := g.manager(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			ok, err := m.Sweep(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("backend reported gc failure")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "gc completed")
			return nil
		},
	}
}
