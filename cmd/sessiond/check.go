package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func checkCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration without touching the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backend:     %s\n", cfg.Backend)
			fmt.Fprintf(out, "cookie:      %s (path %s)\n", cfg.Session.Name, cfg.Cookie.Path)
			fmt.Fprintf(out, "lifetime:    %s\n", cfg.Session.MaxLifetime)
			if len(cfg.Encryption.Key) == 0 {
				fmt.Fprintln(out, "encryption:  disabled")
			} else {
				fmt.Fprintf(out, "encryption:  %s\n", cfg.Encryption.Mode)
			}
			fmt.Fprintln(out, "config ok")
			return nil
		},
	}
}
