package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goSession/codec"
	"github.com/MrEthical07/goSession/internal"
)

func keygenCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Print a random encryption key (and IV for aes-cbc) as env assignments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := internal.NewKey(32)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch codec.Mode(mode) {
			case codec.ModeAESCBC:
				iv, err := internal.NewKey(16)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "GOSESSION_ENCRYPTION_MODE=%s\n", mode)
				fmt.Fprintf(out, "GOSESSION_ENCRYPTION_KEY=%s\n", key)
				fmt.Fprintf(out, "GOSESSION_ENCRYPTION_IV=%s\n", iv)
			case codec.ModeXChaCha20Poly1305:
				fmt.Fprintf(out, "GOSESSION_ENCRYPTION_MODE=%s\n", mode)
				fmt.Fprintf(out, "GOSESSION_ENCRYPTION_KEY=%s\n", key)
			default:
				return fmt.Errorf("unsupported mode %q", mode)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(codec.ModeAESCBC), "cipher: aes-cbc or xchacha20poly1305")
	return cmd
}
