// Command sessiond runs and maintains goSession deployments.
//
//	sessiond serve  --config sessiond.toml
//	sessiond gc     --config sessiond.toml
//	sessiond check  --config sessiond.toml
//	sessiond keygen --mode aes-cbc
//	sessiond bench  --ops 100000 --concurrency 128
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/configload"
	"github.com/MrEthical07/goSession/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

type globalFlags struct {
	config string
	dotenv []string
	prefix string
}

func main() {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:           "sessiond",
		Short:         "Session store daemon and maintenance tool",
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&g.config, "config", "c", "", "config file (.toml, .yaml or .yml)")
	rootCmd.PersistentFlags().StringSliceVar(&g.dotenv, "env-file", []string{".env"}, "dotenv files loaded before the environment overlay")
	rootCmd.PersistentFlags().StringVar(&g.prefix, "env-prefix", configload.DefaultEnvPrefix, "environment variable prefix")

	rootCmd.AddCommand(
		serveCmd(&g),
		gcCmd(&g),
		checkCmd(&g),
		keygenCmd(),
		benchCmd(&g),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sessiond: %s\n", err)
		os.Exit(1)
	}
}

func (g *globalFlags) load() (goSession.Config, error) {
	return configload.Load(configload.Options{
		Path:      g.config,
		DotEnv:    g.dotenv,
		EnvPrefix: g.prefix,
	})
}

func (g *globalFlags) manager(ctx context.Context) (*goSession.Manager, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	b := goSession.New().WithConfig(cfg).WithLogger(log)
	if cfg.Audit.Enabled {
		b = b.WithAuditSink(goSession.NewLogSink(log))
	}
	return b.BuildContext(ctx)
}
