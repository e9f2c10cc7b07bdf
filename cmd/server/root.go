package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/configuration"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/logging"
	"github.com/spf13/cobra"
)

// cli carries state shared by every subcommand once the configuration has
// been loaded.
type cli struct {
	cfg *configuration.Config
	log *logging.SlogLogger
}

func (c *cli) load(cmd *cobra.Command, _ []string) error {
	cfg, err := configuration.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	c.cfg = cfg
	c.log = logging.New(cfg.Env, cfg.LogLevel)
	slog.SetDefault(c.log.Slog())
	return nil
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:               "asset-service",
		Short:             "Stores user assets with metadata, thumbnails and retention",
		SilenceUsage:      true,
		PersistentPreRunE: c.load,
	}
	rootCmd.AddCommand(newServeCmd(c), newSweepCmd(c), newMigrateCmd(c))
	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
