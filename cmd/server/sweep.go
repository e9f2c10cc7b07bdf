package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSweepCmd(c *cli) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete assets older than the retention threshold once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				olderThan = c.cfg.Retention.Period
			}
			if olderThan <= 0 {
				return fmt.Errorf("no retention threshold: pass --older-than or set RETENTION_PERIOD")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, c.cfg, c.log)
			if err != nil {
				return err
			}
			defer a.close()

			deleted, err := a.sweeper.Sweep(ctx, olderThan)
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d assets older than %s\n", deleted, olderThan)
			return err
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "retention threshold (defaults to RETENTION_PERIOD)")
	return cmd
}
