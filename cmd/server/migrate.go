package main

import (
	"errors"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/storage"
	"github.com/spf13/cobra"
)

var errMigrateNeedsPostgres = errors.New("migrate requires the postgres metadata backend")

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Storage.Metadata != "postgres" {
				return errMigrateNeedsPostgres
			}
			ctx := cmd.Context()
			db, err := storage.Connect(ctx, c.cfg.Database.ConnectionString())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := storage.Migrate(ctx, db); err != nil {
				return err
			}
			c.log.Info(ctx, "migrations applied")
			return nil
		},
	}
}
