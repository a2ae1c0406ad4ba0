package main

import (
	"errors"
	"fmt"

	"counsel/internal/app/di"
	"counsel/internal/shared/logging"

	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres task schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url is not configured")
			}
			_, pool, err := di.OpenTaskStore(cmd.Context(), cfg.Database, logging.NewComponentLogger("Migrate"))
			if err != nil {
				return err
			}
			pool.Close()
			fmt.Fprintln(cmd.OutOrStdout(), green("Task schema is up to date"))
			return nil
		},
	}
}
