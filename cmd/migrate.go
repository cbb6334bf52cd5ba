package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the usage log schema",
	Long: `Applies the usage log schema to the configured store (PostgreSQL or
SQLite) and exits. Migrations are idempotent; serve also runs them on start.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		store, closeStore, err := openUsageStore(cfg)
		if err != nil {
			return fmt.Errorf("opening %s usage store: %w", cfg.UsageStore, err)
		}
		defer closeStore()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}

		target := cfg.SQLitePath
		if cfg.UsageStore == config.UsageStorePostgres {
			target = cfg.RedactedDSN()
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Usage log schema is up to date (%s).\n", target)
		return nil
	},
}
