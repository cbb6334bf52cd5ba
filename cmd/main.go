package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/analytics"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/config"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/database"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/usage"
)

// Version is the release of the service binary.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "codegen",
	Short: "Code generation API backed by OpenAI, Claude and Gemini",
	Long: `Serves the code generation API: authenticated prompts are rate limited
per plan, dispatched to the selected LLM provider, and every provider call is
recorded in the usage log.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// usageStore is a usage log backend: writable by the recorder and queryable
// by the analytics engine.
type usageStore interface {
	usage.Store
	analytics.Source
	Migrate(ctx context.Context) error
}

// openUsageStore connects to the configured usage log backend. The returned
// close function is never nil.
func openUsageStore(cfg *config.Config) (usageStore, func(), error) {
	switch cfg.UsageStore {
	case config.UsageStoreSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, func() {}, err
		}
		return db, func() {
			if err := db.Close(); err != nil {
				log.Printf("[database] closing sqlite: %v", err)
			}
		}, nil
	default:
		db, err := database.New(cfg.DSN())
		if err != nil {
			return nil, func() {}, err
		}
		return db, db.Close, nil
	}
}
