package main

import (
	"github.com/spf13/cobra"

	"github.com/Mj37-com/medallion-warehouse-go/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema migrations",
	Long: `migrate brings the configured database up to the current schema: the
dimension history tables, the fact tables, the audit ledger and the gold
schema. Applying an already migrated database is a no-op.`,
	Run: runMigrateCommand,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrateCommand(_ *cobra.Command, _ []string) {
	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		fail(logger, "failed to load configuration", err)
	}

	if err = db.Migrate(cfg.Database.MigrateURL()); err != nil {
		fail(logger, "failed to apply migrations", err)
	}

	logger.Info("schema is up to date", "database", cfg.Database.DBName)
}
