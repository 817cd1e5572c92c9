package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Mj37-com/medallion-warehouse-go/internal/config"
)

var (
	rootCmd = &cobra.Command{
		Use:   "warehouse",
		Short: "Batch warehouse for the retail source systems",
		Long: `warehouse loads the retail source exports into a Postgres star schema:
change-tracked dimension history, idempotent fact appends, an audit trail
and the gold reporting views.

Configuration comes from warehouse.yaml and WAREHOUSE_* environment
variables; without either, built-in defaults run against localhost.`,
		SilenceUsage: true,
	}

	configPath string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "directory containing warehouse.yaml (default: working directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func fail(logger *slog.Logger, message string, err error) {
	logger.Error(message, "error", err)
	os.Exit(1)
}
