package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import

	"github.com/Mj37-com/medallion-warehouse-go/internal/db"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show row counts for every warehouse table",
	Long: `status reports, per dimension table, the stored version history size and
the number of open versions, plus the row counts of every fact table and
the audit ledger.`,
	Run: runStatusCommand,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatusCommand(cmd *cobra.Command, _ []string) {
	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		fail(logger, "failed to load configuration", err)
	}

	ctx := cmd.Context()

	pool, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		fail(logger, "failed to connect to database", err)
	}
	defer pool.Close()

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "TABLE\tROWS\tCURRENT")

	dimensionTables := []string{"dim_date"}
	for _, stream := range cfg.Dimensions {
		dimensionTables = append(dimensionTables, stream.Table)
	}

	for _, table := range dimensionTables {
		rows, countErr := countRows(ctx, pool, table, false)
		if countErr != nil {
			fail(logger, "failed to count rows of "+table, countErr)
		}

		current, currentErr := countRows(ctx, pool, table, true)
		if currentErr != nil {
			fail(logger, "failed to count open versions of "+table, currentErr)
		}

		fmt.Fprintf(writer, "%s\t%d\t%d\n", table, rows, current)
	}

	factTables := make([]string, 0, len(cfg.Facts)+2)
	for _, stream := range cfg.Facts {
		factTables = append(factTables, stream.Table)
	}
	factTables = append(factTables, "audit_processed_files", "audit_run_log")

	for _, table := range factTables {
		rows, countErr := countRows(ctx, pool, table, false)
		if countErr != nil {
			fail(logger, "failed to count rows of "+table, countErr)
		}

		fmt.Fprintf(writer, "%s\t%d\t-\n", table, rows)
	}

	_ = writer.Flush()
}

func countRows(ctx context.Context, pool *pgxpool.Pool, table string, onlyOpen bool) (int64, error) {
	query := goqu.Dialect("postgres").From(table).Select(goqu.L("count(*)"))
	if onlyOpen {
		query = query.Where(goqu.C("effective_end").IsNull())
	}

	sql, _, err := query.ToSQL()
	if err != nil {
		return 0, err
	}

	var count int64
	if err = pool.QueryRow(ctx, sql).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}
