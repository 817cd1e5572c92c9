package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

const (
	dialectPostgres = "postgres"

	tableProcessedFiles = "audit_processed_files"
	tableRunLog         = "audit_run_log"
)

// PostgresRecorder persists the audit trail in the warehouse database.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder creates a recorder on the given pool.
func NewPostgresRecorder(pool *pgxpool.Pool) (PostgresRecorder, error) {
	if pool == nil {
		return PostgresRecorder{}, warehouse.ErrNilDatabaseConnection
	}

	return PostgresRecorder{pool: pool}, nil
}

// AlreadyProcessed implements Recorder.
func (r PostgresRecorder) AlreadyProcessed(ctx context.Context, path, checksum string) (bool, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(tableProcessedFiles).
		Select(goqu.L("1")).
		Where(
			goqu.C("path").Eq(path),
			goqu.C("checksum").Eq(checksum),
		)

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return false, errors.Join(warehouse.ErrBuildingQueryFailed, toSQLErr)
	}

	var one int
	scanErr := r.pool.QueryRow(ctx, sqlQuery).Scan(&one)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return false, nil
	}
	if scanErr != nil {
		return false, fmt.Errorf("failed to query processed files: %w", scanErr)
	}

	return true, nil
}

// MarkProcessed implements Recorder. Marking the same path and checksum
// twice is harmless, so racing runs cannot fail each other here.
func (r PostgresRecorder) MarkProcessed(
	ctx context.Context,
	path, checksum string,
	rows int,
	run warehouse.BatchRun,
) error {

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(tableProcessedFiles).
		Cols("path", "checksum", "rows_loaded", "run_id", "run_at").
		Vals(goqu.Vals{path, checksum, rows, run.ID.String(), run.At}).
		OnConflict(goqu.DoNothing())

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return errors.Join(warehouse.ErrBuildingQueryFailed, toSQLErr)
	}

	if _, execErr := r.pool.Exec(ctx, sqlQuery); execErr != nil {
		return fmt.Errorf("failed to mark %s as processed: %w", path, execErr)
	}

	return nil
}

// RecordRun implements Recorder.
func (r PostgresRecorder) RecordRun(ctx context.Context, record RunRecord) error {
	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(tableRunLog).
		Cols("run_id", "stream", "kind", "run_at", "rows_in", "rows_written", "rows_skipped", "duration_ms").
		Vals(goqu.Vals{
			record.Run.ID.String(),
			record.Stream,
			string(record.Kind),
			record.Run.At,
			record.RowsIn,
			record.RowsWritten,
			record.RowsSkipped,
			float64(record.Duration.Microseconds()) / 1000.0,
		})

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return errors.Join(warehouse.ErrBuildingQueryFailed, toSQLErr)
	}

	if _, execErr := r.pool.Exec(ctx, sqlQuery); execErr != nil {
		return fmt.Errorf("failed to record run for stream %s: %w", record.Stream, execErr)
	}

	return nil
}

var _ Recorder = PostgresRecorder{}
