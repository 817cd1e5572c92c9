package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse/postgresengine/internal/adapters"
)

const (
	logMsgBuildFactQueryFailed = "failed to build fact query"
	logMsgFactQueryFailed      = "fact query execution failed"
	logMsgScanFactKeyFailed    = "failed to scan fact key"
	logMsgScanWatermarkFailed  = "failed to scan watermark"
	logMsgAppendExecFailed     = "database execution failed during fact append"
	logMsgAppendCommitFailed   = "failed to commit fact append"
	logMsgFactsAppended        = "fact rows appended"
	logMsgFactKeyCollision     = "fact append hit unique index, concurrent run suspected"
	logMsgFactOperation        = "fact store operation: "
	logAttrAppended            = "appended"

	opExistingKeys = "existing_keys"
	opMaxEventTime = "max_event_time"
	opAppend       = "append"
)

// FactStore is the PostgreSQL implementation of factload.FactStore.
//
// It expects a table of this shape (see the shipped migrations):
//
//	fact_key   text null
//	event_time timestamptz not null
//	attributes jsonb not null
//	loaded_at  timestamptz not null
//	run_id     uuid not null
//
// plus a partial unique index on (fact_key) where fact_key is not null,
// which defends exactly-once loading for keyed streams even when two runs
// race. Watermark streams leave fact_key null.
type FactStore struct {
	db        adapters.DBAdapter
	tableName string
	logger    warehouse.Logger
	metrics   warehouse.MetricsCollector
}

// NewFactStoreFromPGXPool creates a FactStore using a pgx pool with optional configuration.
func NewFactStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (FactStore, error) {
	if db == nil {
		return FactStore{}, warehouse.ErrNilDatabaseConnection
	}

	return newFactStore(adapters.NewPGXAdapter(db), options)
}

// NewFactStoreFromSQLDB creates a FactStore using a sql.DB with optional configuration.
func NewFactStoreFromSQLDB(db *sql.DB, options ...Option) (FactStore, error) {
	if db == nil {
		return FactStore{}, warehouse.ErrNilDatabaseConnection
	}

	return newFactStore(adapters.NewSQLAdapter(db), options)
}

// NewFactStoreFromSQLX creates a FactStore using a sqlx.DB with optional configuration.
func NewFactStoreFromSQLX(db *sqlx.DB, options ...Option) (FactStore, error) {
	if db == nil {
		return FactStore{}, warehouse.ErrNilDatabaseConnection
	}

	return newFactStore(adapters.NewSQLXAdapter(db), options)
}

func newFactStore(db adapters.DBAdapter, options []Option) (FactStore, error) {
	applied, optionErr := applyOptions(settings{tableName: defaultFactTableName}, options)
	if optionErr != nil {
		return FactStore{}, optionErr
	}

	return FactStore{
		db:        db,
		tableName: applied.tableName,
		logger:    applied.logger,
		metrics:   applied.metrics,
	}, nil
}

// ExistingKeys reports which of the given fact keys are already stored.
func (s FactStore) ExistingKeys(ctx context.Context, keys []warehouse.FactKeyString) (
	map[warehouse.FactKeyString]struct{},
	error,
) {

	existing := make(map[warehouse.FactKeyString]struct{}, len(keys))

	if len(keys) == 0 {
		return existing, nil
	}

	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.tableName).
		Select(colFactKey).
		Where(goqu.C(colFactKey).In(keys))

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		s.logError(logMsgBuildFactQueryFailed, toSQLErr)
		return nil, errors.Join(warehouse.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, queryErr := s.executeQuery(ctx, sqlQuery, opExistingKeys)
	if queryErr != nil {
		return nil, queryErr
	}
	defer s.closeRows(rows)

	for rows.Next() {
		var key string

		if scanErr := rows.Scan(&key); scanErr != nil {
			s.logError(logMsgScanFactKeyFailed, scanErr)
			return nil, errors.Join(warehouse.ErrScanningRowFailed, scanErr)
		}

		existing[key] = struct{}{}
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		s.logError(logMsgFactQueryFailed, rowsErr)
		return nil, errors.Join(warehouse.ErrQueryingStoreFailed, rowsErr)
	}

	return existing, nil
}

// MaxEventTime returns the stream's watermark; ok is false while the table
// holds no rows.
func (s FactStore) MaxEventTime(ctx context.Context) (time.Time, bool, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.tableName).
		Select(goqu.MAX(colEventTime).As(aliasMaxEventTime))

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		s.logError(logMsgBuildFactQueryFailed, toSQLErr)
		return time.Time{}, false, errors.Join(warehouse.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, queryErr := s.executeQuery(ctx, sqlQuery, opMaxEventTime)
	if queryErr != nil {
		return time.Time{}, false, queryErr
	}
	defer s.closeRows(rows)

	var watermark sql.NullTime

	if rows.Next() {
		if scanErr := rows.Scan(&watermark); scanErr != nil {
			s.logError(logMsgScanWatermarkFailed, scanErr)
			return time.Time{}, false, errors.Join(warehouse.ErrScanningRowFailed, scanErr)
		}
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		s.logError(logMsgFactQueryFailed, rowsErr)
		return time.Time{}, false, errors.Join(warehouse.ErrQueryingStoreFailed, rowsErr)
	}

	if !watermark.Valid {
		return time.Time{}, false, nil
	}

	return watermark.Time.UTC(), true, nil
}

// Append writes one run's rows in a single transaction. The partial unique
// index on fact_key refuses rows another run appended in the meantime, which
// rolls the whole batch back; re-running the load then skips them cleanly.
func (s FactStore) Append(ctx context.Context, run warehouse.BatchRun, rows []warehouse.FactRecord) error {
	if len(rows) == 0 {
		return nil
	}

	sqlQuery, buildErr := s.buildAppendQuery(run, rows)
	if buildErr != nil {
		return buildErr
	}

	start := time.Now()

	tx, beginErr := s.db.Begin(ctx)
	if beginErr != nil {
		s.logError(logMsgAppendExecFailed, beginErr)
		return errors.Join(warehouse.ErrAppendingFactsFailed, beginErr)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	result, execErr := tx.Exec(ctx, sqlQuery)
	s.logQueryWithDuration(sqlQuery, opAppend, time.Since(start))

	if execErr != nil {
		if isUniqueViolation(execErr) {
			s.logOperation(logMsgFactKeyCollision, logAttrTable, s.tableName, logAttrRunID, run.ID.String())

			return errors.Join(warehouse.ErrConcurrentRunConflict, execErr)
		}

		s.logError(logMsgAppendExecFailed, execErr)

		return errors.Join(warehouse.ErrAppendingFactsFailed, execErr)
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		s.logError(logMsgRowsAffectedFailed, rowsAffectedErr)
		return errors.Join(warehouse.ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	if rowsAffected != rowsAffectedInt64(len(rows)) {
		return errors.Join(
			warehouse.ErrAppendingFactsFailed,
			fmt.Errorf("appended %d fact rows, expected %d", rowsAffected, len(rows)),
		)
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		s.logError(logMsgAppendCommitFailed, commitErr)
		return errors.Join(warehouse.ErrAppendingFactsFailed, commitErr)
	}
	committed = true

	duration := time.Since(start)

	s.logOperation(
		logMsgFactsAppended,
		logAttrTable, s.tableName,
		logAttrRunID, run.ID.String(),
		logAttrAppended, len(rows),
		logAttrDurationMS, durationToMilliseconds(duration),
	)
	s.recordWriteDuration(opAppend, duration)

	return nil
}

func (s FactStore) buildAppendQuery(run warehouse.BatchRun, rows []warehouse.FactRecord) (sqlQueryString, error) {
	valueRows := make([][]interface{}, 0, len(rows))

	for _, row := range rows {
		payload, marshalErr := json.Marshal(row.Attributes)
		if marshalErr != nil {
			s.logError(logMsgBuildFactQueryFailed, marshalErr)
			return "", errors.Join(warehouse.ErrBuildingQueryFailed, marshalErr)
		}

		var factKey any
		if row.HasKey() {
			factKey = row.Key
		}

		valueRows = append(valueRows, goqu.Vals{
			factKey,
			row.EventTime.UTC(),
			goqu.L(castJsonb, string(payload)),
			run.At,
			run.ID.String(),
		})
	}

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(s.tableName).
		Cols(colFactKey, colEventTime, colAttributes, colLoadedAt, colRunID).
		Vals(valueRows...)

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		s.logError(logMsgBuildFactQueryFailed, toSQLErr)
		return "", errors.Join(warehouse.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// executeQuery executes the SQL query and returns rows with timing information.
func (s FactStore) executeQuery(ctx context.Context, sqlQuery sqlQueryString, operation string) (
	adapters.DBRows,
	error,
) {

	start := time.Now()
	rows, queryErr := s.db.Query(ctx, sqlQuery)
	duration := time.Since(start)
	s.logQueryWithDuration(sqlQuery, operation, duration)
	s.recordQueryDuration(operation, duration)

	if queryErr != nil {
		s.logError(logMsgFactQueryFailed, queryErr)
		return nil, errors.Join(warehouse.ErrQueryingStoreFailed, queryErr)
	}

	return rows, nil
}

// closeRows safely closes database rows and logs any errors.
func (s FactStore) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if s.logger != nil {
			s.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}

// logQueryWithDuration logs SQL queries with execution time at debug level if the logger is configured.
func (s FactStore) logQueryWithDuration(sqlQuery string, operation string, duration time.Duration) {
	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+operation, logAttrDurationMS, durationToMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if the logger is configured.
func (s FactStore) logOperation(action string, args ...any) {
	if s.logger != nil {
		s.logger.Info(logMsgFactOperation+action, args...)
	}
}

func (s FactStore) logError(msg string, err error) {
	if s.logger != nil {
		s.logger.Error(msg, logAttrTable, s.tableName, logAttrError, err.Error())
	}
}

func (s FactStore) recordQueryDuration(operation string, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordDuration(warehouse.MetricStoreQueryDuration, duration, map[string]string{
			warehouse.LabelTable:     s.tableName,
			warehouse.LabelOperation: operation,
		})
	}
}

func (s FactStore) recordWriteDuration(operation string, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordDuration(warehouse.MetricStoreWriteDuration, duration, map[string]string{
			warehouse.LabelTable:     s.tableName,
			warehouse.LabelOperation: operation,
		})
	}
}
