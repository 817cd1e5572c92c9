package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse/postgresengine/internal/adapters"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse/snapshot"
)

const (
	logMsgBuildSnapshotQueryFailed = "failed to build snapshot query"
	logMsgSnapshotQueryFailed      = "snapshot query execution failed"
	logMsgCloseRowsFailed          = "failed to close database rows"
	logMsgScanVersionRowFailed     = "failed to scan version row"
	logMsgUnmarshalAttributes      = "failed to unmarshal version attributes"
	logMsgBeginTxFailed            = "failed to begin transaction"
	logMsgCloseExecFailed          = "database execution failed during version close"
	logMsgInsertExecFailed         = "database execution failed during version insert"
	logMsgRowsAffectedFailed       = "failed to get rows affected count"
	logMsgCommitFailed             = "failed to commit change set"
	logMsgChangeSetApplied         = "change set applied"
	logMsgCloseConflict            = "guarded close affected no row, concurrent run suspected"
	logMsgOpenUniqueViolation      = "open version insert hit unique index"
	logMsgSQLExecuted              = "executed sql for: "
	logMsgSnapshotOperation        = "snapshot store operation: "
	logAttrError                   = "error"
	logAttrQuery                   = "query"
	logAttrTable                   = "table"
	logAttrNaturalKey              = "natural_key"
	logAttrRunID                   = "run_id"
	logAttrCloses                  = "closes"
	logAttrOpens                   = "opens"
	logAttrRowsAffected            = "rows_affected"
	logAttrDurationMS              = "duration_ms"

	opOpenVersions    = "open_versions"
	opAllVersions     = "all_versions"
	opCurrentVersions = "current_versions"
	opApply           = "apply"
)

var json = jsoniter.ConfigFastest

// SnapshotStore is the PostgreSQL implementation of snapshot.SnapshotStore.
//
// It expects a table of this shape (see the shipped migrations):
//
//	surrogate_key   uuid primary key
//	natural_key     text not null
//	attributes      jsonb not null
//	fingerprint     text not null
//	effective_start timestamptz not null
//	effective_end   timestamptz null
//	is_current      boolean generated always as (effective_end is null) stored
//	created_by_run  uuid not null
//
// plus a partial unique index on (natural_key) where effective_end is null,
// which makes "at most one open version per key" a database guarantee, and
// a unique index on (natural_key, effective_start).
type SnapshotStore struct {
	db        adapters.DBAdapter
	tableName string
	logger    warehouse.Logger
	metrics   warehouse.MetricsCollector
}

// NewSnapshotStoreFromPGXPool creates a SnapshotStore using a pgx pool with optional configuration.
func NewSnapshotStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (SnapshotStore, error) {
	if db == nil {
		return SnapshotStore{}, warehouse.ErrNilDatabaseConnection
	}

	return newSnapshotStore(adapters.NewPGXAdapter(db), options)
}

// NewSnapshotStoreFromSQLDB creates a SnapshotStore using a sql.DB with optional configuration.
func NewSnapshotStoreFromSQLDB(db *sql.DB, options ...Option) (SnapshotStore, error) {
	if db == nil {
		return SnapshotStore{}, warehouse.ErrNilDatabaseConnection
	}

	return newSnapshotStore(adapters.NewSQLAdapter(db), options)
}

// NewSnapshotStoreFromSQLX creates a SnapshotStore using a sqlx.DB with optional configuration.
func NewSnapshotStoreFromSQLX(db *sqlx.DB, options ...Option) (SnapshotStore, error) {
	if db == nil {
		return SnapshotStore{}, warehouse.ErrNilDatabaseConnection
	}

	return newSnapshotStore(adapters.NewSQLXAdapter(db), options)
}

func newSnapshotStore(db adapters.DBAdapter, options []Option) (SnapshotStore, error) {
	applied, optionErr := applyOptions(settings{tableName: defaultSnapshotTableName}, options)
	if optionErr != nil {
		return SnapshotStore{}, optionErr
	}

	return SnapshotStore{
		db:        db,
		tableName: applied.tableName,
		logger:    applied.logger,
		metrics:   applied.metrics,
	}, nil
}

// OpenVersions returns the open version per requested natural key.
func (s SnapshotStore) OpenVersions(ctx context.Context, naturalKeys []warehouse.NaturalKeyString) (
	map[warehouse.NaturalKeyString]warehouse.EntityVersion,
	error,
) {

	open := make(map[warehouse.NaturalKeyString]warehouse.EntityVersion, len(naturalKeys))

	if len(naturalKeys) == 0 {
		return open, nil
	}

	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.tableName).
		Select(colNaturalKey, colAttributes, colFingerprint, colEffectiveStart).
		Where(
			goqu.C(colEffectiveEnd).IsNull(),
			goqu.C(colNaturalKey).In(naturalKeys),
		)

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		s.logError(logMsgBuildSnapshotQueryFailed, toSQLErr)
		return nil, errors.Join(warehouse.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, queryErr := s.executeQuery(ctx, sqlQuery, opOpenVersions)
	if queryErr != nil {
		return nil, queryErr
	}
	defer s.closeRows(rows)

	for rows.Next() {
		version, scanErr := s.scanOpenVersion(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		open[version.NaturalKey] = version
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		s.logError(logMsgSnapshotQueryFailed, rowsErr)
		return nil, errors.Join(warehouse.ErrQueryingStoreFailed, rowsErr)
	}

	return open, nil
}

// AllVersions returns the full history of one entity, ordered by effective
// start ascending.
func (s SnapshotStore) AllVersions(ctx context.Context, naturalKey warehouse.NaturalKeyString) (
	[]warehouse.EntityVersion,
	error,
) {

	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.tableName).
		Select(colNaturalKey, colAttributes, colFingerprint, colEffectiveStart, colEffectiveEnd).
		Where(goqu.C(colNaturalKey).Eq(naturalKey)).
		Order(goqu.I(colEffectiveStart).Asc())

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		s.logError(logMsgBuildSnapshotQueryFailed, toSQLErr)
		return nil, errors.Join(warehouse.ErrBuildingQueryFailed, toSQLErr)
	}

	return s.queryVersions(ctx, sqlQuery, opAllVersions)
}

// CurrentVersions returns all open versions, ordered by natural key.
func (s SnapshotStore) CurrentVersions(ctx context.Context) ([]warehouse.EntityVersion, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.tableName).
		Select(colNaturalKey, colAttributes, colFingerprint, colEffectiveStart, colEffectiveEnd).
		Where(goqu.C(colEffectiveEnd).IsNull()).
		Order(goqu.I(colNaturalKey).Asc())

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		s.logError(logMsgBuildSnapshotQueryFailed, toSQLErr)
		return nil, errors.Join(warehouse.ErrBuildingQueryFailed, toSQLErr)
	}

	return s.queryVersions(ctx, sqlQuery, opCurrentVersions)
}

// Apply writes one run's change set in a single transaction. Every close is
// a guarded UPDATE that must affect exactly one row; the inserts rely on the
// partial unique index to refuse a second open version. Any violation rolls
// the whole run back.
func (s SnapshotStore) Apply(ctx context.Context, run warehouse.BatchRun, changes snapshot.ChangeSet) error {
	if changes.IsEmpty() {
		return nil
	}

	start := time.Now()

	tx, beginErr := s.db.Begin(ctx)
	if beginErr != nil {
		s.logError(logMsgBeginTxFailed, beginErr)
		return errors.Join(warehouse.ErrApplyingChangeSetFailed, beginErr)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, versionClose := range changes.Closes {
		if closeErr := s.applyClose(ctx, tx, versionClose); closeErr != nil {
			return closeErr
		}
	}

	if len(changes.Opens) > 0 {
		if insertErr := s.applyOpens(ctx, tx, run, changes.Opens); insertErr != nil {
			return insertErr
		}
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		s.logError(logMsgCommitFailed, commitErr)
		return errors.Join(warehouse.ErrApplyingChangeSetFailed, commitErr)
	}
	committed = true

	duration := time.Since(start)

	s.logOperation(
		logMsgChangeSetApplied,
		logAttrTable, s.tableName,
		logAttrRunID, run.ID.String(),
		logAttrCloses, len(changes.Closes),
		logAttrOpens, len(changes.Opens),
		logAttrDurationMS, durationToMilliseconds(duration),
	)
	s.recordWriteDuration(opApply, duration)

	return nil
}

// applyClose executes one guarded close. The WHERE clause pins the open
// version by natural key, openness, and the fingerprint the deciding run
// observed, so exactly one row must be affected; anything else means a
// concurrent run got there first.
func (s SnapshotStore) applyClose(ctx context.Context, tx adapters.DBTx, versionClose snapshot.VersionClose) error {
	updateStmt := goqu.Dialect(dialectPostgres).
		Update(s.tableName).
		Set(goqu.Record{colEffectiveEnd: versionClose.CloseAt}).
		Where(
			goqu.C(colNaturalKey).Eq(versionClose.NaturalKey),
			goqu.C(colEffectiveEnd).IsNull(),
			goqu.C(colFingerprint).Eq(versionClose.ExpectedFingerprint),
		)

	sqlQuery, _, toSQLErr := updateStmt.ToSQL()
	if toSQLErr != nil {
		s.logError(logMsgBuildSnapshotQueryFailed, toSQLErr)
		return errors.Join(warehouse.ErrBuildingQueryFailed, toSQLErr)
	}

	rowsAffected, execErr := s.executeWrite(ctx, tx, sqlQuery, logMsgCloseExecFailed)
	if execErr != nil {
		return execErr
	}

	if rowsAffected != 1 {
		s.logOperation(
			logMsgCloseConflict,
			logAttrTable, s.tableName,
			logAttrNaturalKey, versionClose.NaturalKey,
			logAttrRowsAffected, rowsAffected,
		)

		return errors.Join(
			warehouse.ErrConcurrentRunConflict,
			fmt.Errorf("close for natural key %q affected %d rows instead of one", versionClose.NaturalKey, rowsAffected),
		)
	}

	return nil
}

// applyOpens inserts all new open versions of the run in one statement.
func (s SnapshotStore) applyOpens(
	ctx context.Context,
	tx adapters.DBTx,
	run warehouse.BatchRun,
	opens []warehouse.EntityVersion,
) error {

	valueRows := make([][]interface{}, 0, len(opens))

	for _, version := range opens {
		payload, marshalErr := json.Marshal(version.Attributes)
		if marshalErr != nil {
			s.logError(logMsgBuildSnapshotQueryFailed, marshalErr)
			return errors.Join(warehouse.ErrBuildingQueryFailed, marshalErr)
		}

		valueRows = append(valueRows, goqu.Vals{
			version.SurrogateKey.String(),
			version.NaturalKey,
			goqu.L(castJsonb, string(payload)),
			version.Fingerprint,
			version.EffectiveStart,
			run.ID.String(),
		})
	}

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(s.tableName).
		Cols(colSurrogateKey, colNaturalKey, colAttributes, colFingerprint, colEffectiveStart, colCreatedByRun).
		Vals(valueRows...)

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		s.logError(logMsgBuildSnapshotQueryFailed, toSQLErr)
		return errors.Join(warehouse.ErrBuildingQueryFailed, toSQLErr)
	}

	rowsAffected, execErr := s.executeWrite(ctx, tx, sqlQuery, logMsgInsertExecFailed)
	if execErr != nil {
		if isUniqueViolation(execErr) {
			s.logOperation(logMsgOpenUniqueViolation, logAttrTable, s.tableName, logAttrRunID, run.ID.String())

			return errors.Join(warehouse.ErrInvariantViolation, execErr)
		}

		return execErr
	}

	if rowsAffected != rowsAffectedInt64(len(opens)) {
		return errors.Join(
			warehouse.ErrInvariantViolation,
			fmt.Errorf("inserted %d open versions, expected %d", rowsAffected, len(opens)),
		)
	}

	return nil
}

// executeWrite executes one statement inside the transaction and returns the
// affected row count with timing information.
func (s SnapshotStore) executeWrite(
	ctx context.Context,
	tx adapters.DBTx,
	sqlQuery sqlQueryString,
	failureMsg string,
) (rowsAffectedInt64, error) {

	start := time.Now()
	result, execErr := tx.Exec(ctx, sqlQuery)
	s.logQueryWithDuration(sqlQuery, opApply, time.Since(start))

	if execErr != nil {
		if isUniqueViolation(execErr) {
			// surfaced raw so the caller can map it to the invariant error
			return 0, execErr
		}

		s.logError(failureMsg, execErr)

		return 0, errors.Join(warehouse.ErrApplyingChangeSetFailed, execErr)
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		s.logError(logMsgRowsAffectedFailed, rowsAffectedErr)
		return 0, errors.Join(warehouse.ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	return rowsAffected, nil
}

// queryVersions runs a version select and scans the full history row shape.
func (s SnapshotStore) queryVersions(ctx context.Context, sqlQuery sqlQueryString, operation string) (
	[]warehouse.EntityVersion,
	error,
) {

	rows, queryErr := s.executeQuery(ctx, sqlQuery, operation)
	if queryErr != nil {
		return nil, queryErr
	}
	defer s.closeRows(rows)

	versions := make([]warehouse.EntityVersion, 0)

	for rows.Next() {
		version, scanErr := s.scanHistoryVersion(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		versions = append(versions, version)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		s.logError(logMsgSnapshotQueryFailed, rowsErr)
		return nil, errors.Join(warehouse.ErrQueryingStoreFailed, rowsErr)
	}

	return versions, nil
}

// executeQuery executes the SQL query and returns rows with timing information.
func (s SnapshotStore) executeQuery(ctx context.Context, sqlQuery sqlQueryString, operation string) (
	adapters.DBRows,
	error,
) {

	start := time.Now()
	rows, queryErr := s.db.Query(ctx, sqlQuery)
	duration := time.Since(start)
	s.logQueryWithDuration(sqlQuery, operation, duration)
	s.recordQueryDuration(operation, duration)

	if queryErr != nil {
		s.logError(logMsgSnapshotQueryFailed, queryErr)
		return nil, errors.Join(warehouse.ErrQueryingStoreFailed, queryErr)
	}

	return rows, nil
}

// scanOpenVersion scans the open-version row shape (no effective end).
func (s SnapshotStore) scanOpenVersion(rows adapters.DBRows) (warehouse.EntityVersion, error) {
	var (
		naturalKey     string
		payload        []byte
		fingerprint    string
		effectiveStart time.Time
	)

	if scanErr := rows.Scan(&naturalKey, &payload, &fingerprint, &effectiveStart); scanErr != nil {
		s.logError(logMsgScanVersionRowFailed, scanErr)
		return warehouse.EntityVersion{}, errors.Join(warehouse.ErrScanningRowFailed, scanErr)
	}

	attributes, unmarshalErr := s.unmarshalAttributes(payload)
	if unmarshalErr != nil {
		return warehouse.EntityVersion{}, unmarshalErr
	}

	return warehouse.BuildOpenEntityVersion(naturalKey, attributes, fingerprint, effectiveStart), nil
}

// scanHistoryVersion scans the full row shape including the effective end.
func (s SnapshotStore) scanHistoryVersion(rows adapters.DBRows) (warehouse.EntityVersion, error) {
	var (
		naturalKey     string
		payload        []byte
		fingerprint    string
		effectiveStart time.Time
		effectiveEnd   sql.NullTime
	)

	if scanErr := rows.Scan(&naturalKey, &payload, &fingerprint, &effectiveStart, &effectiveEnd); scanErr != nil {
		s.logError(logMsgScanVersionRowFailed, scanErr)
		return warehouse.EntityVersion{}, errors.Join(warehouse.ErrScanningRowFailed, scanErr)
	}

	attributes, unmarshalErr := s.unmarshalAttributes(payload)
	if unmarshalErr != nil {
		return warehouse.EntityVersion{}, unmarshalErr
	}

	if !effectiveEnd.Valid {
		return warehouse.BuildOpenEntityVersion(naturalKey, attributes, fingerprint, effectiveStart), nil
	}

	version, buildErr := warehouse.BuildClosedEntityVersion(naturalKey, attributes, fingerprint, effectiveStart, effectiveEnd.Time)
	if buildErr != nil {
		s.logError(logMsgScanVersionRowFailed, buildErr)
		return warehouse.EntityVersion{}, buildErr
	}

	return version, nil
}

func (s SnapshotStore) unmarshalAttributes(payload []byte) (
	map[warehouse.AttributeNameString]warehouse.AttributeValueString,
	error,
) {

	attributes := make(map[warehouse.AttributeNameString]warehouse.AttributeValueString)

	if unmarshalErr := json.Unmarshal(payload, &attributes); unmarshalErr != nil {
		s.logError(logMsgUnmarshalAttributes, unmarshalErr)
		return nil, errors.Join(warehouse.ErrScanningRowFailed, unmarshalErr)
	}

	return attributes, nil
}

// closeRows safely closes database rows and logs any errors.
func (s SnapshotStore) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if s.logger != nil {
			s.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}

// logQueryWithDuration logs SQL queries with execution time at debug level if the logger is configured.
func (s SnapshotStore) logQueryWithDuration(sqlQuery string, operation string, duration time.Duration) {
	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+operation, logAttrDurationMS, durationToMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if the logger is configured.
func (s SnapshotStore) logOperation(action string, args ...any) {
	if s.logger != nil {
		s.logger.Info(logMsgSnapshotOperation+action, args...)
	}
}

func (s SnapshotStore) logError(msg string, err error) {
	if s.logger != nil {
		s.logger.Error(msg, logAttrTable, s.tableName, logAttrError, err.Error())
	}
}

func (s SnapshotStore) recordQueryDuration(operation string, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordDuration(warehouse.MetricStoreQueryDuration, duration, map[string]string{
			warehouse.LabelTable:     s.tableName,
			warehouse.LabelOperation: operation,
		})
	}
}

func (s SnapshotStore) recordWriteDuration(operation string, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordDuration(warehouse.MetricStoreWriteDuration, duration, map[string]string{
			warehouse.LabelTable:     s.tableName,
			warehouse.LabelOperation: operation,
		})
	}
}
