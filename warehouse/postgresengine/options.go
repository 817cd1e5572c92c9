package postgresengine

import (
	"errors"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

const (
	defaultSnapshotTableName = "entity_versions"
	defaultFactTableName     = "facts"

	dialectPostgres = "postgres"
	castJsonb       = "?::jsonb"

	colSurrogateKey   = "surrogate_key"
	colNaturalKey     = "natural_key"
	colAttributes     = "attributes"
	colFingerprint    = "fingerprint"
	colEffectiveStart = "effective_start"
	colEffectiveEnd   = "effective_end"
	colCreatedByRun   = "created_by_run"
	colFactKey        = "fact_key"
	colEventTime      = "event_time"
	colLoadedAt       = "loaded_at"
	colRunID          = "run_id"

	aliasMaxEventTime = "max_event_time"

	pgCodeUniqueViolation = "23505"
)

type (
	sqlQueryString    = string
	rowsAffectedInt64 = int64
)

// settings holds the configurable parts shared by both stores.
type settings struct {
	tableName string
	logger    warehouse.Logger
	metrics   warehouse.MetricsCollector
}

// Option defines a functional option for configuring a store.
type Option func(*settings) error

// WithTableName sets the table a store reads and writes. Each dimension and
// fact stream lives in its own table, so multi-stream setups create one
// store per stream.
func WithTableName(tableName string) Option {
	return func(s *settings) error {
		if tableName == "" {
			return warehouse.ErrEmptyTableNameSupplied
		}

		s.tableName = tableName

		return nil
	}
}

// WithLogger sets the logger for a store.
//
// Debug level: SQL statements with execution timing (development use)
// Info level: write counts and durations (production-safe)
// Warn level: non-critical issues like cleanup failures
// Error level: critical failures that cause operation failures.
func WithLogger(logger warehouse.Logger) Option {
	return func(s *settings) error {
		s.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for a store.
func WithMetrics(metrics warehouse.MetricsCollector) Option {
	return func(s *settings) error {
		s.metrics = metrics
		return nil
	}
}

func applyOptions(defaults settings, options []Option) (settings, error) {
	applied := defaults

	for _, option := range options {
		if err := option(&applied); err != nil {
			return settings{}, err
		}
	}

	return applied, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation, regardless of which driver produced it.
func isUniqueViolation(err error) bool {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == pgCodeUniqueViolation
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgCodeUniqueViolation
	}

	return false
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
