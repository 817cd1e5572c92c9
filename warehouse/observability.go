package warehouse

import (
	"time"
)

// Logger interface for SQL query logging, run reporting, warnings, and error
// reporting. It is dependency-free so that any logging backend can be plugged
// in; see the slogadapters package for a log/slog bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsCollector interface for collecting loading performance and
// operational metrics. Implementations can forward to any metrics backend;
// the engines call it with per-stream labels.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
	RecordValue(metric string, value float64, labels map[string]string)
}

// Metric and label names emitted by the snapshot engine and the fact loader.
const (
	MetricSnapshotRunDuration = "warehouse_snapshot_run_duration"
	MetricVersionsOpened      = "warehouse_versions_opened"
	MetricVersionsClosed      = "warehouse_versions_closed"
	MetricRecordsUnchanged    = "warehouse_records_unchanged"
	MetricDuplicatesResolved  = "warehouse_batch_duplicates_resolved"
	MetricFactLoadDuration    = "warehouse_fact_load_duration"
	MetricFactsAppended       = "warehouse_facts_appended"
	MetricFactsAlreadyLoaded  = "warehouse_facts_already_loaded"
	MetricStaleWatermarkDrops = "warehouse_stale_watermark_drops"
	MetricStoreQueryDuration  = "warehouse_store_query_duration"
	MetricStoreWriteDuration  = "warehouse_store_write_duration"

	LabelStream    = "stream"
	LabelStrategy  = "strategy"
	LabelTable     = "table"
	LabelOperation = "operation"
)
