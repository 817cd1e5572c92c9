package slogadapters

import (
	"log/slog"
	"sort"
	"time"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

// MetricsLogger implements warehouse.MetricsCollector by emitting each
// measurement as a structured debug log line. It is meant for development
// and batch-job environments where no metrics backend is running but the
// observable counts should still land somewhere inspectable.
type MetricsLogger struct {
	logger *slog.Logger
}

// NewMetricsLogger creates a metrics collector that logs measurements to
// the given slog.Logger at debug level. Passing nil delegates to
// slog.Default().
func NewMetricsLogger(logger *slog.Logger) *MetricsLogger {
	if logger == nil {
		logger = slog.Default()
	}

	return &MetricsLogger{logger: logger}
}

// RecordDuration logs a duration measurement in milliseconds.
func (m *MetricsLogger) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	args := append([]any{"metric", metric, "duration_ms", float64(duration.Microseconds()) / 1000.0}, labelArgs(labels)...)
	m.logger.Debug("metric duration recorded", args...)
}

// IncrementCounter logs a counter increment.
func (m *MetricsLogger) IncrementCounter(metric string, labels map[string]string) {
	args := append([]any{"metric", metric}, labelArgs(labels)...)
	m.logger.Debug("metric counter incremented", args...)
}

// RecordValue logs a gauge value.
func (m *MetricsLogger) RecordValue(metric string, value float64, labels map[string]string) {
	args := append([]any{"metric", metric, "value", value}, labelArgs(labels)...)
	m.logger.Debug("metric value recorded", args...)
}

// labelArgs flattens labels into slog key-value pairs in a stable order.
func labelArgs(labels map[string]string) []any {
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, labels[key])
	}

	return args
}

// Ensure MetricsLogger implements warehouse.MetricsCollector.
var _ warehouse.MetricsCollector = (*MetricsLogger)(nil)
