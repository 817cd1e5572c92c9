package slogadapters_test

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse/slogadapters"
)

func Test_NewSlogLogger_Construction(t *testing.T) {
	logger := slogadapters.NewSlogLogger(slog.Default())
	assert.NotNil(t, logger, "NewSlogLogger should return non-nil logger")
}

func Test_NewSlogLogger_NilFallsBackToDefault(t *testing.T) {
	logger := slogadapters.NewSlogLogger(nil)

	assert.NotNil(t, logger)
	assert.NotPanics(t, func() {
		logger.Info("message on the default logger")
	})
}

func Test_SlogLogger_AllLevels(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug, // Capture all levels
	})

	logger := slogadapters.NewSlogLoggerWithHandler(handler)

	logger.Debug("debug message", "level", "debug")
	logger.Info("info message", "level", "info")
	logger.Warn("warn message", "level", "warn")
	logger.Error("error message", "level", "error")

	output := buf.String()

	assert.Contains(t, output, "debug message", "Debug message should be logged")
	assert.Contains(t, output, "info message", "Info message should be logged")
	assert.Contains(t, output, "warn message", "Warn message should be logged")
	assert.Contains(t, output, "error message", "Error message should be logged")

	assert.Contains(t, output, `"level":"debug"`, "Debug level should be present")
	assert.Contains(t, output, `"level":"info"`, "Info level should be present")
	assert.Contains(t, output, `"level":"warn"`, "Warn level should be present")
	assert.Contains(t, output, `"level":"error"`, "Error level should be present")
}

func Test_SlogLogger_WithAttributes(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)

	logger := slogadapters.NewSlogLoggerWithHandler(handler)

	logger.Info("test message",
		"string_attr", "value1",
		"int_attr", 42,
		"float_attr", 3.14,
		"bool_attr", true,
	)

	output := buf.String()

	assert.Contains(t, output, "test message", "Message should be logged")
	assert.Contains(t, output, `"string_attr":"value1"`, "String attribute should be present")
	assert.Contains(t, output, `"int_attr":42`, "Int attribute should be present")
	assert.Contains(t, output, `"float_attr":3.14`, "Float attribute should be present")
	assert.Contains(t, output, `"bool_attr":true`, "Bool attribute should be present")
}

func Test_MetricsLogger_EmitsAllInstrumentKinds(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	collector := slogadapters.NewMetricsLogger(slog.New(handler))
	labels := map[string]string{warehouse.LabelStream: "products"}

	collector.RecordDuration(warehouse.MetricSnapshotRunDuration, 1500*time.Microsecond, labels)
	collector.IncrementCounter(warehouse.MetricVersionsOpened, labels)
	collector.RecordValue(warehouse.MetricRecordsUnchanged, 7, labels)

	output := buf.String()

	assert.Contains(t, output, warehouse.MetricSnapshotRunDuration)
	assert.Contains(t, output, `"duration_ms":1.5`)
	assert.Contains(t, output, warehouse.MetricVersionsOpened)
	assert.Contains(t, output, warehouse.MetricRecordsUnchanged)
	assert.Contains(t, output, `"value":7`)
	assert.Contains(t, output, `"stream":"products"`)
}

func Test_MetricsLogger_LabelOrderIsStable(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	collector := slogadapters.NewMetricsLogger(slog.New(handler))

	collector.IncrementCounter("some_metric", map[string]string{
		"zebra":  "z",
		"alpha":  "a",
		"middle": "m",
	})

	output := buf.String()

	alphaIdx := bytes.Index(buf.Bytes(), []byte("alpha=a"))
	middleIdx := bytes.Index(buf.Bytes(), []byte("middle=m"))
	zebraIdx := bytes.Index(buf.Bytes(), []byte("zebra=z"))

	assert.NotEqual(t, -1, alphaIdx, "output was: %s", output)
	assert.True(t, alphaIdx < middleIdx, "labels should be sorted: %s", output)
	assert.True(t, middleIdx < zebraIdx, "labels should be sorted: %s", output)
}
