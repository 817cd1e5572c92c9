package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mj37-com/medallion-warehouse-go/internal/audit"
	"github.com/Mj37-com/medallion-warehouse-go/internal/config"
	"github.com/Mj37-com/medallion-warehouse-go/internal/pipeline"
	"github.com/Mj37-com/medallion-warehouse-go/internal/retail"
	"github.com/Mj37-com/medallion-warehouse-go/internal/staging"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse/memoryengine"
)

const testSeed = 7

func Test_Runner_Run_LoadsEveryStreamOfTheDay(t *testing.T) {
	// arrange
	_, _, cfg := givenRetailLake(t)
	provider := pipeline.NewMemoryProvider()
	runner := givenRunner(t, cfg, provider)

	// act
	summary, err := runner.Run(context.Background(), 1)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Day)
	assert.Len(t, summary.Results, 12)

	assert.Equal(t, 7, resultFor(t, summary, "calendar").RowsWritten)
	assert.Equal(t, 40, resultFor(t, summary, "customers").RowsWritten)
	assert.Equal(t, 30, resultFor(t, summary, "products").RowsWritten)
	assert.Equal(t, 8, resultFor(t, summary, "stores").RowsWritten)
	assert.Equal(t, 10, resultFor(t, summary, "suppliers").RowsWritten)

	assert.Equal(t, 25, resultFor(t, summary, "orders").RowsWritten)
	assert.GreaterOrEqual(t, resultFor(t, summary, "order_lines").RowsWritten, 25)
	assert.Equal(t, 15, resultFor(t, summary, "shipments").RowsWritten)
	assert.Equal(t, 6, resultFor(t, summary, "returns").RowsWritten)
	assert.Equal(t, 48, resultFor(t, summary, "sensor_readings").RowsWritten)
	assert.Equal(t, 60, resultFor(t, summary, "click_events").RowsWritten)
	assert.Equal(t, 4, resultFor(t, summary, "exchange_rates").RowsWritten)
}

func Test_Runner_Run_AppliesEnrichmentBeforeStoring(t *testing.T) {
	// arrange
	_, _, cfg := givenRetailLake(t)
	provider := pipeline.NewMemoryProvider()
	runner := givenRunner(t, cfg, provider)
	ctx := context.Background()

	// act
	_, err := runner.Run(ctx, 1)

	// assert
	require.NoError(t, err)

	customers, customersErr := provider.SnapshotStore("dim_customers")
	require.NoError(t, customersErr)

	customerVersions, versionsErr := customers.CurrentVersions(ctx)
	require.NoError(t, versionsErr)
	require.Len(t, customerVersions, 40)
	for _, version := range customerVersions {
		assert.Contains(t, version.Attributes, "tier")
	}

	stores, storesErr := provider.SnapshotStore("dim_stores")
	require.NoError(t, storesErr)

	storeVersions, versionsErr := stores.CurrentVersions(ctx)
	require.NoError(t, versionsErr)
	require.Len(t, storeVersions, 8)
	for _, version := range storeVersions {
		assert.Contains(t, version.Attributes, "region")
	}
}

func Test_Runner_Run_IsIdempotent_WhenSourcesAreUnchanged(t *testing.T) {
	// arrange
	_, _, cfg := givenRetailLake(t)
	provider := pipeline.NewMemoryProvider()
	runner := givenRunner(t, cfg, provider)
	ctx := context.Background()

	_, firstErr := runner.Run(ctx, 1)
	require.NoError(t, firstErr)

	// act
	summary, err := runner.Run(ctx, 1)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalWritten())

	factStreams := []string{"orders", "order_lines", "shipments", "returns", "sensor_readings", "click_events", "exchange_rates"}
	for _, stream := range factStreams {
		assert.True(t, resultFor(t, summary, stream).Skipped, stream)
	}

	assert.Equal(t, 40, resultFor(t, summary, "customers").RowsSkipped)
	assert.Equal(t, 0, resultFor(t, summary, "calendar").RowsWritten)

	// skipped fact loads leave no run log entry, re-checked dimensions do
	recorder, ok := provider.Recorder().(*audit.MemoryRecorder)
	require.True(t, ok)
	assert.Len(t, recorder.Runs(), 17)
}

func Test_Runner_Run_OpensNewVersions_WhenMasterDataChanges(t *testing.T) {
	// arrange
	generator, dir, cfg := givenRetailLake(t)
	provider := pipeline.NewMemoryProvider()
	runner := givenRunner(t, cfg, provider)
	ctx := context.Background()

	_, day1Err := runner.Run(ctx, 1)
	require.NoError(t, day1Err)

	_, writeErr := generator.WriteDay(dir, 2)
	require.NoError(t, writeErr)

	// act
	summary, err := runner.Run(ctx, 2)

	// assert
	require.NoError(t, err)

	// day 2 moves customer addresses, so versions close and reopen
	assert.GreaterOrEqual(t, resultFor(t, summary, "customers").RowsWritten, 2)

	customers, storeErr := provider.SnapshotStore("dim_customers")
	require.NoError(t, storeErr)

	memStore, ok := customers.(*memoryengine.SnapshotStore)
	require.True(t, ok)
	assert.Greater(t, memStore.VersionCount(), 40)

	current, currentErr := customers.CurrentVersions(ctx)
	require.NoError(t, currentErr)
	assert.Len(t, current, 40)

	// day 2 facts carry day-unique identifiers, so nothing is dropped
	assert.False(t, resultFor(t, summary, "orders").Skipped)
	assert.Equal(t, 25, resultFor(t, summary, "orders").RowsWritten)
	assert.Equal(t, 15, resultFor(t, summary, "shipments").RowsWritten)
	assert.Equal(t, 48, resultFor(t, summary, "sensor_readings").RowsWritten)
	assert.Equal(t, 4, resultFor(t, summary, "exchange_rates").RowsWritten)
}

func Test_Runner_Run_ClosesAndReopensAChangedVersion(t *testing.T) {
	// arrange
	dir := t.TempDir()
	givenFile(t, filepath.Join(dir, "machines.csv"), "machine_id,location\nM1,hall_1\nM2,hall_2\n")

	cfg := config.Default()
	cfg.Lake.Root = dir
	cfg.Calendar.From = "2024-03-01"
	cfg.Calendar.To = "2024-03-01"
	cfg.Dimensions = []config.DimensionStream{{
		Name:       "machines",
		Source:     "machines.csv",
		Format:     staging.FormatCSV,
		Table:      "dim_machines",
		NaturalKey: "machine_id",
		Tracked:    []string{"location"},
		Columns: []staging.ColumnSpec{
			{Name: "machine_id", Type: staging.ColumnString},
			{Name: "location", Type: staging.ColumnString},
		},
	}}
	cfg.Facts = nil

	provider := pipeline.NewMemoryProvider()
	runner := givenRunner(t, cfg, provider)
	ctx := context.Background()

	first, firstErr := runner.Run(ctx, 1)
	require.NoError(t, firstErr)
	require.Equal(t, 2, resultFor(t, first, "machines").RowsWritten)

	givenFile(t, filepath.Join(dir, "machines.csv"), "machine_id,location\nM1,hall_9\nM2,hall_2\n")

	// act
	summary, err := runner.Run(ctx, 2)

	// assert
	require.NoError(t, err)

	machines := resultFor(t, summary, "machines")
	assert.Equal(t, 2, machines.RowsWritten)
	assert.Equal(t, 1, machines.RowsSkipped)

	store, storeErr := provider.SnapshotStore("dim_machines")
	require.NoError(t, storeErr)

	history, historyErr := store.AllVersions(ctx, "M1")
	require.NoError(t, historyErr)
	require.Len(t, history, 2)

	assert.False(t, history[0].IsOpen())
	end, closed := history[0].EffectiveEnd()
	require.True(t, closed)
	assert.True(t, end.Equal(summary.Run.At))

	assert.True(t, history[1].IsOpen())
	assert.True(t, history[1].EffectiveStart.Equal(summary.Run.At))
	assert.Equal(t, "hall_9", history[1].Attributes["location"])
}

func Test_Runner_Run_KeepsTheRunLog(t *testing.T) {
	// arrange
	_, _, cfg := givenRetailLake(t)
	provider := pipeline.NewMemoryProvider()
	runner := givenRunner(t, cfg, provider)

	// act
	summary, err := runner.Run(context.Background(), 1)

	// assert
	require.NoError(t, err)

	recorder, ok := provider.Recorder().(*audit.MemoryRecorder)
	require.True(t, ok)

	runs := recorder.Runs()
	require.Len(t, runs, 12)

	kinds := make(map[audit.Kind]int)
	for _, record := range runs {
		assert.Equal(t, summary.Run.ID, record.Run.ID)
		kinds[record.Kind]++
	}
	assert.Equal(t, 1, kinds[audit.KindCalendar])
	assert.Equal(t, 4, kinds[audit.KindDimension])
	assert.Equal(t, 7, kinds[audit.KindFact])

	assert.Equal(t, 7, recorder.ProcessedCount())
}

func Test_Runner_Run_FailsWhenAFactSourceFileIsMissing(t *testing.T) {
	// arrange
	_, dir, cfg := givenRetailLake(t)
	provider := pipeline.NewMemoryProvider()
	runner := givenRunner(t, cfg, provider)
	require.NoError(t, os.Remove(filepath.Join(dir, "shipments.parquet")))

	// act
	_, err := runner.Run(context.Background(), 1)

	// assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shipments")
}

func Test_Runner_Run_RefusesDaysBeforeOne(t *testing.T) {
	// arrange
	_, _, cfg := givenRetailLake(t)
	runner := givenRunner(t, cfg, pipeline.NewMemoryProvider())

	// act
	_, err := runner.Run(context.Background(), 0)

	// assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "day must be at least 1")
}

func Test_NewRunner_RefusesNilProvider(t *testing.T) {
	// act
	_, err := pipeline.NewRunner(config.Default(), nil)

	// assert
	assert.Error(t, err)
}

// givenRetailLake writes the generator's first day into a fresh lake and
// returns a configuration pointing at it with a one-week calendar.
func givenRetailLake(t *testing.T) (retail.Generator, string, config.Config) {
	t.Helper()

	dir := t.TempDir()
	generator := retail.NewGenerator(testSeed)

	_, err := generator.WriteDay(dir, 1)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Lake.Root = dir
	cfg.Calendar.From = "2024-03-01"
	cfg.Calendar.To = "2024-03-07"

	return generator, dir, cfg
}

func givenRunner(t *testing.T, cfg config.Config, provider pipeline.Provider) pipeline.Runner {
	t.Helper()

	runner, err := pipeline.NewRunner(cfg, provider)
	require.NoError(t, err)

	return runner
}

func givenFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func resultFor(t *testing.T, summary pipeline.Summary, stream string) pipeline.StreamResult {
	t.Helper()

	for _, result := range summary.Results {
		if result.Stream == stream {
			return result
		}
	}

	t.Fatalf("no result for stream %q", stream)

	return pipeline.StreamResult{}
}
