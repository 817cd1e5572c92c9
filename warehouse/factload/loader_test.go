package factload_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse/factload"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse/memoryengine"
)

func Test_Loader_KeyExclusion_AppendsOnlyUnseenRows(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := memoryengine.NewFactStore()
	loader := givenLoader(t, store, factload.KeyExclusion)

	day1 := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	// act - first batch {F1, F2}
	report1, err1 := loader.Run(ctx, warehouse.BuildBatchRun(day1), warehouse.FactBatch{
		givenFact(t, "F1", day1.Add(-2*time.Hour)),
		givenFact(t, "F2", day1.Add(-time.Hour)),
	})

	// act - overlapping batch {F2, F3}
	report2, err2 := loader.Run(ctx, warehouse.BuildBatchRun(day2), warehouse.FactBatch{
		givenFact(t, "F2", day1.Add(-time.Hour)),
		givenFact(t, "F3", day2.Add(-time.Hour)),
	})

	// assert
	assert.NoError(t, err1)
	assert.NoError(t, err2)

	assert.Equal(t, 2, report1.Appended)
	assert.Equal(t, 0, report1.AlreadyLoaded)

	assert.Equal(t, 1, report2.Appended)
	assert.Equal(t, 1, report2.AlreadyLoaded)

	rows := store.Rows()
	assert.Len(t, rows, 3, "F1, F2, F3 must be stored exactly once each")

	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.Key)
	}
	assert.ElementsMatch(t, []string{"F1", "F2", "F3"}, keys)
}

func Test_Loader_KeyExclusion_RerunAppendsNothing(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := memoryengine.NewFactStore()
	loader := givenLoader(t, store, factload.KeyExclusion)

	day1 := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	batch := warehouse.FactBatch{
		givenFact(t, "F1", day1.Add(-2*time.Hour)),
		givenFact(t, "F2", day1.Add(-time.Hour)),
	}

	_, firstErr := loader.Run(ctx, warehouse.BuildBatchRun(day1), batch)
	assert.NoError(t, firstErr)

	// act
	report, rerunErr := loader.Run(ctx, warehouse.BuildBatchRun(day1), batch)

	// assert
	assert.NoError(t, rerunErr)
	assert.Equal(t, 0, report.Appended)
	assert.Equal(t, 2, report.AlreadyLoaded)
	assert.Equal(t, 2, store.Count())
}

func Test_Loader_KeyExclusion_Fails_ForRowWithoutKey(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := memoryengine.NewFactStore()
	loader := givenLoader(t, store, factload.KeyExclusion)

	day1 := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	batch := warehouse.FactBatch{
		givenFact(t, "F1", day1.Add(-2*time.Hour)),
		givenFact(t, "", day1.Add(-time.Hour)),
	}

	// act
	_, err := loader.Run(ctx, warehouse.BuildBatchRun(day1), batch)

	// assert
	assert.Error(t, err)
	assert.ErrorIs(t, err, warehouse.ErrSchemaViolation)
	assert.Equal(t, 0, store.Count(), "a failing run must not append anything")
}

func Test_Loader_KeyExclusion_Fails_ForDuplicateKeyInBatch(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := memoryengine.NewFactStore()
	loader := givenLoader(t, store, factload.KeyExclusion)

	day1 := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	batch := warehouse.FactBatch{
		givenFact(t, "F1", day1.Add(-2*time.Hour)),
		givenFact(t, "F1", day1.Add(-time.Hour)),
	}

	// act
	_, err := loader.Run(ctx, warehouse.BuildBatchRun(day1), batch)

	// assert
	assert.Error(t, err)
	assert.ErrorIs(t, err, warehouse.ErrDuplicateFactInBatch)
	assert.Equal(t, 0, store.Count())
}

func Test_Loader_Watermark_DropsStaleRowsAndCountsThem(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := memoryengine.NewFactStore()
	loader := givenLoader(t, store, factload.Watermark)

	day1 := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	_, seedErr := loader.Run(ctx, warehouse.BuildBatchRun(day1), warehouse.FactBatch{
		givenReading(t, day1.Add(-3*time.Hour)),
		givenReading(t, day1.Add(-2*time.Hour)),
	})
	assert.NoError(t, seedErr)

	// act - one row at the watermark, one below, two above
	report, err := loader.Run(ctx, warehouse.BuildBatchRun(day2), warehouse.FactBatch{
		givenReading(t, day1.Add(-2*time.Hour)),
		givenReading(t, day1.Add(-150*time.Minute)),
		givenReading(t, day2.Add(-2*time.Hour)),
		givenReading(t, day2.Add(-time.Hour)),
	})

	// assert
	assert.NoError(t, err)
	assert.Equal(t, 2, report.Appended)
	assert.Equal(t, 2, report.DroppedStale, "stale rows are dropped and counted, not errors")
	assert.Equal(t, 4, store.Count())
}

func Test_Loader_Watermark_LoadsEverything_IntoEmptyStore(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := memoryengine.NewFactStore()
	loader := givenLoader(t, store, factload.Watermark)

	day1 := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)

	// act
	report, err := loader.Run(ctx, warehouse.BuildBatchRun(day1), warehouse.FactBatch{
		givenReading(t, day1.Add(-2*time.Hour)),
		givenReading(t, day1.Add(-time.Hour)),
	})

	// assert
	assert.NoError(t, err)
	assert.Equal(t, 2, report.Appended)
	assert.Equal(t, 0, report.DroppedStale, "an empty stream has no watermark to compare against")
}

func Test_Loader_Watermark_Fails_ForRowWithoutEventTime(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := memoryengine.NewFactStore()
	loader := givenLoader(t, store, factload.Watermark)

	day1 := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	batch := warehouse.FactBatch{warehouse.BuildFactRecord("", time.Time{}, nil)}

	// act
	_, err := loader.Run(ctx, warehouse.BuildBatchRun(day1), batch)

	// assert
	assert.Error(t, err)
	assert.ErrorIs(t, err, warehouse.ErrSchemaViolation)
	assert.Equal(t, 0, store.Count())
}

func Test_DecideKeyExclusion_PreservesBatchOrder(t *testing.T) {
	// arrange
	day1 := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	batch := warehouse.FactBatch{
		givenFact(t, "F3", day1),
		givenFact(t, "F1", day1),
		givenFact(t, "F2", day1),
	}
	existing := map[string]struct{}{"F1": {}}

	// act
	delta, alreadyLoaded, err := factload.DecideKeyExclusion(batch, existing)

	// assert
	assert.NoError(t, err)
	assert.Equal(t, 1, alreadyLoaded)
	assert.Len(t, delta, 2)
	assert.Equal(t, "F3", delta[0].Key)
	assert.Equal(t, "F2", delta[1].Key)
}

func Test_ParseStrategy_AcceptsKnownNamesOnly(t *testing.T) {
	testCases := []struct {
		name     string
		expected factload.Strategy
		wantErr  bool
	}{
		{name: "key_exclusion", expected: factload.KeyExclusion},
		{name: "watermark", expected: factload.Watermark},
		{name: "truncate_and_reload", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			strategy, err := factload.ParseStrategy(tc.name)

			// assert
			if tc.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.expected, strategy)
		})
	}
}

// Test helper functions with t.Helper() for better error reporting

func givenLoader(t *testing.T, store factload.FactStore, strategy factload.Strategy) factload.Loader {
	t.Helper()

	loader, err := factload.NewLoader(store, "order_lines", strategy)
	assert.NoError(t, err)

	return loader
}

func givenFact(t *testing.T, key string, eventTime time.Time) warehouse.FactRecord {
	t.Helper()

	return warehouse.BuildFactRecord(key, eventTime, map[string]string{"qty": "1"})
}

func givenReading(t *testing.T, eventTime time.Time) warehouse.FactRecord {
	t.Helper()

	return warehouse.BuildFactRecord("", eventTime, map[string]string{"temperature_c": "4.2"})
}
