package factload

import (
	"errors"
	"fmt"
	"time"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

// Strategy selects how a fact stream detects rows it has already loaded.
type Strategy int

const (
	// KeyExclusion skips rows whose fact key is already stored. Correct for
	// any delivery order; requires every row to carry a unique fact key.
	KeyExclusion Strategy = iota

	// Watermark drops rows at or below the stored maximum event time.
	// Correct only for sources with strictly increasing event timestamps;
	// requires every row to carry an event time.
	Watermark
)

func (s Strategy) String() string {
	switch s {
	case Watermark:
		return "watermark"
	default:
		return "key_exclusion"
	}
}

// ParseStrategy maps a configuration string to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "key_exclusion":
		return KeyExclusion, nil
	case "watermark":
		return Watermark, nil
	default:
		return KeyExclusion, fmt.Errorf("unknown fact loading strategy %q", name)
	}
}

// DecideKeyExclusion returns the rows of a batch that are not yet stored,
// in batch order. Rows whose key is already stored are counted, repeated
// keys within the batch fail the run, and a row without a key is a schema
// violation because key exclusion cannot work without one.
func DecideKeyExclusion(batch warehouse.FactBatch, existing map[warehouse.FactKeyString]struct{}) (
	delta []warehouse.FactRecord,
	alreadyLoaded int,
	err error,
) {

	seen := make(map[warehouse.FactKeyString]struct{}, len(batch))

	for _, row := range batch {
		if !row.HasKey() {
			return nil, 0, errors.Join(
				warehouse.ErrSchemaViolation,
				errors.New("fact row has no key, key exclusion needs one"),
			)
		}

		if _, dup := seen[row.Key]; dup {
			return nil, 0, errors.Join(
				warehouse.ErrDuplicateFactInBatch,
				fmt.Errorf("fact key %q appears more than once", row.Key),
			)
		}
		seen[row.Key] = struct{}{}

		if _, stored := existing[row.Key]; stored {
			alreadyLoaded++
			continue
		}

		delta = append(delta, row)
	}

	return delta, alreadyLoaded, nil
}

// DecideWatermark returns the rows of a batch whose event time lies strictly
// above the stored watermark, in batch order. Rows at or below the watermark
// are counted as droppedStale; with hasWatermark false (empty stream) every
// row passes. A row without an event time is a schema violation.
func DecideWatermark(batch warehouse.FactBatch, watermark time.Time, hasWatermark bool) (
	delta []warehouse.FactRecord,
	droppedStale int,
	err error,
) {

	for _, row := range batch {
		if row.EventTime.IsZero() {
			return nil, 0, errors.Join(
				warehouse.ErrSchemaViolation,
				errors.New("fact row has no event time, watermark loading needs one"),
			)
		}

		if hasWatermark && !row.EventTime.After(watermark) {
			droppedStale++
			continue
		}

		delta = append(delta, row)
	}

	return delta, droppedStale, nil
}
