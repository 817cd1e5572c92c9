package factload

import (
	"context"
	"time"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

// FactStore is the storage contract for one append-only fact stream.
// Append must be atomic: either all rows of a run become visible or none,
// so a crashed run can simply be re-executed.
type FactStore interface {
	// ExistingKeys reports which of the given fact keys are already stored.
	ExistingKeys(ctx context.Context, keys []warehouse.FactKeyString) (
		map[warehouse.FactKeyString]struct{}, error)

	// MaxEventTime returns the stream's watermark, the maximum stored event
	// time. ok is false when the stream holds no rows yet.
	MaxEventTime(ctx context.Context) (maxEventTime time.Time, ok bool, err error)

	// Append writes the rows of one run in a single atomic step.
	Append(ctx context.Context, run warehouse.BatchRun, rows []warehouse.FactRecord) error
}
