package snapshot

import (
	"context"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

// SnapshotStore is the storage contract the Engine and the Projector work
// against. Implementations must apply a ChangeSet atomically: either every
// close and every insert of a run becomes visible, or none of them do.
//
// Implementations must also defend the core history invariant, at most one
// open version per natural key, against concurrent runs: Apply has to fail
// with warehouse.ErrConcurrentRunConflict or warehouse.ErrInvariantViolation
// instead of writing a second open version or closing a version that
// another run already closed.
type SnapshotStore interface {
	// OpenVersions returns the open version per requested natural key.
	// Keys without an open version are absent from the result map.
	OpenVersions(ctx context.Context, naturalKeys []warehouse.NaturalKeyString) (
		map[warehouse.NaturalKeyString]warehouse.EntityVersion, error)

	// AllVersions returns the full history of one entity, ordered by
	// effective start ascending. A key that was never observed yields an
	// empty slice and no error.
	AllVersions(ctx context.Context, naturalKey warehouse.NaturalKeyString) ([]warehouse.EntityVersion, error)

	// CurrentVersions returns all open versions, ordered by natural key.
	CurrentVersions(ctx context.Context) ([]warehouse.EntityVersion, error)

	// Apply writes one run's ChangeSet in a single atomic step.
	Apply(ctx context.Context, run warehouse.BatchRun, changes ChangeSet) error
}
