package warehouse

import (
	"time"

	"github.com/google/uuid"
)

// BatchRun is the identity of one batch execution: a random run ID for audit
// trails plus the single logical timestamp every write of the run carries.
// All closes and opens performed by one run share At, so version intervals
// stay contiguous at batch granularity.
type BatchRun struct {
	ID uuid.UUID
	At time.Time
}

// BuildBatchRun returns a new run stamped with the given logical timestamp.
func BuildBatchRun(at time.Time) BatchRun {
	return BatchRun{
		ID: uuid.New(),
		At: at.UTC(),
	}
}

// BuildBatchRunNow returns a new run stamped with the current wall clock.
func BuildBatchRunNow() BatchRun {
	return BuildBatchRun(time.Now())
}
