package audit

import (
	"context"
	"sync"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

// MemoryRecorder keeps the audit trail in memory. Dry runs and tests use it
// in place of the database-backed recorder.
type MemoryRecorder struct {
	mu        sync.Mutex
	processed map[processedKey]int
	runs      []RunRecord
}

type processedKey struct {
	path     string
	checksum string
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		processed: make(map[processedKey]int),
	}
}

// AlreadyProcessed implements Recorder.
func (r *MemoryRecorder) AlreadyProcessed(_ context.Context, path, checksum string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.processed[processedKey{path: path, checksum: checksum}]

	return ok, nil
}

// MarkProcessed implements Recorder.
func (r *MemoryRecorder) MarkProcessed(
	_ context.Context,
	path, checksum string,
	rows int,
	_ warehouse.BatchRun,
) error {

	r.mu.Lock()
	defer r.mu.Unlock()

	r.processed[processedKey{path: path, checksum: checksum}] = rows

	return nil
}

// RecordRun implements Recorder.
func (r *MemoryRecorder) RecordRun(_ context.Context, record RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs = append(r.runs, record)

	return nil
}

// Runs returns a copy of the recorded run log.
func (r *MemoryRecorder) Runs() []RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	runs := make([]RunRecord, len(r.runs))
	copy(runs, r.runs)

	return runs
}

// ProcessedCount returns how many path/checksum pairs are marked.
func (r *MemoryRecorder) ProcessedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.processed)
}

var _ Recorder = (*MemoryRecorder)(nil)
