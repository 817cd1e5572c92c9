package memoryengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

type storedFact struct {
	runID  uuid.UUID
	record warehouse.FactRecord
}

// FactStore keeps one fact stream's rows in memory, in append order.
// The zero value is not usable; create instances with NewFactStore.
type FactStore struct {
	mu        sync.RWMutex
	rows      []storedFact
	keys      map[warehouse.FactKeyString]struct{}
	watermark time.Time
	hasRows   bool
}

// NewFactStore creates an empty in-memory fact store.
func NewFactStore() *FactStore {
	return &FactStore{
		keys: make(map[warehouse.FactKeyString]struct{}),
	}
}

// ExistingKeys reports which of the given fact keys are already stored.
func (s *FactStore) ExistingKeys(_ context.Context, keys []warehouse.FactKeyString) (
	map[warehouse.FactKeyString]struct{},
	error,
) {

	s.mu.RLock()
	defer s.mu.RUnlock()

	existing := make(map[warehouse.FactKeyString]struct{}, len(keys))

	for _, key := range keys {
		if _, ok := s.keys[key]; ok {
			existing[key] = struct{}{}
		}
	}

	return existing, nil
}

// MaxEventTime returns the maximum stored event time; ok is false while the
// stream holds no rows.
func (s *FactStore) MaxEventTime(_ context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.watermark, s.hasRows, nil
}

// Append writes one run's rows. The whole batch is validated against the
// stored keys first, so either every row lands or none does. A keyed row
// whose key is already stored means the loader's delta was computed against
// stale state, most likely a concurrent run.
func (s *FactStore) Append(_ context.Context, run warehouse.BatchRun, rows []warehouse.FactRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		if !row.HasKey() {
			continue
		}

		if _, dup := s.keys[row.Key]; dup {
			return errors.Join(
				warehouse.ErrConcurrentRunConflict,
				fmt.Errorf("fact key %q is already stored", row.Key),
			)
		}
	}

	for _, row := range rows {
		record := warehouse.BuildFactRecord(row.Key, row.EventTime, warehouse.CloneAttributes(row.Attributes))
		s.rows = append(s.rows, storedFact{runID: run.ID, record: record})

		if row.HasKey() {
			s.keys[row.Key] = struct{}{}
		}

		if !s.hasRows || row.EventTime.After(s.watermark) {
			s.watermark = row.EventTime
			s.hasRows = true
		}
	}

	return nil
}

// Rows returns a detached copy of all stored rows in append order.
func (s *FactStore) Rows() []warehouse.FactRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]warehouse.FactRecord, 0, len(s.rows))
	for _, stored := range s.rows {
		rows = append(rows, warehouse.BuildFactRecord(
			stored.record.Key,
			stored.record.EventTime,
			warehouse.CloneAttributes(stored.record.Attributes),
		))
	}

	return rows
}

// Count returns the number of stored rows.
func (s *FactStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.rows)
}
