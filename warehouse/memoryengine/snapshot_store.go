package memoryengine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse/snapshot"
)

// SnapshotStore keeps one dimension stream's version history in memory.
// The zero value is not usable; create instances with NewSnapshotStore.
type SnapshotStore struct {
	mu        sync.RWMutex
	histories map[warehouse.NaturalKeyString][]warehouse.EntityVersion
}

// NewSnapshotStore creates an empty in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		histories: make(map[warehouse.NaturalKeyString][]warehouse.EntityVersion),
	}
}

// OpenVersions returns the open version per requested natural key.
func (s *SnapshotStore) OpenVersions(_ context.Context, naturalKeys []warehouse.NaturalKeyString) (
	map[warehouse.NaturalKeyString]warehouse.EntityVersion,
	error,
) {

	s.mu.RLock()
	defer s.mu.RUnlock()

	open := make(map[warehouse.NaturalKeyString]warehouse.EntityVersion, len(naturalKeys))

	for _, naturalKey := range naturalKeys {
		history := s.histories[naturalKey]
		if len(history) == 0 {
			continue
		}

		last := history[len(history)-1]
		if last.IsOpen() {
			open[naturalKey] = last.Clone()
		}
	}

	return open, nil
}

// AllVersions returns the full history of one entity, ordered by effective
// start ascending.
func (s *SnapshotStore) AllVersions(_ context.Context, naturalKey warehouse.NaturalKeyString) (
	[]warehouse.EntityVersion,
	error,
) {

	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.histories[naturalKey]
	versions := make([]warehouse.EntityVersion, 0, len(history))

	for _, version := range history {
		versions = append(versions, version.Clone())
	}

	return versions, nil
}

// CurrentVersions returns all open versions, ordered by natural key.
func (s *SnapshotStore) CurrentVersions(_ context.Context) ([]warehouse.EntityVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	naturalKeys := make([]warehouse.NaturalKeyString, 0, len(s.histories))
	for naturalKey := range s.histories {
		naturalKeys = append(naturalKeys, naturalKey)
	}
	sort.Strings(naturalKeys)

	current := make([]warehouse.EntityVersion, 0, len(naturalKeys))

	for _, naturalKey := range naturalKeys {
		history := s.histories[naturalKey]
		if len(history) == 0 {
			continue
		}

		last := history[len(history)-1]
		if last.IsOpen() {
			current = append(current, last.Clone())
		}
	}

	return current, nil
}

// Apply writes one run's change set. All closes and opens are validated and
// staged against copies first; the store state only changes when every write
// is legal, so a failed Apply leaves no trace.
func (s *SnapshotStore) Apply(_ context.Context, _ warehouse.BatchRun, changes snapshot.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[warehouse.NaturalKeyString][]warehouse.EntityVersion)

	stagedHistory := func(naturalKey warehouse.NaturalKeyString) []warehouse.EntityVersion {
		if history, ok := staged[naturalKey]; ok {
			return history
		}

		history := make([]warehouse.EntityVersion, len(s.histories[naturalKey]))
		copy(history, s.histories[naturalKey])

		return history
	}

	for _, versionClose := range changes.Closes {
		history := stagedHistory(versionClose.NaturalKey)

		if len(history) == 0 || !history[len(history)-1].IsOpen() {
			return errors.Join(
				warehouse.ErrConcurrentRunConflict,
				fmt.Errorf("no open version to close for natural key %q", versionClose.NaturalKey),
			)
		}

		last := history[len(history)-1]
		if last.Fingerprint != versionClose.ExpectedFingerprint {
			return errors.Join(
				warehouse.ErrConcurrentRunConflict,
				fmt.Errorf("open version for natural key %q no longer carries the expected fingerprint", versionClose.NaturalKey),
			)
		}

		closed, closeErr := last.CloseAt(versionClose.CloseAt)
		if closeErr != nil {
			return closeErr
		}

		history[len(history)-1] = closed
		staged[versionClose.NaturalKey] = history
	}

	for _, version := range changes.Opens {
		history := stagedHistory(version.NaturalKey)

		if len(history) > 0 {
			last := history[len(history)-1]

			if last.IsOpen() {
				return errors.Join(
					warehouse.ErrInvariantViolation,
					fmt.Errorf("second open version for natural key %q", version.NaturalKey),
				)
			}

			if end, _ := last.EffectiveEnd(); version.EffectiveStart.Before(end) {
				return errors.Join(
					warehouse.ErrInvariantViolation,
					fmt.Errorf("version for natural key %q would overlap its predecessor", version.NaturalKey),
				)
			}
		}

		staged[version.NaturalKey] = append(history, version.Clone())
	}

	for naturalKey, history := range staged {
		s.histories[naturalKey] = history
	}

	return nil
}

// VersionCount returns the total number of stored versions across all keys.
func (s *SnapshotStore) VersionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, history := range s.histories {
		total += len(history)
	}

	return total
}
