package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

// DuplicatePolicy controls what happens when one batch carries two records
// for the same natural key.
type DuplicatePolicy int

const (
	// RejectDuplicates fails the run before any write. This is the default:
	// a healthy extraction delivers at most one state per entity.
	RejectDuplicates DuplicatePolicy = iota

	// LastSeenWins resolves duplicates to the record seen last in batch
	// order and counts the resolution in the run report.
	LastSeenWins
)

func (p DuplicatePolicy) String() string {
	switch p {
	case LastSeenWins:
		return "last_seen_wins"
	default:
		return "reject"
	}
}

// ParseDuplicatePolicy maps a configuration string to a DuplicatePolicy.
func ParseDuplicatePolicy(name string) (DuplicatePolicy, error) {
	switch name {
	case "reject":
		return RejectDuplicates, nil
	case "last_seen_wins":
		return LastSeenWins, nil
	default:
		return RejectDuplicates, fmt.Errorf("unknown duplicate policy %q", name)
	}
}

// VersionClose instructs the store to close the open version of one entity.
// ExpectedFingerprint is the fingerprint the open version must still carry;
// stores use it as a guard so that a concurrent run cannot be overwritten
// unnoticed.
type VersionClose struct {
	NaturalKey          warehouse.NaturalKeyString
	ExpectedFingerprint warehouse.FingerprintString
	CloseAt             time.Time
}

// ChangeSet is the complete outcome of comparing one batch against the open
// versions: which versions to close, which to open, and the counts of
// records that required no write. It is produced by Decide and applied by a
// SnapshotStore in one atomic step.
//
// Every successor version appears in both Closes and Opens, paired by
// natural key and sharing the same timestamp, which keeps history intervals
// contiguous.
type ChangeSet struct {
	Closes             []VersionClose
	Opens              []warehouse.EntityVersion
	Unchanged          int
	DuplicatesResolved int
}

// IsEmpty reports whether applying this ChangeSet would write anything.
func (c ChangeSet) IsEmpty() bool {
	return len(c.Closes) == 0 && len(c.Opens) == 0
}

// Decide compares one extraction batch against the open versions and
// produces the ChangeSet for this run. It is a pure function: no I/O, no
// clock access, and it fails without partial results.
//
// For each record, after duplicate resolution:
//   - no open version exists: a first version is opened at asOf
//   - the open version carries the same fingerprint: nothing to write
//   - the fingerprint differs: the open version is closed at asOf and a
//     successor version is opened at asOf
//
// Keys that have an open version but are absent from the batch are left
// untouched: disappearance from an extraction is not a deletion.
func Decide(
	batch warehouse.EntityBatch,
	open map[warehouse.NaturalKeyString]warehouse.EntityVersion,
	tracked warehouse.TrackedAttributes,
	policy DuplicatePolicy,
	asOf time.Time,
) (ChangeSet, error) {

	var empty ChangeSet

	if len(tracked) == 0 {
		return empty, errors.Join(warehouse.ErrSchemaViolation, errors.New("tracked attribute set is empty"))
	}

	ordered, resolved, duplicates, dedupeErr := resolveDuplicates(batch, policy)
	if dedupeErr != nil {
		return empty, dedupeErr
	}

	changes := ChangeSet{DuplicatesResolved: duplicates}
	asOf = asOf.UTC()

	for _, naturalKey := range ordered {
		record := resolved[naturalKey]

		fingerprint, fingerprintErr := warehouse.Fingerprint(record, tracked)
		if fingerprintErr != nil {
			return empty, fingerprintErr
		}

		openVersion, hasOpen := open[naturalKey]

		switch {
		case !hasOpen:
			changes.Opens = append(changes.Opens,
				warehouse.BuildOpenEntityVersion(naturalKey, record.Attributes, fingerprint, asOf))

		case !openVersion.IsOpen():
			return empty, errors.Join(
				warehouse.ErrInvariantViolation,
				fmt.Errorf("store returned a closed version as open for natural key %q", naturalKey),
			)

		case openVersion.Fingerprint == fingerprint:
			changes.Unchanged++

		default:
			if !asOf.After(openVersion.EffectiveStart) {
				return empty, errors.Join(
					warehouse.ErrInvariantViolation,
					fmt.Errorf("natural key %q changed but run timestamp %s does not advance past version start %s",
						naturalKey, asOf.Format(time.RFC3339Nano), openVersion.EffectiveStart.Format(time.RFC3339Nano)),
				)
			}

			changes.Closes = append(changes.Closes, VersionClose{
				NaturalKey:          naturalKey,
				ExpectedFingerprint: openVersion.Fingerprint,
				CloseAt:             asOf,
			})
			changes.Opens = append(changes.Opens,
				warehouse.BuildOpenEntityVersion(naturalKey, record.Attributes, fingerprint, asOf))
		}
	}

	return changes, nil
}

// resolveDuplicates validates natural keys and collapses the batch to one
// record per key, preserving first-seen order for deterministic output.
func resolveDuplicates(batch warehouse.EntityBatch, policy DuplicatePolicy) (
	[]warehouse.NaturalKeyString,
	map[warehouse.NaturalKeyString]warehouse.EntityRecord,
	int,
	error,
) {

	ordered := make([]warehouse.NaturalKeyString, 0, len(batch))
	resolved := make(map[warehouse.NaturalKeyString]warehouse.EntityRecord, len(batch))
	duplicates := 0

	for _, record := range batch {
		validated, buildErr := warehouse.BuildEntityRecord(record.NaturalKey, record.Attributes)
		if buildErr != nil {
			return nil, nil, 0, buildErr
		}

		if _, seen := resolved[validated.NaturalKey]; seen {
			if policy == RejectDuplicates {
				return nil, nil, 0, errors.Join(
					warehouse.ErrDuplicateKeyInBatch,
					fmt.Errorf("natural key %q appears more than once", validated.NaturalKey),
				)
			}

			duplicates++
			resolved[validated.NaturalKey] = validated

			continue
		}

		ordered = append(ordered, validated.NaturalKey)
		resolved[validated.NaturalKey] = validated
	}

	return ordered, resolved, duplicates, nil
}
