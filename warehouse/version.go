package warehouse

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityVersion is one row of an entity's history: the attribute state that
// was valid from EffectiveStart until the version was closed. A version is
// either open (current) or closed with an explicit end; the two states are
// kept in unexported fields so that an "open version with an end timestamp"
// cannot be expressed at all.
type EntityVersion struct {
	SurrogateKey   uuid.UUID
	NaturalKey     NaturalKeyString
	Attributes     map[AttributeNameString]AttributeValueString
	Fingerprint    FingerprintString
	EffectiveStart time.Time

	effectiveEnd time.Time
	closed       bool
}

// BuildOpenEntityVersion returns the open (current) version of an entity as
// of the given start. The surrogate key is derived deterministically from
// the natural key and the start, so replays reproduce identical rows.
func BuildOpenEntityVersion(
	naturalKey NaturalKeyString,
	attributes map[AttributeNameString]AttributeValueString,
	fingerprint FingerprintString,
	effectiveStart time.Time,
) EntityVersion {

	start := effectiveStart.UTC()

	return EntityVersion{
		SurrogateKey:   VersionSurrogateKey(naturalKey, start),
		NaturalKey:     naturalKey,
		Attributes:     CloneAttributes(attributes),
		Fingerprint:    fingerprint,
		EffectiveStart: start,
	}
}

// BuildClosedEntityVersion returns a historical version whose validity ended
// at effectiveEnd. It is used when rehydrating history rows from a store.
func BuildClosedEntityVersion(
	naturalKey NaturalKeyString,
	attributes map[AttributeNameString]AttributeValueString,
	fingerprint FingerprintString,
	effectiveStart time.Time,
	effectiveEnd time.Time,
) (EntityVersion, error) {

	version := BuildOpenEntityVersion(naturalKey, attributes, fingerprint, effectiveStart)

	return version.CloseAt(effectiveEnd)
}

// CloseAt returns a closed copy of an open version, ending its validity at
// the given timestamp. Closing an already closed version or closing before
// the version started corrupts history and is refused.
func (v EntityVersion) CloseAt(effectiveEnd time.Time) (EntityVersion, error) {
	if v.closed {
		return EntityVersion{}, errors.Join(
			ErrInvariantViolation,
			fmt.Errorf("version for %s is already closed", describeRecord(v.NaturalKey)),
		)
	}

	end := effectiveEnd.UTC()
	if end.Before(v.EffectiveStart) {
		return EntityVersion{}, errors.Join(
			ErrInvariantViolation,
			fmt.Errorf("close of %s at %s precedes its start %s",
				describeRecord(v.NaturalKey), end.Format(time.RFC3339Nano), v.EffectiveStart.Format(time.RFC3339Nano)),
		)
	}

	closed := v
	closed.Attributes = CloneAttributes(v.Attributes)
	closed.effectiveEnd = end
	closed.closed = true

	return closed, nil
}

// IsOpen reports whether this is the current version of its entity.
func (v EntityVersion) IsOpen() bool {
	return !v.closed
}

// EffectiveEnd returns the end of the validity interval and whether the
// version is closed. Open versions have no end.
func (v EntityVersion) EffectiveEnd() (time.Time, bool) {
	if !v.closed {
		return time.Time{}, false
	}

	return v.effectiveEnd, true
}

// Clone returns a deep copy, detaching the attribute map.
func (v EntityVersion) Clone() EntityVersion {
	clone := v
	clone.Attributes = CloneAttributes(v.Attributes)

	return clone
}
