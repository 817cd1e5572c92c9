package warehouse

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// EntityRecord is the state of one reference entity as observed in one
// extraction batch: a natural key plus a flat map of attributes in their
// canonical string form. Typed source rows are converted to this shape
// before they enter the snapshot engine.
type EntityRecord struct {
	NaturalKey NaturalKeyString
	Attributes map[AttributeNameString]AttributeValueString
}

// EntityBatch is one extraction's worth of entity records.
type EntityBatch = []EntityRecord

// BuildEntityRecord validates the natural key and returns the record.
// Attribute completeness is validated later against the tracked attribute
// set, because only the snapshot engine knows which attributes it tracks.
func BuildEntityRecord(
	naturalKey NaturalKeyString,
	attributes map[AttributeNameString]AttributeValueString,
) (EntityRecord, error) {

	if strings.TrimSpace(naturalKey) == "" {
		return EntityRecord{}, errors.Join(ErrSchemaViolation, errors.New("natural key is empty"))
	}

	if attributes == nil {
		attributes = map[AttributeNameString]AttributeValueString{}
	}

	return EntityRecord{NaturalKey: naturalKey, Attributes: attributes}, nil
}

// Attribute returns the named attribute value and whether it is present.
func (r EntityRecord) Attribute(name AttributeNameString) (AttributeValueString, bool) {
	value, ok := r.Attributes[name]

	return value, ok
}

// FactRecord is one immutable business event destined for an append-only
// fact stream. Key is required for key-exclusion streams and identifies the
// row within its stream; EventTime is required for watermark streams and
// carries the source-side event timestamp.
type FactRecord struct {
	Key        FactKeyString
	EventTime  time.Time
	Attributes map[AttributeNameString]AttributeValueString
}

// FactBatch is one extraction's worth of fact records.
type FactBatch = []FactRecord

// BuildFactRecord returns a fact record with normalized attributes.
// Key and event time requirements depend on the loading strategy and are
// validated by the loader.
func BuildFactRecord(
	key FactKeyString,
	eventTime time.Time,
	attributes map[AttributeNameString]AttributeValueString,
) FactRecord {

	if attributes == nil {
		attributes = map[AttributeNameString]AttributeValueString{}
	}

	return FactRecord{Key: key, EventTime: eventTime, Attributes: attributes}
}

// HasKey reports whether the record carries a usable fact key.
func (f FactRecord) HasKey() bool {
	return strings.TrimSpace(f.Key) != ""
}

// CloneAttributes returns a detached copy of the attribute map, so stores
// can hand out rows without sharing mutable state with their callers.
func CloneAttributes(
	attributes map[AttributeNameString]AttributeValueString,
) map[AttributeNameString]AttributeValueString {

	if attributes == nil {
		return nil
	}

	clone := make(map[AttributeNameString]AttributeValueString, len(attributes))
	for name, value := range attributes {
		clone[name] = value
	}

	return clone
}

// FormatKeyParts joins key components into one fact key, for sources whose
// row identity spans multiple columns (e.g. order ID plus line number).
func FormatKeyParts(parts ...string) FactKeyString {
	return strings.Join(parts, "|")
}

// describeRecord is used in error messages.
func describeRecord(naturalKey NaturalKeyString) string {
	return fmt.Sprintf("natural key %q", naturalKey)
}
