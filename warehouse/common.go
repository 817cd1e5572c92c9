package warehouse

import (
	"errors"
	"time"
)

// Type aliases used in this package and by the store and engine packages,
// to improve readability and help to avoid mixing up parameters.
type (
	// AsOfTime is a point-in-time used for history lookups.
	AsOfTime = time.Time

	// NaturalKeyString is a business identifier for a reference entity, e.g. a SKU.
	NaturalKeyString = string

	// FingerprintString is a hex-encoded content hash over tracked attributes.
	FingerprintString = string

	// AttributeNameString is the name of one entity or fact attribute.
	AttributeNameString = string

	// AttributeValueString is the canonical string form of one attribute value.
	AttributeValueString = string

	// FactKeyString uniquely identifies one fact row within its stream.
	FactKeyString = string

	// StreamNameString names one configured dimension or fact stream.
	StreamNameString = string
)

// ErrSchemaViolation occurs when an incoming record does not carry the
// expected shape, for example a missing natural key or a missing tracked
// attribute. A run that detects this must abort before any write.
var ErrSchemaViolation = errors.New("record violates the expected schema")

// ErrDuplicateKeyInBatch occurs when one extraction contains two records
// for the same natural key and the duplicate policy rejects duplicates.
var ErrDuplicateKeyInBatch = errors.New("duplicate natural key within one batch")

// ErrDuplicateFactInBatch occurs when one extraction contains two fact rows
// with the same fact key.
var ErrDuplicateFactInBatch = errors.New("duplicate fact key within one batch")

// ErrInvariantViolation occurs when a write would corrupt version history,
// for example a second open version for the same natural key. The affected
// run fails and nothing is repaired silently.
var ErrInvariantViolation = errors.New("write would violate version history invariants")

// ErrConcurrentRunConflict occurs when a concurrent run has modified the
// rows this run was about to change, detected via guarded writes.
var ErrConcurrentRunConflict = errors.New("a concurrent run modified the same versions")

// ErrNilDatabaseConnection occurs when a store constructor receives a nil
// database connection.
var ErrNilDatabaseConnection = errors.New("database connection must not be nil")

// ErrEmptyTableNameSupplied occurs when an option supplies an empty table name.
var ErrEmptyTableNameSupplied = errors.New("table name must not be empty")

// ErrBuildingQueryFailed occurs when the SQL builder fails, which should
// never happen with valid table and column names.
var ErrBuildingQueryFailed = errors.New("building the query failed")

// ErrQueryingStoreFailed occurs when executing a read query fails.
var ErrQueryingStoreFailed = errors.New("querying the store failed")

// ErrScanningRowFailed occurs when scanning a result row fails.
var ErrScanningRowFailed = errors.New("scanning a database row failed")

// ErrApplyingChangeSetFailed occurs when the transactional write of a
// snapshot change set fails for technical reasons.
var ErrApplyingChangeSetFailed = errors.New("applying the change set failed")

// ErrAppendingFactsFailed occurs when the transactional append of fact rows
// fails for technical reasons.
var ErrAppendingFactsFailed = errors.New("appending fact rows failed")

// ErrGettingRowsAffectedFailed occurs when the driver cannot report how many
// rows a guarded write affected.
var ErrGettingRowsAffectedFailed = errors.New("getting rows affected failed")
