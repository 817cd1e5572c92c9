// Package warehouse provides the core abstractions and types for batch
// warehouse loading with verifiable dimension history.
//
// This package defines the fundamental scalar types used across the store
// implementations and loading engines: entity records and their versioned
// history rows, fact records, content fingerprints, surrogate keys, batch
// run identity, and the common error definitions.
//
// The loading model is strictly batch-oriented: one run carries one logical
// timestamp, and every write a run produces is applied as a single atomic
// unit. Re-executing a run with identical input produces zero writes, which
// substitutes for transactional rollback after failed or aborted runs.
//
// Key types:
//   - EntityRecord: the per-batch state of one reference entity
//   - EntityVersion: one row of an entity's validity-interval history
//   - FactRecord: one append-only fact/event row
//   - TrackedAttributes: the ordered attribute subset that drives change
//     detection
//   - BatchRun: the identity and logical timestamp of one batch execution
//
// Common usage pattern:
//
//	tracked := warehouse.TrackedAttributes{"name", "category", "current_price"}
//
//	fingerprint, err := warehouse.Fingerprint(record, tracked)
//	if err != nil {
//		// a tracked attribute was missing: schema drift, abort the run
//	}
//
//	run := warehouse.BuildBatchRun(asOf)
//	version := warehouse.BuildOpenEntityVersion(record.NaturalKey, record.Attributes, fingerprint, run.At)
package warehouse
