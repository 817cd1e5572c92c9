// Package snapshot implements change-tracking snapshot loading for reference
// entities (slowly changing dimensions): each run compares one extraction
// batch against the currently open versions, closes the versions whose
// tracked attributes changed, and opens new ones, so that every entity's
// attribute history is preserved as contiguous validity intervals.
//
// The package separates the pure comparison logic from storage concerns:
//
//   - Decide compares a batch against the open versions and produces a
//     ChangeSet. It has no side effects and is trivially testable.
//   - Engine orchestrates a run: it loads the open versions from a
//     SnapshotStore, calls Decide, and applies the resulting ChangeSet in
//     one atomic step.
//   - Projector serves read models over the stored history.
//
// An unchanged batch produces an empty ChangeSet and therefore zero writes,
// which makes re-running a failed or repeated batch safe without any
// run-level bookkeeping.
package snapshot
