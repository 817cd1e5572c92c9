// Package factload implements idempotent incremental loading for append-only
// fact streams. Facts are immutable business events; the loader's job is to
// append each event exactly once no matter how often a batch is re-delivered
// or a run is re-executed.
//
// Two detection strategies are supported:
//
//   - KeyExclusion: rows whose fact key is already stored are skipped. This
//     is the general-purpose strategy and catches re-deliveries regardless
//     of ordering.
//   - Watermark: rows at or below the stored maximum event time are dropped
//     and counted. This is cheaper for high-volume streams but only correct
//     when the source emits strictly increasing event timestamps; dropped
//     rows are reported as DroppedStale, never silently lost from the
//     report.
//
// Like the snapshot engine, the loader is split into a pure decision step
// (DecideKeyExclusion, DecideWatermark) and a FactStore that appends the
// surviving rows in one atomic step.
package factload
