package snapshot

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

const (
	logMsgLoadOpenVersionsFailed = "failed to load open versions"
	logMsgDecideFailed           = "failed to decide change set"
	logMsgApplyFailed            = "failed to apply change set"
	logMsgRunCompleted           = "snapshot run completed"
	logMsgNothingToApply         = "change set empty, nothing to write"
	logMsgOperation              = "snapshot operation: "
	logAttrError                 = "error"
	logAttrStream                = "stream"
	logAttrRunID                 = "run_id"
	logAttrRecords               = "records"
	logAttrOpened                = "opened"
	logAttrClosed                = "closed"
	logAttrUnchanged             = "unchanged"
	logAttrDuplicates            = "duplicates_resolved"
	logAttrDurationMS            = "duration_ms"
)

// RunReport summarizes what one snapshot run did, for logs and audit trails.
type RunReport struct {
	Stream             warehouse.StreamNameString
	RunID              uuid.UUID
	RunAt              time.Time
	RecordsIn          int
	Opened             int
	Closed             int
	Unchanged          int
	DuplicatesResolved int
	Duration           time.Duration
}

// Wrote reports whether the run produced any writes.
func (r RunReport) Wrote() bool {
	return r.Opened > 0 || r.Closed > 0
}

// Engine runs change-tracking snapshot loads for one dimension stream
// against a SnapshotStore. It is configured once and safe for use by a
// single loading process; concurrent runs against the same stream are
// detected by the store's guarded writes, not prevented here.
type Engine struct {
	store      SnapshotStore
	streamName warehouse.StreamNameString
	tracked    warehouse.TrackedAttributes
	policy     DuplicatePolicy
	logger     warehouse.Logger
	metrics    warehouse.MetricsCollector
}

// Option defines a functional option for configuring an Engine.
type Option func(*Engine) error

// WithDuplicatePolicy sets how the engine treats repeated natural keys
// within one batch. The default is RejectDuplicates.
func WithDuplicatePolicy(policy DuplicatePolicy) Option {
	return func(e *Engine) error {
		e.policy = policy
		return nil
	}
}

// WithLogger sets the logger for the Engine.
//
// Debug level: empty change sets (development use)
// Info level: run reports with counts and durations (production-safe)
// Error level: failures that abort a run.
func WithLogger(logger warehouse.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Engine.
func WithMetrics(metrics warehouse.MetricsCollector) Option {
	return func(e *Engine) error {
		e.metrics = metrics
		return nil
	}
}

// NewEngine creates an Engine for one dimension stream. The tracked
// attribute set drives change detection and must be valid.
func NewEngine(
	store SnapshotStore,
	streamName warehouse.StreamNameString,
	tracked warehouse.TrackedAttributes,
	options ...Option,
) (Engine, error) {

	if store == nil {
		return Engine{}, errors.New("snapshot store must not be nil")
	}

	validated, trackedErr := warehouse.BuildTrackedAttributes(tracked...)
	if trackedErr != nil {
		return Engine{}, trackedErr
	}

	engine := Engine{
		store:      store,
		streamName: streamName,
		tracked:    validated,
		policy:     RejectDuplicates,
	}

	for _, option := range options {
		if err := option(&engine); err != nil {
			return Engine{}, err
		}
	}

	return engine, nil
}

// Run executes one snapshot load: it reads the open versions for the keys in
// the batch, decides the ChangeSet, and applies it atomically. A batch that
// matches the stored state produces zero writes, so re-running after a crash
// or by accident is safe.
//
// On any schema violation, duplicate rejection, or invariant violation the
// run fails before or instead of writing; nothing is repaired silently.
func (e Engine) Run(ctx context.Context, run warehouse.BatchRun, batch warehouse.EntityBatch) (RunReport, error) {
	var empty RunReport
	start := time.Now()

	open, loadErr := e.store.OpenVersions(ctx, uniqueNaturalKeys(batch))
	if loadErr != nil {
		e.logError(logMsgLoadOpenVersionsFailed, loadErr)
		return empty, loadErr
	}

	changes, decideErr := Decide(batch, open, e.tracked, e.policy, run.At)
	if decideErr != nil {
		e.logError(logMsgDecideFailed, decideErr)
		return empty, decideErr
	}

	if changes.IsEmpty() {
		if e.logger != nil {
			e.logger.Debug(logMsgNothingToApply, logAttrStream, e.streamName, logAttrRunID, run.ID.String())
		}
	} else {
		if applyErr := e.store.Apply(ctx, run, changes); applyErr != nil {
			e.logError(logMsgApplyFailed, applyErr)
			return empty, applyErr
		}
	}

	report := RunReport{
		Stream:             e.streamName,
		RunID:              run.ID,
		RunAt:              run.At,
		RecordsIn:          len(batch),
		Opened:             len(changes.Opens),
		Closed:             len(changes.Closes),
		Unchanged:          changes.Unchanged,
		DuplicatesResolved: changes.DuplicatesResolved,
		Duration:           time.Since(start),
	}

	e.logOperation(
		logMsgRunCompleted,
		logAttrStream, report.Stream,
		logAttrRunID, report.RunID.String(),
		logAttrRecords, report.RecordsIn,
		logAttrOpened, report.Opened,
		logAttrClosed, report.Closed,
		logAttrUnchanged, report.Unchanged,
		logAttrDuplicates, report.DuplicatesResolved,
		logAttrDurationMS, durationToMilliseconds(report.Duration),
	)
	e.recordMetrics(report)

	return report, nil
}

// StreamName returns the dimension stream this engine loads.
func (e Engine) StreamName() warehouse.StreamNameString {
	return e.streamName
}

func (e Engine) logError(msg string, err error) {
	if e.logger != nil {
		e.logger.Error(msg, logAttrStream, e.streamName, logAttrError, err.Error())
	}
}

// logOperation logs operational information at info level if the logger is configured.
func (e Engine) logOperation(action string, args ...any) {
	if e.logger != nil {
		e.logger.Info(logMsgOperation+action, args...)
	}
}

func (e Engine) recordMetrics(report RunReport) {
	if e.metrics == nil {
		return
	}

	labels := map[string]string{warehouse.LabelStream: e.streamName}

	e.metrics.RecordDuration(warehouse.MetricSnapshotRunDuration, report.Duration, labels)
	e.metrics.RecordValue(warehouse.MetricVersionsOpened, float64(report.Opened), labels)
	e.metrics.RecordValue(warehouse.MetricVersionsClosed, float64(report.Closed), labels)
	e.metrics.RecordValue(warehouse.MetricRecordsUnchanged, float64(report.Unchanged), labels)

	if report.DuplicatesResolved > 0 {
		e.metrics.RecordValue(warehouse.MetricDuplicatesResolved, float64(report.DuplicatesResolved), labels)
	}
}

func uniqueNaturalKeys(batch warehouse.EntityBatch) []warehouse.NaturalKeyString {
	keys := make([]warehouse.NaturalKeyString, 0, len(batch))
	seen := make(map[warehouse.NaturalKeyString]struct{}, len(batch))

	for _, record := range batch {
		if _, dup := seen[record.NaturalKey]; dup {
			continue
		}

		seen[record.NaturalKey] = struct{}{}
		keys = append(keys, record.NaturalKey)
	}

	return keys
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
