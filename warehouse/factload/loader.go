package factload

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

const (
	logMsgLoadExistingKeysFailed = "failed to load existing fact keys"
	logMsgLoadWatermarkFailed    = "failed to load watermark"
	logMsgDecideFailed           = "failed to decide fact delta"
	logMsgAppendFailed           = "failed to append fact rows"
	logMsgLoadCompleted          = "fact load completed"
	logMsgNothingToAppend        = "delta empty, nothing to append"
	logMsgOperation              = "fact load operation: "
	logAttrError                 = "error"
	logAttrStream                = "stream"
	logAttrStrategy              = "strategy"
	logAttrRunID                 = "run_id"
	logAttrRows                  = "rows"
	logAttrAppended              = "appended"
	logAttrAlreadyLoaded         = "already_loaded"
	logAttrDroppedStale          = "dropped_stale"
	logAttrDurationMS            = "duration_ms"
)

// LoadReport summarizes what one fact load did, for logs and audit trails.
// DroppedStale makes watermark losses visible: rows dropped because their
// event time did not advance past the stored watermark are an observable
// outcome, not an error.
type LoadReport struct {
	Stream        warehouse.StreamNameString
	Strategy      Strategy
	RunID         uuid.UUID
	RunAt         time.Time
	RowsIn        int
	Appended      int
	AlreadyLoaded int
	DroppedStale  int
	Duration      time.Duration
}

// Loader runs idempotent incremental loads for one fact stream against a
// FactStore, using the configured Strategy to skip already-loaded rows.
type Loader struct {
	store      FactStore
	streamName warehouse.StreamNameString
	strategy   Strategy
	logger     warehouse.Logger
	metrics    warehouse.MetricsCollector
}

// Option defines a functional option for configuring a Loader.
type Option func(*Loader) error

// WithLogger sets the logger for the Loader.
func WithLogger(logger warehouse.Logger) Option {
	return func(l *Loader) error {
		l.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Loader.
func WithMetrics(metrics warehouse.MetricsCollector) Option {
	return func(l *Loader) error {
		l.metrics = metrics
		return nil
	}
}

// NewLoader creates a Loader for one fact stream.
func NewLoader(
	store FactStore,
	streamName warehouse.StreamNameString,
	strategy Strategy,
	options ...Option,
) (Loader, error) {

	if store == nil {
		return Loader{}, errors.New("fact store must not be nil")
	}

	loader := Loader{
		store:      store,
		streamName: streamName,
		strategy:   strategy,
	}

	for _, option := range options {
		if err := option(&loader); err != nil {
			return Loader{}, err
		}
	}

	return loader, nil
}

// Run executes one fact load: it determines which rows of the batch are not
// yet stored and appends exactly those in one atomic step. Re-running the
// same batch appends nothing.
func (l Loader) Run(ctx context.Context, run warehouse.BatchRun, batch warehouse.FactBatch) (LoadReport, error) {
	var empty LoadReport
	start := time.Now()

	delta, alreadyLoaded, droppedStale, decideErr := l.decideDelta(ctx, batch)
	if decideErr != nil {
		return empty, decideErr
	}

	if len(delta) == 0 {
		if l.logger != nil {
			l.logger.Debug(logMsgNothingToAppend, logAttrStream, l.streamName, logAttrRunID, run.ID.String())
		}
	} else {
		if appendErr := l.store.Append(ctx, run, delta); appendErr != nil {
			l.logError(logMsgAppendFailed, appendErr)
			return empty, appendErr
		}
	}

	report := LoadReport{
		Stream:        l.streamName,
		Strategy:      l.strategy,
		RunID:         run.ID,
		RunAt:         run.At,
		RowsIn:        len(batch),
		Appended:      len(delta),
		AlreadyLoaded: alreadyLoaded,
		DroppedStale:  droppedStale,
		Duration:      time.Since(start),
	}

	l.logOperation(
		logMsgLoadCompleted,
		logAttrStream, report.Stream,
		logAttrStrategy, report.Strategy.String(),
		logAttrRunID, report.RunID.String(),
		logAttrRows, report.RowsIn,
		logAttrAppended, report.Appended,
		logAttrAlreadyLoaded, report.AlreadyLoaded,
		logAttrDroppedStale, report.DroppedStale,
		logAttrDurationMS, durationToMilliseconds(report.Duration),
	)
	l.recordMetrics(report)

	return report, nil
}

// StreamName returns the fact stream this loader fills.
func (l Loader) StreamName() warehouse.StreamNameString {
	return l.streamName
}

// decideDelta reads the store state the strategy needs and runs the pure
// decision for it.
func (l Loader) decideDelta(ctx context.Context, batch warehouse.FactBatch) (
	delta []warehouse.FactRecord,
	alreadyLoaded int,
	droppedStale int,
	err error,
) {

	switch l.strategy {
	case Watermark:
		watermark, hasWatermark, loadErr := l.store.MaxEventTime(ctx)
		if loadErr != nil {
			l.logError(logMsgLoadWatermarkFailed, loadErr)
			return nil, 0, 0, loadErr
		}

		delta, droppedStale, err = DecideWatermark(batch, watermark, hasWatermark)

	default:
		existing, loadErr := l.store.ExistingKeys(ctx, factKeys(batch))
		if loadErr != nil {
			l.logError(logMsgLoadExistingKeysFailed, loadErr)
			return nil, 0, 0, loadErr
		}

		delta, alreadyLoaded, err = DecideKeyExclusion(batch, existing)
	}

	if err != nil {
		l.logError(logMsgDecideFailed, err)
		return nil, 0, 0, err
	}

	return delta, alreadyLoaded, droppedStale, nil
}

func (l Loader) logError(msg string, err error) {
	if l.logger != nil {
		l.logger.Error(msg, logAttrStream, l.streamName, logAttrError, err.Error())
	}
}

// logOperation logs operational information at info level if the logger is configured.
func (l Loader) logOperation(action string, args ...any) {
	if l.logger != nil {
		l.logger.Info(logMsgOperation+action, args...)
	}
}

func (l Loader) recordMetrics(report LoadReport) {
	if l.metrics == nil {
		return
	}

	labels := map[string]string{
		warehouse.LabelStream:   l.streamName,
		warehouse.LabelStrategy: l.strategy.String(),
	}

	l.metrics.RecordDuration(warehouse.MetricFactLoadDuration, report.Duration, labels)
	l.metrics.RecordValue(warehouse.MetricFactsAppended, float64(report.Appended), labels)
	l.metrics.RecordValue(warehouse.MetricFactsAlreadyLoaded, float64(report.AlreadyLoaded), labels)

	if report.DroppedStale > 0 {
		l.metrics.RecordValue(warehouse.MetricStaleWatermarkDrops, float64(report.DroppedStale), labels)
	}
}

func factKeys(batch warehouse.FactBatch) []warehouse.FactKeyString {
	keys := make([]warehouse.FactKeyString, 0, len(batch))
	for _, row := range batch {
		keys = append(keys, row.Key)
	}

	return keys
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
