// Package pipeline orchestrates complete warehouse batch runs. A run covers
// the calendar dimension, every configured dimension stream, every configured
// fact stream, and finally the gold view refresh, in that order, all stamped
// with one BatchRun so effective timestamps and run ids line up across
// streams. Every stage is idempotent, which makes re-running a crashed or
// duplicated run safe.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Mj37-com/medallion-warehouse-go/internal/audit"
	"github.com/Mj37-com/medallion-warehouse-go/internal/config"
	"github.com/Mj37-com/medallion-warehouse-go/internal/retail"
	"github.com/Mj37-com/medallion-warehouse-go/internal/staging"
	"github.com/Mj37-com/medallion-warehouse-go/internal/views"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse/factload"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse/snapshot"
)

const (
	calendarStream = "calendar"
	calendarTable  = "dim_date"

	dayToken = "{day}"

	logMsgRunStarted      = "warehouse run started"
	logMsgRunFinished     = "warehouse run finished"
	logMsgCalendarLoaded  = "calendar dimension loaded"
	logMsgDimensionLoaded = "dimension stream loaded"
	logMsgFactLoaded      = "fact stream loaded"
	logMsgFactSkipped     = "fact source already processed, skipped"

	logAttrRunID   = "run_id"
	logAttrDay     = "day"
	logAttrStream  = "stream"
	logAttrPath    = "path"
	logAttrRowsIn  = "rows_in"
	logAttrWritten = "rows_written"
	logAttrSkipped = "rows_skipped"
	logAttrStreams = "streams"
)

// The calendar regenerates the same records every run; tracking full_date
// keeps re-runs write-free.
var calendarTracked = warehouse.TrackedAttributes{"full_date"}

// Option defines a functional option for configuring a Runner.
type Option func(*Runner) error

// WithLogger sets the logger for the Runner and for every engine and loader
// it creates.
func WithLogger(logger warehouse.Logger) Option {
	return func(r *Runner) error {
		r.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for every engine and loader the
// Runner creates.
func WithMetrics(metrics warehouse.MetricsCollector) Option {
	return func(r *Runner) error {
		r.metrics = metrics
		return nil
	}
}

// Runner executes warehouse batch runs against a Provider, following the
// stream definitions in the configuration.
type Runner struct {
	cfg      config.Config
	provider Provider
	logger   warehouse.Logger
	metrics  warehouse.MetricsCollector
}

// NewRunner creates a Runner with optional configuration.
func NewRunner(cfg config.Config, provider Provider, options ...Option) (Runner, error) {
	if provider == nil {
		return Runner{}, errors.New("provider must not be nil")
	}

	runner := Runner{cfg: cfg, provider: provider}

	for _, option := range options {
		if err := option(&runner); err != nil {
			return Runner{}, err
		}
	}

	return runner, nil
}

// StreamResult summarizes one stream within a run. RowsWritten counts
// physical writes: versions opened plus versions closed for dimensions,
// rows appended for facts. Skipped marks a fact source whose file was
// already ingested, so nothing was read at all.
type StreamResult struct {
	Stream      string
	Kind        audit.Kind
	Skipped     bool
	RowsIn      int
	RowsWritten int
	RowsSkipped int
}

// Summary reports one complete run across all streams.
type Summary struct {
	Run     warehouse.BatchRun
	Day     int
	Results []StreamResult
}

// TotalWritten sums the rows written across all streams of the run.
func (s Summary) TotalWritten() int {
	total := 0
	for _, result := range s.Results {
		total += result.RowsWritten
	}

	return total
}

// Run executes one complete batch run for the given source day: calendar
// first, then the dimension streams, then the fact streams, then the gold
// views. Dimensions load before facts so fact rows always join against
// current versions. The run stops at the first failing stream; writes that
// already happened stay, and a re-run is safe because every stage skips what
// is already stored.
func (r Runner) Run(ctx context.Context, day int) (Summary, error) {
	if day < 1 {
		return Summary{}, fmt.Errorf("day must be at least 1, got %d", day)
	}

	run := warehouse.BuildBatchRunNow()
	summary := Summary{Run: run, Day: day}

	r.logInfo(logMsgRunStarted, logAttrRunID, run.ID.String(), logAttrDay, day)

	calendarResult, calendarErr := r.runCalendar(ctx, run)
	if calendarErr != nil {
		return summary, fmt.Errorf("calendar dimension: %w", calendarErr)
	}
	summary.Results = append(summary.Results, calendarResult)

	for _, stream := range r.cfg.Dimensions {
		result, err := r.runDimension(ctx, run, stream, day)
		if err != nil {
			return summary, fmt.Errorf("dimension stream %s: %w", stream.Name, err)
		}
		summary.Results = append(summary.Results, result)
	}

	for _, stream := range r.cfg.Facts {
		result, err := r.runFact(ctx, run, stream, day)
		if err != nil {
			return summary, fmt.Errorf("fact stream %s: %w", stream.Name, err)
		}
		summary.Results = append(summary.Results, result)
	}

	if executor := r.provider.ViewExecutor(); executor != nil {
		if err := views.Refresh(ctx, executor, r.logger); err != nil {
			return summary, err
		}
	}

	r.logInfo(logMsgRunFinished,
		logAttrRunID, run.ID.String(),
		logAttrDay, day,
		logAttrStreams, len(summary.Results),
		logAttrWritten, summary.TotalWritten(),
	)

	return summary, nil
}

// runCalendar regenerates the date dimension for the configured range. After
// the first run this is a no-op unless the range grew.
func (r Runner) runCalendar(ctx context.Context, run warehouse.BatchRun) (StreamResult, error) {
	from, fromErr := time.Parse(time.DateOnly, r.cfg.Calendar.From)
	if fromErr != nil {
		return StreamResult{}, fmt.Errorf("failed to parse calendar start %q: %w", r.cfg.Calendar.From, fromErr)
	}

	to, toErr := time.Parse(time.DateOnly, r.cfg.Calendar.To)
	if toErr != nil {
		return StreamResult{}, fmt.Errorf("failed to parse calendar end %q: %w", r.cfg.Calendar.To, toErr)
	}

	batch, buildErr := retail.CalendarDays(from, to)
	if buildErr != nil {
		return StreamResult{}, buildErr
	}

	report, runErr := r.runSnapshot(ctx, run, calendarStream, calendarTable, calendarTracked, snapshot.RejectDuplicates, batch)
	if runErr != nil {
		return StreamResult{}, runErr
	}

	result := streamResultFromRunReport(calendarStream, audit.KindCalendar, report)

	if recordErr := r.recordRun(ctx, run, result, report.Duration); recordErr != nil {
		return StreamResult{}, recordErr
	}

	r.logInfo(logMsgCalendarLoaded,
		logAttrRunID, run.ID.String(),
		logAttrRowsIn, result.RowsIn,
		logAttrWritten, result.RowsWritten,
	)

	return result, nil
}

func (r Runner) runDimension(
	ctx context.Context,
	run warehouse.BatchRun,
	stream config.DimensionStream,
	day int,
) (StreamResult, error) {

	path, _ := r.lakePath(stream.Source, day)

	batch, readErr := readEntities(path, stream)
	if readErr != nil {
		return StreamResult{}, readErr
	}

	batch = enrichEntities(stream.Name, batch)

	policy := snapshot.RejectDuplicates
	if stream.DuplicatePolicy != "" {
		parsed, policyErr := snapshot.ParseDuplicatePolicy(stream.DuplicatePolicy)
		if policyErr != nil {
			return StreamResult{}, policyErr
		}
		policy = parsed
	}

	report, runErr := r.runSnapshot(ctx, run, stream.Name, stream.Table, warehouse.TrackedAttributes(stream.Tracked), policy, batch)
	if runErr != nil {
		return StreamResult{}, runErr
	}

	result := streamResultFromRunReport(stream.Name, audit.KindDimension, report)

	if recordErr := r.recordRun(ctx, run, result, report.Duration); recordErr != nil {
		return StreamResult{}, recordErr
	}

	r.logInfo(logMsgDimensionLoaded,
		logAttrStream, stream.Name,
		logAttrRunID, run.ID.String(),
		logAttrRowsIn, result.RowsIn,
		logAttrWritten, result.RowsWritten,
		logAttrSkipped, result.RowsSkipped,
	)

	return result, nil
}

// runFact loads one fact source file. The audit ledger gates the load by
// path and content checksum: a file seen before with the same content is
// skipped without reading it, a re-exported file with new content goes
// through the loader, whose strategy then drops the rows that are already
// stored.
func (r Runner) runFact(
	ctx context.Context,
	run warehouse.BatchRun,
	stream config.FactStream,
	day int,
) (StreamResult, error) {

	path, source := r.lakePath(stream.Source, day)

	checksum, checksumErr := audit.FileChecksum(path)
	if checksumErr != nil {
		return StreamResult{}, checksumErr
	}

	recorder := r.provider.Recorder()

	processed, processedErr := recorder.AlreadyProcessed(ctx, source, checksum)
	if processedErr != nil {
		return StreamResult{}, processedErr
	}

	if processed {
		r.logInfo(logMsgFactSkipped, logAttrStream, stream.Name, logAttrPath, source, logAttrRunID, run.ID.String())
		return StreamResult{Stream: stream.Name, Kind: audit.KindFact, Skipped: true}, nil
	}

	batch, readErr := readFacts(path, stream, run.At)
	if readErr != nil {
		return StreamResult{}, readErr
	}

	strategy, strategyErr := factload.ParseStrategy(stream.Strategy)
	if strategyErr != nil {
		return StreamResult{}, strategyErr
	}

	store, storeErr := r.provider.FactStore(stream.Table)
	if storeErr != nil {
		return StreamResult{}, storeErr
	}

	loader, loaderErr := factload.NewLoader(store, stream.Name, strategy, r.loaderOptions()...)
	if loaderErr != nil {
		return StreamResult{}, loaderErr
	}

	report, runErr := loader.Run(ctx, run, batch)
	if runErr != nil {
		return StreamResult{}, runErr
	}

	if markErr := recorder.MarkProcessed(ctx, source, checksum, report.Appended, run); markErr != nil {
		return StreamResult{}, markErr
	}

	result := StreamResult{
		Stream:      stream.Name,
		Kind:        audit.KindFact,
		RowsIn:      report.RowsIn,
		RowsWritten: report.Appended,
		RowsSkipped: report.AlreadyLoaded + report.DroppedStale,
	}

	if recordErr := r.recordRun(ctx, run, result, report.Duration); recordErr != nil {
		return StreamResult{}, recordErr
	}

	r.logInfo(logMsgFactLoaded,
		logAttrStream, stream.Name,
		logAttrRunID, run.ID.String(),
		logAttrRowsIn, result.RowsIn,
		logAttrWritten, result.RowsWritten,
		logAttrSkipped, result.RowsSkipped,
	)

	return result, nil
}

func (r Runner) runSnapshot(
	ctx context.Context,
	run warehouse.BatchRun,
	streamName string,
	table string,
	tracked warehouse.TrackedAttributes,
	policy snapshot.DuplicatePolicy,
	batch warehouse.EntityBatch,
) (snapshot.RunReport, error) {

	store, storeErr := r.provider.SnapshotStore(table)
	if storeErr != nil {
		return snapshot.RunReport{}, storeErr
	}

	engine, engineErr := snapshot.NewEngine(store, streamName, tracked, r.engineOptions(policy)...)
	if engineErr != nil {
		return snapshot.RunReport{}, engineErr
	}

	return engine.Run(ctx, run, batch)
}

func (r Runner) recordRun(
	ctx context.Context,
	run warehouse.BatchRun,
	result StreamResult,
	duration time.Duration,
) error {

	record := audit.RunRecord{
		Run:         run,
		Stream:      result.Stream,
		Kind:        result.Kind,
		RowsIn:      result.RowsIn,
		RowsWritten: result.RowsWritten,
		RowsSkipped: result.RowsSkipped,
		Duration:    duration,
	}

	return r.provider.Recorder().RecordRun(ctx, record)
}

func (r Runner) engineOptions(policy snapshot.DuplicatePolicy) []snapshot.Option {
	options := []snapshot.Option{snapshot.WithDuplicatePolicy(policy)}

	if r.logger != nil {
		options = append(options, snapshot.WithLogger(r.logger))
	}

	if r.metrics != nil {
		options = append(options, snapshot.WithMetrics(r.metrics))
	}

	return options
}

func (r Runner) loaderOptions() []factload.Option {
	var options []factload.Option

	if r.logger != nil {
		options = append(options, factload.WithLogger(r.logger))
	}

	if r.metrics != nil {
		options = append(options, factload.WithMetrics(r.metrics))
	}

	return options
}

// lakePath resolves a stream source against the lake root, expanding the
// {day} token. The audit ledger stores the lake-relative source, so moving
// the lake root does not re-ingest every file.
func (r Runner) lakePath(streamSource string, day int) (path string, source string) {
	source = strings.ReplaceAll(streamSource, dayToken, strconv.Itoa(day))
	return filepath.Join(r.cfg.Lake.Root, source), source
}

func (r Runner) logInfo(message string, args ...any) {
	if r.logger == nil {
		return
	}

	r.logger.Info(message, args...)
}

func readEntities(path string, stream config.DimensionStream) (warehouse.EntityBatch, error) {
	switch stream.Format {
	case staging.FormatCSV:
		return staging.ReadEntitiesCSV(path, stream.EntitySpec())
	case staging.FormatXLSX:
		return staging.ReadEntitiesXLSX(path, stream.EntitySpec())
	default:
		return nil, fmt.Errorf("dimension streams support csv and xlsx sources, not %q", stream.Format)
	}
}

func readFacts(path string, stream config.FactStream, arrivedAt time.Time) (warehouse.FactBatch, error) {
	switch stream.Format {
	case staging.FormatCSV:
		return staging.ReadFactsCSV(path, stream.FactSpec(arrivedAt))
	case staging.FormatXLSX:
		return staging.ReadFactsXLSX(path, stream.FactSpec(arrivedAt))
	case staging.FormatJSONL:
		return staging.ReadFactsJSONL(path, stream.FactSpec(arrivedAt))
	case staging.FormatParquet:
		return readParquetFacts(path, stream.Name)
	default:
		return nil, fmt.Errorf("unknown fact source format %q", stream.Format)
	}
}

// Parquet sources decode through typed row structs, so each stream needs a
// registered reader.
func readParquetFacts(path string, streamName string) (warehouse.FactBatch, error) {
	switch streamName {
	case "shipments":
		return staging.ReadShipmentsParquet(path)
	case "returns":
		return staging.ReadReturnsParquet(path)
	default:
		return nil, fmt.Errorf("no parquet row type registered for stream %q", streamName)
	}
}

// enrichEntities applies the silver-layer business rules that belong to a
// stream before its snapshot load.
func enrichEntities(streamName string, batch warehouse.EntityBatch) warehouse.EntityBatch {
	switch streamName {
	case "customers":
		return retail.EnrichCustomers(batch)
	case "stores":
		return retail.EnrichStores(batch)
	default:
		return batch
	}
}

func streamResultFromRunReport(stream string, kind audit.Kind, report snapshot.RunReport) StreamResult {
	return StreamResult{
		Stream:      stream,
		Kind:        kind,
		RowsIn:      report.RecordsIn,
		RowsWritten: report.Opened + report.Closed,
		RowsSkipped: report.Unchanged,
	}
}
