package pipeline

import (
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Mj37-com/medallion-warehouse-go/internal/audit"
	"github.com/Mj37-com/medallion-warehouse-go/internal/views"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse/factload"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse/memoryengine"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse/postgresengine"
	"github.com/Mj37-com/medallion-warehouse-go/warehouse/snapshot"
)

// Provider hands the runner its storage backends. Each configured stream
// writes to its own table, so stores are requested per table name.
// ViewExecutor may return nil, in which case the runner skips the gold view
// refresh.
type Provider interface {
	SnapshotStore(table string) (snapshot.SnapshotStore, error)
	FactStore(table string) (factload.FactStore, error)
	Recorder() audit.Recorder
	ViewExecutor() views.Executor
	Close()
}

// PostgresProvider serves stores backed by a shared pgx connection pool.
type PostgresProvider struct {
	pool     *pgxpool.Pool
	recorder audit.PostgresRecorder
	logger   warehouse.Logger
	metrics  warehouse.MetricsCollector
}

// NewPostgresProvider wraps an already connected pool. The logger and metrics
// collector are passed through to every store it creates; both may be nil.
// Closing the provider closes the pool.
func NewPostgresProvider(
	pool *pgxpool.Pool,
	logger warehouse.Logger,
	metrics warehouse.MetricsCollector,
) (*PostgresProvider, error) {

	recorder, err := audit.NewPostgresRecorder(pool)
	if err != nil {
		return nil, err
	}

	return &PostgresProvider{pool: pool, recorder: recorder, logger: logger, metrics: metrics}, nil
}

func (p *PostgresProvider) SnapshotStore(table string) (snapshot.SnapshotStore, error) {
	store, err := postgresengine.NewSnapshotStoreFromPGXPool(p.pool, p.storeOptions(table)...)
	if err != nil {
		return nil, err
	}

	return store, nil
}

func (p *PostgresProvider) FactStore(table string) (factload.FactStore, error) {
	store, err := postgresengine.NewFactStoreFromPGXPool(p.pool, p.storeOptions(table)...)
	if err != nil {
		return nil, err
	}

	return store, nil
}

func (p *PostgresProvider) Recorder() audit.Recorder {
	return p.recorder
}

func (p *PostgresProvider) ViewExecutor() views.Executor {
	return p.pool
}

func (p *PostgresProvider) Close() {
	p.pool.Close()
}

func (p *PostgresProvider) storeOptions(table string) []postgresengine.Option {
	options := []postgresengine.Option{postgresengine.WithTableName(table)}

	if p.logger != nil {
		options = append(options, postgresengine.WithLogger(p.logger))
	}

	if p.metrics != nil {
		options = append(options, postgresengine.WithMetrics(p.metrics))
	}

	return options
}

// MemoryProvider serves in-memory stores, one per table, created on first
// use. It backs dry runs and tests; there is no database, so ViewExecutor
// returns nil and the view refresh is skipped.
type MemoryProvider struct {
	mu        sync.Mutex
	snapshots map[string]*memoryengine.SnapshotStore
	facts     map[string]*memoryengine.FactStore
	recorder  *audit.MemoryRecorder
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		snapshots: make(map[string]*memoryengine.SnapshotStore),
		facts:     make(map[string]*memoryengine.FactStore),
		recorder:  audit.NewMemoryRecorder(),
	}
}

func (p *MemoryProvider) SnapshotStore(table string) (snapshot.SnapshotStore, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	store, ok := p.snapshots[table]
	if !ok {
		store = memoryengine.NewSnapshotStore()
		p.snapshots[table] = store
	}

	return store, nil
}

func (p *MemoryProvider) FactStore(table string) (factload.FactStore, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	store, ok := p.facts[table]
	if !ok {
		store = memoryengine.NewFactStore()
		p.facts[table] = store
	}

	return store, nil
}

func (p *MemoryProvider) Recorder() audit.Recorder {
	return p.recorder
}

func (p *MemoryProvider) ViewExecutor() views.Executor {
	return nil
}

func (p *MemoryProvider) Close() {}
