// Package backend opens the configured search backend behind the gateway guard.
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/meilisearch/meilisearch-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hadi77ir/go-catalog/config"
	"github.com/hadi77ir/go-catalog/executor"
	"github.com/hadi77ir/go-catalog/executors/elasticsearch"
	gormexec "github.com/hadi77ir/go-catalog/executors/gorm"
	meiliexec "github.com/hadi77ir/go-catalog/executors/meilisearch"
	"github.com/hadi77ir/go-catalog/executors/memory"
	"github.com/hadi77ir/go-catalog/executors/mongodb"
	"github.com/hadi77ir/go-catalog/executors/opensearch"
	"github.com/hadi77ir/go-catalog/executors/wrapper"
	"github.com/hadi77ir/go-catalog/query"
)

// SeedFunc writes records into a backend, replacing records with the same ID.
type SeedFunc func(ctx context.Context, records []query.Record) error

// Backend is the guarded executor of the configured search backend.
type Backend struct {
	*wrapper.WrapperExecutor
	seed SeedFunc
}

// Seed writes records into the backend.
func (b *Backend) Seed(ctx context.Context, records []query.Record) error {
	return b.seed(ctx, records)
}

// Open connects to the backend named by cfg.Search.Backend and wraps it with
// the field whitelist, the circuit breaker and collector.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger, collector wrapper.Collector) (*Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts := ExecutorOptions(cfg)

	inner, seed, err := open(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	log.Info("search backend ready", zap.String("backend", inner.Name()))

	wrapperOpts := []wrapper.Option{wrapper.WithLogger(log)}
	if collector != nil {
		wrapperOpts = append(wrapperOpts, wrapper.WithCollector(collector))
	}
	if b := cfg.Breaker; b.Enabled {
		wrapperOpts = append(wrapperOpts, wrapper.WithBreaker(wrapper.BreakerSettings{
			MaxRequests:  b.MaxRequests,
			Interval:     b.Interval,
			Timeout:      b.Timeout,
			FailureRatio: b.FailureRatio,
			MinRequests:  b.MinRequests,
		}))
	}

	return &Backend{
		WrapperExecutor: wrapper.NewExecutor(inner, cfg.Search.AllowedFields, wrapperOpts...),
		seed:            seed,
	}, nil
}

// ExecutorOptions derives the executor options from the configuration.
func ExecutorOptions(cfg *config.Config) *query.ExecutorOptions {
	opts := query.DefaultExecutorOptions()
	if cfg.Catalog.MaxPerPage > 0 {
		opts.MaxPageSize = cfg.Catalog.MaxPerPage
	}
	if len(cfg.Search.DefaultSearchFields) > 0 {
		opts.DefaultSearchFields = cfg.Search.DefaultSearchFields
	}
	opts.AllowedFields = cfg.Search.AllowedFields
	return opts
}

func open(ctx context.Context, cfg *config.Config, opts *query.ExecutorOptions) (executor.Executor, SeedFunc, error) {
	s := cfg.Search
	switch s.Backend {
	case "memory":
		return openMemory(s.Memory, opts)
	case "sql":
		return openSQL(s.SQL, opts)
	case "mongodb":
		return openMongo(ctx, s.Mongo, opts)
	case "meilisearch":
		return openMeilisearch(ctx, s.Meilisearch, opts)
	case "elasticsearch":
		return openElasticsearch(ctx, s.Elasticsearch, opts)
	case "opensearch":
		return openOpenSearch(ctx, s.OpenSearch, opts)
	}
	return nil, nil, query.NewConfigurationError("search.backend", s.Backend, "unknown search backend")
}

// memoryStore swaps in a new slice on every write, so a search never sees a
// half-applied seed.
type memoryStore struct {
	mu      sync.RWMutex
	records []query.Record
}

func (m *memoryStore) snapshot() []query.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records
}

func (m *memoryStore) upsert(_ context.Context, records []query.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	index := make(map[string]int, len(m.records))
	next := make([]query.Record, len(m.records), len(m.records)+len(records))
	copy(next, m.records)
	for i, r := range next {
		index[r.ID] = i
	}
	for _, r := range records {
		if i, ok := index[r.ID]; ok {
			next[i] = r
			continue
		}
		index[r.ID] = len(next)
		next = append(next, r)
	}
	m.records = next
	return nil
}

func openMemory(c config.Memory, opts *query.ExecutorOptions) (executor.Executor, SeedFunc, error) {
	store := &memoryStore{}
	if c.SeedFile != "" {
		records, err := memory.LoadFile(c.SeedFile)
		if err != nil {
			return nil, nil, err
		}
		store.records = records
	}
	return memory.NewExecutorWithDataSource(store.snapshot, opts), store.upsert, nil
}

func openSQL(c config.SQL, opts *query.ExecutorOptions) (executor.Executor, SeedFunc, error) {
	var dialector gorm.Dialector
	switch c.Driver {
	case "sqlite":
		dialector = sqlite.Open(c.DSN)
	case "postgres":
		dialector = postgres.Open(c.DSN)
	default:
		return nil, nil, query.NewConfigurationError("search.sql.driver", c.Driver, "unknown sql driver")
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s database: %w", c.Driver, err)
	}
	if err := gormexec.Migrate(db); err != nil {
		return nil, nil, fmt.Errorf("migrate datasets table: %w", err)
	}
	seed := func(ctx context.Context, records []query.Record) error {
		return gormexec.Insert(ctx, db, records...)
	}
	return gormexec.NewExecutor(db, opts), seed, nil
}

func openMongo(ctx context.Context, c config.Mongo, opts *query.ExecutorOptions) (executor.Executor, SeedFunc, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongodb: %w", err)
	}
	collection := client.Database(c.Database).Collection(c.Collection)
	seed := func(ctx context.Context, records []query.Record) error {
		return mongodb.Insert(ctx, collection, records...)
	}
	return mongodb.NewExecutor(collection, opts), seed, nil
}

func openMeilisearch(ctx context.Context, c config.Meilisearch, opts *query.ExecutorOptions) (executor.Executor, SeedFunc, error) {
	client := meilisearch.New(c.Host, meilisearch.WithAPIKey(c.APIKey))
	e := meiliexec.NewExecutor(client, c.Index, opts)
	if err := e.Configure(ctx); err != nil {
		return nil, nil, fmt.Errorf("configure meilisearch index %s: %w", c.Index, err)
	}
	seed := func(ctx context.Context, records []query.Record) error {
		return e.Insert(ctx, records...)
	}
	return e, seed, nil
}

func openElasticsearch(ctx context.Context, c config.Elastic, opts *query.ExecutorOptions) (executor.Executor, SeedFunc, error) {
	client, err := elasticsearch.NewClient(c.Addresses, c.Username, c.Password)
	if err != nil {
		return nil, nil, err
	}
	e := elasticsearch.NewExecutor(client, c.Index, opts)
	if err := e.EnsureIndex(ctx); err != nil {
		return nil, nil, err
	}
	seed := func(ctx context.Context, records []query.Record) error {
		return e.Insert(ctx, records...)
	}
	return e, seed, nil
}

func openOpenSearch(ctx context.Context, c config.Elastic, opts *query.ExecutorOptions) (executor.Executor, SeedFunc, error) {
	client, err := opensearch.NewClient(c.Addresses, c.Username, c.Password)
	if err != nil {
		return nil, nil, err
	}
	e := opensearch.NewExecutor(client, c.Index, opts)
	if err := e.EnsureIndex(ctx); err != nil {
		return nil, nil, err
	}
	seed := func(ctx context.Context, records []query.Record) error {
		return e.Insert(ctx, records...)
	}
	return e, seed, nil
}
