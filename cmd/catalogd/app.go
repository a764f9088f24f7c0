package main

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/hadi77ir/go-catalog/catalog"
	"github.com/hadi77ir/go-catalog/config"
	"github.com/hadi77ir/go-catalog/internal/backend"
	"github.com/hadi77ir/go-catalog/internal/logging"
	"github.com/hadi77ir/go-catalog/internal/metrics"
	"github.com/hadi77ir/go-catalog/parser"
	"github.com/hadi77ir/go-catalog/serializer"
)

const (
	metricsNamespace = "catalog"
	parserCacheSize  = 512
)

// app holds the wired service components.
type app struct {
	loader    *config.Loader
	store     *config.Store
	logger    *zap.Logger
	metrics   *metrics.Collector
	backend   *backend.Backend
	assembler *catalog.Assembler
	actions   *catalog.Registry
}

func newApp(ctx context.Context, configFile string) (*app, error) {
	loader := config.NewLoader(configFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	if path := loader.Path(); path != "" {
		logger.Info("configuration loaded", zap.String("file", path))
	}

	collector := metrics.NewCollector(metricsNamespace)
	cache := parser.NewParserCache(parserCacheSize)
	collector.ObserveParserCache(metricsNamespace, cache)

	b, err := backend.Open(ctx, cfg, logger, collector)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	store := config.NewStore(cfg, logger)
	assembler, err := catalog.NewAssembler(store, b, serializer.Default(cfg.Catalog.BaseURL),
		catalog.WithLogger(logger),
		catalog.WithParserCache(cache))
	if err != nil {
		_ = b.Close()
		_ = logger.Sync()
		return nil, err
	}

	return &app{
		loader:    loader,
		store:     store,
		logger:    logger,
		metrics:   collector,
		backend:   b,
		assembler: assembler,
		actions:   catalog.NewRegistry(assembler),
	}, nil
}

// health fails while the breaker keeps the backend out of rotation.
func (a *app) health(context.Context) error {
	if a.backend.State() == gobreaker.StateOpen {
		return errors.New("search backend circuit is open")
	}
	return nil
}

func (a *app) Close() error {
	err := a.backend.Close()
	_ = a.logger.Sync()
	return err
}
