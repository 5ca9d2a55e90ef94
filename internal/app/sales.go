package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/smt-trading/crm/internal/platform/cache"
	"github.com/smt-trading/crm/internal/sales/catalog"
	"github.com/smt-trading/crm/internal/sales/conversion"
	"github.com/smt-trading/crm/internal/sales/orders"
	"github.com/smt-trading/crm/internal/sales/pipeline"
	"github.com/smt-trading/crm/internal/sales/quotations"
	"github.com/smt-trading/crm/internal/sales/sequence"
	salesshared "github.com/smt-trading/crm/internal/sales/shared"
	"github.com/smt-trading/crm/internal/shared"
)

// SalesModule holds the wired sales services.
type SalesModule struct {
	Numbers    *sequence.Allocator
	Quotations *quotations.Service
	Orders     *orders.Service
	Pipeline   *pipeline.Service
	Conversion *conversion.Service
	Keys       *shared.IdempotencyStore
}

// NewSalesModule wires repositories, caches and services. redisClient may be nil, in
// which case caches are disabled and the redis sequence backend is unavailable.
func NewSalesModule(cfg *Config, logger *slog.Logger, pool *pgxpool.Pool, redisClient *redis.Client, recorder salesshared.Recorder) (*SalesModule, error) {
	if recorder == nil {
		recorder = salesshared.NopRecorder{}
	}
	clock := shared.SystemClock{}
	policy := salesshared.PolicyFor(cfg.SalesStrictTransitions)

	loc, err := cfg.SequenceLocation()
	if err != nil {
		return nil, err
	}
	var counter sequence.Counter = sequence.NewPostgresCounter(pool)
	if cfg.SequenceBackend == SequenceBackendRedis && redisClient != nil {
		counter = sequence.NewRedisCounter(redisClient, "sales:seq")
	}
	numbers := sequence.NewAllocator(counter, clock,
		sequence.WithSeeder(sequence.NewPostgresSeeder(pool)),
		sequence.WithLocation(loc),
		sequence.WithLogger(logger),
		sequence.WithRecorder(recorder),
	)

	var catalogCache, statsCache *cache.Versioned
	if redisClient != nil {
		catalogCache = cache.NewVersioned(redisClient, "sales:catalog", cfg.CatalogCacheTTL)
		statsCache = cache.NewVersioned(redisClient, "sales:pipeline", cfg.PipelineStatsTTL)
	}
	directory := catalog.NewRepository(pool)
	products := catalog.NewCachedProducts(directory, catalogCache)

	m := &SalesModule{
		Numbers: numbers,
		Quotations: quotations.NewService(quotations.NewRepository(pool), directory, products, numbers,
			quotations.WithClock(clock), quotations.WithPolicy(policy),
			quotations.WithRecorder(recorder), quotations.WithLogger(logger), quotations.WithLocation(loc)),
		Orders: orders.NewService(orders.NewRepository(pool), directory, products, numbers,
			orders.WithClock(clock), orders.WithPolicy(policy),
			orders.WithRecorder(recorder), orders.WithLogger(logger)),
		Pipeline: pipeline.NewService(pipeline.NewRepository(pool), directory,
			pipeline.WithClock(clock), pipeline.WithPolicy(policy), pipeline.WithStatsCache(statsCache),
			pipeline.WithRecorder(recorder), pipeline.WithLogger(logger)),
		Conversion: conversion.NewService(conversion.NewUnitOfWork(pool), numbers,
			conversion.WithClock(clock), conversion.WithPolicy(policy),
			conversion.WithRecorder(recorder), conversion.WithLogger(logger)),
		Keys: shared.NewIdempotencyStore(pool),
	}
	return m, nil
}

// RouterParams fills the sales handlers of p.
func (m *SalesModule) RouterParams(p RouterParams) RouterParams {
	p.SequenceHandler = sequence.NewHandler(p.Logger, m.Numbers)
	p.QuotationHandler = quotations.NewHandler(p.Logger, m.Quotations)
	p.OrderHandler = orders.NewHandler(p.Logger, m.Orders)
	p.PipelineHandler = pipeline.NewHandler(p.Logger, m.Pipeline)
	p.ConversionHandler = conversion.NewHandler(p.Logger, m.Conversion)
	return p
}
