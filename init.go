package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shipperhq/shopware-shipperhq/internal/catalog"
	"github.com/shipperhq/shopware-shipperhq/internal/config"
	"github.com/shipperhq/shopware-shipperhq/internal/events"
	"github.com/shipperhq/shopware-shipperhq/internal/telemetry"
	"github.com/shipperhq/shopware-shipperhq/pkg/rates"
	"github.com/shipperhq/shopware-shipperhq/pkg/shipper"
	"github.com/shipperhq/shopware-shipperhq/pkg/shipper/mock"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

func initTracer(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return func(context.Context) error { return nil }, nil
	}

	_, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version)
	return shutdown, err
}

// app is the wired rate service.
type app struct {
	cache      *rates.RateCache
	methods    methodSource
	dispatcher *events.Dispatcher
	metrics    *telemetry.Metrics
	logger     *otelzap.Logger
	closers    []func()
}

type methodSource interface {
	rates.MethodLookup
	rates.MethodCatalog
}

func initApp(ctx context.Context, cfg *config.Config, logger *otelzap.Logger) (*app, error) {
	a := &app{
		metrics: telemetry.NewMetrics(prometheus.DefaultRegisterer),
		logger:  logger,
	}

	sessions, err := a.initSessions(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	methods, err := a.initCatalog(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.methods = methods

	registry := initShipperRegistry(cfg)
	storage := rates.NewRateStorage(sessions, logger)
	matcher := rates.NewMatcher(methods, logger,
		rates.WithMethodCaseInsensitive(cfg.RateMatchMethodCaseInsensitive),
	)
	a.cache = rates.NewRateCache(storage,
		rates.NewRegistryProvider(registry, methods, logger),
		matcher,
		logger,
		rates.WithTTL(cfg.RateCacheTTL),
		rates.WithFetchTimeout(cfg.RateFetchTimeout),
	)
	a.dispatcher = events.NewDispatcher(a.cache, logger, a.metrics)
	return a, nil
}

// errClearNeedsSharedStorage rejects clear-cache against a backend only the
// server process can see.
var errClearNeedsSharedStorage = errors.New(
	"clear-cache requires STORAGE_BACKEND=redis; use DELETE /v1/sessions/{sessionID}/rates against the running server")

// initClearApp wires only the session storage behind the rate cache. The
// catalog and carriers are left out since ClearCache never reaches them.
func initClearApp(ctx context.Context, cfg *config.Config, logger *otelzap.Logger) (*app, error) {
	if strings.ToLower(cfg.StorageBackend) != config.StorageRedis {
		return nil, errClearNeedsSharedStorage
	}

	a := &app{logger: logger}
	sessions, err := a.initSessions(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cache = rates.NewRateCache(rates.NewRateStorage(sessions, logger), nil, nil, logger)
	return a, nil
}

func (a *app) initSessions(ctx context.Context, cfg *config.Config) (rates.SessionStore, error) {
	if strings.ToLower(cfg.StorageBackend) != config.StorageRedis {
		return rates.NewMemorySessions(cfg.SessionTTL), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	a.closers = append(a.closers, func() { client.Close() })

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	return rates.NewRedisSessions(client, cfg.SessionTTL), nil
}

func (a *app) initCatalog(ctx context.Context, cfg *config.Config) (methodSource, error) {
	if strings.ToLower(cfg.CatalogBackend) != config.CatalogPostgres {
		methods := catalog.NewMemory()
		for _, carrier := range carrierNames(cfg) {
			methods.SeedCarrier(carrier, "ground", "express")
		}
		return methods, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	if err := catalog.EnsureSchema(ctx, pool); err != nil {
		return nil, err
	}
	return catalog.NewPostgres(pool), nil
}

func (a *app) subscribeEvents(ctx context.Context, cfg *config.Config) error {
	sub := events.NewStanSubscriber(events.StanConfig{
		ClusterID: cfg.NATSClusterID,
		ClientID:  cfg.NATSClientID,
		URL:       cfg.NATSURL,
		Subject:   cfg.NATSSubject,
		Durable:   cfg.NATSDurable,
	}, a.dispatcher, a.logger)
	if err := sub.Subscribe(ctx); err != nil {
		return fmt.Errorf("subscribing to cart events: %w", err)
	}
	return nil
}

// Close releases backend connections.
func (a *app) Close() {
	n := len(a.closers)
	for i := n - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	a.logger.Debug("Backends closed", zap.Int("count", n))
}

func initShipperRegistry(cfg *config.Config) *shipper.Registry {
	registry := shipper.NewRegistry()
	for _, name := range carrierNames(cfg) {
		registry.Register(mock.New(name))
	}
	return registry
}

func carrierNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.MockCarriers))
	for _, name := range cfg.MockCarriers {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
