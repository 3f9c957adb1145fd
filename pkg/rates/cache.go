package rates

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// DefaultTTL is how long a fetched rate table is served from the cache.
	DefaultTTL = 300 * time.Second

	// DefaultFetchTimeout bounds a single provider call.
	DefaultFetchTimeout = 30 * time.Second
)

const tracerName = "github.com/shipperhq/shopware-shipperhq/pkg/rates"

// RateCache serves rate tables per cart and shopper, fetching from the
// provider only when the cached entry is missing, empty or expired.
//
// Provider failures are absorbed: callers only ever see a table (possibly
// empty) or a price (possibly absent).
type RateCache struct {
	keys     *KeyGenerator
	storage  *RateStorage
	provider Provider
	matcher  *Matcher
	logger   *otelzap.Logger
	tracer   trace.Tracer

	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
}

// Option configures a RateCache.
type Option func(*RateCache)

// WithTTL sets how long cached rates stay valid.
func WithTTL(ttl time.Duration) Option {
	return func(c *RateCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithFetchTimeout bounds each provider call.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *RateCache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithClock sets the clock used for validity checks.
func WithClock(now func() time.Time) Option {
	return func(c *RateCache) {
		c.now = now
	}
}

// WithTracer sets the tracer used for cache spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *RateCache) {
		c.tracer = tracer
	}
}

// NewRateCache wires a RateCache.
func NewRateCache(storage *RateStorage, provider Provider, matcher *Matcher, logger *otelzap.Logger, opts ...Option) *RateCache {
	c := &RateCache{
		keys:         NewKeyGenerator(),
		storage:      storage,
		provider:     provider,
		matcher:      matcher,
		logger:       logger,
		tracer:       otel.Tracer(tracerName),
		ttl:          DefaultTTL,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the validity window of cached entries.
func (c *RateCache) TTL() time.Duration {
	return c.ttl
}

// GetRates returns the rate table for the cart and shopper. The table is
// empty when the provider has nothing or fails.
func (c *RateCache) GetRates(ctx context.Context, cart *Cart, sc *ShopperContext) RateTable {
	ctx, span := c.tracer.Start(ctx, "rates.GetRates")
	defer span.End()

	sessionID := sc.sessionID()
	key := c.keys.GenerateKey(cart, sc)
	span.SetAttributes(attribute.String("rates.cache_key", key))

	entry := c.storage.Get(ctx, sessionID, key)
	if entry.IsValid(c.now(), c.ttl) {
		cacheHits.Inc()
		span.SetAttributes(attribute.Bool("rates.cache_hit", true))
		c.logger.Ctx(ctx).Debug("Using cached rates",
			zap.String("cache_key", key),
			zap.Int("rates", len(entry.Rates)),
		)
		return entry.Rates
	}

	cacheMisses.Inc()
	span.SetAttributes(attribute.Bool("rates.cache_hit", false))

	rates := c.fetch(ctx, cart, sc)
	if len(rates) == 0 {
		return RateTable{}
	}

	c.storage.Set(ctx, sessionID, key, rates)
	return rates
}

// fetch calls the provider under the fetch timeout. Errors become an empty
// table.
func (c *RateCache) fetch(ctx context.Context, cart *Cart, sc *ShopperContext) RateTable {
	ctx, span := c.tracer.Start(ctx, "rates.Fetch")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	start := time.Now()
	rates, err := c.provider.FetchBatchRates(ctx, cart, sc)
	fetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		fetches.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Ctx(ctx).Error("Failed to fetch shipping rates", zap.Error(err))
		return nil
	}
	if len(rates) == 0 {
		fetches.WithLabelValues("empty").Inc()
		c.logger.Ctx(ctx).Info("Rate provider returned no rates")
		return nil
	}

	fetches.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int("rates.count", len(rates)))
	c.logger.Ctx(ctx).Info("Fetched shipping rates", zap.Int("rates", len(rates)))
	return rates
}

// GetRateForMethod returns the price of methodID for the cart, or false when
// no rate matches.
func (c *RateCache) GetRateForMethod(ctx context.Context, methodID string, cart *Cart, sc *ShopperContext) (float64, bool) {
	match, ok := c.FindRate(ctx, methodID, cart, sc)
	if !ok {
		return 0, false
	}
	return match.Record.Price, true
}

// FindRate is GetRateForMethod returning the whole matched record.
func (c *RateCache) FindRate(ctx context.Context, methodID string, cart *Cart, sc *ShopperContext) (Match, bool) {
	rates := c.GetRates(ctx, cart, sc)
	if len(rates) == 0 {
		return Match{}, false
	}
	return c.matcher.Find(ctx, methodID, rates)
}

// ClearCache drops every cached rate table of the session. Clearing an
// empty or unknown session succeeds.
func (c *RateCache) ClearCache(ctx context.Context, sessionID string) error {
	removed, err := c.storage.Clear(ctx, sessionID)
	invalidations.Inc()
	c.logger.Ctx(ctx).Debug("Cleared rate cache",
		zap.String("session_id", sessionID),
		zap.Int("removed", removed),
	)
	return err
}
