package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Catalog backends.
const (
	CatalogMemory   = "memory"
	CatalogPostgres = "postgres"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Rate cache
	RateCacheTTL                   time.Duration `envconfig:"RATE_CACHE_TTL" default:"300s"`
	RateFetchTimeout               time.Duration `envconfig:"RATE_FETCH_TIMEOUT" default:"30s"`
	RateMatchMethodCaseInsensitive bool          `envconfig:"RATE_MATCH_METHOD_CASE_INSENSITIVE" default:"false"`

	// Session storage
	StorageBackend string        `envconfig:"STORAGE_BACKEND" default:"memory"`
	SessionTTL     time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`

	// Shipping method catalog
	CatalogBackend string `envconfig:"CATALOG_BACKEND" default:"memory"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`

	// Cart events
	NATSEnabled   bool   `envconfig:"NATS_ENABLED" default:"false"`
	NATSURL       string `envconfig:"NATS_URL" default:"nats://localhost:4222"`
	NATSClusterID string `envconfig:"NATS_CLUSTER_ID" default:"test-cluster"`
	NATSClientID  string `envconfig:"NATS_CLIENT_ID" default:"shqrates"`
	NATSSubject   string `envconfig:"NATS_SUBJECT" default:"cart.events"`
	NATSDurable   string `envconfig:"NATS_DURABLE" default:"shqrates-invalidator"`

	// Carriers quoted by the in-process registry
	MockCarriers []string `envconfig:"MOCK_CARRIERS" default:"fedex,ups"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"shipperhq-rates"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks backend selections and their required settings.
func (c *Config) Validate() error {
	switch strings.ToLower(c.StorageBackend) {
	case StorageMemory, StorageRedis:
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND %q", c.StorageBackend)
	}

	switch strings.ToLower(c.CatalogBackend) {
	case CatalogMemory:
	case CatalogPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres catalog")
		}
	default:
		return fmt.Errorf("invalid CATALOG_BACKEND %q", c.CatalogBackend)
	}

	if c.RateCacheTTL <= 0 {
		return fmt.Errorf("RATE_CACHE_TTL must be positive")
	}
	if c.RateFetchTimeout <= 0 {
		return fmt.Errorf("RATE_FETCH_TIMEOUT must be positive")
	}
	return nil
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.String("rates.storage_backend", c.StorageBackend),
		attribute.String("rates.catalog_backend", c.CatalogBackend),
		attribute.String("rates.cache_ttl", c.RateCacheTTL.String()),
		attribute.Bool("nats.enabled", c.NATSEnabled),
	}
}
