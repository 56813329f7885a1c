package config

import (
	"fmt"
	"slices"
	"time"

	pkgconfig "github.com/utafrali/storefront-search/pkg/config"
	"github.com/utafrali/storefront-search/pkg/database"
	"github.com/utafrali/storefront-search/pkg/httpclient"
	"github.com/utafrali/storefront-search/pkg/tracing"
)

// Backend names.
const (
	EngineElasticsearch = "elasticsearch"
	BackendMemory       = "memory"
	BackendRedis        = "redis"
	BackendPostgres     = "postgres"
)

// Config holds all configuration for the search service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int           `env:"SEARCH_HTTP_PORT" envDefault:"8010"`
	RequestTimeout     time.Duration `env:"SEARCH_REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout    time.Duration `env:"SEARCH_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	StorefrontMaxAge   int           `env:"STOREFRONT_CACHE_MAX_AGE" envDefault:"30"`
	StorefrontRPS      float64       `env:"STOREFRONT_RATE_LIMIT_RPS" envDefault:"50"`
	StorefrontBurst    int           `env:"STOREFRONT_RATE_LIMIT_BURST" envDefault:"100"`

	// Search engine selection (elasticsearch or memory)
	SearchEngine        string        `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`
	ElasticsearchURL    string        `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchIndex  string        `env:"ELASTICSEARCH_INDEX" envDefault:"storefront_products"`
	ElasticsearchUser   string        `env:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPass   string        `env:"ELASTICSEARCH_PASSWORD"`
	EngineProbeInterval time.Duration `env:"ENGINE_PROBE_INTERVAL" envDefault:"10s"`

	// Search request limits
	DefaultPageSize int `env:"SEARCH_DEFAULT_PAGE_SIZE" envDefault:"24"`
	MaxPageSize     int `env:"SEARCH_MAX_PAGE_SIZE" envDefault:"100"`
	MaxResultWindow int `env:"SEARCH_MAX_RESULT_WINDOW" envDefault:"10000"`

	// Result cache
	CacheBackend   string        `env:"CACHE_BACKEND" envDefault:"memory"`
	CacheCapacity  int           `env:"CACHE_CAPACITY" envDefault:"10000"`
	CacheSearchTTL time.Duration `env:"CACHE_SEARCH_TTL" envDefault:"1m"`
	CacheFacetsTTL time.Duration `env:"CACHE_FACETS_TTL" envDefault:"5m"`

	FilterConfigCacheTTL time.Duration `env:"FILTER_CONFIG_CACHE_TTL" envDefault:"30s"`

	// Durable sync state and locks
	StateStore    string        `env:"STATE_STORE" envDefault:"postgres"`
	LockBackend   string        `env:"LOCK_BACKEND" envDefault:"postgres"`
	LockLeaseTTL  time.Duration `env:"LOCK_LEASE_TTL" envDefault:"30s"`
	RunMigrations bool          `env:"RUN_MIGRATIONS" envDefault:"true"`

	// Indexing
	SyncBatchSize     int `env:"SYNC_BATCH_SIZE" envDefault:"200"`
	SyncMaxConcurrent int `env:"SYNC_MAX_CONCURRENT" envDefault:"4"`

	// Product service, the upstream change feed
	ProductServiceURL string            `env:"PRODUCT_SERVICE_URL" envDefault:"http://localhost:8080"`
	ProductClient     httpclient.Config `envPrefix:"PRODUCT_SERVICE_"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"search-service"`

	Postgres database.PostgresConfig `envPrefix:"POSTGRES_"`
	Redis    database.RedisConfig    `envPrefix:"REDIS_"`
	Tracing  tracing.Config
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load search config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Tracing.Environment = cfg.Environment
	return cfg, nil
}

// NeedsPostgres reports whether any component is backed by PostgreSQL.
func (c *Config) NeedsPostgres() bool {
	return c.StateStore == BackendPostgres || c.LockBackend == BackendPostgres
}

// NeedsRedis reports whether any component is backed by Redis.
func (c *Config) NeedsRedis() bool {
	return c.CacheBackend == BackendRedis || c.LockBackend == BackendRedis
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if err := oneOf("SEARCH_ENGINE", c.SearchEngine, EngineElasticsearch, BackendMemory); err != nil {
		return err
	}
	if err := oneOf("CACHE_BACKEND", c.CacheBackend, BackendMemory, BackendRedis); err != nil {
		return err
	}
	if err := oneOf("STATE_STORE", c.StateStore, BackendPostgres, BackendMemory); err != nil {
		return err
	}
	if err := oneOf("LOCK_BACKEND", c.LockBackend, BackendPostgres, BackendRedis, BackendMemory); err != nil {
		return err
	}
	// A process-local lock cannot exclude other replicas writing a shared
	// checkpoint store.
	if c.LockBackend == BackendMemory && c.StateStore != BackendMemory {
		return fmt.Errorf("LOCK_BACKEND=memory requires STATE_STORE=memory, got %q", c.StateStore)
	}
	if c.StorefrontRPS < 0 {
		return fmt.Errorf("STOREFRONT_RATE_LIMIT_RPS must not be negative, got %v", c.StorefrontRPS)
	}
	if c.CacheCapacity < 1 {
		return fmt.Errorf("CACHE_CAPACITY must be positive, got %d", c.CacheCapacity)
	}
	if c.DefaultPageSize < 1 || c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("SEARCH_DEFAULT_PAGE_SIZE must be between 1 and SEARCH_MAX_PAGE_SIZE (%d)", c.MaxPageSize)
	}
	if c.MaxResultWindow < c.MaxPageSize {
		return fmt.Errorf("SEARCH_MAX_RESULT_WINDOW must be at least SEARCH_MAX_PAGE_SIZE (%d), got %d", c.MaxPageSize, c.MaxResultWindow)
	}
	if c.LockLeaseTTL < time.Second {
		return fmt.Errorf("LOCK_LEASE_TTL must be at least 1s, got %s", c.LockLeaseTTL)
	}
	if c.SyncBatchSize < 1 || c.SyncBatchSize > 1000 {
		return fmt.Errorf("SYNC_BATCH_SIZE must be between 1 and 1000, got %d", c.SyncBatchSize)
	}
	if c.SyncMaxConcurrent < 1 {
		return fmt.Errorf("SYNC_MAX_CONCURRENT must be positive, got %d", c.SyncMaxConcurrent)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.Tracing.SampleRate)
	}
	return nil
}

func oneOf(name, value string, allowed ...string) error {
	if !slices.Contains(allowed, value) {
		return fmt.Errorf("%s must be one of %v, got %q", name, allowed, value)
	}
	return nil
}
