package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront-search/internal/cache"
	"github.com/utafrali/storefront-search/internal/checkpoint"
	cppostgres "github.com/utafrali/storefront-search/internal/checkpoint/postgres"
	"github.com/utafrali/storefront-search/internal/config"
	"github.com/utafrali/storefront-search/internal/engine"
	esengine "github.com/utafrali/storefront-search/internal/engine/elasticsearch"
	"github.com/utafrali/storefront-search/internal/engine/memory"
	"github.com/utafrali/storefront-search/internal/event"
	"github.com/utafrali/storefront-search/internal/filterconfig"
	fcpostgres "github.com/utafrali/storefront-search/internal/filterconfig/postgres"
	"github.com/utafrali/storefront-search/internal/indexing"
	"github.com/utafrali/storefront-search/internal/lock"
	lockpostgres "github.com/utafrali/storefront-search/internal/lock/postgres"
	lockredis "github.com/utafrali/storefront-search/internal/lock/redis"
	"github.com/utafrali/storefront-search/migrations"
	"github.com/utafrali/storefront-search/pkg/database"
	"github.com/utafrali/storefront-search/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront-search/pkg/kafka"
)

const serviceName = "search"

// connectStores opens the PostgreSQL pool and Redis client the configured
// backends need. Either may be nil.
func connectStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, *redis.Client, error) {
	var pool *pgxpool.Pool
	if cfg.NeedsPostgres() {
		p, err := database.NewPostgresPool(ctx, &cfg.Postgres, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.Postgres.Host),
			slog.Int("port", cfg.Postgres.Port),
			slog.String("database", cfg.Postgres.DBName),
		)
		database.RegisterPoolMetrics(p, serviceName)

		if cfg.RunMigrations {
			if err := database.RunMigrations(ctx, p, migrations.FS, logger); err != nil {
				p.Close()
				return nil, nil, fmt.Errorf("run migrations: %w", err)
			}
			logger.Info("database migrations completed")
		}
		pool = p
	}

	var client *redis.Client
	if cfg.NeedsRedis() {
		c, err := database.NewRedisClient(ctx, cfg.Redis, logger)
		if err != nil {
			if pool != nil {
				pool.Close()
			}
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis", slog.String("addr", cfg.Redis.Addr()))
		database.RegisterRedisPoolMetrics(c, serviceName)
		client = c
	}
	return pool, client, nil
}

// newSearchEngine selects the engine backend.
func newSearchEngine(cfg *config.Config, logger *slog.Logger) (engine.SearchEngine, error) {
	if cfg.SearchEngine == config.BackendMemory {
		logger.Info("in-memory search engine initialized")
		return memory.New(), nil
	}

	eng, err := esengine.New(esengine.Config{
		URL:      cfg.ElasticsearchURL,
		Index:    cfg.ElasticsearchIndex,
		Username: cfg.ElasticsearchUser,
		Password: cfg.ElasticsearchPass,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init elasticsearch engine: %w", err)
	}
	logger.Info("elasticsearch search engine initialized",
		slog.String("url", cfg.ElasticsearchURL),
		slog.String("index", cfg.ElasticsearchIndex),
	)
	return eng, nil
}

func newCacheManager(cfg *config.Config, client *redis.Client, logger *slog.Logger) (*cache.Manager, error) {
	var backend cache.Backend
	if cfg.CacheBackend == config.BackendRedis {
		backend = cache.NewRedisBackend(client, "search:cache:")
	} else {
		b, err := cache.NewMemoryBackend(cfg.CacheCapacity, serviceName)
		if err != nil {
			return nil, fmt.Errorf("init memory cache: %w", err)
		}
		backend = b
	}
	return cache.New(backend, logger, cache.WithName(serviceName)), nil
}

func newFilterConfigRepository(cfg *config.Config, pool *pgxpool.Pool) filterconfig.Repository {
	if cfg.StateStore == config.BackendPostgres {
		return fcpostgres.NewFilterConfigRepository(pool)
	}
	return filterconfig.NewMemoryRepository()
}

func newCheckpointStore(cfg *config.Config, pool *pgxpool.Pool) checkpoint.Store {
	if cfg.StateStore == config.BackendPostgres {
		return cppostgres.NewCheckpointStore(pool)
	}
	return checkpoint.NewMemoryStore()
}

// newLockManager builds the lock backend. Backends whose fence counter can
// be lost seed it from the checkpoint's last claimed fence.
func newLockManager(cfg *config.Config, pool *pgxpool.Pool, client *redis.Client, checkpoints checkpoint.Store) lock.Manager {
	switch cfg.LockBackend {
	case config.BackendPostgres:
		return lockpostgres.NewLockManager(pool)
	case config.BackendRedis:
		return lockredis.NewLockManager(client, lockredis.WithFenceFloor(checkpoints.Fence))
	default:
		return lock.NewMemoryManager(lock.WithMemoryFenceFloor(checkpoints.Fence))
	}
}

// newProductSource reads the change feed through a retrying client behind
// a circuit breaker.
func newProductSource(cfg *config.Config, logger *slog.Logger) *indexing.HTTPSource {
	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(cfg.ProductClient),
		httpclient.DefaultCircuitBreakerConfig("product-service"),
		logger,
	)
	return indexing.NewHTTPSource(client, cfg.ProductServiceURL)
}

// newConsumers subscribes the event consumer to every topic it handles.
// Processed event ids are shared through Redis when it is configured.
func newConsumers(cfg *config.Config, handler *event.Consumer, client *redis.Client, dlq pkgkafka.DeadLetterPublisher, logger *slog.Logger) []*pkgkafka.Consumer {
	var store pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(100_000, 24*time.Hour)
	if client != nil {
		store = pkgkafka.NewRedisIdempotencyStore(client, "search:events:", 24*time.Hour)
	}
	handle := pkgkafka.IdempotentHandler(store, handler.Handle, logger)

	topics := event.Topics()
	consumers := make([]*pkgkafka.Consumer, 0, len(topics))
	for _, topic := range topics {
		consumers = append(consumers, pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:      cfg.KafkaBrokers,
			GroupID:      cfg.KafkaGroupID,
			Topic:        topic,
			MinBytes:     1,
			MaxBytes:     10e6,
			MaxRetries:   3,
			RetryBackoff: 500 * time.Millisecond,
		}, handle, logger, pkgkafka.WithDeadLetter(dlq)))
	}
	logger.Info("kafka consumers initialized",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.Int("topic_count", len(topics)),
	)
	return consumers
}
