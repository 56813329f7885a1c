package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host         string        `env:"HOST" envDefault:"localhost"`
	Port         int           `env:"PORT" envDefault:"6379"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB" envDefault:"0"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"20"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"2s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"500ms"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"500ms"`
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Options converts the config into go-redis client options. Short read and
// write timeouts keep a slow cache from stalling search requests.
func (c RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// NewRedisClient creates a Redis client and verifies the connection, retrying
// the initial ping with exponential backoff.
func NewRedisClient(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(cfg.Options())

	err := connectWithRetry(ctx, "redis", logger, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
