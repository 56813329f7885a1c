package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryBackoff_ExponentialWithJitter(t *testing.T) {
	for attempt := 0; attempt < 3; attempt++ {
		base := defaultRetryBaseWait << attempt
		minExpected := time.Duration(float64(base) * (1 - retryJitterFraction))
		maxExpected := time.Duration(float64(base) * (1 + retryJitterFraction))

		for i := 0; i < 20; i++ {
			d := retryBackoff(attempt)
			assert.GreaterOrEqual(t, d, minExpected)
			assert.LessOrEqual(t, d, maxExpected)
		}
	}
}

func TestRetryBackoff_NegativeAttempt(t *testing.T) {
	d := retryBackoff(-3)
	assert.LessOrEqual(t, d, time.Duration(float64(defaultRetryBaseWait)*(1+retryJitterFraction)))
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, isConnectionError(nil))
	assert.True(t, isConnectionError(errors.New("dial tcp 127.0.0.1:5432: connection refused")))
	assert.True(t, isConnectionError(errors.New("connection reset by peer")))
	assert.True(t, isConnectionError(errors.New("unexpected EOF")))
	assert.True(t, isConnectionError(&pgconn.PgError{Code: "08006"}))
	assert.False(t, isConnectionError(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isConnectionError(errors.New("syntax error at or near")))
}

func TestConnectWithRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := connectWithRetry(context.Background(), "redis", nil, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestConnectWithRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := connectWithRetry(ctx, "postgres", nil, func(context.Context) error {
		calls++
		cancel()
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := PostgresConfig{User: "u", Password: "p", Host: "db", Port: 5433, DBName: "search", SSLMode: "require"}
	assert.Equal(t, "postgres://u:p@db:5433/search?sslmode=require", cfg.DSN())
}

func TestRedisConfig_Options(t *testing.T) {
	cfg := RedisConfig{Host: "cache", Port: 6380, DB: 2, PoolSize: 7, ReadTimeout: time.Second}
	opts := cfg.Options()
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, time.Second, opts.ReadTimeout)
}
