package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-search/internal/domain"
	"github.com/utafrali/storefront-search/internal/lock"
	"github.com/utafrali/storefront-search/internal/lock/locktest"
)

func setup(t *testing.T) (*LockManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLockManager(client), mr
}

func TestLockManager_Contract(t *testing.T) {
	locktest.Run(t, func(t *testing.T) (lock.Manager, func(time.Duration)) {
		m, mr := setup(t)
		return m, mr.FastForward
	})
}

func TestLockManager_KeyLayout(t *testing.T) {
	m, mr := setup(t)
	ctx := context.Background()

	lease, err := m.Acquire(ctx, "T1", domain.ResourceProducts, "worker-1", time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "worker-1", mr.HGet("search:lock:T1/products", "holder"))
	assert.Equal(t, "1", mr.HGet("search:lock:T1/products", "fence"))
	assert.Greater(t, mr.TTL("search:lock:T1/products"), time.Duration(0))

	require.NoError(t, m.Release(ctx, lease))
	assert.False(t, mr.Exists("search:lock:T1/products"))

	fence, err := mr.Get("search:lock:fence:T1/products")
	require.NoError(t, err)
	assert.Equal(t, "1", fence, "fence counter outlives the lease")
}

func TestLockManager_FenceFloorSurvivesFlush(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	claimed := int64(41)
	m := NewLockManager(client, WithFenceFloor(func(context.Context, string, string) (int64, error) {
		return claimed, nil
	}))
	ctx := context.Background()

	lease, err := m.Acquire(ctx, "T1", domain.ResourceProducts, "worker-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(42), lease.FenceToken)
	claimed = lease.FenceToken
	require.NoError(t, m.Release(ctx, lease))

	mr.FlushAll()

	lease, err = m.Acquire(ctx, "T1", domain.ResourceProducts, "worker-2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(43), lease.FenceToken)
	fence, err := mr.Get("search:lock:fence:T1/products")
	require.NoError(t, err)
	assert.Equal(t, "43", fence)
	require.NoError(t, m.Release(ctx, lease))

	// A floor below the counter leaves the counter in charge.
	claimed = 0
	lease, err = m.Acquire(ctx, "T1", domain.ResourceProducts, "worker-3", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(44), lease.FenceToken)
}

func TestLockManager_FenceFloorError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	boom := errors.New("checkpoint store down")
	m := NewLockManager(client, WithFenceFloor(func(context.Context, string, string) (int64, error) {
		return 0, boom
	}))

	_, err := m.Acquire(context.Background(), "T1", domain.ResourceProducts, "worker-1", time.Minute)
	require.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("search:lock:T1/products"))
}
