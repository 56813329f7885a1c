package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-search/internal/checkpoint"
	"github.com/utafrali/storefront-search/internal/domain"
	"github.com/utafrali/storefront-search/internal/lock"
	"github.com/utafrali/storefront-search/internal/lock/locktest"
)

func TestMemoryManager(t *testing.T) {
	locktest.Run(t, func(t *testing.T) (lock.Manager, func(time.Duration)) {
		var (
			mu  sync.Mutex
			now = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		)
		clock := func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}
		advance := func(d time.Duration) {
			mu.Lock()
			now = now.Add(d)
			mu.Unlock()
		}
		return lock.NewMemoryManager(lock.WithClock(clock)), advance
	})
}

func TestMemoryManager_RestartIssuesFenceAboveCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()

	first := lock.NewMemoryManager(lock.WithMemoryFenceFloor(store.Fence))
	for range 3 {
		lease, err := first.Acquire(ctx, "T1", domain.ResourceProducts, "worker-1", time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.Claim(ctx, lease))
		require.NoError(t, first.Release(ctx, lease))
	}

	// Without a floor a fresh counter restarts at 1 and the checkpoint refuses it.
	bare, err := lock.NewMemoryManager().Acquire(ctx, "T1", domain.ResourceProducts, "worker-2", time.Minute)
	require.NoError(t, err)
	require.Error(t, store.Claim(ctx, bare))

	restarted := lock.NewMemoryManager(lock.WithMemoryFenceFloor(store.Fence))
	lease, err := restarted.Acquire(ctx, "T1", domain.ResourceProducts, "worker-2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(4), lease.FenceToken)
	require.NoError(t, store.Claim(ctx, lease))
}
