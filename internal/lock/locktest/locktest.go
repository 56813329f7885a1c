// Package locktest holds behaviour tests shared by every lock.Manager.
package locktest

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-search/internal/domain"
	"github.com/utafrali/storefront-search/internal/lock"
	apperrors "github.com/utafrali/storefront-search/pkg/errors"
)

// Factory returns a fresh manager and a function that moves the manager's
// notion of time forward.
type Factory func(t *testing.T) (m lock.Manager, advance func(time.Duration))

const ttl = 30 * time.Second

// Run exercises the lock.Manager contract against managers built by newManager.
func Run(t *testing.T, newManager Factory) {
	t.Run("ConcurrentAcquireGrantsOne", func(t *testing.T) {
		m, _ := newManager(t)
		ctx := context.Background()

		const contenders = 25
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			granted  []*domain.Lease
			contends int
		)
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				lease, err := m.Acquire(ctx, "T1", domain.ResourceProducts, holder(i), ttl)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					assert.ErrorIs(t, err, apperrors.ErrLockContention)
					contends++
					return
				}
				granted = append(granted, lease)
			}(i)
		}
		wg.Wait()

		require.Len(t, granted, 1)
		assert.Equal(t, contenders-1, contends)
		assert.Equal(t, int64(1), granted[0].FenceToken)
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		m, _ := newManager(t)
		ctx := context.Background()

		_, err := m.Acquire(ctx, "T1", domain.ResourceProducts, "a", ttl)
		require.NoError(t, err)
		_, err = m.Acquire(ctx, "T2", domain.ResourceProducts, "a", ttl)
		require.NoError(t, err)
		_, err = m.Acquire(ctx, "T1", "collections", "a", ttl)
		require.NoError(t, err)
	})

	t.Run("ExpiryAllowsTakeoverWithHigherFence", func(t *testing.T) {
		m, advance := newManager(t)
		ctx := context.Background()

		first, err := m.Acquire(ctx, "T1", domain.ResourceProducts, "a", ttl)
		require.NoError(t, err)

		advance(ttl + time.Second)

		second, err := m.Acquire(ctx, "T1", domain.ResourceProducts, "b", ttl)
		require.NoError(t, err)
		assert.Greater(t, second.FenceToken, first.FenceToken)

		_, err = m.Renew(ctx, first, ttl)
		assert.ErrorIs(t, err, apperrors.ErrStaleLockFence)
		assert.ErrorIs(t, m.Release(ctx, first), apperrors.ErrStaleLockFence)

		// The stale release must not have freed the successor's lease.
		_, err = m.Acquire(ctx, "T1", domain.ResourceProducts, "c", ttl)
		assert.ErrorIs(t, err, apperrors.ErrLockContention)
	})

	t.Run("RenewExtendsLease", func(t *testing.T) {
		m, advance := newManager(t)
		ctx := context.Background()

		lease, err := m.Acquire(ctx, "T1", domain.ResourceProducts, "a", ttl)
		require.NoError(t, err)

		advance(ttl / 2)
		renewed, err := m.Renew(ctx, lease, ttl)
		require.NoError(t, err)
		assert.Equal(t, lease.FenceToken, renewed.FenceToken)

		advance(ttl/2 + time.Second)
		_, err = m.Acquire(ctx, "T1", domain.ResourceProducts, "b", ttl)
		assert.ErrorIs(t, err, apperrors.ErrLockContention, "renewed lease is still live")
	})

	t.Run("ReleaseFreesKeyAndFenceKeepsIncreasing", func(t *testing.T) {
		m, _ := newManager(t)
		ctx := context.Background()

		first, err := m.Acquire(ctx, "T1", domain.ResourceProducts, "a", ttl)
		require.NoError(t, err)
		require.NoError(t, m.Release(ctx, first))

		second, err := m.Acquire(ctx, "T1", domain.ResourceProducts, "a", ttl)
		require.NoError(t, err)
		assert.Greater(t, second.FenceToken, first.FenceToken)

		assert.ErrorIs(t, m.Release(ctx, first), apperrors.ErrStaleLockFence)
	})

	t.Run("RejectsInvalidRequests", func(t *testing.T) {
		m, _ := newManager(t)
		ctx := context.Background()

		_, err := m.Acquire(ctx, "", domain.ResourceProducts, "a", ttl)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		_, err = m.Acquire(ctx, "T1", domain.ResourceProducts, "a", 0)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func holder(i int) string {
	return "holder-" + strconv.Itoa(i)
}
