// Package redis stores leases in Redis. A lease is a hash that expires with
// the lease; the fence counter is a separate key that never expires. All
// state changes run as Lua scripts so each is atomic.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront-search/internal/domain"
	"github.com/utafrali/storefront-search/internal/lock"
	"github.com/utafrali/storefront-search/pkg/database"
)

const keyPrefix = "search:lock:"

// KEYS[1] lease hash, KEYS[2] fence counter.
// ARGV[1] holder, ARGV[2] ttl ms, ARGV[3] acquired-at unix ms, ARGV[4] fence floor.
var acquireScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return false
end
local fence = redis.call('INCR', KEYS[2])
local floor = tonumber(ARGV[4])
if fence <= floor then
	fence = floor + 1
	redis.call('SET', KEYS[2], fence)
end
redis.call('HSET', KEYS[1], 'holder', ARGV[1], 'fence', fence, 'acquired', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return fence
`)

// KEYS[1] lease hash. ARGV[1] holder, ARGV[2] fence, ARGV[3] ttl ms.
var renewScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'holder') == ARGV[1] and redis.call('HGET', KEYS[1], 'fence') == ARGV[2] then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
	return 1
end
return 0
`)

// KEYS[1] lease hash. ARGV[1] holder, ARGV[2] fence.
var releaseScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'holder') == ARGV[1] and redis.call('HGET', KEYS[1], 'fence') == ARGV[2] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// LockManager implements lock.Manager on Redis.
type LockManager struct {
	client redis.UniversalClient
	floor  lock.FenceFloor
	now    func() time.Time
}

// Option configures a LockManager.
type Option func(*LockManager)

// WithFenceFloor raises the fence counter above floor on acquire, so a
// flushed or failed-over Redis keeps issuing tokens the checkpoint accepts.
func WithFenceFloor(floor lock.FenceFloor) Option {
	return func(r *LockManager) { r.floor = floor }
}

// NewLockManager creates a Redis-backed lock manager.
func NewLockManager(client redis.UniversalClient, opts ...Option) *LockManager {
	r := &LockManager{client: client, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ lock.Manager = (*LockManager)(nil)

func leaseKey(tenant, resource string) string {
	return keyPrefix + domain.LockKey(tenant, resource)
}

func fenceKey(tenant, resource string) string {
	return keyPrefix + "fence:" + domain.LockKey(tenant, resource)
}

// Acquire implements lock.Manager.
func (r *LockManager) Acquire(ctx context.Context, tenant, resource, holder string, ttl time.Duration) (_ *domain.Lease, err error) {
	if err := lock.ValidateRequest(tenant, resource, holder, ttl); err != nil {
		return nil, err
	}
	var floor int64
	if r.floor != nil {
		if floor, err = r.floor(ctx, tenant, resource); err != nil {
			return nil, fmt.Errorf("read fence floor: %w", err)
		}
	}
	key := leaseKey(tenant, resource)
	ctx, end := database.TraceCommand(ctx, "EVALSHA acquire", key)
	defer func() { end(err) }()

	now := r.now()
	fence, err := acquireScript.Run(ctx, r.client,
		[]string{key, fenceKey(tenant, resource)},
		holder, ttl.Milliseconds(), now.UnixMilli(), floor,
	).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, lock.Contention(tenant, resource)
		}
		return nil, fmt.Errorf("redis acquire lock: %w", err)
	}

	return &domain.Lease{
		Tenant:     tenant,
		Resource:   resource,
		HolderID:   holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
		FenceToken: fence,
	}, nil
}

// Renew implements lock.Manager.
func (r *LockManager) Renew(ctx context.Context, lease *domain.Lease, ttl time.Duration) (_ *domain.Lease, err error) {
	if err := lock.ValidateRequest(lease.Tenant, lease.Resource, lease.HolderID, ttl); err != nil {
		return nil, err
	}
	key := leaseKey(lease.Tenant, lease.Resource)
	ctx, end := database.TraceCommand(ctx, "EVALSHA renew", key)
	defer func() { end(err) }()

	now := r.now()
	ok, err := renewScript.Run(ctx, r.client, []string{key},
		lease.HolderID, strconv.FormatInt(lease.FenceToken, 10), ttl.Milliseconds(),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("redis renew lock: %w", err)
	}
	if ok == 0 {
		return nil, lock.Stale("renew", lease)
	}
	renewed := *lease
	renewed.ExpiresAt = now.Add(ttl)
	return &renewed, nil
}

// Release implements lock.Manager.
func (r *LockManager) Release(ctx context.Context, lease *domain.Lease) (err error) {
	key := leaseKey(lease.Tenant, lease.Resource)
	ctx, end := database.TraceCommand(ctx, "EVALSHA release", key)
	defer func() { end(err) }()

	n, err := releaseScript.Run(ctx, r.client, []string{key},
		lease.HolderID, strconv.FormatInt(lease.FenceToken, 10),
	).Int()
	if err != nil {
		return fmt.Errorf("redis release lock: %w", err)
	}
	if n == 0 {
		return lock.Stale("release", lease)
	}
	return nil
}
