// Package postgres stores leases in the sync_locks table. Each row keeps
// the last fence token issued for its key, so tokens keep increasing across
// releases and expiries.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront-search/internal/domain"
	"github.com/utafrali/storefront-search/internal/lock"
	"github.com/utafrali/storefront-search/pkg/database"
)

// LockManager implements lock.Manager on PostgreSQL.
type LockManager struct {
	pool database.DBTX
}

// NewLockManager creates a PostgreSQL-backed lock manager.
func NewLockManager(pool database.DBTX) *LockManager {
	return &LockManager{pool: pool}
}

var _ lock.Manager = (*LockManager)(nil)

// Acquire inserts the lease row, or takes over a row whose lease has
// expired. The conditional upsert is the compare-and-swap: when a live lease
// exists the WHERE clause rejects the update and no row is returned.
func (r *LockManager) Acquire(ctx context.Context, tenant, resource, holder string, ttl time.Duration) (_ *domain.Lease, err error) {
	if err := lock.ValidateRequest(tenant, resource, holder, ttl); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO sync_locks (tenant_id, resource, holder_id, acquired_at, expires_at, fence_token)
		VALUES ($1, $2, $3, NOW(), NOW() + $4::bigint * INTERVAL '1 millisecond', 1)
		ON CONFLICT (tenant_id, resource) DO UPDATE SET
			holder_id = EXCLUDED.holder_id,
			acquired_at = EXCLUDED.acquired_at,
			expires_at = EXCLUDED.expires_at,
			fence_token = sync_locks.fence_token + 1
		WHERE sync_locks.expires_at <= NOW()
		RETURNING acquired_at, expires_at, fence_token`

	ctx, end := database.TraceQuery(ctx, "lock.acquire", query)
	defer func() { end(err) }()

	lease := domain.Lease{Tenant: tenant, Resource: resource, HolderID: holder}
	err = r.pool.QueryRow(ctx, query, tenant, resource, holder, ttl.Milliseconds()).Scan(
		&lease.AcquiredAt,
		&lease.ExpiresAt,
		&lease.FenceToken,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lock.Contention(tenant, resource)
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	return &lease, nil
}

// Renew extends the lease when holder and fence token still match a live row.
func (r *LockManager) Renew(ctx context.Context, lease *domain.Lease, ttl time.Duration) (_ *domain.Lease, err error) {
	if err := lock.ValidateRequest(lease.Tenant, lease.Resource, lease.HolderID, ttl); err != nil {
		return nil, err
	}

	query := `
		UPDATE sync_locks SET expires_at = NOW() + $5::bigint * INTERVAL '1 millisecond'
		WHERE tenant_id = $1 AND resource = $2 AND holder_id = $3 AND fence_token = $4
			AND expires_at > NOW()
		RETURNING expires_at`

	ctx, end := database.TraceQuery(ctx, "lock.renew", query)
	defer func() { end(err) }()

	renewed := *lease
	err = r.pool.QueryRow(ctx, query,
		lease.Tenant, lease.Resource, lease.HolderID, lease.FenceToken, ttl.Milliseconds(),
	).Scan(&renewed.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lock.Stale("renew", lease)
		}
		return nil, fmt.Errorf("renew lock: %w", err)
	}
	return &renewed, nil
}

// Release expires the row instead of deleting it so the fence counter
// survives.
func (r *LockManager) Release(ctx context.Context, lease *domain.Lease) (err error) {
	query := `
		UPDATE sync_locks SET expires_at = NOW()
		WHERE tenant_id = $1 AND resource = $2 AND holder_id = $3 AND fence_token = $4
			AND expires_at > NOW()`

	ctx, end := database.TraceQuery(ctx, "lock.release", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, lease.Tenant, lease.Resource, lease.HolderID, lease.FenceToken)
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return lock.Stale("release", lease)
	}
	return nil
}
