// Package lock provides lease-based mutual exclusion per (tenant, resource).
// A lease is granted only when no live lease exists; every grant carries a
// fence token strictly greater than all earlier grants for the same key, so
// a holder whose lease lapsed can be told apart from its successor.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/utafrali/storefront-search/internal/domain"
	apperrors "github.com/utafrali/storefront-search/pkg/errors"
)

// Manager grants, extends and returns leases.
type Manager interface {
	// Acquire grants a lease for ttl, or returns ErrLockContention when a
	// live lease is held.
	Acquire(ctx context.Context, tenant, resource, holder string, ttl time.Duration) (*domain.Lease, error)

	// Renew extends a live lease. It returns ErrStaleLockFence when the lease
	// expired or was superseded.
	Renew(ctx context.Context, lease *domain.Lease, ttl time.Duration) (*domain.Lease, error)

	// Release ends a lease early. Releasing a lease that is no longer live
	// returns ErrStaleLockFence and changes nothing.
	Release(ctx context.Context, lease *domain.Lease) error
}

// FenceFloor reports the highest fence token already accepted downstream for
// a key. A manager whose counter can be lost issues tokens above it.
type FenceFloor func(ctx context.Context, tenant, resource string) (int64, error)

// ValidateRequest checks Acquire arguments.
func ValidateRequest(tenant, resource, holder string, ttl time.Duration) error {
	switch {
	case tenant == "":
		return apperrors.InvalidInput("lock: tenant is required")
	case resource == "":
		return apperrors.InvalidInput("lock: resource is required")
	case holder == "":
		return apperrors.InvalidInput("lock: holder is required")
	case ttl <= 0:
		return apperrors.InvalidInput(fmt.Sprintf("lock: ttl must be positive, got %s", ttl))
	}
	return nil
}

// Contention wraps ErrLockContention with the contested key.
func Contention(tenant, resource string) error {
	return fmt.Errorf("acquire %s: %w", domain.LockKey(tenant, resource), apperrors.ErrLockContention)
}

// Stale wraps ErrStaleLockFence with the lease's identity.
func Stale(op string, lease *domain.Lease) error {
	return fmt.Errorf("%s %s fence %d: %w", op, lease.Key(), lease.FenceToken, apperrors.ErrStaleLockFence)
}
