// Package checkpoint persists the sync cursor of each (tenant, resource).
//
// Writes are fenced: a run first claims the checkpoint with its lease, which
// records the lease's fence token, and every later write must present that
// same token. A claim with a newer token supersedes older holders, whose
// writes are then rejected with ErrStaleLockFence. Sequences never decrease
// except through Reset.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/utafrali/storefront-search/internal/domain"
	apperrors "github.com/utafrali/storefront-search/pkg/errors"
)

// Store is the durable checkpoint store.
type Store interface {
	// Claim registers lease as the current writer. It fails with
	// ErrStaleLockFence when a newer fence token has already claimed.
	Claim(ctx context.Context, lease *domain.Lease) error

	// Advance writes cp under lease. It fails with ErrStaleLockFence when
	// lease is no longer the current writer and with ErrCheckpointRegression
	// when cp.Sequence is below the stored sequence.
	Advance(ctx context.Context, lease *domain.Lease, cp domain.Checkpoint) (*domain.Checkpoint, error)

	// Get returns the stored checkpoint, or nil when none exists. A record
	// failing its integrity check yields ErrCheckpointCorrupt.
	Get(ctx context.Context, tenant, resource string) (*domain.Checkpoint, error)

	// Reset rewinds the checkpoint to the beginning of the feed.
	Reset(ctx context.Context, lease *domain.Lease) error

	// Fence returns the highest fence token that has claimed the
	// checkpoint, or 0 when none has. It does not verify the checksum.
	Fence(ctx context.Context, tenant, resource string) (int64, error)
}

// Checksum fingerprints the position fields of a checkpoint.
func Checksum(tenant, resource, cursor string, sequence int64, runID string) string {
	h := sha256.New()
	for _, part := range []string{tenant, resource, cursor, strconv.FormatInt(sequence, 10), runID} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks a loaded checkpoint against its stored checksum.
func Verify(cp *domain.Checkpoint, checksum string) error {
	if Checksum(cp.Tenant, cp.Resource, cp.Cursor, cp.Sequence, cp.LastSuccessfulRunID) != checksum {
		return fmt.Errorf("checkpoint %s: checksum mismatch: %w",
			domain.LockKey(cp.Tenant, cp.Resource), apperrors.ErrCheckpointCorrupt)
	}
	return nil
}

// Stale wraps ErrStaleLockFence for a rejected write.
func Stale(op string, lease *domain.Lease, current int64) error {
	return fmt.Errorf("%s checkpoint %s: fence %d superseded by %d: %w",
		op, lease.Key(), lease.FenceToken, current, apperrors.ErrStaleLockFence)
}

// Regression wraps ErrCheckpointRegression.
func Regression(lease *domain.Lease, stored, proposed int64) error {
	return fmt.Errorf("advance checkpoint %s: sequence %d below stored %d: %w",
		lease.Key(), proposed, stored, apperrors.ErrCheckpointRegression)
}
