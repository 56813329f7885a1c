// Package postgres stores checkpoints in the sync_checkpoints table.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront-search/internal/checkpoint"
	"github.com/utafrali/storefront-search/internal/domain"
	"github.com/utafrali/storefront-search/pkg/database"
)

// CheckpointStore implements checkpoint.Store on PostgreSQL.
type CheckpointStore struct {
	pool database.DBTX
}

// NewCheckpointStore creates a PostgreSQL-backed checkpoint store.
func NewCheckpointStore(pool database.DBTX) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

var _ checkpoint.Store = (*CheckpointStore)(nil)

// Claim creates the row on first use and otherwise raises its fence token.
// The conditional update rejects a token older than the stored one.
func (s *CheckpointStore) Claim(ctx context.Context, lease *domain.Lease) (err error) {
	query := `
		INSERT INTO sync_checkpoints (tenant_id, resource, cursor, sequence, checksum, fence_token, last_run_id, updated_at)
		VALUES ($1, $2, '', 0, $4, $3, '', NOW())
		ON CONFLICT (tenant_id, resource) DO UPDATE SET
			fence_token = EXCLUDED.fence_token
		WHERE sync_checkpoints.fence_token <= EXCLUDED.fence_token`

	ctx, end := database.TraceQuery(ctx, "checkpoint.claim", query)
	defer func() { end(err) }()

	tag, err := s.pool.Exec(ctx, query,
		lease.Tenant,
		lease.Resource,
		lease.FenceToken,
		checkpoint.Checksum(lease.Tenant, lease.Resource, "", 0, ""),
	)
	if err != nil {
		return fmt.Errorf("claim checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, _, err := s.position(ctx, lease.Tenant, lease.Resource)
		if err != nil {
			return err
		}
		return checkpoint.Stale("claim", lease, current)
	}
	return nil
}

// Advance writes the new position when the fence matches and the sequence
// does not move backwards; a rejected write is then classified by reading
// the row back.
func (s *CheckpointStore) Advance(ctx context.Context, lease *domain.Lease, cp domain.Checkpoint) (_ *domain.Checkpoint, err error) {
	query := `
		UPDATE sync_checkpoints SET
			cursor = $4,
			sequence = $5,
			checksum = $6,
			last_run_id = $7,
			updated_at = NOW()
		WHERE tenant_id = $1 AND resource = $2 AND fence_token = $3 AND sequence <= $5
		RETURNING updated_at`

	ctx, end := database.TraceQuery(ctx, "checkpoint.advance", query)
	defer func() { end(err) }()

	next := domain.Checkpoint{
		Tenant:              lease.Tenant,
		Resource:            lease.Resource,
		Cursor:              cp.Cursor,
		Sequence:            cp.Sequence,
		LastSuccessfulRunID: cp.LastSuccessfulRunID,
		FenceToken:          lease.FenceToken,
	}
	err = s.pool.QueryRow(ctx, query,
		lease.Tenant,
		lease.Resource,
		lease.FenceToken,
		cp.Cursor,
		cp.Sequence,
		checkpoint.Checksum(lease.Tenant, lease.Resource, cp.Cursor, cp.Sequence, cp.LastSuccessfulRunID),
		cp.LastSuccessfulRunID,
	).Scan(&next.UpdatedAt)
	if err == nil {
		return &next, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("advance checkpoint: %w", err)
	}

	fence, sequence, err := s.position(ctx, lease.Tenant, lease.Resource)
	if err != nil {
		return nil, err
	}
	if fence != lease.FenceToken {
		return nil, checkpoint.Stale("advance", lease, fence)
	}
	return nil, checkpoint.Regression(lease, sequence, cp.Sequence)
}

// Get loads and verifies the checkpoint.
func (s *CheckpointStore) Get(ctx context.Context, tenant, resource string) (_ *domain.Checkpoint, err error) {
	query := `
		SELECT cursor, sequence, checksum, fence_token, last_run_id, updated_at
		FROM sync_checkpoints
		WHERE tenant_id = $1 AND resource = $2`

	ctx, end := database.TraceQuery(ctx, "checkpoint.get", query)
	defer func() { end(err) }()

	cp := domain.Checkpoint{Tenant: tenant, Resource: resource}
	var checksum string
	err = s.pool.QueryRow(ctx, query, tenant, resource).Scan(
		&cp.Cursor,
		&cp.Sequence,
		&checksum,
		&cp.FenceToken,
		&cp.LastSuccessfulRunID,
		&cp.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	if err := checkpoint.Verify(&cp, checksum); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Reset rewinds the row under the current fence.
func (s *CheckpointStore) Reset(ctx context.Context, lease *domain.Lease) (err error) {
	query := `
		UPDATE sync_checkpoints SET
			cursor = '',
			sequence = 0,
			last_run_id = '',
			checksum = $4,
			updated_at = NOW()
		WHERE tenant_id = $1 AND resource = $2 AND fence_token = $3`

	ctx, end := database.TraceQuery(ctx, "checkpoint.reset", query)
	defer func() { end(err) }()

	tag, err := s.pool.Exec(ctx, query,
		lease.Tenant,
		lease.Resource,
		lease.FenceToken,
		checkpoint.Checksum(lease.Tenant, lease.Resource, "", 0, ""),
	)
	if err != nil {
		return fmt.Errorf("reset checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		fence, _, err := s.position(ctx, lease.Tenant, lease.Resource)
		if err != nil {
			return err
		}
		return checkpoint.Stale("reset", lease, fence)
	}
	return nil
}

// Fence implements checkpoint.Store.
func (s *CheckpointStore) Fence(ctx context.Context, tenant, resource string) (int64, error) {
	fence, _, err := s.position(ctx, tenant, resource)
	return fence, err
}

func (s *CheckpointStore) position(ctx context.Context, tenant, resource string) (fence, sequence int64, err error) {
	query := `SELECT fence_token, sequence FROM sync_checkpoints WHERE tenant_id = $1 AND resource = $2`
	err = s.pool.QueryRow(ctx, query, tenant, resource).Scan(&fence, &sequence)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("read checkpoint position: %w", err)
	}
	return fence, sequence, nil
}
