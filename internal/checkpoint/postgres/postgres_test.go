package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-search/internal/checkpoint"
	"github.com/utafrali/storefront-search/internal/domain"
	"github.com/utafrali/storefront-search/pkg/database"
	apperrors "github.com/utafrali/storefront-search/pkg/errors"
)

var checkpointColumns = []string{"cursor", "sequence", "checksum", "fence_token", "last_run_id", "updated_at"}

func setupStore(t *testing.T) (*CheckpointStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock := database.NewMockPoolT(t)
	return NewCheckpointStore(mock), mock
}

func sampleLease() *domain.Lease {
	return &domain.Lease{Tenant: "T1", Resource: domain.ResourceProducts, HolderID: "worker-1", FenceToken: 3}
}

func TestCheckpointStore_Claim(t *testing.T) {
	s, mock := setupStore(t)
	l := sampleLease()

	mock.ExpectExec("INSERT INTO sync_checkpoints").
		WithArgs(l.Tenant, l.Resource, l.FenceToken, checkpoint.Checksum(l.Tenant, l.Resource, "", 0, "")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Claim(context.Background(), l))
}

func TestCheckpointStore_Claim_Stale(t *testing.T) {
	s, mock := setupStore(t)
	l := sampleLease()

	mock.ExpectExec("INSERT INTO sync_checkpoints").
		WithArgs(l.Tenant, l.Resource, l.FenceToken, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT fence_token, sequence FROM sync_checkpoints").
		WithArgs(l.Tenant, l.Resource).
		WillReturnRows(pgxmock.NewRows([]string{"fence_token", "sequence"}).AddRow(int64(5), int64(10)))

	err := s.Claim(context.Background(), l)
	assert.ErrorIs(t, err, apperrors.ErrStaleLockFence)
	assert.Contains(t, err.Error(), "superseded by 5")
}

func TestCheckpointStore_Advance(t *testing.T) {
	s, mock := setupStore(t)
	l := sampleLease()
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("UPDATE sync_checkpoints SET").
		WithArgs(l.Tenant, l.Resource, l.FenceToken, "c-4", int64(4),
			checkpoint.Checksum(l.Tenant, l.Resource, "c-4", 4, "run-1"), "run-1").
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(updated))

	cp, err := s.Advance(context.Background(), l, domain.Checkpoint{Cursor: "c-4", Sequence: 4, LastSuccessfulRunID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, "c-4", cp.Cursor)
	assert.Equal(t, updated, cp.UpdatedAt)
	assert.Equal(t, l.FenceToken, cp.FenceToken)
}

func TestCheckpointStore_Advance_StaleFence(t *testing.T) {
	s, mock := setupStore(t)
	l := sampleLease()

	mock.ExpectQuery("UPDATE sync_checkpoints SET").
		WithArgs(l.Tenant, l.Resource, l.FenceToken, "c-4", int64(4), pgxmock.AnyArg(), "").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT fence_token, sequence FROM sync_checkpoints").
		WithArgs(l.Tenant, l.Resource).
		WillReturnRows(pgxmock.NewRows([]string{"fence_token", "sequence"}).AddRow(int64(4), int64(2)))

	_, err := s.Advance(context.Background(), l, domain.Checkpoint{Cursor: "c-4", Sequence: 4})
	assert.ErrorIs(t, err, apperrors.ErrStaleLockFence)
}

func TestCheckpointStore_Advance_Regression(t *testing.T) {
	s, mock := setupStore(t)
	l := sampleLease()

	mock.ExpectQuery("UPDATE sync_checkpoints SET").
		WithArgs(l.Tenant, l.Resource, l.FenceToken, "c-1", int64(1), pgxmock.AnyArg(), "").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT fence_token, sequence FROM sync_checkpoints").
		WithArgs(l.Tenant, l.Resource).
		WillReturnRows(pgxmock.NewRows([]string{"fence_token", "sequence"}).AddRow(l.FenceToken, int64(7)))

	_, err := s.Advance(context.Background(), l, domain.Checkpoint{Cursor: "c-1", Sequence: 1})
	assert.ErrorIs(t, err, apperrors.ErrCheckpointRegression)
}

func TestCheckpointStore_Get(t *testing.T) {
	s, mock := setupStore(t)
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sum := checkpoint.Checksum("T1", domain.ResourceProducts, "c-9", 9, "run-2")

	mock.ExpectQuery("SELECT .+ FROM sync_checkpoints WHERE").
		WithArgs("T1", domain.ResourceProducts).
		WillReturnRows(pgxmock.NewRows(checkpointColumns).AddRow("c-9", int64(9), sum, int64(3), "run-2", updated))

	cp, err := s.Get(context.Background(), "T1", domain.ResourceProducts)
	require.NoError(t, err)
	assert.Equal(t, "c-9", cp.Cursor)
	assert.Equal(t, int64(9), cp.Sequence)
	assert.Equal(t, "run-2", cp.LastSuccessfulRunID)
}

func TestCheckpointStore_Get_Missing(t *testing.T) {
	s, mock := setupStore(t)

	mock.ExpectQuery("SELECT .+ FROM sync_checkpoints WHERE").
		WithArgs("T1", domain.ResourceProducts).
		WillReturnError(pgx.ErrNoRows)

	cp, err := s.Get(context.Background(), "T1", domain.ResourceProducts)
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestCheckpointStore_Get_Corrupt(t *testing.T) {
	s, mock := setupStore(t)

	mock.ExpectQuery("SELECT .+ FROM sync_checkpoints WHERE").
		WithArgs("T1", domain.ResourceProducts).
		WillReturnRows(pgxmock.NewRows(checkpointColumns).AddRow("c-9", int64(9), "deadbeef", int64(3), "", time.Now()))

	_, err := s.Get(context.Background(), "T1", domain.ResourceProducts)
	assert.ErrorIs(t, err, apperrors.ErrCheckpointCorrupt)
}

func TestCheckpointStore_Get_DBError(t *testing.T) {
	s, mock := setupStore(t)

	mock.ExpectQuery("SELECT .+ FROM sync_checkpoints WHERE").
		WithArgs("T1", domain.ResourceProducts).
		WillReturnError(errors.New("connection refused"))

	_, err := s.Get(context.Background(), "T1", domain.ResourceProducts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get checkpoint")
}

func TestCheckpointStore_Reset(t *testing.T) {
	s, mock := setupStore(t)
	l := sampleLease()

	mock.ExpectExec("UPDATE sync_checkpoints SET").
		WithArgs(l.Tenant, l.Resource, l.FenceToken, checkpoint.Checksum(l.Tenant, l.Resource, "", 0, "")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.Reset(context.Background(), l))
}

func TestCheckpointStore_Fence(t *testing.T) {
	s, mock := setupStore(t)

	mock.ExpectQuery("SELECT fence_token, sequence FROM sync_checkpoints").
		WithArgs("T1", domain.ResourceProducts).
		WillReturnRows(pgxmock.NewRows([]string{"fence_token", "sequence"}).AddRow(int64(12), int64(40)))
	mock.ExpectQuery("SELECT fence_token, sequence FROM sync_checkpoints").
		WithArgs("T2", domain.ResourceProducts).
		WillReturnError(pgx.ErrNoRows)

	fence, err := s.Fence(context.Background(), "T1", domain.ResourceProducts)
	require.NoError(t, err)
	assert.Equal(t, int64(12), fence)

	fence, err = s.Fence(context.Background(), "T2", domain.ResourceProducts)
	require.NoError(t, err)
	assert.Zero(t, fence)
}
