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

	"github.com/utafrali/storefront-search/internal/domain"
	"github.com/utafrali/storefront-search/pkg/database"
	apperrors "github.com/utafrali/storefront-search/pkg/errors"
)

var leaseColumns = []string{"acquired_at", "expires_at", "fence_token"}

func setupManager(t *testing.T) (*LockManager, pgxmock.PgxPoolIface) {
	t.Helper()
	mock := database.NewMockPoolT(t)
	return NewLockManager(mock), mock
}

func sampleLease() *domain.Lease {
	acquired := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Lease{
		Tenant:     "T1",
		Resource:   domain.ResourceProducts,
		HolderID:   "worker-1",
		AcquiredAt: acquired,
		ExpiresAt:  acquired.Add(30 * time.Second),
		FenceToken: 7,
	}
}

func TestLockManager_Acquire_Success(t *testing.T) {
	m, mock := setupManager(t)
	l := sampleLease()

	mock.ExpectQuery("INSERT INTO sync_locks").
		WithArgs("T1", domain.ResourceProducts, "worker-1", int64(30000)).
		WillReturnRows(pgxmock.NewRows(leaseColumns).AddRow(l.AcquiredAt, l.ExpiresAt, l.FenceToken))

	lease, err := m.Acquire(context.Background(), "T1", domain.ResourceProducts, "worker-1", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, l, lease)
}

func TestLockManager_Acquire_Contention(t *testing.T) {
	m, mock := setupManager(t)

	mock.ExpectQuery("INSERT INTO sync_locks .+ WHERE sync_locks.expires_at <= NOW\\(\\)").
		WithArgs("T1", domain.ResourceProducts, "worker-2", int64(30000)).
		WillReturnError(pgx.ErrNoRows)

	lease, err := m.Acquire(context.Background(), "T1", domain.ResourceProducts, "worker-2", 30*time.Second)
	assert.Nil(t, lease)
	assert.ErrorIs(t, err, apperrors.ErrLockContention)
}

func TestLockManager_Acquire_DBError(t *testing.T) {
	m, mock := setupManager(t)

	mock.ExpectQuery("INSERT INTO sync_locks").
		WithArgs("T1", domain.ResourceProducts, "worker-1", int64(1000)).
		WillReturnError(errors.New("connection reset"))

	_, err := m.Acquire(context.Background(), "T1", domain.ResourceProducts, "worker-1", time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrLockContention)
	assert.Contains(t, err.Error(), "acquire lock")
}

func TestLockManager_Acquire_InvalidTTL(t *testing.T) {
	m, _ := setupManager(t)
	_, err := m.Acquire(context.Background(), "T1", domain.ResourceProducts, "worker-1", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestLockManager_Renew(t *testing.T) {
	m, mock := setupManager(t)
	l := sampleLease()
	extended := l.ExpiresAt.Add(time.Minute)

	mock.ExpectQuery("UPDATE sync_locks SET expires_at").
		WithArgs(l.Tenant, l.Resource, l.HolderID, l.FenceToken, int64(60000)).
		WillReturnRows(pgxmock.NewRows([]string{"expires_at"}).AddRow(extended))

	renewed, err := m.Renew(context.Background(), l, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, extended, renewed.ExpiresAt)
	assert.Equal(t, l.FenceToken, renewed.FenceToken)
	assert.NotEqual(t, extended, l.ExpiresAt, "input lease is not mutated")
}

func TestLockManager_Renew_Stale(t *testing.T) {
	m, mock := setupManager(t)
	l := sampleLease()

	mock.ExpectQuery("UPDATE sync_locks SET expires_at").
		WithArgs(l.Tenant, l.Resource, l.HolderID, l.FenceToken, int64(60000)).
		WillReturnError(pgx.ErrNoRows)

	_, err := m.Renew(context.Background(), l, time.Minute)
	assert.ErrorIs(t, err, apperrors.ErrStaleLockFence)
}

func TestLockManager_Release(t *testing.T) {
	m, mock := setupManager(t)
	l := sampleLease()

	mock.ExpectExec("UPDATE sync_locks SET expires_at = NOW\\(\\)").
		WithArgs(l.Tenant, l.Resource, l.HolderID, l.FenceToken).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, m.Release(context.Background(), l))
}

func TestLockManager_Release_Stale(t *testing.T) {
	m, mock := setupManager(t)
	l := sampleLease()

	mock.ExpectExec("UPDATE sync_locks SET expires_at = NOW\\(\\)").
		WithArgs(l.Tenant, l.Resource, l.HolderID, l.FenceToken).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, m.Release(context.Background(), l), apperrors.ErrStaleLockFence)
}
