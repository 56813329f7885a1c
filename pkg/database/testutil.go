package database

import (
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

// NewMockPool creates a pgxmock pool satisfying DBTX.
func NewMockPool() (pgxmock.PgxPoolIface, error) {
	return pgxmock.NewPool()
}

// NewMockPoolT creates a pgxmock pool that fails the test if it cannot be
// created and verifies all expectations were met when the test ends.
func NewMockPoolT(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create mock pool: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet database expectations: %v", err)
		}
		mock.Close()
	})
	return mock
}
