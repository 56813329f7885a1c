package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/utafrali/storefront-search/internal/domain"
)

type record struct {
	cp       domain.Checkpoint
	checksum string
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*record), now: time.Now}
}

// Claim implements Store.
func (s *MemoryStore) Claim(_ context.Context, lease *domain.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[lease.Key()]
	if !ok {
		cp := domain.Checkpoint{
			Tenant:     lease.Tenant,
			Resource:   lease.Resource,
			UpdatedAt:  s.now(),
			FenceToken: lease.FenceToken,
		}
		s.records[lease.Key()] = &record{cp: cp, checksum: Checksum(cp.Tenant, cp.Resource, "", 0, "")}
		return nil
	}
	if lease.FenceToken < rec.cp.FenceToken {
		return Stale("claim", lease, rec.cp.FenceToken)
	}
	rec.cp.FenceToken = lease.FenceToken
	return nil
}

// Advance implements Store.
func (s *MemoryStore) Advance(_ context.Context, lease *domain.Lease, cp domain.Checkpoint) (*domain.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[lease.Key()]
	if !ok {
		return nil, Stale("advance", lease, 0)
	}
	if rec.cp.FenceToken != lease.FenceToken {
		return nil, Stale("advance", lease, rec.cp.FenceToken)
	}
	if cp.Sequence < rec.cp.Sequence {
		return nil, Regression(lease, rec.cp.Sequence, cp.Sequence)
	}

	next := domain.Checkpoint{
		Tenant:              lease.Tenant,
		Resource:            lease.Resource,
		Cursor:              cp.Cursor,
		Sequence:            cp.Sequence,
		UpdatedAt:           s.now(),
		LastSuccessfulRunID: cp.LastSuccessfulRunID,
		FenceToken:          lease.FenceToken,
	}
	rec.cp = next
	rec.checksum = Checksum(next.Tenant, next.Resource, next.Cursor, next.Sequence, next.LastSuccessfulRunID)
	return &next, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, tenant, resource string) (*domain.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[domain.LockKey(tenant, resource)]
	if !ok {
		return nil, nil
	}
	cp := rec.cp
	if err := Verify(&cp, rec.checksum); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Fence implements Store.
func (s *MemoryStore) Fence(_ context.Context, tenant, resource string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[domain.LockKey(tenant, resource)]; ok {
		return rec.cp.FenceToken, nil
	}
	return 0, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, lease *domain.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[lease.Key()]
	if !ok {
		return Stale("reset", lease, 0)
	}
	if rec.cp.FenceToken != lease.FenceToken {
		return Stale("reset", lease, rec.cp.FenceToken)
	}
	rec.cp.Cursor = ""
	rec.cp.Sequence = 0
	rec.cp.LastSuccessfulRunID = ""
	rec.cp.UpdatedAt = s.now()
	rec.checksum = Checksum(rec.cp.Tenant, rec.cp.Resource, "", 0, "")
	return nil
}
