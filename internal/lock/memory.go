package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/utafrali/storefront-search/internal/domain"
)

// MemoryManager is a process-local Manager. It provides exclusion only
// between goroutines of one process.
type MemoryManager struct {
	mu     sync.Mutex
	leases map[string]domain.Lease
	fences map[string]int64
	floor  FenceFloor
	now    func() time.Time
}

// MemoryOption configures a MemoryManager.
type MemoryOption func(*MemoryManager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryManager) { m.now = now }
}

// WithMemoryFenceFloor makes fresh counters start above floor, so a
// restarted process does not hand out tokens a checkpoint already rejected.
func WithMemoryFenceFloor(floor FenceFloor) MemoryOption {
	return func(m *MemoryManager) { m.floor = floor }
}

// NewMemoryManager creates an empty MemoryManager.
func NewMemoryManager(opts ...MemoryOption) *MemoryManager {
	m := &MemoryManager{
		leases: make(map[string]domain.Lease),
		fences: make(map[string]int64),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire implements Manager.
func (m *MemoryManager) Acquire(ctx context.Context, tenant, resource, holder string, ttl time.Duration) (*domain.Lease, error) {
	if err := ValidateRequest(tenant, resource, holder, ttl); err != nil {
		return nil, err
	}
	var floor int64
	if m.floor != nil {
		f, err := m.floor(ctx, tenant, resource)
		if err != nil {
			return nil, fmt.Errorf("read fence floor: %w", err)
		}
		floor = f
	}
	key := domain.LockKey(tenant, resource)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.leases[key]; ok && !cur.Expired(now) {
		return nil, Contention(tenant, resource)
	}
	m.fences[key] = max(m.fences[key], floor) + 1
	lease := domain.Lease{
		Tenant:     tenant,
		Resource:   resource,
		HolderID:   holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
		FenceToken: m.fences[key],
	}
	m.leases[key] = lease
	return &lease, nil
}

// Renew implements Manager.
func (m *MemoryManager) Renew(_ context.Context, lease *domain.Lease, ttl time.Duration) (*domain.Lease, error) {
	if err := ValidateRequest(lease.Tenant, lease.Resource, lease.HolderID, ttl); err != nil {
		return nil, err
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.current(lease, now)
	if !ok {
		return nil, Stale("renew", lease)
	}
	cur.ExpiresAt = now.Add(ttl)
	m.leases[lease.Key()] = cur
	return &cur, nil
}

// Release implements Manager.
func (m *MemoryManager) Release(_ context.Context, lease *domain.Lease) error {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.current(lease, now); !ok {
		return Stale("release", lease)
	}
	delete(m.leases, lease.Key())
	return nil
}

// current returns the stored lease when lease is still the live holder.
func (m *MemoryManager) current(lease *domain.Lease, now time.Time) (domain.Lease, bool) {
	cur, ok := m.leases[lease.Key()]
	if !ok || cur.Expired(now) || cur.FenceToken != lease.FenceToken || cur.HolderID != lease.HolderID {
		return domain.Lease{}, false
	}
	return cur, true
}
