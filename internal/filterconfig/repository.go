package filterconfig

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront-search/internal/domain"
	apperrors "github.com/utafrali/storefront-search/pkg/errors"
)

// Repository persists filter configurations.
type Repository interface {
	// GetActive returns the tenant's active config or ErrConfigurationMissing.
	GetActive(ctx context.Context, tenant string) (*domain.FilterConfig, error)

	// Publish stores facets as the tenant's next version and makes it the
	// only active one in a single atomic step. It returns the new config
	// and the version it replaced (0 when there was none).
	Publish(ctx context.Context, tenant string, facets []domain.Facet) (cfg *domain.FilterConfig, previous int, err error)

	// History lists the tenant's versions, newest first.
	History(ctx context.Context, tenant string, limit int) ([]domain.FilterConfig, error)
}

// MemoryRepository is a process-local Repository.
type MemoryRepository struct {
	mu       sync.RWMutex
	versions map[string][]domain.FilterConfig
	now      func() time.Time
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{versions: make(map[string][]domain.FilterConfig), now: time.Now}
}

// GetActive implements Repository.
func (r *MemoryRepository) GetActive(_ context.Context, tenant string) (*domain.FilterConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cfg := range r.versions[tenant] {
		if cfg.IsActive {
			out := cfg
			out.Facets = slices.Clone(cfg.Facets)
			return &out, nil
		}
	}
	return nil, apperrors.ErrConfigurationMissing
}

// Publish implements Repository.
func (r *MemoryRepository) Publish(_ context.Context, tenant string, facets []domain.Facet) (*domain.FilterConfig, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions := r.versions[tenant]
	previous, latest := 0, 0
	for i := range versions {
		if versions[i].IsActive {
			previous = versions[i].Version
			versions[i].IsActive = false
		}
		latest = max(latest, versions[i].Version)
	}

	cfg := domain.FilterConfig{
		ID:        uuid.NewString(),
		Tenant:    tenant,
		Version:   latest + 1,
		Facets:    slices.Clone(facets),
		IsActive:  true,
		CreatedAt: r.now().UTC(),
	}
	r.versions[tenant] = append(versions, cfg)
	return &cfg, previous, nil
}

// History implements Repository.
func (r *MemoryRepository) History(_ context.Context, tenant string, limit int) ([]domain.FilterConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.versions[tenant]
	out := make([]domain.FilterConfig, 0, min(len(versions), limit))
	for i := len(versions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, versions[i])
	}
	return out, nil
}
