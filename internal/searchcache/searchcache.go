// Package searchcache scopes the cache manager to storefront search: it
// derives keys from normalized search inputs, tags entries by tenant and
// filter-config version, and exposes tenant-level invalidation.
package searchcache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/utafrali/storefront-search/internal/cache"
	"github.com/utafrali/storefront-search/internal/cachekey"
	"github.com/utafrali/storefront-search/internal/domain"
)

// Config holds entry lifetimes per namespace.
type Config struct {
	SearchTTL time.Duration
	FacetsTTL time.Duration
}

// Service is the tenant-scoped cache facade used by the search path.
type Service struct {
	cache     *cache.Manager
	searchTTL time.Duration
	facetsTTL time.Duration
	logger    *slog.Logger
}

// New creates a Service over a shared cache manager.
func New(m *cache.Manager, cfg Config, logger *slog.Logger) *Service {
	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = time.Minute
	}
	if cfg.FacetsTTL <= 0 {
		cfg.FacetsTTL = 5 * time.Minute
	}
	return &Service{cache: m, searchTTL: cfg.SearchTTL, facetsTTL: cfg.FacetsTTL, logger: logger}
}

// TenantTag tags every entry of a tenant.
func TenantTag(tenant string) string { return "tenant:" + tenant }

// VersionTag tags entries computed under one filter-config version.
func VersionTag(tenant string, version int) string {
	return "fcv:" + tenant + ":" + strconv.Itoa(version)
}

// Tags returns the invalidation tags for an input.
func Tags(in domain.SearchInput) []string {
	return []string{TenantTag(in.Tenant), VersionTag(in.Tenant, in.FilterConfigVersion)}
}

// SearchKey derives the cache key of a full search.
func SearchKey(in domain.SearchInput) (string, error) {
	return cachekey.Encode(cachekey.NamespaceSearch, in.Tenant, in.FilterConfigVersion, in.Normalize())
}

// FacetsKey derives the cache key of an aggregation-only request. Paging
// and sort do not change aggregations and are left out.
func FacetsKey(in domain.SearchInput) (string, error) {
	n := in.Normalize()
	n.Page, n.PageSize, n.Sort = 0, 0, ""
	return cachekey.Encode(cachekey.NamespaceFacets, in.Tenant, in.FilterConfigVersion, n)
}

// Search returns the cached result for in or computes it with fn. hit is
// true when the result was served from the cache.
func (s *Service) Search(ctx context.Context, in domain.SearchInput, fn func(context.Context) (*domain.SearchResult, error)) (*domain.SearchResult, bool, error) {
	key, err := SearchKey(in)
	if err != nil {
		s.logger.WarnContext(ctx, "cache key derivation failed, computing directly",
			slog.String("error", err.Error()),
		)
		res, err := fn(ctx)
		return res, false, err
	}
	return cache.Memoize(ctx, s.cache, key, s.searchTTL, Tags(in), fn)
}

// Facets returns the cached aggregations for in or computes them with fn.
func (s *Service) Facets(ctx context.Context, in domain.SearchInput, fn func(context.Context) ([]domain.FacetResult, error)) ([]domain.FacetResult, bool, error) {
	key, err := FacetsKey(in)
	if err != nil {
		s.logger.WarnContext(ctx, "cache key derivation failed, computing directly",
			slog.String("error", err.Error()),
		)
		res, err := fn(ctx)
		return res, false, err
	}
	return cache.Memoize(ctx, s.cache, key, s.facetsTTL, Tags(in), fn)
}

// InvalidateTenant removes every entry of tenant in every namespace and
// version.
func (s *Service) InvalidateTenant(ctx context.Context, tenant string) (int, error) {
	n, err := s.cache.InvalidateByPattern(ctx, cachekey.TenantPattern(tenant))
	if err != nil {
		return n, fmt.Errorf("invalidating tenant %s: %w", tenant, err)
	}
	tagged, err := s.cache.InvalidateByTags(ctx, TenantTag(tenant))
	if err != nil {
		return n, fmt.Errorf("invalidating tenant %s: %w", tenant, err)
	}
	return n + tagged, nil
}

// InvalidateFacets removes tenant's cached aggregations only.
func (s *Service) InvalidateFacets(ctx context.Context, tenant string) (int, error) {
	n, err := s.cache.InvalidateByPattern(ctx, cachekey.NamespacePattern(cachekey.NamespaceFacets, tenant))
	if err != nil {
		return n, fmt.Errorf("invalidating facets of %s: %w", tenant, err)
	}
	return n, nil
}

// InvalidateVersion removes entries computed under one filter-config
// version. Superseded versions stop being read anyway; this frees space
// before their TTL runs out.
func (s *Service) InvalidateVersion(ctx context.Context, tenant string, version int) (int, error) {
	n, err := s.cache.InvalidateByTags(ctx, VersionTag(tenant, version))
	if err != nil {
		return n, fmt.Errorf("invalidating %s version %d: %w", tenant, version, err)
	}
	return n, nil
}

// Ping checks the cache backend.
func (s *Service) Ping(ctx context.Context) error {
	return s.cache.Ping(ctx)
}
