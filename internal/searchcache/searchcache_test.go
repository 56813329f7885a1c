package searchcache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-search/internal/cache"
	"github.com/utafrali/storefront-search/internal/domain"
)

func newService(t *testing.T) *Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := cache.NewMemoryBackend(100, "searchcache-test")
	require.NoError(t, err)
	return New(cache.New(backend, logger), Config{SearchTTL: time.Minute, FacetsTTL: time.Minute}, logger)
}

func input(tenant string, version int) domain.SearchInput {
	return domain.SearchInput{
		Tenant:              tenant,
		Query:               "shoe",
		Filters:             map[string][]string{"color": {"red"}},
		Page:                1,
		PageSize:            24,
		FilterConfigVersion: version,
	}
}

func counter(n *int, total int64) func(context.Context) (*domain.SearchResult, error) {
	return func(context.Context) (*domain.SearchResult, error) {
		*n++
		return &domain.SearchResult{Total: total, Page: 1, PageSize: 24}, nil
	}
}

func TestSearch_CachesPerInput(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	var calls int

	res, hit, err := s.Search(ctx, input("t1", 1), counter(&calls, 5))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(5), res.Total)

	reordered := input("t1", 1)
	reordered.Query = "  SHOE "
	res, hit, err = s.Search(ctx, reordered, counter(&calls, 99))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int64(5), res.Total)
	assert.Equal(t, 1, calls)
}

func TestSearch_VersionBumpNeverServesOldResult(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	var calls int

	_, _, err := s.Search(ctx, input("t1", 1), counter(&calls, 1))
	require.NoError(t, err)

	res, hit, err := s.Search(ctx, input("t1", 2), counter(&calls, 2))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(2), res.Total)
}

func TestSearch_TenantsIsolated(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	var calls int

	_, _, err := s.Search(ctx, input("t1", 1), counter(&calls, 1))
	require.NoError(t, err)
	res, hit, err := s.Search(ctx, input("t2", 1), counter(&calls, 2))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(2), res.Total)
}

func TestFacetsKey_IgnoresPaging(t *testing.T) {
	a := input("t1", 1)
	b := input("t1", 1)
	b.Page, b.Sort = 3, domain.SortPriceAsc

	ka, err := FacetsKey(a)
	require.NoError(t, err)
	kb, err := FacetsKey(b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)

	sa, _ := SearchKey(a)
	sb, _ := SearchKey(b)
	assert.NotEqual(t, sa, sb)
}

func TestInvalidateTenant(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	var calls int

	facets := func(context.Context) ([]domain.FacetResult, error) {
		calls++
		return []domain.FacetResult{{Handle: "color"}}, nil
	}

	_, _, err := s.Search(ctx, input("42", 1), counter(&calls, 1))
	require.NoError(t, err)
	_, _, err = s.Facets(ctx, input("42", 1), facets)
	require.NoError(t, err)
	_, _, err = s.Search(ctx, input("7", 1), counter(&calls, 1))
	require.NoError(t, err)

	n, err := s.InvalidateTenant(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, hit, err := s.Search(ctx, input("7", 1), counter(&calls, 1))
	require.NoError(t, err)
	assert.True(t, hit)
	_, hit, err = s.Search(ctx, input("42", 1), counter(&calls, 1))
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestInvalidateFacetsAndVersion(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	var calls int
	facets := func(context.Context) ([]domain.FacetResult, error) {
		return []domain.FacetResult{{Handle: "size"}}, nil
	}

	_, _, err := s.Search(ctx, input("42", 1), counter(&calls, 1))
	require.NoError(t, err)
	_, _, err = s.Facets(ctx, input("42", 1), facets)
	require.NoError(t, err)

	n, err := s.InvalidateFacets(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, hit, _ := s.Search(ctx, input("42", 1), counter(&calls, 1))
	assert.True(t, hit, "search entries survive a facets-only invalidation")

	n, err = s.InvalidateVersion(ctx, "42", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, hit, _ = s.Search(ctx, input("42", 1), counter(&calls, 1))
	assert.False(t, hit)
}

func TestTags(t *testing.T) {
	assert.Equal(t, []string{"tenant:t1", "fcv:t1:3"}, Tags(input("t1", 3)))
}
