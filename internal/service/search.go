package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/utafrali/storefront-search/internal/domain"
	"github.com/utafrali/storefront-search/internal/engine"
	"github.com/utafrali/storefront-search/internal/filterconfig"
	"github.com/utafrali/storefront-search/internal/searchcache"
	apperrors "github.com/utafrali/storefront-search/pkg/errors"
	"github.com/utafrali/storefront-search/pkg/pagination"
	"github.com/utafrali/storefront-search/pkg/slug"
)

// FilterPrefix marks a query parameter as a facet filter, e.g. filter.color=red.
const FilterPrefix = "filter."

// Readiness reports whether the search engine can serve requests.
type Readiness interface {
	Ensure() error
}

// FilterConfigs resolves a tenant's active filter configuration.
type FilterConfigs interface {
	GetActiveFilterConfig(ctx context.Context, tenant string) (*domain.FilterConfig, error)
}

// SearchService implements the storefront search operations.
type SearchService struct {
	engine    engine.SearchEngine
	readiness Readiness
	configs   FilterConfigs
	cache     *searchcache.Service
	limits    pagination.Limits
	logger    *slog.Logger
}

// NewSearchService creates a new search service.
func NewSearchService(
	eng engine.SearchEngine,
	readiness Readiness,
	configs FilterConfigs,
	cache *searchcache.Service,
	limits pagination.Limits,
	logger *slog.Logger,
) *SearchService {
	return &SearchService{
		engine:    eng,
		readiness: readiness,
		configs:   configs,
		cache:     cache,
		limits:    limits,
		logger:    logger,
	}
}

// ParseInput builds a normalized SearchInput from storefront query
// parameters. Unknown parameters are ignored.
func ParseInput(tenant string, params url.Values, limits pagination.Limits) domain.SearchInput {
	p := pagination.FromValues(params, limits)
	in := domain.SearchInput{
		Tenant:     tenant,
		Query:      params.Get("q"),
		Collection: slug.Generate(params.Get("collection")),
		Sort:       params.Get("sort"),
		Page:       p.Page,
		PageSize:   p.PerPage,
	}

	for key, values := range params {
		handle, ok := strings.CutPrefix(key, FilterPrefix)
		if !ok || handle == "" {
			continue
		}
		for _, raw := range values {
			for _, v := range strings.Split(raw, ",") {
				if v = strings.TrimSpace(v); v == "" {
					continue
				}
				if in.Filters == nil {
					in.Filters = make(map[string][]string)
				}
				in.Filters[handle] = append(in.Filters[handle], v)
			}
		}
	}
	return in.Normalize()
}

// Search runs a storefront search for the tenant.
func (s *SearchService) Search(ctx context.Context, tenant string, params url.Values) (*domain.SearchResult, error) {
	return s.search(ctx, tenant, params, nil)
}

// SearchCollection runs a search restricted to one collection, overriding
// any collection parameter.
func (s *SearchService) SearchCollection(ctx context.Context, tenant, collection string, params url.Values) (*domain.SearchResult, error) {
	return s.search(ctx, tenant, params, &filterconfig.Scope{Collection: slug.Generate(collection)})
}

func (s *SearchService) search(ctx context.Context, tenant string, params url.Values, scope *filterconfig.Scope) (*domain.SearchResult, error) {
	in, cfg, err := s.prepare(ctx, tenant, params, scope)
	if err != nil {
		return nil, err
	}

	result, hit, err := s.cache.Search(ctx, in, func(ctx context.Context) (*domain.SearchResult, error) {
		return s.execute(ctx, in, cfg)
	})
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "search executed",
		slog.String("tenant_id", tenant),
		slog.String("query", in.Query),
		slog.Int64("total", result.Total),
		slog.Bool("cache_hit", hit),
	)
	return result, nil
}

// Facets returns only the aggregations for the request. Unconfigured
// tenants get no facets.
func (s *SearchService) Facets(ctx context.Context, tenant string, params url.Values) ([]domain.FacetResult, error) {
	in, cfg, err := s.prepare(ctx, tenant, params, nil)
	if err != nil {
		return nil, err
	}
	if len(in.Facets) == 0 {
		return []domain.FacetResult{}, nil
	}

	facets, _, err := s.cache.Facets(ctx, in, func(ctx context.Context) ([]domain.FacetResult, error) {
		facets, err := s.engine.Aggregate(ctx, in, in.Facets)
		if err != nil {
			return nil, unavailable(err)
		}
		return decorate(facets, cfg), nil
	})
	return facets, err
}

// StorefrontFilters returns the facet descriptors a storefront renders.
func (s *SearchService) StorefrontFilters(ctx context.Context, tenant string) ([]domain.ClientFacetDescriptor, error) {
	if tenant == "" {
		return nil, apperrors.InvalidInput("tenant is required")
	}
	cfg, err := s.configs.GetActiveFilterConfig(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return filterconfig.FormatFilterConfigForStorefront(cfg), nil
}

// Suggest returns title completions for prefix.
func (s *SearchService) Suggest(ctx context.Context, tenant, prefix string, limit int) ([]string, error) {
	if tenant == "" {
		return nil, apperrors.InvalidInput("tenant is required")
	}
	if err := s.readiness.Ensure(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	limit = min(limit, 20)

	out, err := s.engine.Suggest(ctx, tenant, prefix, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// prepare checks engine readiness and shapes the request by the tenant's
// active filter config.
func (s *SearchService) prepare(ctx context.Context, tenant string, params url.Values, scope *filterconfig.Scope) (domain.SearchInput, *domain.FilterConfig, error) {
	if tenant == "" {
		return domain.SearchInput{}, nil, apperrors.InvalidInput("tenant is required")
	}
	if err := s.readiness.Ensure(); err != nil {
		return domain.SearchInput{}, nil, err
	}

	cfg, err := s.configs.GetActiveFilterConfig(ctx, tenant)
	if err != nil {
		return domain.SearchInput{}, nil, err
	}

	in := filterconfig.ApplyFilterConfigToInput(cfg, ParseInput(tenant, params, s.limits), scope)
	return in, cfg, nil
}

// execute queries hits and aggregations concurrently. Either failing fails
// the request.
func (s *SearchService) execute(ctx context.Context, in domain.SearchInput, cfg *domain.FilterConfig) (*domain.SearchResult, error) {
	var (
		page   *engine.Page
		facets []domain.FacetResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.engine.Search(gctx, in)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		page = p
		return nil
	})
	if len(in.Facets) > 0 {
		g.Go(func() error {
			f, err := s.engine.Aggregate(gctx, in, in.Facets)
			if err != nil {
				return fmt.Errorf("aggregate: %w", err)
			}
			facets = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.WarnContext(ctx, "search engine request failed",
			slog.String("tenant_id", in.Tenant),
			slog.String("error", err.Error()),
		)
		return nil, unavailable(err)
	}

	products := page.Products
	if products == nil {
		products = []domain.ProductSummary{}
	}
	return &domain.SearchResult{
		Products:   products,
		Total:      page.Total,
		Page:       in.Page,
		PageSize:   in.PageSize,
		TotalPages: pagination.TotalPages(page.Total, in.PageSize),
		Facets:     decorate(facets, cfg),
	}, nil
}

// decorate fills labels and display types from the config.
func decorate(facets []domain.FacetResult, cfg *domain.FilterConfig) []domain.FacetResult {
	if len(facets) == 0 {
		return nil
	}
	byHandle := make(map[string]domain.Facet, len(facets))
	for _, f := range cfg.EnabledFacets() {
		byHandle[f.Handle] = f
	}

	out := make([]domain.FacetResult, 0, len(facets))
	for _, f := range facets {
		if def, ok := byHandle[f.Handle]; ok {
			f.Label = def.Label
			f.DisplayType = string(def.DisplayType)
		}
		out = append(out, f)
	}
	return out
}

func unavailable(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Retryable {
		return err
	}
	if errors.Is(err, apperrors.ErrInvalidInput) {
		return apperrors.InvalidInput("search request rejected by the search engine")
	}
	return apperrors.Unavailable("search is temporarily unavailable",
		fmt.Errorf("%w: %w", apperrors.ErrSearchEngineUnavailable, err))
}
