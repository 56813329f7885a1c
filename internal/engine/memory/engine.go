// Package memory is an in-process SearchEngine for development and tests.
// Text matching is a case-insensitive substring match per query token.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utafrali/storefront-search/internal/domain"
	"github.com/utafrali/storefront-search/internal/engine"
)

// Engine is an in-memory implementation of engine.SearchEngine.
// Thread-safe via sync.RWMutex.
type Engine struct {
	mu       sync.RWMutex
	products map[string]map[string]domain.Product // tenant -> id -> product

	down atomic.Bool
}

// New creates a new in-memory search engine.
func New() *Engine {
	return &Engine{
		products: make(map[string]map[string]domain.Product),
	}
}

var _ engine.SearchEngine = (*Engine)(nil)

// SetDown makes Status report a disconnected engine.
func (e *Engine) SetDown(down bool) {
	e.down.Store(down)
}

// Upsert implements engine.SearchEngine.
func (e *Engine) Upsert(_ context.Context, tenant string, products []domain.Product) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	docs, ok := e.products[tenant]
	if !ok {
		docs = make(map[string]domain.Product)
		e.products[tenant] = docs
	}
	for i := range products {
		p := products[i]
		p.Tenant = tenant
		docs[p.ID] = p
	}
	return nil
}

// Delete implements engine.SearchEngine.
func (e *Engine) Delete(_ context.Context, tenant string, ids []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range ids {
		delete(e.products[tenant], id)
	}
	return nil
}

// Len returns the number of documents stored for tenant.
func (e *Engine) Len(tenant string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.products[tenant])
}

// Get returns one stored document.
func (e *Engine) Get(tenant, id string) (domain.Product, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.products[tenant][id]
	return p, ok
}

type hit struct {
	product domain.Product
	score   int
}

// Search implements engine.SearchEngine.
func (e *Engine) Search(_ context.Context, in domain.SearchInput) (*engine.Page, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tokens := strings.Fields(strings.ToLower(in.Query))
	matched := make([]hit, 0)
	for _, p := range e.products[in.Tenant] {
		score, ok := e.matchBase(&p, in, tokens)
		if !ok || !e.matchFilters(&p, in, "") {
			continue
		}
		matched = append(matched, hit{product: p, score: score})
	}

	sortHits(matched, in.Sort)

	total := len(matched)
	offset := min(max(in.Offset(), 0), total)
	end := offset + min(max(in.PageSize, 0), total-offset)

	page := &engine.Page{Products: make([]domain.ProductSummary, 0, end-offset), Total: int64(total)}
	for _, h := range matched[offset:end] {
		page.Products = append(page.Products, h.product.Summary())
	}
	return page, nil
}

// Aggregate implements engine.SearchEngine.
func (e *Engine) Aggregate(_ context.Context, in domain.SearchInput, facets []domain.FacetSpec) ([]domain.FacetResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tokens := strings.Fields(strings.ToLower(in.Query))
	results := make([]domain.FacetResult, 0, len(facets))
	for _, spec := range facets {
		res := domain.FacetResult{Handle: spec.Handle}
		counts := make(map[string]int64)
		var stats *domain.RangeStats

		for _, p := range e.products[in.Tenant] {
			if _, ok := e.matchBase(&p, in, tokens); !ok || !e.matchFilters(&p, in, spec.Handle) {
				continue
			}
			if spec.Kind == domain.FacetKindRange {
				if stats == nil {
					stats = &domain.RangeStats{Min: p.Price, Max: p.Price}
				}
				stats.Min = min(stats.Min, p.Price)
				stats.Max = max(stats.Max, p.Price)
				stats.Count++
				continue
			}
			for _, v := range engine.FieldValues(&p, spec.FieldPath) {
				counts[v]++
			}
		}

		if spec.Kind == domain.FacetKindRange {
			res.Range = stats
		} else {
			res.Buckets = buckets(counts, engine.TermsSize(spec))
		}
		results = append(results, res)
	}
	return results, nil
}

// Suggest implements engine.SearchEngine.
func (e *Engine) Suggest(_ context.Context, tenant, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	prefix = strings.ToLower(strings.TrimSpace(prefix))

	e.mu.RLock()
	defer e.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, p := range e.products[tenant] {
		if p.Status != domain.StatusActive || !strings.HasPrefix(strings.ToLower(p.Title), prefix) {
			continue
		}
		if _, dup := seen[p.Title]; dup {
			continue
		}
		seen[p.Title] = struct{}{}
		out = append(out, p.Title)
	}
	slices.Sort(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Status implements engine.SearchEngine.
func (e *Engine) Status(context.Context) engine.Status {
	if e.down.Load() {
		return engine.Status{CheckedAt: time.Now(), Error: "engine marked down"}
	}
	return engine.Status{Connected: true, Initialized: true, CheckedAt: time.Now()}
}

// matchBase applies the parts of in that every facet shares: status,
// collection and text. It returns a relevance score.
func (e *Engine) matchBase(p *domain.Product, in domain.SearchInput, tokens []string) (int, bool) {
	if p.Status != domain.StatusActive {
		return 0, false
	}
	if in.Collection != "" && !slices.Contains(engine.FieldValues(p, domain.FieldCollections), in.Collection) {
		return 0, false
	}

	score := 0
	if len(tokens) > 0 {
		title := strings.ToLower(p.Title)
		rest := strings.ToLower(strings.Join([]string{p.Description, p.Brand, p.Category, strings.Join(p.Tags, " ")}, " "))
		for _, tok := range tokens {
			switch {
			case strings.Contains(title, tok):
				score += 3
			case strings.Contains(rest, tok):
				score++
			default:
				return 0, false
			}
		}
	}
	return score, true
}

// matchFilters checks every filter of in except the one keyed by skip.
// Values within a filter are alternatives; filters combine with AND.
func (e *Engine) matchFilters(p *domain.Product, in domain.SearchInput, skip string) bool {
	for handle, values := range in.Filters {
		if handle == skip || len(values) == 0 {
			continue
		}
		spec := in.FieldFor(handle)
		if spec.Kind == domain.FacetKindRange {
			if !inAnyRange(p.Price, values) {
				return false
			}
			continue
		}
		have := engine.FieldValues(p, spec.FieldPath)
		if !slices.ContainsFunc(values, func(v string) bool { return slices.Contains(have, v) }) {
			return false
		}
	}
	return true
}

func inAnyRange(price int64, values []string) bool {
	for _, v := range values {
		lo, hi, ok := domain.ParseRange(v)
		if !ok {
			continue
		}
		if (lo == nil || price >= *lo) && (hi == nil || price <= *hi) {
			return true
		}
	}
	return false
}

// sortHits orders by the requested sort, then by id.
func sortHits(hits []hit, sortBy string) {
	slices.SortFunc(hits, func(a, b hit) int {
		var c int
		switch sortBy {
		case domain.SortPriceAsc:
			c = cmp.Compare(a.product.Price, b.product.Price)
		case domain.SortPriceDesc:
			c = cmp.Compare(b.product.Price, a.product.Price)
		case domain.SortNewest:
			c = b.product.UpdatedAt.Compare(a.product.UpdatedAt)
		case domain.SortTitleAsc:
			c = cmp.Compare(strings.ToLower(a.product.Title), strings.ToLower(b.product.Title))
		case domain.SortTitleDesc:
			c = cmp.Compare(strings.ToLower(b.product.Title), strings.ToLower(a.product.Title))
		default:
			c = cmp.Compare(b.score, a.score)
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.product.ID, b.product.ID)
	})
}

// buckets orders values by count, then value, and keeps the first size.
func buckets(counts map[string]int64, size int) []domain.FacetBucket {
	out := make([]domain.FacetBucket, 0, len(counts))
	for v, n := range counts {
		out = append(out, domain.FacetBucket{Value: v, Count: n})
	}
	slices.SortFunc(out, func(a, b domain.FacetBucket) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Value, b.Value)
	})
	if len(out) > size {
		out = out[:size]
	}
	return out
}
