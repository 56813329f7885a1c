// Package engine defines the search engine boundary. Every operation is
// tenant-scoped; documents are identified by (tenant, product id) so
// re-delivered upserts overwrite rather than duplicate.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/utafrali/storefront-search/internal/domain"
)

// DefaultTermsSize is the bucket cap for a terms facet without a limit.
const DefaultTermsSize = 20

// Status is a point-in-time health probe of the engine.
type Status struct {
	Connected   bool      `json:"connected"`
	Initialized bool      `json:"initialized"`
	CheckedAt   time.Time `json:"checked_at"`
	Error       string    `json:"error,omitempty"`
}

// Ready reports whether searches can be served.
func (s Status) Ready() bool {
	return s.Connected && s.Initialized
}

// Page is one page of hits.
type Page struct {
	Products []domain.ProductSummary `json:"products"`
	Total    int64                   `json:"total"`
}

// SearchEngine indexes and queries products.
type SearchEngine interface {
	// Upsert writes products, replacing any existing document with the same
	// (tenant, id).
	Upsert(ctx context.Context, tenant string, products []domain.Product) error

	// Delete removes products by id. Missing ids are ignored.
	Delete(ctx context.Context, tenant string, ids []string) error

	// Search returns the page of active products matching in. Hits are
	// ordered by in.Sort with product id as the final tie-break.
	Search(ctx context.Context, in domain.SearchInput) (*Page, error)

	// Aggregate computes facets over the products matching in. Each facet's
	// counts ignore that facet's own filter so sibling values stay
	// selectable. Results follow the order of facets.
	Aggregate(ctx context.Context, in domain.SearchInput, facets []domain.FacetSpec) ([]domain.FacetResult, error)

	// Suggest returns distinct titles starting with prefix.
	Suggest(ctx context.Context, tenant, prefix string, limit int) ([]string, error)

	// Status probes the engine.
	Status(ctx context.Context) Status
}

// FieldValues returns the lower-cased values of a product field path.
func FieldValues(p *domain.Product, path string) []string {
	var raw []string
	switch path {
	case domain.FieldBrand:
		raw = []string{p.Brand}
	case domain.FieldCategory:
		raw = []string{p.Category}
	case domain.FieldTags:
		raw = p.Tags
	case domain.FieldCollections:
		raw = p.Collections
	default:
		name, ok := strings.CutPrefix(path, domain.AttributePrefix)
		if !ok {
			return nil
		}
		v, ok := p.Attributes[name]
		if !ok {
			return nil
		}
		raw = []string{v}
	}

	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// TermsSize returns the bucket cap for spec.
func TermsSize(spec domain.FacetSpec) int {
	if spec.Size > 0 {
		return spec.Size
	}
	return DefaultTermsSize
}
