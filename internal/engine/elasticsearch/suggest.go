package elasticsearch

import (
	"context"
	"strings"
	"time"

	"github.com/utafrali/storefront-search/internal/domain"
)

// Suggest returns autocomplete suggestions for the given prefix.
// It queries the title.autocomplete field and returns unique product titles
// of the tenant's active products.
func (e *Engine) Suggest(ctx context.Context, tenant, prefix string, limit int) (_ []string, err error) {
	if limit <= 0 {
		limit = 10
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return []string{}, nil
	}
	defer observe("suggest", time.Now(), &err)

	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{
						"match": map[string]any{"title.autocomplete": prefix},
					},
				},
				"filter": baseFilters(domain.SearchInput{Tenant: tenant}),
			},
		},
		"size":    limit,
		"_source": []string{"title"},
		"sort":    buildSort(domain.SortRelevance),
	}

	var esResp esSearchResponse
	if err := e.search(ctx, "elasticsearch suggest", query, &esResp); err != nil {
		return nil, err
	}

	// Deduplicate titles while preserving order.
	seen := make(map[string]struct{})
	names := make([]string, 0, len(esResp.Hits.Hits))
	for _, hit := range esResp.Hits.Hits {
		title := hit.Source.Title
		if _, exists := seen[title]; !exists {
			seen[title] = struct{}{}
			names = append(names, title)
		}
	}
	return names, nil
}
