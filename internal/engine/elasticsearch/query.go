package elasticsearch

import (
	"slices"
	"strconv"

	"github.com/utafrali/storefront-search/internal/domain"
	"github.com/utafrali/storefront-search/internal/engine"
)

// textFields are searched by the free-text query, title boosted.
var textFields = []string{"title^3", "title.autocomplete^2", "description", "brand.text", "category.text", "tags.text"}

// buildSearchQuery constructs the query DSL for one page of hits.
func buildSearchQuery(in domain.SearchInput) map[string]any {
	filters := append(baseFilters(in), filterClauses(in, "")...)
	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must":   []any{textClause(in.Query)},
				"filter": filters,
			},
		},
		"from":             in.Offset(),
		"size":             in.PageSize,
		"sort":             buildSort(in.Sort),
		"track_total_hits": true,
	}
}

// buildAggregateQuery constructs a hit-less query with one filter
// aggregation per facet. The main query only carries the clauses every facet
// shares; each facet's filter aggregation adds the remaining filters except
// its own.
func buildAggregateQuery(in domain.SearchInput, facets []domain.FacetSpec) map[string]any {
	aggs := make(map[string]any, len(facets))
	for i, spec := range facets {
		var inner map[string]any
		if spec.Kind == domain.FacetKindRange {
			inner = map[string]any{"stats": map[string]any{"field": spec.FieldPath}}
		} else {
			inner = map[string]any{
				"terms": map[string]any{
					"field": spec.FieldPath,
					"size":  engine.TermsSize(spec),
					"order": []any{
						map[string]any{"_count": "desc"},
						map[string]any{"_key": "asc"},
					},
				},
			}
		}
		aggs[aggName(i)] = map[string]any{
			"filter": map[string]any{
				"bool": map[string]any{"filter": filterClauses(in, spec.Handle)},
			},
			"aggs": map[string]any{"values": inner},
		}
	}

	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must":   []any{textClause(in.Query)},
				"filter": baseFilters(in),
			},
		},
		"size": 0,
		"aggs": aggs,
	}
}

func aggName(i int) string {
	return "facet_" + strconv.Itoa(i)
}

func textClause(query string) map[string]any {
	if query == "" {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{
		"multi_match": map[string]any{
			"query":         query,
			"fields":        textFields,
			"type":          "best_fields",
			"operator":      "and",
			"fuzziness":     "AUTO",
			"prefix_length": 1,
		},
	}
}

// baseFilters scopes a query to the tenant's active products and, when set,
// one collection.
func baseFilters(in domain.SearchInput) []any {
	filters := []any{
		map[string]any{"term": map[string]any{"tenant_id": in.Tenant}},
		map[string]any{"term": map[string]any{"status": domain.StatusActive}},
	}
	if in.Collection != "" {
		filters = append(filters, map[string]any{"term": map[string]any{domain.FieldCollections: in.Collection}})
	}
	return filters
}

// filterClauses builds one clause per selected filter except skip. Values
// within a filter are alternatives.
func filterClauses(in domain.SearchInput, skip string) []any {
	handles := make([]string, 0, len(in.Filters))
	for handle, values := range in.Filters {
		if handle != skip && len(values) > 0 {
			handles = append(handles, handle)
		}
	}
	slices.Sort(handles)

	clauses := make([]any, 0, len(handles))
	for _, handle := range handles {
		values := in.Filters[handle]
		spec := in.FieldFor(handle)
		if spec.Kind == domain.FacetKindRange {
			clauses = append(clauses, rangeClause(spec.FieldPath, values))
			continue
		}
		clauses = append(clauses, map[string]any{"terms": map[string]any{spec.FieldPath: values}})
	}
	return clauses
}

func rangeClause(field string, values []string) map[string]any {
	should := make([]any, 0, len(values))
	for _, v := range values {
		lo, hi, ok := domain.ParseRange(v)
		if !ok {
			continue
		}
		bounds := map[string]any{}
		if lo != nil {
			bounds["gte"] = *lo
		}
		if hi != nil {
			bounds["lte"] = *hi
		}
		should = append(should, map[string]any{"range": map[string]any{field: bounds}})
	}
	if len(should) == 0 {
		return map[string]any{"match_none": map[string]any{}}
	}
	return map[string]any{"bool": map[string]any{"should": should, "minimum_should_match": 1}}
}

// buildSort constructs the sort clause. Product id is always the last key
// so pages are stable across requests.
func buildSort(sortBy string) []any {
	var primary map[string]any
	switch sortBy {
	case domain.SortPriceAsc:
		primary = map[string]any{"price": "asc"}
	case domain.SortPriceDesc:
		primary = map[string]any{"price": "desc"}
	case domain.SortNewest:
		primary = map[string]any{"updated_at": "desc"}
	case domain.SortTitleAsc:
		primary = map[string]any{"title.keyword": "asc"}
	case domain.SortTitleDesc:
		primary = map[string]any{"title.keyword": "desc"}
	default:
		primary = map[string]any{"_score": "desc"}
	}
	return []any{primary, map[string]any{"id": "asc"}}
}
