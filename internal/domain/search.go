package domain

import (
	"math"
	"slices"
	"strconv"
	"strings"
)

// Sort options for search results.
const (
	SortRelevance = "relevance"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNewest    = "newest"
	SortTitleAsc  = "title_asc"
	SortTitleDesc = "title_desc"
)

// ValidSortOptions returns the list of valid sort options.
func ValidSortOptions() []string {
	return []string{SortRelevance, SortPriceAsc, SortPriceDesc, SortNewest, SortTitleAsc, SortTitleDesc}
}

// IsValidSort checks whether the given sort string is a valid sort option.
func IsValidSort(sort string) bool {
	return slices.Contains(ValidSortOptions(), sort)
}

// Facet aggregation kinds.
const (
	FacetKindTerms = "terms"
	FacetKindRange = "range"
)

// FacetSpec asks the engine to aggregate one field under a public handle.
type FacetSpec struct {
	Handle    string `json:"handle"`
	FieldPath string `json:"field_path"`
	Kind      string `json:"kind"`
	// Size caps the number of terms buckets; zero means the engine default.
	Size int `json:"size,omitempty"`
}

// SearchInput is a storefront search request after parsing. Treat it as a
// value: the methods below return modified copies.
type SearchInput struct {
	Tenant              string              `json:"tenant"`
	Query               string              `json:"query,omitempty"`
	Filters             map[string][]string `json:"filters,omitempty"`
	Collection          string              `json:"collection,omitempty"`
	Page                int                 `json:"page"`
	PageSize            int                 `json:"page_size"`
	Sort                string              `json:"sort"`
	Facets              []FacetSpec         `json:"facets,omitempty"`
	FilterConfigVersion int                 `json:"filter_config_version"`
}

// Normalize returns a copy with whitespace collapsed, the query, filter keys
// and values case-folded, value sets de-duplicated and sorted, empty
// filters dropped, and an unknown sort replaced by relevance. Normalizing
// twice yields the same value.
func (in SearchInput) Normalize() SearchInput {
	out := in
	out.Query = strings.ToLower(strings.Join(strings.Fields(in.Query), " "))
	out.Collection = strings.ToLower(strings.TrimSpace(in.Collection))
	out.Sort = strings.ToLower(strings.TrimSpace(in.Sort))
	if !IsValidSort(out.Sort) {
		out.Sort = SortRelevance
	}

	out.Filters = nil
	for key, values := range in.Filters {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		for _, v := range values {
			v = strings.ToLower(strings.Join(strings.Fields(v), " "))
			if v == "" {
				continue
			}
			if out.Filters == nil {
				out.Filters = make(map[string][]string)
			}
			out.Filters[key] = append(out.Filters[key], v)
		}
	}
	for key, values := range out.Filters {
		slices.Sort(values)
		out.Filters[key] = slices.Compact(values)
	}

	if in.Facets != nil {
		out.Facets = slices.Clone(in.Facets)
	}
	return out
}

// WithFilters returns a copy whose filters are replaced.
func (in SearchInput) WithFilters(filters map[string][]string) SearchInput {
	in.Filters = filters
	return in
}

// FacetByHandle returns the facet spec registered for handle.
func (in SearchInput) FacetByHandle(handle string) (FacetSpec, bool) {
	for _, f := range in.Facets {
		if f.Handle == handle {
			return f, true
		}
	}
	return FacetSpec{}, false
}

// FieldFor resolves a filter handle to the indexed field it restricts,
// preferring the configured facet and falling back to DefaultFieldPath.
func (in SearchInput) FieldFor(handle string) FacetSpec {
	if f, ok := in.FacetByHandle(handle); ok {
		return f
	}
	path := DefaultFieldPath(handle)
	kind := FacetKindTerms
	if path == FieldPrice {
		kind = FacetKindRange
	}
	return FacetSpec{Handle: handle, FieldPath: path, Kind: kind}
}

// Offset returns the zero-based index of the first hit on the page. It
// saturates at math.MaxInt32 instead of overflowing.
func (in SearchInput) Offset() int {
	if in.Page < 1 || in.PageSize < 1 {
		return 0
	}
	off := (int64(in.Page) - 1) * int64(in.PageSize)
	if off/int64(in.PageSize) != int64(in.Page)-1 || off > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(off)
}

// Indexed product fields a facet may aggregate.
const (
	FieldBrand       = "brand"
	FieldCategory    = "category"
	FieldTags        = "tags"
	FieldCollections = "collections"
	FieldPrice       = "price"
	AttributePrefix  = "attributes."
)

// DefaultFieldPath maps a filter handle to a field when no configuration
// names one: built-in fields map to themselves, anything else is a product
// attribute.
func DefaultFieldPath(handle string) string {
	switch handle {
	case FieldBrand, FieldCategory, FieldTags, FieldCollections, FieldPrice:
		return handle
	default:
		return AttributePrefix + handle
	}
}

// ParseRange parses a range filter value "min-max" where either bound may be
// empty, e.g. "1000-5000", "-2000", "500-".
func ParseRange(v string) (lo, hi *int64, ok bool) {
	minStr, maxStr, found := strings.Cut(v, "-")
	if !found {
		return nil, nil, false
	}
	if minStr != "" {
		n, err := strconv.ParseInt(minStr, 10, 64)
		if err != nil {
			return nil, nil, false
		}
		lo = &n
	}
	if maxStr != "" {
		n, err := strconv.ParseInt(maxStr, 10, 64)
		if err != nil {
			return nil, nil, false
		}
		hi = &n
	}
	if lo == nil && hi == nil {
		return nil, nil, false
	}
	if lo != nil && hi != nil && *lo > *hi {
		return nil, nil, false
	}
	return lo, hi, true
}

// FacetBucket is one value of a terms aggregation.
type FacetBucket struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// RangeStats bounds a numeric facet over the matching products.
type RangeStats struct {
	Min   int64 `json:"min"`
	Max   int64 `json:"max"`
	Count int64 `json:"count"`
}

// FacetResult is the aggregation for one enabled facet, keyed by its handle.
type FacetResult struct {
	Handle      string        `json:"handle"`
	Label       string        `json:"label,omitempty"`
	DisplayType string        `json:"display_type,omitempty"`
	Buckets     []FacetBucket `json:"buckets,omitempty"`
	Range       *RangeStats   `json:"range,omitempty"`
}

// SearchResult is the paginated storefront response. Facets only ever
// contains enabled facets, in configuration order.
type SearchResult struct {
	Products   []ProductSummary `json:"products"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
	Facets     []FacetResult    `json:"facets,omitempty"`
}

// FacetNames returns the handles of the facets in the result.
func (r *SearchResult) FacetNames() []string {
	names := make([]string, 0, len(r.Facets))
	for _, f := range r.Facets {
		names = append(names, f.Handle)
	}
	return names
}
