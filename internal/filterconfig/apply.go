package filterconfig

import (
	"maps"
	"strings"

	"github.com/utafrali/storefront-search/internal/domain"
)

// Scope narrows a search to part of the catalog, e.g. a collection page.
type Scope struct {
	Collection string
}

// ApplyFilterConfigToInput shapes in according to cfg and returns the
// result; in itself is left untouched.
//
// With a config, Facets becomes the enabled facets in display order,
// FilterConfigVersion is stamped, and filter keys that are not enabled
// facet handles are dropped along with malformed range values. Without a
// config no aggregations are requested and filters pass through unchanged.
// A non-empty scope collection overrides the requested one.
func ApplyFilterConfigToInput(cfg *domain.FilterConfig, in domain.SearchInput, scope *Scope) domain.SearchInput {
	out := in
	out.Filters = nil
	out.Facets = nil
	out.FilterConfigVersion = cfg.VersionOrZero()

	if scope != nil && strings.TrimSpace(scope.Collection) != "" {
		out.Collection = strings.ToLower(strings.TrimSpace(scope.Collection))
	}

	if cfg == nil {
		if len(in.Filters) > 0 {
			out.Filters = maps.Clone(in.Filters)
		}
		return out
	}

	enabled := cfg.EnabledFacets()
	out.Facets = make([]domain.FacetSpec, 0, len(enabled))
	for _, f := range enabled {
		spec := f.Spec()
		out.Facets = append(out.Facets, spec)

		values, ok := in.Filters[f.Handle]
		if !ok {
			continue
		}
		kept := make([]string, 0, len(values))
		for _, v := range values {
			if spec.Kind == domain.FacetKindRange {
				if _, _, ok := domain.ParseRange(v); !ok {
					continue
				}
			}
			kept = append(kept, v)
		}
		if len(kept) == 0 {
			continue
		}
		if out.Filters == nil {
			out.Filters = make(map[string][]string)
		}
		out.Filters[f.Handle] = kept
	}
	return out
}

// FormatFilterConfigForStorefront returns the display shape of cfg's
// enabled facets in order. Field paths, ids and versions are not exposed.
func FormatFilterConfigForStorefront(cfg *domain.FilterConfig) []domain.ClientFacetDescriptor {
	enabled := cfg.EnabledFacets()
	out := make([]domain.ClientFacetDescriptor, 0, len(enabled))
	for _, f := range enabled {
		d := domain.ClientFacetDescriptor{
			Handle:      f.Handle,
			Label:       f.Label,
			DisplayType: f.DisplayType,
		}
		switch {
		case f.Terms != nil:
			d.Options.Limit = f.Terms.Limit
		case f.Swatch != nil:
			d.Options.Limit = f.Swatch.Limit
			d.Options.Colors = maps.Clone(f.Swatch.Colors)
		case f.Range != nil:
			lo, hi := f.Range.Min, f.Range.Max
			d.Options.Min, d.Options.Max = &lo, &hi
			d.Options.Step = f.Range.Step
		}
		out = append(out, d)
	}
	return out
}
