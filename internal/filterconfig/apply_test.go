package filterconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-search/internal/domain"
)

// t1Config enables color and size and disables brand.
func t1Config() *domain.FilterConfig {
	return &domain.FilterConfig{
		ID:       "cfg-1",
		Tenant:   "T1",
		Version:  4,
		IsActive: true,
		Facets: []domain.Facet{
			{Handle: "brand", Label: "Brand", FieldPath: "brand", DisplayType: domain.DisplayCheckbox, Enabled: false, Order: 0},
			{Handle: "size", Label: "Size", FieldPath: "attributes.size", DisplayType: domain.DisplayRadio, Enabled: true, Order: 2,
				Terms: &domain.TermsOptions{Limit: 10}},
			{Handle: "color", Label: "Colour", FieldPath: "attributes.color", DisplayType: domain.DisplaySwatch, Enabled: true, Order: 1,
				Swatch: &domain.SwatchOptions{Limit: 12, Colors: map[string]string{"red": "#ff0000"}}},
			{Handle: "price", Label: "Price", FieldPath: "price", DisplayType: domain.DisplayRange, Enabled: true, Order: 3,
				Range: &domain.RangeOptions{Min: 0, Max: 50000, Step: 500}},
		},
	}
}

func TestApply_EnabledFacetsInOrder(t *testing.T) {
	in := domain.SearchInput{Tenant: "T1", Query: "shoe", Page: 1, PageSize: 24}
	out := ApplyFilterConfigToInput(t1Config(), in, nil)

	require.Len(t, out.Facets, 3)
	assert.Equal(t, []string{"color", "size", "price"},
		[]string{out.Facets[0].Handle, out.Facets[1].Handle, out.Facets[2].Handle})
	assert.Equal(t, "attributes.color", out.Facets[0].FieldPath)
	assert.Equal(t, domain.FacetKindRange, out.Facets[2].Kind)
	assert.Equal(t, 4, out.FilterConfigVersion)
}

func TestApply_DropsUnknownAndDisabledFilters(t *testing.T) {
	in := domain.SearchInput{
		Tenant: "T1",
		Filters: map[string][]string{
			"color":   {"red"},
			"brand":   {"acme"},
			"unknown": {"x"},
			"price":   {"1000-5000", "garbage"},
		},
	}
	out := ApplyFilterConfigToInput(t1Config(), in, nil)

	assert.Equal(t, map[string][]string{
		"color": {"red"},
		"price": {"1000-5000"},
	}, out.Filters)
	assert.Len(t, in.Filters, 4, "input is not modified")
}

func TestApply_NoConfigKeepsFiltersAndComputesNoFacets(t *testing.T) {
	in := domain.SearchInput{Tenant: "T1", Filters: map[string][]string{"anything": {"x"}}}
	out := ApplyFilterConfigToInput(nil, in, nil)

	assert.Empty(t, out.Facets)
	assert.Zero(t, out.FilterConfigVersion)
	assert.Equal(t, in.Filters, out.Filters)

	out.Filters["anything"] = []string{"changed"}
	assert.Equal(t, []string{"x"}, in.Filters["anything"])
}

func TestApply_Scope(t *testing.T) {
	in := domain.SearchInput{Tenant: "T1", Collection: "all"}
	out := ApplyFilterConfigToInput(t1Config(), in, &Scope{Collection: " Summer "})
	assert.Equal(t, "summer", out.Collection)

	out = ApplyFilterConfigToInput(t1Config(), in, &Scope{})
	assert.Equal(t, "all", out.Collection)
}

func TestFormatForStorefront(t *testing.T) {
	got := FormatFilterConfigForStorefront(t1Config())

	require.Len(t, got, 3)
	assert.Equal(t, "color", got[0].Handle)
	assert.Equal(t, domain.DisplaySwatch, got[0].DisplayType)
	assert.Equal(t, "#ff0000", got[0].Options.Colors["red"])
	assert.Equal(t, 10, got[1].Options.Limit)
	require.NotNil(t, got[2].Options.Max)
	assert.Equal(t, int64(50000), *got[2].Options.Max)
	assert.Equal(t, int64(500), got[2].Options.Step)

	assert.Empty(t, FormatFilterConfigForStorefront(nil))
}
