package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchInput_Normalize(t *testing.T) {
	in := SearchInput{
		Tenant: "shop-1",
		Query:  "  Running   SHOES ",
		Filters: map[string][]string{
			"Color": {"Red", " blue ", "red", ""},
			"size":  {"42"},
			"empty": {"  "},
			" ":     {"x"},
		},
		Collection: " Summer ",
		Sort:       "PRICE_ASC",
	}

	got := in.Normalize()

	assert.Equal(t, "running shoes", got.Query)
	assert.Equal(t, "summer", got.Collection)
	assert.Equal(t, SortPriceAsc, got.Sort)
	assert.Equal(t, map[string][]string{
		"color": {"blue", "red"},
		"size":  {"42"},
	}, got.Filters)

	// The receiver is untouched.
	assert.Equal(t, []string{"Red", " blue ", "red", ""}, in.Filters["Color"])
}

func TestSearchInput_NormalizeIsIdempotent(t *testing.T) {
	in := SearchInput{Query: "A  b", Filters: map[string][]string{"Size": {"M", "L", "m"}}, Sort: "bogus"}
	once := in.Normalize()
	assert.Equal(t, once, once.Normalize())
	assert.Equal(t, SortRelevance, once.Sort)
}

func TestSearchInput_NormalizeOrderInsensitive(t *testing.T) {
	a := SearchInput{Filters: map[string][]string{"color": {"red", "blue"}, "size": {"s", "m"}}}
	b := SearchInput{Filters: map[string][]string{"size": {"m", "s"}, "color": {"blue", "red"}}}
	assert.Equal(t, a.Normalize(), b.Normalize())
}

func TestSearchInput_FieldFor(t *testing.T) {
	in := SearchInput{Facets: []FacetSpec{{Handle: "colour", FieldPath: "attributes.color", Kind: FacetKindTerms}}}

	assert.Equal(t, "attributes.color", in.FieldFor("colour").FieldPath)
	assert.Equal(t, FacetSpec{Handle: "brand", FieldPath: "brand", Kind: FacetKindTerms}, in.FieldFor("brand"))
	assert.Equal(t, FacetKindRange, in.FieldFor("price").Kind)
	assert.Equal(t, "attributes.size", in.FieldFor("size").FieldPath)
}

func TestSearchInput_Offset(t *testing.T) {
	assert.Equal(t, 0, SearchInput{Page: 0, PageSize: 20}.Offset())
	assert.Equal(t, 40, SearchInput{Page: 3, PageSize: 20}.Offset())
	assert.Equal(t, 0, SearchInput{Page: 3, PageSize: 0}.Offset())
	assert.Equal(t, math.MaxInt32, SearchInput{Page: math.MaxInt, PageSize: 100}.Offset())
	assert.Equal(t, math.MaxInt32, SearchInput{Page: math.MaxInt32, PageSize: 100}.Offset())
}

func TestParseRange(t *testing.T) {
	lo, hi, ok := ParseRange("1000-5000")
	require.True(t, ok)
	assert.Equal(t, int64(1000), *lo)
	assert.Equal(t, int64(5000), *hi)

	lo, hi, ok = ParseRange("-2000")
	require.True(t, ok)
	assert.Nil(t, lo)
	assert.Equal(t, int64(2000), *hi)

	lo, hi, ok = ParseRange("500-")
	require.True(t, ok)
	assert.Equal(t, int64(500), *lo)
	assert.Nil(t, hi)

	for _, bad := range []string{"", "-", "abc", "10", "9-1", "x-5"} {
		_, _, ok := ParseRange(bad)
		assert.False(t, ok, bad)
	}
}

func TestFilterConfig_EnabledFacets(t *testing.T) {
	cfg := &FilterConfig{Facets: []Facet{
		{Handle: "size", Enabled: true, Order: 2},
		{Handle: "brand", Enabled: false, Order: 0},
		{Handle: "color", Enabled: true, Order: 1},
		{Handle: "availability", Enabled: true, Order: 2},
	}}

	var handles []string
	for _, f := range cfg.EnabledFacets() {
		handles = append(handles, f.Handle)
	}
	assert.Equal(t, []string{"color", "availability", "size"}, handles)

	var nilCfg *FilterConfig
	assert.Nil(t, nilCfg.EnabledFacets())
	assert.Equal(t, 0, nilCfg.VersionOrZero())
}

func TestFacet_Spec(t *testing.T) {
	f := Facet{Handle: "price", FieldPath: "price", DisplayType: DisplayRange}
	assert.Equal(t, FacetSpec{Handle: "price", FieldPath: "price", Kind: FacetKindRange}, f.Spec())
}

func TestFacet_SpecCarriesTermsLimit(t *testing.T) {
	f := Facet{Handle: "color", FieldPath: "attributes.color", DisplayType: DisplaySwatch, Swatch: &SwatchOptions{Limit: 8}}
	assert.Equal(t, 8, f.Spec().Size)
	f = Facet{Handle: "size", FieldPath: "attributes.size", DisplayType: DisplayCheckbox}
	assert.Zero(t, f.Spec().Size)
}
