package memory

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-search/internal/domain"
)

func newTestProduct(id, title string, price int64, attrs map[string]string) domain.Product {
	return domain.Product{
		ID:          id,
		Title:       title,
		Handle:      id,
		Description: "A fine product",
		Brand:       "Acme",
		Category:    "Footwear",
		Tags:        []string{"sale"},
		Collections: []string{"summer"},
		Price:       price,
		Currency:    "USD",
		Status:      domain.StatusActive,
		Attributes:  attrs,
		UpdatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func seed(t *testing.T) *Engine {
	t.Helper()
	eng := New()
	require.NoError(t, eng.Upsert(context.Background(), "T1", []domain.Product{
		newTestProduct("p1", "Red Running Shoe", 5000, map[string]string{"color": "Red", "size": "42"}),
		newTestProduct("p2", "Blue Running Shoe", 7000, map[string]string{"color": "Blue", "size": "42"}),
		newTestProduct("p3", "Red Hiking Shoe", 9000, map[string]string{"color": "Red", "size": "44"}),
		newTestProduct("p4", "Wool Sock", 900, map[string]string{"color": "Grey"}),
	}))
	return eng
}

func input(query string) domain.SearchInput {
	return domain.SearchInput{Tenant: "T1", Query: query, Page: 1, PageSize: 10, Sort: domain.SortRelevance}
}

func ids(products []domain.ProductSummary) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}

func TestEngine_SearchByText(t *testing.T) {
	eng := seed(t)

	page, err := eng.Search(context.Background(), input("shoe"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids(page.Products), "equal scores fall back to id order")

	page, err = eng.Search(context.Background(), input("red shoe"))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p3"}, ids(page.Products))

	page, err = eng.Search(context.Background(), input("keyboard"))
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Products)
}

func TestEngine_SearchIsTenantScoped(t *testing.T) {
	eng := seed(t)
	in := input("shoe")
	in.Tenant = "T2"

	page, err := eng.Search(context.Background(), in)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestEngine_UpsertIsIdempotent(t *testing.T) {
	eng := seed(t)
	ctx := context.Background()

	p := newTestProduct("p1", "Red Running Shoe v2", 5500, nil)
	require.NoError(t, eng.Upsert(ctx, "T1", []domain.Product{p}))
	require.NoError(t, eng.Upsert(ctx, "T1", []domain.Product{p}))

	assert.Equal(t, 4, eng.Len("T1"))
	got, ok := eng.Get("T1", "p1")
	require.True(t, ok)
	assert.Equal(t, "Red Running Shoe v2", got.Title)
	assert.Equal(t, "T1", got.Tenant)
}

func TestEngine_Delete(t *testing.T) {
	eng := seed(t)
	ctx := context.Background()

	require.NoError(t, eng.Delete(ctx, "T1", []string{"p1", "missing"}))
	assert.Equal(t, 3, eng.Len("T1"))
}

func TestEngine_InactiveProductsHidden(t *testing.T) {
	eng := seed(t)
	draft := newTestProduct("p9", "Draft Shoe", 100, nil)
	draft.Status = domain.StatusDraft
	require.NoError(t, eng.Upsert(context.Background(), "T1", []domain.Product{draft}))

	page, err := eng.Search(context.Background(), input("shoe"))
	require.NoError(t, err)
	assert.NotContains(t, ids(page.Products), "p9")
}

func TestEngine_Filters(t *testing.T) {
	eng := seed(t)

	in := input("")
	in.Filters = map[string][]string{"color": {"red"}, "size": {"44", "45"}}
	page, err := eng.Search(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3"}, ids(page.Products))

	in = input("")
	in.Filters = map[string][]string{"price": {"1000-7000"}}
	page, err = eng.Search(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids(page.Products))

	in = input("")
	in.Collection = "winter"
	page, err = eng.Search(context.Background(), in)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestEngine_SortAndPaginate(t *testing.T) {
	eng := seed(t)

	in := input("")
	in.Sort = domain.SortPriceDesc
	in.PageSize = 2
	page, err := eng.Search(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	assert.Equal(t, []string{"p3", "p2"}, ids(page.Products))

	in.Page = 2
	page, err = eng.Search(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p4"}, ids(page.Products))

	in.Page = 5
	page, err = eng.Search(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, page.Products)
}

func TestEngine_PageBeyondIntRange(t *testing.T) {
	eng := seed(t)

	in := input("")
	in.Page = math.MaxInt
	in.PageSize = 100
	page, err := eng.Search(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	assert.Empty(t, page.Products)
}

func TestEngine_Aggregate(t *testing.T) {
	eng := seed(t)

	in := input("shoe")
	in.Filters = map[string][]string{"color": {"red"}}
	facets := []domain.FacetSpec{
		{Handle: "color", FieldPath: "attributes.color", Kind: domain.FacetKindTerms},
		{Handle: "size", FieldPath: "attributes.size", Kind: domain.FacetKindTerms},
		{Handle: "price", FieldPath: "price", Kind: domain.FacetKindRange},
	}
	res, err := eng.Aggregate(context.Background(), in, facets)
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.Equal(t, "color", res[0].Handle)
	assert.Equal(t, []domain.FacetBucket{{Value: "red", Count: 2}, {Value: "blue", Count: 1}}, res[0].Buckets,
		"a facet's own filter does not narrow its counts")

	assert.Equal(t, []domain.FacetBucket{{Value: "42", Count: 1}, {Value: "44", Count: 1}}, res[1].Buckets)

	require.NotNil(t, res[2].Range)
	assert.Equal(t, domain.RangeStats{Min: 5000, Max: 9000, Count: 2}, *res[2].Range)
}

func TestEngine_AggregateBucketLimit(t *testing.T) {
	eng := seed(t)
	res, err := eng.Aggregate(context.Background(), input(""), []domain.FacetSpec{
		{Handle: "color", FieldPath: "attributes.color", Kind: domain.FacetKindTerms, Size: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.FacetBucket{{Value: "red", Count: 2}}, res[0].Buckets)
}

func TestEngine_Suggest(t *testing.T) {
	eng := seed(t)
	got, err := eng.Suggest(context.Background(), "T1", "red", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"Red Hiking Shoe", "Red Running Shoe"}, got)
}

func TestEngine_Status(t *testing.T) {
	eng := New()
	assert.True(t, eng.Status(context.Background()).Ready())
	eng.SetDown(true)
	st := eng.Status(context.Background())
	assert.False(t, st.Connected)
	assert.False(t, st.Ready())
}
