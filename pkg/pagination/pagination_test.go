package pagination

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func values(raw string) url.Values {
	v, _ := url.ParseQuery(raw)
	return v
}

func TestFromValues_Defaults(t *testing.T) {
	p := FromValues(url.Values{}, DefaultLimits())

	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 24, p.PerPage)
	assert.Equal(t, 0, p.Offset)
}

func TestFromValues_CustomValues(t *testing.T) {
	p := FromValues(values("page=3&per_page=50"), DefaultLimits())

	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 50, p.PerPage)
	assert.Equal(t, 100, p.Offset) // (3-1) * 50
}

func TestFromValues_PageSizeAlias(t *testing.T) {
	p := FromValues(values("page_size=12"), DefaultLimits())
	assert.Equal(t, 12, p.PerPage)

	p = FromValues(values("per_page=8&page_size=12"), DefaultLimits())
	assert.Equal(t, 8, p.PerPage)
}

func TestFromValues_InvalidPage(t *testing.T) {
	for _, raw := range []string{"page=-1", "page=0", "page=abc", "page="} {
		t.Run(raw, func(t *testing.T) {
			assert.Equal(t, 1, FromValues(values(raw), DefaultLimits()).Page)
		})
	}
}

func TestFromValues_PerPageClampedToMax(t *testing.T) {
	p := FromValues(values("per_page=500"), Limits{DefaultPerPage: 20, MaxPerPage: 60})
	assert.Equal(t, 60, p.PerPage)
}

func TestFromValues_PerPageInvalidUsesDefault(t *testing.T) {
	p := FromValues(values("per_page=-4"), Limits{DefaultPerPage: 20, MaxPerPage: 60})
	assert.Equal(t, 20, p.PerPage)
}

func TestClamp(t *testing.T) {
	limits := Limits{DefaultPerPage: 10, MaxPerPage: 50}

	assert.Equal(t, Params{Page: 1, PerPage: 10, Offset: 0}, Clamp(0, 0, limits))
	assert.Equal(t, Params{Page: 2, PerPage: 50, Offset: 50}, Clamp(2, 99, limits))
}

func TestFromValues_PageClampedToWindow(t *testing.T) {
	limits := Limits{DefaultPerPage: 24, MaxPerPage: 100, MaxWindow: 10000}

	tests := []struct {
		raw      string
		wantPage int
	}{
		{"page=100&per_page=100", 100},
		{"page=101&per_page=100", 100},
		{"page=100000000000000000&per_page=100", 100},
		{"page=99999999999999999999999&per_page=100", 100},
		{"page=9999&per_page=24", 416},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p := FromValues(values(tt.raw), limits)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.GreaterOrEqual(t, p.Offset, 0)
			assert.LessOrEqual(t, p.Offset+p.PerPage, limits.MaxWindow)
		})
	}
}

func TestLimits_MaxPage(t *testing.T) {
	assert.Equal(t, 100, Limits{MaxWindow: 10000}.MaxPage(100))
	assert.Equal(t, 1, Limits{MaxWindow: 50, MaxPerPage: 100}.MaxPage(100))
	assert.Equal(t, 416, DefaultLimits().MaxPage(24))
}

func TestLimits_DefaultAboveMax(t *testing.T) {
	p := FromValues(url.Values{}, Limits{DefaultPerPage: 80, MaxPerPage: 40})
	assert.Equal(t, 40, p.PerPage)
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total   int64
		perPage int
		want    int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{95, 10, 10},
		{5, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TotalPages(tt.total, tt.perPage))
	}
}
