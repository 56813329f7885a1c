package pagination

import (
	"errors"
	"math"
	"net/url"
	"strconv"
)

// DefaultMaxWindow matches the Elasticsearch index.max_result_window default.
const DefaultMaxWindow = 10000

// Limits bounds the page size a caller may request and how deep into a
// result set paging may reach.
type Limits struct {
	DefaultPerPage int
	MaxPerPage     int
	// MaxWindow caps offset+perPage. Pages past it are clamped to the last
	// reachable page.
	MaxWindow int
}

// DefaultLimits returns the storefront defaults.
func DefaultLimits() Limits {
	return Limits{DefaultPerPage: 24, MaxPerPage: 100, MaxWindow: DefaultMaxWindow}
}

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Offset  int `json:"-"`
}

// FromValues extracts pagination parameters from query values. The page
// size is read from per_page, falling back to page_size. Malformed or
// non-positive values use the defaults; oversized page sizes are clamped to
// the maximum rather than rejected.
func FromValues(q url.Values, limits Limits) Params {
	limits = limits.normalize()
	p := Params{Page: 1, PerPage: limits.DefaultPerPage}

	if v, ok := positiveInt(q.Get("page")); ok {
		p.Page = v
	}

	size := q.Get("per_page")
	if size == "" {
		size = q.Get("page_size")
	}
	if v, ok := positiveInt(size); ok {
		p.PerPage = min(v, limits.MaxPerPage)
	}

	return Clamp(p.Page, p.PerPage, limits)
}

// Clamp returns params with 1 <= perPage <= limits.MaxPerPage and
// 1 <= page <= MaxPage(perPage).
func Clamp(page, perPage int, limits Limits) Params {
	limits = limits.normalize()
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = limits.DefaultPerPage
	}
	if perPage > limits.MaxPerPage {
		perPage = limits.MaxPerPage
	}
	if maxPage := limits.MaxPage(perPage); page > maxPage {
		page = maxPage
	}
	return Params{Page: page, PerPage: perPage, Offset: (page - 1) * perPage}
}

// TotalPages returns the number of pages needed for total items.
func TotalPages(total int64, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 0
	}
	pages := total / int64(perPage)
	if total%int64(perPage) > 0 {
		pages++
	}
	return int(pages)
}

// MaxPage returns the deepest page whose hits all fall inside MaxWindow.
func (l Limits) MaxPage(perPage int) int {
	l = l.normalize()
	if perPage < 1 {
		perPage = l.DefaultPerPage
	}
	return max(1, l.MaxWindow/perPage)
}

func (l Limits) normalize() Limits {
	d := DefaultLimits()
	if l.MaxWindow <= 0 {
		l.MaxWindow = d.MaxWindow
	}
	if l.MaxPerPage <= 0 {
		l.MaxPerPage = d.MaxPerPage
	}
	if l.MaxPerPage > l.MaxWindow {
		l.MaxPerPage = l.MaxWindow
	}
	if l.DefaultPerPage <= 0 {
		l.DefaultPerPage = d.DefaultPerPage
	}
	if l.DefaultPerPage > l.MaxPerPage {
		l.DefaultPerPage = l.MaxPerPage
	}
	return l
}

func positiveInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		// Out-of-range digits still mean "a very large page".
		if errors.Is(err, strconv.ErrRange) && s[0] != '-' {
			return math.MaxInt32, true
		}
		return 0, false
	}
	return int(min(v, math.MaxInt32)), true
}
