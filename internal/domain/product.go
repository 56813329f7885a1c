package domain

import (
	"strings"
	"time"

	"github.com/utafrali/storefront-search/pkg/slug"
)

// Product statuses.
const (
	StatusActive   = "active"
	StatusDraft    = "draft"
	StatusArchived = "archived"
)

// Product is the document stored in the search index. Prices are in minor
// units. The stable identity is (Tenant, ID).
type Product struct {
	Tenant      string            `json:"tenant_id"`
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Handle      string            `json:"handle"`
	Description string            `json:"description"`
	Brand       string            `json:"brand"`
	Category    string            `json:"category"`
	Tags        []string          `json:"tags"`
	Collections []string          `json:"collections"`
	Price       int64             `json:"price"`
	Currency    string            `json:"currency"`
	Status      string            `json:"status"`
	ImageURL    string            `json:"image_url"`
	Attributes  map[string]string `json:"attributes"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Normalize fills a missing handle from the title and rewrites collection
// references to handle form, so collection filters match regardless of how
// the upstream spelled them.
func (p *Product) Normalize() {
	p.Status = strings.ToLower(strings.TrimSpace(p.Status))
	if p.Handle == "" {
		p.Handle = slug.Generate(p.Title)
	}
	p.Collections = slug.Normalize(p.Collections)
}

// Summary returns the storefront projection of the product.
func (p *Product) Summary() ProductSummary {
	return ProductSummary{
		ID:       p.ID,
		Title:    p.Title,
		Handle:   p.Handle,
		Brand:    p.Brand,
		Price:    p.Price,
		Currency: p.Currency,
		ImageURL: p.ImageURL,
	}
}

// ProductSummary is what storefront search responses render per hit.
type ProductSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Handle   string `json:"handle"`
	Brand    string `json:"brand,omitempty"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
	ImageURL string `json:"image_url,omitempty"`
}

// ChangeRecord is one entry of the upstream change feed. Deleted records
// only carry Product.ID.
type ChangeRecord struct {
	Product Product `json:"product"`
	Deleted bool    `json:"deleted"`
}
