package domain

import (
	"slices"
	"time"
)

// DisplayType selects how a facet is rendered and which options block it
// carries.
type DisplayType string

const (
	DisplayCheckbox DisplayType = "checkbox"
	DisplayRadio    DisplayType = "radio"
	DisplaySwatch   DisplayType = "swatch"
	DisplayRange    DisplayType = "range"
)

// TermsOptions configures checkbox and radio facets.
type TermsOptions struct {
	Limit  int    `json:"limit" yaml:"limit" validate:"gte=1,lte=100"`
	SortBy string `json:"sort_by,omitempty" yaml:"sort_by,omitempty" validate:"omitempty,oneof=count value"`
}

// SwatchOptions configures colour swatch facets. Colors maps a facet value
// to a hex colour.
type SwatchOptions struct {
	Limit  int               `json:"limit" yaml:"limit" validate:"gte=1,lte=100"`
	Colors map[string]string `json:"colors,omitempty" yaml:"colors,omitempty" validate:"dive,keys,required,endkeys,hexcolor"`
}

// RangeOptions configures numeric range facets, in minor units.
type RangeOptions struct {
	Min  int64 `json:"min" yaml:"min" validate:"gte=0"`
	Max  int64 `json:"max" yaml:"max" validate:"gtfield=Min"`
	Step int64 `json:"step" yaml:"step" validate:"gte=1"`
}

// Facet is one configured filter. Exactly the options block matching
// DisplayType may be set: Terms for checkbox/radio, Swatch for swatch,
// Range for range.
type Facet struct {
	Handle      string         `json:"handle" yaml:"handle" validate:"required,handle"`
	Label       string         `json:"label" yaml:"label" validate:"required,max=80"`
	FieldPath   string         `json:"field_path" yaml:"field_path" validate:"required,fieldpath"`
	DisplayType DisplayType    `json:"display_type" yaml:"display_type" validate:"required,oneof=checkbox radio swatch range"`
	Enabled     bool           `json:"enabled" yaml:"enabled"`
	Order       int            `json:"order" yaml:"order" validate:"gte=0,lte=1000"`
	Terms       *TermsOptions  `json:"terms,omitempty" yaml:"terms,omitempty"`
	Swatch      *SwatchOptions `json:"swatch,omitempty" yaml:"swatch,omitempty"`
	Range       *RangeOptions  `json:"range,omitempty" yaml:"range,omitempty"`
}

// Kind returns the aggregation kind the facet needs.
func (f Facet) Kind() string {
	if f.DisplayType == DisplayRange {
		return FacetKindRange
	}
	return FacetKindTerms
}

// Spec returns the engine-facing aggregation request for the facet.
func (f Facet) Spec() FacetSpec {
	spec := FacetSpec{Handle: f.Handle, FieldPath: f.FieldPath, Kind: f.Kind()}
	switch {
	case f.Terms != nil:
		spec.Size = f.Terms.Limit
	case f.Swatch != nil:
		spec.Size = f.Swatch.Limit
	}
	return spec
}

// FilterConfig is a tenant's facet configuration. Published versions are
// immutable; a newer version supersedes the active one.
type FilterConfig struct {
	ID        string    `json:"id"`
	Tenant    string    `json:"tenant_id"`
	Version   int       `json:"version"`
	Facets    []Facet   `json:"facets" validate:"required,min=1,max=40,dive"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// EnabledFacets returns the enabled facets ordered by Order, then Handle.
func (c *FilterConfig) EnabledFacets() []Facet {
	if c == nil {
		return nil
	}
	out := make([]Facet, 0, len(c.Facets))
	for _, f := range c.Facets {
		if f.Enabled {
			out = append(out, f)
		}
	}
	slices.SortStableFunc(out, func(a, b Facet) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		switch {
		case a.Handle < b.Handle:
			return -1
		case a.Handle > b.Handle:
			return 1
		}
		return 0
	})
	return out
}

// VersionOrZero returns the config version, or 0 for a nil config.
func (c *FilterConfig) VersionOrZero() int {
	if c == nil {
		return 0
	}
	return c.Version
}

// ClientFacetOptions is the display-relevant subset of a facet's options.
type ClientFacetOptions struct {
	Limit  int               `json:"limit,omitempty"`
	Colors map[string]string `json:"colors,omitempty"`
	Min    *int64            `json:"min,omitempty"`
	Max    *int64            `json:"max,omitempty"`
	Step   int64             `json:"step,omitempty"`
}

// ClientFacetDescriptor is the storefront-safe shape of an enabled facet. It
// deliberately has no field path, config id or version.
type ClientFacetDescriptor struct {
	Handle      string             `json:"handle"`
	Label       string             `json:"label"`
	DisplayType DisplayType        `json:"display_type"`
	Options     ClientFacetOptions `json:"options"`
}
