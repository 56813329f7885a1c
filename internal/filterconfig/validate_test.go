package filterconfig

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-search/internal/domain"
	apperrors "github.com/utafrali/storefront-search/pkg/errors"
	"github.com/utafrali/storefront-search/pkg/validator"
)

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(t1Config()))
}

func TestValidate_FieldErrors(t *testing.T) {
	cfg := t1Config()
	cfg.Facets[1].Handle = "Not A Handle"
	cfg.Facets[2].FieldPath = "raw.internal"

	err := Validate(cfg)
	var verr *validator.ValidationError
	require.True(t, errors.As(err, &verr))
	fields := verr.Fields()
	assert.Contains(t, fields, "facets[1].handle")
	assert.Contains(t, fields, "facets[2].field_path")
}

func TestValidate_Empty(t *testing.T) {
	err := Validate(&domain.FilterConfig{Tenant: "T1"})
	var verr *validator.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestValidate_Variants(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.FilterConfig)
		want   string
	}{
		{
			name: "duplicate handle",
			mutate: func(c *domain.FilterConfig) {
				c.Facets[2].Handle = "size"
			},
			want: "already used",
		},
		{
			name: "two options blocks",
			mutate: func(c *domain.FilterConfig) {
				c.Facets[1].Swatch = &domain.SwatchOptions{Limit: 5}
			},
			want: "only one options block",
		},
		{
			name: "swatch with terms options",
			mutate: func(c *domain.FilterConfig) {
				c.Facets[2].Swatch = nil
				c.Facets[2].Terms = &domain.TermsOptions{Limit: 5}
			},
			want: "swatch options only",
		},
		{
			name: "range without options",
			mutate: func(c *domain.FilterConfig) {
				c.Facets[3].Range = nil
			},
			want: "require range options",
		},
		{
			name: "range on attribute",
			mutate: func(c *domain.FilterConfig) {
				c.Facets[3].FieldPath = "attributes.weight"
			},
			want: "only supported on",
		},
		{
			name: "price as checkbox",
			mutate: func(c *domain.FilterConfig) {
				c.Facets[0].FieldPath = "price"
			},
			want: "can only be shown as a range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := t1Config()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_RangeBounds(t *testing.T) {
	cfg := t1Config()
	cfg.Facets[3].Range = &domain.RangeOptions{Min: 100, Max: 50, Step: 1}
	err := Validate(cfg)
	var verr *validator.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields(), "facets[3].range.max")
}
