package filterconfig

import (
	"fmt"

	"github.com/utafrali/storefront-search/internal/domain"
	apperrors "github.com/utafrali/storefront-search/pkg/errors"
	"github.com/utafrali/storefront-search/pkg/validator"
)

// Validate checks a config before it is published. Struct tags cover field
// formats; the rest enforces the display-type variants.
func Validate(cfg *domain.FilterConfig) error {
	if err := validator.Validate(cfg); err != nil {
		return err
	}

	seen := make(map[string]int, len(cfg.Facets))
	for i, f := range cfg.Facets {
		if j, dup := seen[f.Handle]; dup {
			return invalidFacet(i, "handle %q already used by facets[%d]", f.Handle, j)
		}
		seen[f.Handle] = i

		if err := validateVariant(i, f); err != nil {
			return err
		}
	}
	return nil
}

func validateVariant(i int, f domain.Facet) error {
	set := 0
	for _, present := range []bool{f.Terms != nil, f.Swatch != nil, f.Range != nil} {
		if present {
			set++
		}
	}
	if set > 1 {
		return invalidFacet(i, "only one options block may be set")
	}

	switch f.DisplayType {
	case domain.DisplayCheckbox, domain.DisplayRadio:
		if f.Swatch != nil || f.Range != nil {
			return invalidFacet(i, "%s facets take terms options only", f.DisplayType)
		}
	case domain.DisplaySwatch:
		if f.Terms != nil || f.Range != nil {
			return invalidFacet(i, "swatch facets take swatch options only")
		}
	case domain.DisplayRange:
		if f.Range == nil {
			return invalidFacet(i, "range facets require range options")
		}
		if f.FieldPath != domain.FieldPrice {
			return invalidFacet(i, "range facets are only supported on %q", domain.FieldPrice)
		}
	}
	if f.DisplayType != domain.DisplayRange && f.FieldPath == domain.FieldPrice {
		return invalidFacet(i, "%q can only be shown as a range", domain.FieldPrice)
	}
	return nil
}

func invalidFacet(i int, format string, args ...any) error {
	return apperrors.InvalidInput(fmt.Sprintf("facets[%d]: ", i) + fmt.Sprintf(format, args...))
}
