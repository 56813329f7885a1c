// Package slug derives URL-safe handles for products and collections.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonHandle = regexp.MustCompile(`[^a-z0-9]+`)

// Letters that do not decompose into base letter plus combining mark.
var special = strings.NewReplacer(
	"ı", "i", "ø", "o", "ß", "ss", "æ", "ae", "œ", "oe", "đ", "d", "ł", "l",
)

// Generate creates a lowercase handle from a display name. Diacritics are
// folded to their base letters and runs of other characters become a
// single hyphen.
//
//	"Kadın Giyim"       -> "kadin-giyim"
//	"Été  Collection!"  -> "ete-collection"
//	"  Straße / Shoes " -> "strasse-shoes"
func Generate(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = special.Replace(s)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}

	s = nonHandle.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Normalize returns the handle form of each value, dropping empties and
// duplicates while keeping first-seen order.
func Normalize(values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		h := Generate(v)
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
