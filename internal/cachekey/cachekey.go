// Package cachekey builds and matches the segmented cache keys used for
// search results:
//
//	namespace/tenant/v<filterConfigVersion>/<sha256 of the canonical input>
//
// Segments are path-escaped so a tenant id can never introduce separators.
// Because the filter-config version is part of every key, publishing a new
// configuration stops old keys from being produced; stale entries age out
// through their TTL.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// Separator joins key segments.
	Separator = "/"
	// Wildcard matches one segment, or every remaining segment when it is
	// the last segment of a pattern.
	Wildcard = "*"
)

// Namespaces used by the search path.
const (
	NamespaceSearch = "search"
	NamespaceFacets = "facets"
)

// Encode returns the cache key for input. The input is fingerprinted from
// its JSON encoding; map keys are sorted by encoding/json, so callers only
// need to pass set-like slices in sorted order (domain.SearchInput.Normalize
// does this).
func Encode(namespace, tenant string, version int, input any) (string, error) {
	if namespace == "" || tenant == "" {
		return "", fmt.Errorf("cachekey: namespace and tenant are required")
	}
	fp, err := Fingerprint(input)
	if err != nil {
		return "", err
	}
	return Join(namespace, tenant, VersionSegment(version), fp), nil
}

// Fingerprint returns the hex sha256 of the canonical JSON of v.
func Fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("cachekey: canonicalize input: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VersionSegment renders a filter-config version, e.g. "v3".
func VersionSegment(version int) string {
	return "v" + strconv.Itoa(version)
}

// Join escapes and joins segments into a key.
func Join(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.Join(escaped, Separator)
}

// TenantPattern matches every entry of tenant in any namespace.
func TenantPattern(tenant string) string {
	return strings.Join([]string{Wildcard, url.PathEscape(tenant), Wildcard}, Separator)
}

// NamespacePattern matches every entry of tenant within namespace.
func NamespacePattern(namespace, tenant string) string {
	return Join(namespace, tenant) + Separator + Wildcard
}

// VersionPattern matches every entry of tenant cached under version.
func VersionPattern(tenant string, version int) string {
	return strings.Join([]string{Wildcard, url.PathEscape(tenant), VersionSegment(version), Wildcard}, Separator)
}

// MatchesPattern reports whether key matches pattern segment by segment. A
// "*" segment matches exactly one segment, except as the final pattern
// segment where it matches one or more remaining segments.
func MatchesPattern(key, pattern string) bool {
	ks := strings.Split(key, Separator)
	ps := strings.Split(pattern, Separator)

	for i, p := range ps {
		last := i == len(ps)-1
		if i >= len(ks) {
			return false
		}
		if p == Wildcard {
			if last {
				return true
			}
			continue
		}
		if p != ks[i] {
			return false
		}
	}
	return len(ks) == len(ps)
}

// Parts is a decoded cache key.
type Parts struct {
	Namespace   string
	Tenant      string
	Version     string
	Fingerprint string
}

// Parse splits a key produced by Encode.
func Parse(key string) (Parts, error) {
	segs := strings.Split(key, Separator)
	if len(segs) != 4 {
		return Parts{}, fmt.Errorf("cachekey: %q has %d segments, want 4", key, len(segs))
	}
	for i, s := range segs {
		u, err := url.PathUnescape(s)
		if err != nil {
			return Parts{}, fmt.Errorf("cachekey: segment %d: %w", i, err)
		}
		segs[i] = u
	}
	return Parts{Namespace: segs[0], Tenant: segs[1], Version: segs[2], Fingerprint: segs[3]}, nil
}
