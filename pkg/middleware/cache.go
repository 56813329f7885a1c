package middleware

import (
	"fmt"
	"net/http"
)

// CacheControl sets a public Cache-Control header on GET responses. The
// vary headers are added to Vary so shared caches never mix responses that
// differ by them, e.g. the tenant header.
func CacheControl(maxAge int, vary ...string) func(http.Handler) http.Handler {
	value := fmt.Sprintf("public, max-age=%d", maxAge)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				w.Header().Set("Cache-Control", value)
				for _, h := range vary {
					w.Header().Add("Vary", h)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
