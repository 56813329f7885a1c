package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/storefront-search/pkg/logger"
)

// RequestLogger stores a request-scoped logger enriched with correlation_id,
// tenant_id, trace_id and span_id in the context. Handlers retrieve it with
// logger.FromContext(ctx).
//
// Mount it after RequestLogging, Tracing and Tenant so those fields exist.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
