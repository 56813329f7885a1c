package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/storefront-search/pkg/httputil"
	"github.com/utafrali/storefront-search/pkg/logger"
	"github.com/utafrali/storefront-search/pkg/validator"
)

// TenantHeader identifies the storefront a request belongs to.
const TenantHeader = "X-Tenant-ID"

// TenantQueryParam is accepted when the header cannot be set, e.g. from
// storefront script tags.
const TenantQueryParam = "shop"

type tenantKeyType struct{}

var tenantKey tenantKeyType

// Tenant resolves the tenant from the X-Tenant-ID header or the shop query
// parameter and rejects requests without a well-formed one.
func Tenant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := strings.TrimSpace(r.Header.Get(TenantHeader))
			if tenant == "" {
				tenant = strings.TrimSpace(r.URL.Query().Get(TenantQueryParam))
			}
			if !validator.TenantID(tenant) {
				httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "TENANT_REQUIRED",
						Message: "a valid " + TenantHeader + " header or " + TenantQueryParam + " parameter is required",
					},
				})
				return
			}

			ctx := context.WithValue(r.Context(), tenantKey, tenant)
			ctx = logger.WithTenantID(ctx, tenant)
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("tenant.id", tenant))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromContext returns the tenant resolved by the Tenant middleware.
func TenantFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(tenantKey).(string); ok {
		return t
	}
	return ""
}
