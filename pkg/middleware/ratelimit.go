package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/utafrali/storefront-search/pkg/httputil"
)

// tenantLimiters keeps one token bucket per tenant. Buckets of tenants not
// seen for idleTTL are dropped; the set is bounded by maxTenants.
type tenantLimiters struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

func newTenantLimiters(rps float64, burst, maxTenants int, idleTTL time.Duration) *tenantLimiters {
	return &tenantLimiters{
		buckets: expirable.NewLRU[string, *rate.Limiter](maxTenants, nil, idleTTL),
		limit:   rate.Limit(rps),
		burst:   burst,
	}
}

func (l *tenantLimiters) get(tenant string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.buckets.Get(tenant); ok {
		// Re-adding refreshes the idle expiry.
		l.buckets.Add(tenant, lim)
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.buckets.Add(tenant, lim)
	return lim
}

// TenantRateLimit enforces a token bucket per tenant so one storefront cannot
// starve the search engine for the others. It must be mounted after Tenant.
// A non-positive rps disables limiting.
func TenantRateLimit(rps float64, burst int, logger *slog.Logger) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = int(math.Ceil(rps))
	}
	limiters := newTenantLimiters(rps, burst, 10000, 10*time.Minute)
	retryAfter := strconv.Itoa(int(math.Max(1, math.Ceil(1/rps))))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := TenantFromContext(r.Context())
			if !limiters.get(tenant).Allow() {
				logger.WarnContext(r.Context(), "tenant rate limit exceeded",
					slog.String("tenant_id", tenant),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", retryAfter)
				httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:      "RATE_LIMITED",
						Message:   "too many requests for this storefront",
						Retryable: true,
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
