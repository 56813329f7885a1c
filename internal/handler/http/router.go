package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront-search/pkg/health"
	"github.com/utafrali/storefront-search/pkg/middleware"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	ServiceName string
	CORS        middleware.CORSConfig
	// StorefrontMaxAge is the Cache-Control max-age of storefront GETs, in seconds.
	StorefrontMaxAge int
	// StorefrontRPS and StorefrontBurst bound storefront requests per tenant.
	// Zero RPS disables the limit.
	StorefrontRPS   float64
	StorefrontBurst int
	RequestTimeout  time.Duration
}

// NewRouter creates a chi router with all search service routes registered.
func NewRouter(
	cfg RouterConfig,
	storefront *StorefrontHandler,
	admin *AdminHandler,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/storefront", func(r chi.Router) {
		r.Use(middleware.Tenant())
		r.Use(middleware.RequestLogger(logger))
		r.Use(middleware.TenantRateLimit(cfg.StorefrontRPS, cfg.StorefrontBurst, logger))
		r.Use(middleware.CacheControl(cfg.StorefrontMaxAge, middleware.TenantHeader))

		r.Get("/search", storefront.Search)
		r.Get("/collections/{handle}/search", storefront.SearchCollection)
		r.Get("/facets", storefront.Facets)
		r.Get("/filters", storefront.Filters)
		r.Get("/suggest", storefront.Suggest)
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.Tenant())
		r.Use(middleware.RequestLogger(logger))

		r.Get("/filter-config", admin.GetFilterConfig)
		r.Get("/filter-config/history", admin.FilterConfigHistory)
		r.Get("/sync/{resource}", admin.SyncStatus)

		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Put("/filter-config", admin.PublishFilterConfig)
			r.Post("/sync/{resource}", admin.TriggerSync)
			r.Delete("/cache", admin.PurgeCache)
		})
	})

	return r
}
