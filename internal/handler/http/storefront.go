package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront-search/internal/domain"
	"github.com/utafrali/storefront-search/internal/service"
	"github.com/utafrali/storefront-search/pkg/httputil"
	"github.com/utafrali/storefront-search/pkg/middleware"
)

// StorefrontHandler serves the public, tenant-scoped search endpoints.
type StorefrontHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewStorefrontHandler creates a new storefront HTTP handler.
func NewStorefrontHandler(svc *service.SearchService, logger *slog.Logger) *StorefrontHandler {
	return &StorefrontHandler{
		service: svc,
		logger:  logger,
	}
}

// Search handles GET /api/v1/storefront/search
func (h *StorefrontHandler) Search(w http.ResponseWriter, r *http.Request) {
	if !validSort(w, r) {
		return
	}
	tenant := middleware.TenantFromContext(r.Context())

	result, err := h.service.Search(r.Context(), tenant, r.URL.Query())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// SearchCollection handles GET /api/v1/storefront/collections/{handle}/search
func (h *StorefrontHandler) SearchCollection(w http.ResponseWriter, r *http.Request) {
	if !validSort(w, r) {
		return
	}
	tenant := middleware.TenantFromContext(r.Context())
	collection := chi.URLParam(r, "handle")

	result, err := h.service.SearchCollection(r.Context(), tenant, collection, r.URL.Query())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// Facets handles GET /api/v1/storefront/facets
func (h *StorefrontHandler) Facets(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())

	facets, err := h.service.Facets(r.Context(), tenant, r.URL.Query())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"facets": facets}})
}

// Filters handles GET /api/v1/storefront/filters
func (h *StorefrontHandler) Filters(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())

	filters, err := h.service.StorefrontFilters(r.Context(), tenant)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"filters": filters}})
}

// Suggest handles GET /api/v1/storefront/suggest
func (h *StorefrontHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("q"))
	if prefix == "" {
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"suggestions": []string{}}})
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 {
			limit = l
		}
	}

	tenant := middleware.TenantFromContext(r.Context())
	suggestions, err := h.service.Suggest(r.Context(), tenant, prefix, limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"suggestions": suggestions}})
}

func validSort(w http.ResponseWriter, r *http.Request) bool {
	sortBy := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("sort")))
	if sortBy == "" || domain.IsValidSort(sortBy) {
		return true
	}
	httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
		Error: &httputil.ErrorResponse{
			Code:    "INVALID_PARAMETER",
			Message: "sort must be one of: " + strings.Join(domain.ValidSortOptions(), ", "),
		},
	})
	return false
}
