package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront-search/internal/domain"
	apperrors "github.com/utafrali/storefront-search/pkg/errors"
	"github.com/utafrali/storefront-search/pkg/httputil"
	"github.com/utafrali/storefront-search/pkg/middleware"
	"github.com/utafrali/storefront-search/pkg/validator"
)

// FilterConfigs manages tenant filter configurations.
type FilterConfigs interface {
	GetActiveFilterConfig(ctx context.Context, tenant string) (*domain.FilterConfig, error)
	Publish(ctx context.Context, tenant string, facets []domain.Facet) (*domain.FilterConfig, error)
	History(ctx context.Context, tenant string, limit int) ([]domain.FilterConfig, error)
}

// Syncer runs and reports indexing runs.
type Syncer interface {
	Run(ctx context.Context, tenant, resource string) (*domain.RunResult, error)
	State(ctx context.Context, tenant, resource string) (*domain.SyncStatus, error)
}

// SyncTrigger queues an indexing run in the background.
type SyncTrigger interface {
	Trigger(tenant, resource string) bool
}

// CachePurger drops cached results of a tenant.
type CachePurger interface {
	InvalidateTenant(ctx context.Context, tenant string) (int, error)
}

// AdminHandler serves the operator endpoints: filter configuration,
// indexing runs and cache purges.
type AdminHandler struct {
	configs FilterConfigs
	syncer  Syncer
	trigger SyncTrigger
	cache   CachePurger
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(configs FilterConfigs, syncer Syncer, trigger SyncTrigger, cache CachePurger, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		configs: configs,
		syncer:  syncer,
		trigger: trigger,
		cache:   cache,
		logger:  logger,
	}
}

// --- Request DTOs ---

// PublishFilterConfigRequest is the JSON request body for publishing a
// filter configuration.
type PublishFilterConfigRequest struct {
	Facets []domain.Facet `json:"facets" validate:"required,min=1,max=40,dive"`
}

// --- Handlers ---

// GetFilterConfig handles GET /api/v1/admin/filter-config
func (h *AdminHandler) GetFilterConfig(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())

	cfg, err := h.configs.GetActiveFilterConfig(r.Context(), tenant)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if cfg == nil {
		httputil.WriteError(w, r, apperrors.NotFound("filter config", tenant), h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: cfg})
}

// FilterConfigHistory handles GET /api/v1/admin/filter-config/history
func (h *AdminHandler) FilterConfigHistory(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}

	versions, err := h.configs.History(r.Context(), tenant, limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if versions == nil {
		versions = []domain.FilterConfig{}
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"versions": versions}})
}

// PublishFilterConfig handles PUT /api/v1/admin/filter-config
func (h *AdminHandler) PublishFilterConfig(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req PublishFilterConfigRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	tenant := middleware.TenantFromContext(r.Context())
	cfg, err := h.configs.Publish(r.Context(), tenant, req.Facets)
	if err != nil {
		var valErr *validator.ValidationError
		if errors.As(err, &valErr) {
			httputil.WriteValidationError(w, err)
			return
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: cfg})
}

// TriggerSync handles POST /api/v1/admin/sync/{resource}
//
// By default the run is queued and 202 is returned. With ?wait=true the run
// executes inline and its result is returned; a run held by another
// instance answers 409.
func (h *AdminHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	resource, ok := syncResource(w, r)
	if !ok {
		return
	}
	tenant := middleware.TenantFromContext(r.Context())

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait {
		queued := h.trigger.Trigger(tenant, resource)
		httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{
			Data: map[string]any{"tenant_id": tenant, "resource": resource, "queued": queued},
		})
		return
	}

	result, err := h.syncer.Run(r.Context(), tenant, resource)
	if err != nil {
		if errors.Is(err, apperrors.ErrLockContention) {
			httputil.WriteJSON(w, http.StatusConflict, httputil.Response{
				Data: result,
				Error: &httputil.ErrorResponse{
					Code:    "SYNC_IN_PROGRESS",
					Message: "another sync holds the lease for this resource",
				},
			})
			return
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// SyncStatus handles GET /api/v1/admin/sync/{resource}
func (h *AdminHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	resource, ok := syncResource(w, r)
	if !ok {
		return
	}
	tenant := middleware.TenantFromContext(r.Context())

	status, err := h.syncer.State(r.Context(), tenant, resource)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: status})
}

// PurgeCache handles DELETE /api/v1/admin/cache
func (h *AdminHandler) PurgeCache(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())

	removed, err := h.cache.InvalidateTenant(r.Context(), tenant)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.logger.InfoContext(r.Context(), "tenant cache purged",
		slog.String("tenant_id", tenant),
		slog.Int("removed", removed),
	)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"removed": removed}})
}

func syncResource(w http.ResponseWriter, r *http.Request) (string, bool) {
	resource := chi.URLParam(r, "resource")
	if resource != domain.ResourceProducts {
		httputil.WriteError(w, r, apperrors.NotFound("sync resource", resource), nil)
		return "", false
	}
	return resource, true
}
