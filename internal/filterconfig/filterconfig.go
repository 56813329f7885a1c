// Package filterconfig resolves and applies per-tenant facet configuration.
//
// The search path only reads: GetActiveFilterConfig serves the active
// version through a short-lived in-process cache. Publishing a new version
// validates it, swaps the active version atomically in the repository and
// drops the cached copy.
package filterconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/utafrali/storefront-search/internal/domain"
	apperrors "github.com/utafrali/storefront-search/pkg/errors"
	"github.com/utafrali/storefront-search/pkg/kafka"
	"github.com/utafrali/storefront-search/pkg/logger"
)

// VersionInvalidator drops cached results computed under a superseded
// config version.
type VersionInvalidator interface {
	InvalidateVersion(ctx context.Context, tenant string, version int) (int, error)
}

// Config tunes the read cache.
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher emits an event for every published version.
func WithPublisher(p kafka.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithInvalidator drops results of the replaced version after a publish.
func WithInvalidator(inv VersionInvalidator) Option {
	return func(e *Engine) { e.invalidator = inv }
}

// activeEntry caches a lookup; cfg is nil for an unconfigured tenant.
type activeEntry struct {
	cfg *domain.FilterConfig
}

// Engine is the filter configuration engine.
type Engine struct {
	repo        Repository
	active      *expirable.LRU[string, activeEntry]
	publisher   kafka.Publisher
	invalidator VersionInvalidator
	logger      *slog.Logger
}

// NewEngine creates an Engine over repo.
func NewEngine(repo Repository, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	e := &Engine{
		repo:      repo,
		active:    expirable.NewLRU[string, activeEntry](cfg.CacheSize, nil, cfg.CacheTTL),
		publisher: kafka.NoopPublisher{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetActiveFilterConfig returns the tenant's active config, or nil when the
// tenant has none. A missing config is not an error; repository failures
// are, as a retryable unavailable error.
func (e *Engine) GetActiveFilterConfig(ctx context.Context, tenant string) (*domain.FilterConfig, error) {
	if entry, ok := e.active.Get(tenant); ok {
		return entry.cfg, nil
	}

	cfg, err := e.repo.GetActive(ctx, tenant)
	switch {
	case errors.Is(err, apperrors.ErrConfigurationMissing):
		e.logger.DebugContext(ctx, "no active filter configuration, using defaults",
			slog.String("tenant_id", tenant),
		)
		cfg = nil
	case err != nil:
		return nil, apperrors.Unavailable("filter configuration unavailable", err)
	}

	e.active.Add(tenant, activeEntry{cfg: cfg})
	return cfg, nil
}

// StorefrontFilters returns the client facet descriptors of the tenant's
// active config, empty when unconfigured.
func (e *Engine) StorefrontFilters(ctx context.Context, tenant string) ([]domain.ClientFacetDescriptor, error) {
	cfg, err := e.GetActiveFilterConfig(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return FormatFilterConfigForStorefront(cfg), nil
}

// Publish validates facets and activates them as the tenant's next version.
func (e *Engine) Publish(ctx context.Context, tenant string, facets []domain.Facet) (*domain.FilterConfig, error) {
	if tenant == "" {
		return nil, apperrors.InvalidInput("tenant is required")
	}
	draft := &domain.FilterConfig{Tenant: tenant, Facets: facets}
	if err := Validate(draft); err != nil {
		return nil, err
	}

	cfg, previous, err := e.repo.Publish(ctx, tenant, facets)
	if err != nil {
		return nil, fmt.Errorf("publish filter config for %s: %w", tenant, err)
	}
	e.active.Remove(tenant)

	e.logger.InfoContext(ctx, "filter configuration published",
		slog.String("tenant_id", tenant),
		slog.Int("version", cfg.Version),
		slog.Int("previous_version", previous),
		slog.Int("facets", len(cfg.Facets)),
	)

	if previous > 0 && e.invalidator != nil {
		if _, err := e.invalidator.InvalidateVersion(ctx, tenant, previous); err != nil {
			e.logger.WarnContext(ctx, "failed to drop results of superseded filter config",
				slog.String("tenant_id", tenant),
				slog.Int("version", previous),
				slog.String("error", err.Error()),
			)
		}
	}

	e.publishEvent(ctx, cfg, previous)
	return cfg, nil
}

// Forget drops the cached active config of tenant so the next read goes to
// the repository. Used when another instance publishes.
func (e *Engine) Forget(tenant string) {
	e.active.Remove(tenant)
}

// History lists the tenant's config versions, newest first.
func (e *Engine) History(ctx context.Context, tenant string, limit int) ([]domain.FilterConfig, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return e.repo.History(ctx, tenant, limit)
}

func (e *Engine) publishEvent(ctx context.Context, cfg *domain.FilterConfig, previous int) {
	event, err := kafka.NewEvent(
		domain.EventFilterConfigPublished,
		cfg.Tenant,
		cfg.ID,
		domain.AggregateTypeFilterConfig,
		domain.EventSourceSearchService,
		domain.FilterConfigPublishedPayload{
			ConfigID:        cfg.ID,
			Version:         cfg.Version,
			PreviousVersion: previous,
			FacetCount:      len(cfg.Facets),
		},
	)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to build filter config event", slog.String("error", err.Error()))
		return
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if err := e.publisher.Publish(ctx, domain.TopicConfigEvents, event); err != nil {
		e.logger.WarnContext(ctx, "failed to publish filter config event",
			slog.String("tenant_id", cfg.Tenant),
			slog.String("error", err.Error()),
		)
	}
}
