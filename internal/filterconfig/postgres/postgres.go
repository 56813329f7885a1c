// Package postgres stores filter configurations in the filter_configs
// table. A partial unique index keeps at most one active row per tenant.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront-search/internal/domain"
	"github.com/utafrali/storefront-search/internal/filterconfig"
	"github.com/utafrali/storefront-search/pkg/database"
	apperrors "github.com/utafrali/storefront-search/pkg/errors"
)

// FilterConfigRepository implements filterconfig.Repository on PostgreSQL.
type FilterConfigRepository struct {
	pool database.DBTX
}

// NewFilterConfigRepository creates a PostgreSQL-backed repository.
func NewFilterConfigRepository(pool database.DBTX) *FilterConfigRepository {
	return &FilterConfigRepository{pool: pool}
}

var _ filterconfig.Repository = (*FilterConfigRepository)(nil)

// GetActive implements filterconfig.Repository.
func (r *FilterConfigRepository) GetActive(ctx context.Context, tenant string) (_ *domain.FilterConfig, err error) {
	query := `
		SELECT id, version, facets, created_at
		FROM filter_configs
		WHERE tenant_id = $1 AND is_active`

	ctx, end := database.TraceQuery(ctx, "filterconfig.get_active", query)
	defer func() { end(err) }()

	cfg := domain.FilterConfig{Tenant: tenant, IsActive: true}
	var facets []byte
	err = r.pool.QueryRow(ctx, query, tenant).Scan(&cfg.ID, &cfg.Version, &facets, &cfg.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrConfigurationMissing
		}
		return nil, fmt.Errorf("get active filter config: %w", err)
	}
	if err := json.Unmarshal(facets, &cfg.Facets); err != nil {
		return nil, fmt.Errorf("decode filter config %s facets: %w", cfg.ID, err)
	}
	return &cfg, nil
}

// Publish implements filterconfig.Repository. A transaction-scoped advisory
// lock on the tenant serializes concurrent publishes so version numbers stay
// dense and the active flag moves in one commit.
func (r *FilterConfigRepository) Publish(ctx context.Context, tenant string, facets []domain.Facet) (_ *domain.FilterConfig, previous int, err error) {
	ctx, end := database.TraceQuery(ctx, "filterconfig.publish", "publish filter config")
	defer func() { end(err) }()

	body, err := json.Marshal(facets)
	if err != nil {
		return nil, 0, fmt.Errorf("encode facets: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "filter_configs:"+tenant); err != nil {
		return nil, 0, fmt.Errorf("lock tenant filter configs: %w", err)
	}

	var latest int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0),
			COALESCE(MAX(version) FILTER (WHERE is_active), 0)
		FROM filter_configs
		WHERE tenant_id = $1`, tenant).Scan(&latest, &previous)
	if err != nil {
		return nil, 0, fmt.Errorf("read filter config versions: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE filter_configs SET is_active = FALSE
		WHERE tenant_id = $1 AND is_active`, tenant); err != nil {
		return nil, 0, fmt.Errorf("deactivate filter config: %w", err)
	}

	cfg := domain.FilterConfig{
		ID:        uuid.NewString(),
		Tenant:    tenant,
		Version:   latest + 1,
		Facets:    facets,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO filter_configs (id, tenant_id, version, facets, is_active, created_at)
		VALUES ($1, $2, $3, $4, TRUE, $5)`,
		cfg.ID, cfg.Tenant, cfg.Version, body, cfg.CreatedAt,
	); err != nil {
		return nil, 0, fmt.Errorf("insert filter config: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("commit filter config: %w", err)
	}
	return &cfg, previous, nil
}

// History implements filterconfig.Repository.
func (r *FilterConfigRepository) History(ctx context.Context, tenant string, limit int) (_ []domain.FilterConfig, err error) {
	query := `
		SELECT id, version, facets, is_active, created_at
		FROM filter_configs
		WHERE tenant_id = $1
		ORDER BY version DESC
		LIMIT $2`

	ctx, end := database.TraceQuery(ctx, "filterconfig.history", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, tenant, limit)
	if err != nil {
		return nil, fmt.Errorf("list filter configs: %w", err)
	}
	defer rows.Close()

	var out []domain.FilterConfig
	for rows.Next() {
		cfg := domain.FilterConfig{Tenant: tenant}
		var facets []byte
		if err := rows.Scan(&cfg.ID, &cfg.Version, &facets, &cfg.IsActive, &cfg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan filter config: %w", err)
		}
		if err := json.Unmarshal(facets, &cfg.Facets); err != nil {
			return nil, fmt.Errorf("decode filter config %s facets: %w", cfg.ID, err)
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filter configs: %w", err)
	}
	return out, nil
}
