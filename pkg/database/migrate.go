package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// migrationLockKey serializes migrations across replicas starting at once.
const migrationLockKey int64 = 0x73656172636801

// isConnectionError reports whether err is a transient connection problem
// rather than a SQL error. Only connection errors are retried.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception.
		return strings.HasPrefix(pgErr.Code, "08")
	}
	msg := err.Error()
	for _, p := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"EOF",
		"could not connect",
		"server closed the connection unexpectedly",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// RunMigrations applies every *.up.sql file in migrations in lexical order.
// Applied versions are tracked in schema_migrations; the whole run holds a
// session advisory lock so concurrent replicas apply each file once.
func RunMigrations(ctx context.Context, db DBTX, migrations fs.FS, logger *slog.Logger) error {
	var err error
	for attempt := 0; attempt < defaultRetryAttempts; attempt++ {
		if err = runMigrationsOnce(ctx, db, migrations, logger); err == nil || !isConnectionError(err) {
			return err
		}
		if attempt == defaultRetryAttempts-1 {
			break
		}
		wait := retryBackoff(attempt)
		logger.Warn("migration failed due to connection error, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("run migrations: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("run migrations after %d attempts: %w", defaultRetryAttempts, err)
}

func runMigrationsOnce(ctx context.Context, db DBTX, migrations fs.FS, logger *slog.Logger) error {
	names, err := fs.Glob(migrations, "*.up.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migrations: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, tx)
	if err != nil {
		return err
	}

	for _, name := range names {
		if applied[name] {
			logger.Debug("migration already applied", slog.String("version", name))
			continue
		}
		content, err := fs.ReadFile(migrations, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		logger.Info("migration applied", slog.String("version", name))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, tx pgx.Tx) (map[string]bool, error) {
	rows, err := tx.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
