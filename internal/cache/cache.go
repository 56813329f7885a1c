// Package cache is the generic result cache behind the search path: TTL
// entries with invalidation tags, pattern and tag invalidation, and
// single-flight computation per key. Backend failures never fail a request;
// they surface as misses and the value is computed directly.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/utafrali/storefront-search/pkg/errors"
)

// Entry is one cached value. It is never served at or after ExpiresAt.
type Entry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
	Tags      []string  `json:"tags,omitempty"`
}

// Backend stores entries. Implementations must be safe for concurrent use
// and must not return expired entries.
type Backend interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, entry Entry) error
	DeleteMatching(ctx context.Context, pattern string) (int, error)
	DeleteTagged(ctx context.Context, tags []string) (int, error)
	Ping(ctx context.Context) error
}

// ComputeFunc produces the value for a missing key.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Option configures a Manager.
type Option func(*Manager)

// WithName labels the manager's metrics.
func WithName(name string) Option {
	return func(m *Manager) { m.name = name }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager is the cache engine. Create one per process and share it.
type Manager struct {
	backend Backend
	group   singleflight.Group
	logger  *slog.Logger
	name    string
	now     func() time.Time

	// epoch increases on every invalidation; computations that started in
	// an older epoch are returned to callers but not stored. storeMu is held
	// shared across the epoch check and the write, and exclusively across the
	// bump, so an invalidation either precedes the check or follows the write.
	epoch   atomic.Uint64
	storeMu sync.RWMutex
}

// New creates a Manager over backend.
func New(backend Backend, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		logger:  logger,
		name:    "search",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the cached value for key. Backend errors are logged and
// reported as a miss.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, bool) {
	entry, ok, err := m.backend.Get(ctx, key)
	if err != nil {
		cacheRequests.WithLabelValues(m.name, "error").Inc()
		m.logger.WarnContext(ctx, "cache get failed, treating as miss",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if !ok || !m.now().Before(entry.ExpiresAt) {
		cacheRequests.WithLabelValues(m.name, "miss").Inc()
		return nil, false
	}
	cacheRequests.WithLabelValues(m.name, "hit").Inc()
	return entry.Value, true
}

// Set stores value under key for ttl with the given invalidation tags.
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	if ttl <= 0 {
		return fmt.Errorf("cache set %s: ttl must be positive", key)
	}
	entry := Entry{Key: key, Value: value, ExpiresAt: m.now().Add(ttl), Tags: tags}
	if err := m.backend.Set(ctx, entry); err != nil {
		return fmt.Errorf("cache set %s: %w", key, errors.Join(apperrors.ErrCacheUnavailable, err))
	}
	return nil
}

// InvalidateByPattern removes every entry whose key matches pattern (see
// cachekey.MatchesPattern) and returns how many were removed.
func (m *Manager) InvalidateByPattern(ctx context.Context, pattern string) (int, error) {
	m.bumpEpoch()
	n, err := m.backend.DeleteMatching(ctx, pattern)
	if err != nil {
		return n, fmt.Errorf("cache invalidate pattern %s: %w", pattern, errors.Join(apperrors.ErrCacheUnavailable, err))
	}
	cacheInvalidations.WithLabelValues(m.name, "pattern").Add(float64(n))
	m.logger.DebugContext(ctx, "cache invalidated by pattern",
		slog.String("pattern", pattern),
		slog.Int("removed", n),
	)
	return n, nil
}

// InvalidateByTags removes every entry carrying any of tags.
func (m *Manager) InvalidateByTags(ctx context.Context, tags ...string) (int, error) {
	if len(tags) == 0 {
		return 0, nil
	}
	m.bumpEpoch()
	n, err := m.backend.DeleteTagged(ctx, tags)
	if err != nil {
		return n, fmt.Errorf("cache invalidate tags %v: %w", tags, errors.Join(apperrors.ErrCacheUnavailable, err))
	}
	cacheInvalidations.WithLabelValues(m.name, "tag").Add(float64(n))
	m.logger.DebugContext(ctx, "cache invalidated by tags",
		slog.Any("tags", tags),
		slog.Int("removed", n),
	)
	return n, nil
}

// GetOrCompute returns the cached value for key, or computes, stores and
// returns it. Concurrent misses for the same key share one computation,
// which runs detached from the first caller's cancellation; a caller whose
// ctx ends stops waiting and gets ctx.Err() while the others still receive
// the result. hit reports whether the value came from the cache.
func (m *Manager) GetOrCompute(ctx context.Context, key string, ttl time.Duration, tags []string, fn ComputeFunc) (value []byte, hit bool, err error) {
	if v, ok := m.Get(ctx, key); ok {
		return v, true, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		if v, ok := m.peek(detached, key); ok {
			return v, nil
		}
		epoch := m.epoch.Load()
		v, err := fn(detached)
		if err != nil {
			return nil, err
		}
		m.storeIfCurrent(detached, epoch, key, v, ttl, tags)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Shared {
			singleflightShared.WithLabelValues(m.name).Inc()
		}
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]byte), false, nil
	}
}

func (m *Manager) bumpEpoch() {
	m.storeMu.Lock()
	m.epoch.Add(1)
	m.storeMu.Unlock()
}

// storeIfCurrent writes a computed value unless an invalidation ran since
// epoch was read.
func (m *Manager) storeIfCurrent(ctx context.Context, epoch uint64, key string, value []byte, ttl time.Duration, tags []string) {
	m.storeMu.RLock()
	defer m.storeMu.RUnlock()

	if m.epoch.Load() != epoch {
		m.logger.DebugContext(ctx, "cache invalidated during computation, not storing",
			slog.String("key", key),
		)
		return
	}
	if err := m.Set(ctx, key, value, ttl, tags); err != nil {
		m.logger.WarnContext(ctx, "cache set failed, serving computed value",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// Ping checks the backend.
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.backend.Ping(ctx); err != nil {
		return errors.Join(apperrors.ErrCacheUnavailable, err)
	}
	return nil
}

// peek reads without touching hit/miss metrics.
func (m *Manager) peek(ctx context.Context, key string) ([]byte, bool) {
	entry, ok, err := m.backend.Get(ctx, key)
	if err != nil || !ok || !m.now().Before(entry.ExpiresAt) {
		return nil, false
	}
	return entry.Value, true
}

// Memoize is GetOrCompute for JSON-encodable values.
func Memoize[T any](ctx context.Context, m *Manager, key string, ttl time.Duration, tags []string, fn func(ctx context.Context) (T, error)) (T, bool, error) {
	var zero T
	raw, hit, err := m.GetOrCompute(ctx, key, ttl, tags, func(ctx context.Context) ([]byte, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, false, err
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		if hit {
			// A corrupt entry is a miss: recompute without the cache.
			m.logger.WarnContext(ctx, "cache entry undecodable, recomputing", slog.String("key", key))
			v, err := fn(ctx)
			return v, false, err
		}
		return zero, false, fmt.Errorf("decode computed value: %w", err)
	}
	return out, hit, nil
}
