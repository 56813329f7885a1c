package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// IdempotencyStore records processed event IDs. Implementations must be
// safe for concurrent use.
type IdempotencyStore interface {
	// Contains returns true if the event ID has already been processed.
	Contains(ctx context.Context, eventID string) (bool, error)
	// Add marks an event ID as processed after successful handling.
	Add(ctx context.Context, eventID string) error
}

// MemoryIdempotencyStore keeps a bounded set of recently processed event IDs
// for single-instance deployments.
type MemoryIdempotencyStore struct {
	seen *expirable.LRU[string, struct{}]
}

// NewMemoryIdempotencyStore remembers up to size IDs for ttl each.
func NewMemoryIdempotencyStore(size int, ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{seen: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

// Contains checks if the event ID exists and is not expired.
func (s *MemoryIdempotencyStore) Contains(_ context.Context, eventID string) (bool, error) {
	return s.seen.Contains(eventID), nil
}

// Add marks the event ID as processed.
func (s *MemoryIdempotencyStore) Add(_ context.Context, eventID string) error {
	s.seen.Add(eventID, struct{}{})
	return nil
}

// Len returns the number of remembered IDs.
func (s *MemoryIdempotencyStore) Len() int {
	return s.seen.Len()
}

// RedisIdempotencyStore shares processed event IDs between replicas.
type RedisIdempotencyStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisIdempotencyStore stores IDs under prefix with the given ttl.
func NewRedisIdempotencyStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, prefix: prefix, ttl: ttl}
}

// Contains implements IdempotencyStore.
func (s *RedisIdempotencyStore) Contains(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency lookup: %w", err)
	}
	return n > 0, nil
}

// Add implements IdempotencyStore.
func (s *RedisIdempotencyStore) Add(ctx context.Context, eventID string) error {
	if err := s.client.Set(ctx, s.prefix+eventID, 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency record: %w", err)
	}
	return nil
}

// IdempotentHandler skips events whose EventID was already handled. Store
// failures fall through to processing; handlers must tolerate redelivery.
func IdempotentHandler(store IdempotencyStore, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return inner(ctx, event)
		}

		exists, err := store.Contains(ctx, event.EventID)
		if err != nil {
			logger.WarnContext(ctx, "idempotency store lookup failed, processing anyway",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
			return inner(ctx, event)
		}

		if exists {
			consumerDuplicates.WithLabelValues(event.EventType).Inc()
			logger.DebugContext(ctx, "skipping duplicate event",
				slog.String("event_id", event.EventID),
				slog.String("event_type", event.EventType),
				slog.String("tenant_id", event.TenantID),
			)
			return nil
		}

		if err := inner(ctx, event); err != nil {
			return err
		}

		if addErr := store.Add(ctx, event.EventID); addErr != nil {
			logger.WarnContext(ctx, "failed to record event ID in idempotency store",
				slog.String("event_id", event.EventID),
				slog.String("error", addErr.Error()),
			)
		}
		return nil
	}
}
