package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront-search/internal/domain"
	pkgkafka "github.com/utafrali/storefront-search/pkg/kafka"
	"github.com/utafrali/storefront-search/pkg/validator"
)

// SyncTrigger queues an indexing run.
type SyncTrigger interface {
	Trigger(tenant, resource string) bool
}

// ConfigCache drops a tenant's locally cached filter configuration.
type ConfigCache interface {
	Forget(tenant string)
}

// Topics returns the topics the consumer subscribes to.
func Topics() []string {
	return []string{domain.TopicProductEvents, domain.TopicConfigEvents}
}

// Consumer turns catalog and configuration events into index and cache
// maintenance. Product events carry no document: they only signal that the
// tenant's change feed moved, and the indexing run reads the records.
type Consumer struct {
	trigger SyncTrigger
	configs ConfigCache
	logger  *slog.Logger
}

// NewConsumer creates a new event consumer for the search service.
func NewConsumer(trigger SyncTrigger, configs ConfigCache, logger *slog.Logger) *Consumer {
	return &Consumer{
		trigger: trigger,
		configs: configs,
		logger:  logger,
	}
}

// Handle processes a Kafka event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case domain.EventProductChanged, domain.EventProductDeleted:
		return c.handleProductChanged(ctx, event)
	case domain.EventFilterConfigPublished:
		return c.handleFilterConfigPublished(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// checkTenant rejects events whose tenant could not have come through the
// storefront API. The error is permanent so the event is dead-lettered.
func checkTenant(event *pkgkafka.Event) error {
	if event.TenantID == "" {
		return fmt.Errorf("%s event %s: missing tenant id: %w", event.EventType, event.EventID, pkgkafka.ErrPermanent)
	}
	if !validator.TenantID(event.TenantID) {
		return fmt.Errorf("%s event %s: malformed tenant id %q: %w", event.EventType, event.EventID, event.TenantID, pkgkafka.ErrPermanent)
	}
	return nil
}

// handleProductChanged schedules an incremental sync for the tenant.
// Bursts of changes collapse into one queued run.
func (c *Consumer) handleProductChanged(ctx context.Context, event *pkgkafka.Event) error {
	if err := checkTenant(event); err != nil {
		return err
	}
	var data domain.ProductChangedPayload
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}

	queued := c.trigger.Trigger(event.TenantID, domain.ResourceProducts)
	c.logger.DebugContext(ctx, "product change received",
		slog.String("tenant_id", event.TenantID),
		slog.String("product_id", data.ProductID),
		slog.Bool("queued", queued),
	)
	return nil
}

// handleFilterConfigPublished drops the local config cache so this
// instance picks up a version published elsewhere.
func (c *Consumer) handleFilterConfigPublished(ctx context.Context, event *pkgkafka.Event) error {
	if err := checkTenant(event); err != nil {
		return err
	}
	var data domain.FilterConfigPublishedPayload
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}

	c.configs.Forget(event.TenantID)
	c.logger.InfoContext(ctx, "filter configuration changed",
		slog.String("tenant_id", event.TenantID),
		slog.Int("version", data.Version),
	)
	return nil
}
