package domain

import "time"

// Event types produced and consumed by the search service.
const (
	EventProductChanged         = "product.changed"
	EventProductDeleted         = "product.deleted"
	EventSyncCompleted          = "search.sync.completed"
	EventFilterConfigPublished  = "search.filterconfig.published"
	EventSourceSearchService    = "search-service"
	AggregateTypeProduct        = "product"
	AggregateTypeFilterConfig   = "filter_config"
	AggregateTypeSyncCheckpoint = "sync_checkpoint"
)

// ProductChangedPayload is the data of a product change notification. The
// event only signals that the tenant's catalog moved; the indexing run reads
// the actual records from the product source.
type ProductChangedPayload struct {
	ProductID string    `json:"product_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncCompletedPayload is published after a successful indexing run.
type SyncCompletedPayload struct {
	RunID      string `json:"run_id"`
	Resource   string `json:"resource"`
	FullResync bool   `json:"full_resync"`
	Batches    int    `json:"batches"`
	Upserted   int    `json:"upserted"`
	Deleted    int    `json:"deleted"`
	Cursor     string `json:"cursor"`
}

// FilterConfigPublishedPayload is published when a tenant activates a new
// filter configuration version.
type FilterConfigPublishedPayload struct {
	ConfigID        string `json:"config_id"`
	Version         int    `json:"version"`
	PreviousVersion int    `json:"previous_version"`
	FacetCount      int    `json:"facet_count"`
}

// Topics. The values match kafka.Topic(domain, action).
const (
	TopicProductEvents = "storefront.catalog.products"
	TopicSyncEvents    = "storefront.search.sync"
	TopicConfigEvents  = "storefront.search.filterconfig"
)
