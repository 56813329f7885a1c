// Package indexing keeps the search index in step with the upstream catalog.
//
// A run for one (tenant, resource) moves IDLE → LOCK_REQUESTED → SYNCING →
// CHECKPOINTING and back to SYNCING for every batch, ending in IDLE on
// success or FAILED when a write is rejected. Only the holder of the lock
// lease may run, and every checkpoint write is fenced by the lease's token,
// so a holder whose lease lapsed cannot move the cursor under its successor.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront-search/internal/checkpoint"
	"github.com/utafrali/storefront-search/internal/domain"
	"github.com/utafrali/storefront-search/internal/lock"
	apperrors "github.com/utafrali/storefront-search/pkg/errors"
	"github.com/utafrali/storefront-search/pkg/kafka"
)

// Indexer writes documents to the search engine.
type Indexer interface {
	Upsert(ctx context.Context, tenant string, products []domain.Product) error
	Delete(ctx context.Context, tenant string, ids []string) error
}

// Invalidator drops a tenant's cached search results.
type Invalidator interface {
	InvalidateTenant(ctx context.Context, tenant string) (int, error)
}

// Config tunes indexing runs.
type Config struct {
	LeaseTTL  time.Duration
	BatchSize int
	// MaxBatches caps the batches of one run; zero means until the feed is
	// drained.
	MaxBatches int
	// Instance prefixes lock holder ids. Defaults to the hostname.
	Instance string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPublisher sets the publisher for sync completion events.
func WithPublisher(p kafka.Publisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

// WithInvalidator sets the cache invalidated after every written batch.
func WithInvalidator(inv Invalidator) Option {
	return func(c *Coordinator) { c.invalidator = inv }
}

type runState struct {
	state   domain.RunState
	active  bool
	lastRun *domain.RunResult
}

// Coordinator runs incremental syncs.
type Coordinator struct {
	locks       lock.Manager
	checkpoints checkpoint.Store
	source      Source
	indexer     Indexer
	invalidator Invalidator
	publisher   kafka.Publisher
	cfg         Config
	logger      *slog.Logger

	mu     sync.Mutex
	states map[string]*runState
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(
	locks lock.Manager,
	checkpoints checkpoint.Store,
	source Source,
	indexer Indexer,
	cfg Config,
	logger *slog.Logger,
	opts ...Option,
) *Coordinator {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Instance == "" {
		cfg.Instance, _ = os.Hostname()
	}

	c := &Coordinator{
		locks:       locks,
		checkpoints: checkpoints,
		source:      source,
		indexer:     indexer,
		publisher:   kafka.NoopPublisher{},
		cfg:         cfg,
		logger:      logger,
		states:      make(map[string]*runState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the run state and stored checkpoint of (tenant, resource).
func (c *Coordinator) State(ctx context.Context, tenant, resource string) (*domain.SyncStatus, error) {
	if tenant == "" || resource == "" {
		return nil, apperrors.InvalidInput("tenant and resource are required")
	}

	status := &domain.SyncStatus{Tenant: tenant, Resource: resource, State: domain.StateIdle}
	c.mu.Lock()
	if rs, ok := c.states[domain.LockKey(tenant, resource)]; ok {
		status.State = rs.state
		if rs.lastRun != nil {
			last := *rs.lastRun
			status.LastRun = &last
		}
	}
	c.mu.Unlock()

	cp, err := c.checkpoints.Get(ctx, tenant, resource)
	switch {
	case errors.Is(err, apperrors.ErrCheckpointCorrupt):
		c.logger.WarnContext(ctx, "stored checkpoint is corrupt",
			slog.String("tenant_id", tenant),
			slog.String("resource", resource),
		)
	case err != nil:
		return nil, fmt.Errorf("load checkpoint: %w", err)
	default:
		status.Checkpoint = cp
	}
	return status, nil
}

// run carries the mutable state of one Run call.
type run struct {
	*domain.RunResult
	lease  *domain.Lease
	cursor string
}

// Run syncs (tenant, resource) from its checkpoint to the end of the feed.
//
// If another holder has the lease the run is skipped: the result has
// outcome skipped and the error wraps ErrLockContention. Cancelling ctx
// stops the run between batches; the batch in flight always completes and
// is checkpointed.
func (c *Coordinator) Run(ctx context.Context, tenant, resource string) (*domain.RunResult, error) {
	if tenant == "" || resource == "" {
		return nil, apperrors.InvalidInput("tenant and resource are required")
	}

	r := &run{RunResult: &domain.RunResult{
		RunID:     uuid.NewString(),
		Tenant:    tenant,
		Resource:  resource,
		StartedAt: time.Now().UTC(),
	}}
	log := c.logger.With(
		slog.String("tenant_id", tenant),
		slog.String("resource", resource),
		slog.String("run_id", r.RunID),
	)

	if !c.begin(tenant, resource) {
		log.InfoContext(ctx, "sync already running in this process, skipping")
		runsTotal.WithLabelValues(resource, string(domain.OutcomeSkipped)).Inc()
		r.Outcome = domain.OutcomeSkipped
		r.FinishedAt = time.Now().UTC()
		err := lock.Contention(tenant, resource)
		r.Error = err.Error()
		return r.RunResult, err
	}

	lease, err := c.locks.Acquire(ctx, tenant, resource, c.cfg.Instance+"/"+r.RunID, c.cfg.LeaseTTL)
	if err != nil {
		if errors.Is(err, apperrors.ErrLockContention) {
			log.InfoContext(ctx, "sync already running elsewhere, skipping")
			return c.finish(r, domain.StateIdle, domain.OutcomeSkipped, err)
		}
		return c.finish(r, domain.StateIdle, domain.OutcomeFailed, fmt.Errorf("acquire lock: %w", err))
	}
	r.lease = lease
	r.FenceToken = lease.FenceToken
	defer c.release(ctx, log, r)

	c.setState(tenant, resource, domain.StateSyncing)
	if err := c.checkpoints.Claim(ctx, lease); err != nil {
		return c.finish(r, domain.StateFailed, domain.OutcomeFailed, fmt.Errorf("claim checkpoint: %w", err))
	}

	cp, err := c.checkpoints.Get(ctx, tenant, resource)
	switch {
	case errors.Is(err, apperrors.ErrCheckpointCorrupt):
		log.WarnContext(ctx, "checkpoint corrupt, starting full resync", slog.String("error", err.Error()))
		if err := c.resetCursor(ctx, r); err != nil {
			return c.finish(r, domain.StateFailed, domain.OutcomeFailed, err)
		}
	case err != nil:
		return c.finish(r, domain.StateFailed, domain.OutcomeFailed, fmt.Errorf("load checkpoint: %w", err))
	case cp != nil:
		r.cursor = cp.Cursor
	}
	r.StartCursor = r.cursor

	log.InfoContext(ctx, "sync started",
		slog.String("cursor", r.cursor),
		slog.Int64("fence_token", lease.FenceToken),
	)

	for {
		if err := ctx.Err(); err != nil {
			log.InfoContext(ctx, "sync cancelled between batches", slog.Int("batches", r.Batches))
			return c.finish(r, domain.StateIdle, domain.OutcomeCancelled, err)
		}
		if c.cfg.MaxBatches > 0 && r.Batches >= c.cfg.MaxBatches {
			break
		}

		more, err := c.batch(context.WithoutCancel(ctx), r)
		if err != nil {
			log.ErrorContext(ctx, "sync failed",
				slog.Int("batches", r.Batches),
				slog.String("error", err.Error()),
			)
			return c.finish(r, domain.StateFailed, domain.OutcomeFailed, err)
		}
		if !more {
			break
		}
	}

	r.EndCursor = r.cursor
	res, _ := c.finish(r, domain.StateIdle, domain.OutcomeCompleted, nil)
	c.publishCompleted(ctx, res)
	log.InfoContext(ctx, "sync completed",
		slog.Int("batches", r.Batches),
		slog.Int("upserted", r.Upserted),
		slog.Int("deleted", r.Deleted),
		slog.Bool("full_resync", r.FullResync),
	)
	return res, nil
}

// batch fetches, applies and checkpoints one page. It reports whether the
// feed has more pages.
func (c *Coordinator) batch(ctx context.Context, r *run) (bool, error) {
	start := time.Now()
	defer func() { batchDuration.WithLabelValues(r.Resource).Observe(time.Since(start).Seconds()) }()

	page, err := c.source.Changes(ctx, r.Tenant, r.Resource, r.cursor, c.cfg.BatchSize)
	if errors.Is(err, apperrors.ErrCheckpointCorrupt) && r.cursor != "" {
		c.logger.WarnContext(ctx, "upstream rejected cursor, starting full resync",
			slog.String("tenant_id", r.Tenant),
			slog.String("cursor", r.cursor),
		)
		if err := c.resetCursor(ctx, r); err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetch changes after %q: %w", r.cursor, err)
	}
	if len(page.Records) == 0 && page.NextCursor == r.cursor {
		return false, nil
	}

	if err := c.apply(ctx, r, page.Records); err != nil {
		return false, err
	}

	c.setState(r.Tenant, r.Resource, domain.StateCheckpointing)
	if _, err := c.checkpoints.Advance(ctx, r.lease, domain.Checkpoint{
		Tenant:              r.Tenant,
		Resource:            r.Resource,
		Cursor:              page.NextCursor,
		Sequence:            page.Sequence,
		LastSuccessfulRunID: r.RunID,
	}); err != nil {
		return false, fmt.Errorf("advance checkpoint: %w", err)
	}
	r.cursor = page.NextCursor
	r.Batches++

	if !page.HasMore {
		return false, nil
	}
	lease, err := c.locks.Renew(ctx, r.lease, c.cfg.LeaseTTL)
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	r.lease = lease
	c.setState(r.Tenant, r.Resource, domain.StateSyncing)
	return true, nil
}

// apply writes a page to the index. Upserts and deletes are keyed by
// (tenant, product id), so replaying a page is harmless.
func (c *Coordinator) apply(ctx context.Context, r *run, records []domain.ChangeRecord) error {
	var (
		upserts []domain.Product
		deletes []string
	)
	for _, rec := range records {
		if rec.Product.ID == "" {
			continue
		}
		if rec.Deleted {
			deletes = append(deletes, rec.Product.ID)
			continue
		}
		p := rec.Product
		p.Tenant = r.Tenant
		upserts = append(upserts, p)
	}

	if len(upserts) > 0 {
		if err := c.indexer.Upsert(ctx, r.Tenant, upserts); err != nil {
			return fmt.Errorf("upsert %d products: %w", len(upserts), err)
		}
		r.Upserted += len(upserts)
		documentsTotal.WithLabelValues("upsert").Add(float64(len(upserts)))
	}
	if len(deletes) > 0 {
		if err := c.indexer.Delete(ctx, r.Tenant, deletes); err != nil {
			return fmt.Errorf("delete %d products: %w", len(deletes), err)
		}
		r.Deleted += len(deletes)
		documentsTotal.WithLabelValues("delete").Add(float64(len(deletes)))
	}

	if c.invalidator != nil && len(upserts)+len(deletes) > 0 {
		if _, err := c.invalidator.InvalidateTenant(ctx, r.Tenant); err != nil {
			c.logger.WarnContext(ctx, "cache invalidation after batch failed",
				slog.String("tenant_id", r.Tenant),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (c *Coordinator) resetCursor(ctx context.Context, r *run) error {
	if err := c.checkpoints.Reset(ctx, r.lease); err != nil {
		return fmt.Errorf("reset checkpoint: %w", err)
	}
	r.cursor = ""
	r.FullResync = true
	return nil
}

func (c *Coordinator) release(ctx context.Context, log *slog.Logger, r *run) {
	err := c.locks.Release(context.WithoutCancel(ctx), r.lease)
	switch {
	case errors.Is(err, apperrors.ErrStaleLockFence):
		log.WarnContext(ctx, "lease lapsed before release", slog.Int64("fence_token", r.lease.FenceToken))
	case err != nil:
		log.WarnContext(ctx, "failed to release lease", slog.String("error", err.Error()))
	}
}

func (c *Coordinator) finish(r *run, state domain.RunState, outcome domain.RunOutcome, err error) (*domain.RunResult, error) {
	r.Outcome = outcome
	r.FinishedAt = time.Now().UTC()
	if r.EndCursor == "" {
		r.EndCursor = r.cursor
	}
	if err != nil {
		r.Error = err.Error()
	}
	runsTotal.WithLabelValues(r.Resource, string(outcome)).Inc()

	res := *r.RunResult
	c.mu.Lock()
	rs := c.stateFor(r.Tenant, r.Resource)
	rs.state = state
	rs.active = false
	// A skipped run says nothing about the index; keep the last real run.
	if outcome != domain.OutcomeSkipped {
		rs.lastRun = &res
	}
	c.mu.Unlock()
	return &res, err
}

// begin marks (tenant, resource) as running here and moves it to
// LOCK_REQUESTED. It returns false when a run of this process already holds
// the key.
func (c *Coordinator) begin(tenant, resource string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs := c.stateFor(tenant, resource)
	if rs.active {
		return false
	}
	rs.active = true
	rs.state = domain.StateLockRequested
	return true
}

func (c *Coordinator) setState(tenant, resource string, state domain.RunState) {
	c.mu.Lock()
	c.stateFor(tenant, resource).state = state
	c.mu.Unlock()
}

// stateFor must be called with c.mu held.
func (c *Coordinator) stateFor(tenant, resource string) *runState {
	key := domain.LockKey(tenant, resource)
	rs, ok := c.states[key]
	if !ok {
		rs = &runState{state: domain.StateIdle}
		c.states[key] = rs
	}
	return rs
}

func (c *Coordinator) publishCompleted(ctx context.Context, res *domain.RunResult) {
	event, err := kafka.NewEvent(
		domain.EventSyncCompleted,
		res.Tenant,
		domain.LockKey(res.Tenant, res.Resource),
		domain.AggregateTypeSyncCheckpoint,
		domain.EventSourceSearchService,
		domain.SyncCompletedPayload{
			RunID:      res.RunID,
			Resource:   res.Resource,
			FullResync: res.FullResync,
			Batches:    res.Batches,
			Upserted:   res.Upserted,
			Deleted:    res.Deleted,
			Cursor:     res.EndCursor,
		},
	)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to build sync event", slog.String("error", err.Error()))
		return
	}
	if err := c.publisher.Publish(context.WithoutCancel(ctx), domain.TopicSyncEvents, event); err != nil {
		c.logger.WarnContext(ctx, "failed to publish sync event",
			slog.String("tenant_id", res.Tenant),
			slog.String("error", err.Error()),
		)
	}
}
