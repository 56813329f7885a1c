package indexing

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/utafrali/storefront-search/internal/domain"
	apperrors "github.com/utafrali/storefront-search/pkg/errors"
)

// Runner runs one sync.
type Runner interface {
	Run(ctx context.Context, tenant, resource string) (*domain.RunResult, error)
}

// slot tracks the queued or running sync of one key. At most one rerun is
// remembered while a sync is running.
type slot struct {
	running bool
	rerun   bool
}

// Scheduler runs syncs in the background. Triggers for a key that is
// already queued are absorbed; a trigger for a running key schedules one
// rerun after it. At most maxConcurrent syncs run in this process; the lock
// manager still provides exclusion across processes.
type Scheduler struct {
	runner Runner
	sem    *semaphore.Weighted
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
}

// NewScheduler creates a Scheduler.
func NewScheduler(runner Runner, maxConcurrent int, logger *slog.Logger) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner: runner,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		slots:  make(map[string]*slot),
	}
}

// Trigger requests a sync of (tenant, resource). It reports whether a new
// sync was queued; false means the trigger was folded into a pending one or
// the scheduler is closed.
func (s *Scheduler) Trigger(tenant, resource string) bool {
	key := domain.LockKey(tenant, resource)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if sl, ok := s.slots[key]; ok {
		if sl.running {
			sl.rerun = true
		}
		schedulerCoalesced.Inc()
		return false
	}

	sl := &slot{}
	s.slots[key] = sl
	s.wg.Add(1)
	go s.loop(tenant, resource, key, sl)
	return true
}

// Pending returns the number of keys queued or running.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Close stops accepting triggers, cancels running syncs at their next batch
// boundary and waits for them.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop(tenant, resource, key string, sl *slot) {
	defer s.wg.Done()

	for {
		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			s.drop(key)
			return
		}
		if s.ctx.Err() != nil {
			s.sem.Release(1)
			s.drop(key)
			return
		}

		s.mu.Lock()
		sl.running = true
		sl.rerun = false
		s.mu.Unlock()

		s.run(tenant, resource)
		s.sem.Release(1)

		s.mu.Lock()
		if !sl.rerun || s.closed {
			delete(s.slots, key)
			s.mu.Unlock()
			return
		}
		sl.running = false
		s.mu.Unlock()
	}
}

func (s *Scheduler) run(tenant, resource string) {
	res, err := s.runner.Run(s.ctx, tenant, resource)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrLockContention), errors.Is(err, context.Canceled):
		s.logger.DebugContext(s.ctx, "scheduled sync did not run to completion",
			slog.String("tenant_id", tenant),
			slog.String("resource", resource),
			slog.String("reason", err.Error()),
		)
	default:
		attrs := []any{
			slog.String("tenant_id", tenant),
			slog.String("resource", resource),
			slog.String("error", err.Error()),
		}
		if res != nil {
			attrs = append(attrs, slog.String("run_id", res.RunID))
		}
		s.logger.ErrorContext(s.ctx, "scheduled sync failed", attrs...)
	}
}

func (s *Scheduler) drop(key string) {
	s.mu.Lock()
	delete(s.slots, key)
	s.mu.Unlock()
}
