package indexing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-search/internal/domain"
)

// gatedRunner blocks every run until the gate is opened.
type gatedRunner struct {
	gate    chan struct{}
	started chan string

	mu      sync.Mutex
	runs    map[string]int
	active  atomic.Int32
	maxSeen atomic.Int32
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{
		gate:    make(chan struct{}),
		started: make(chan string, 16),
		runs:    make(map[string]int),
	}
}

func (r *gatedRunner) Run(ctx context.Context, tenant, resource string) (*domain.RunResult, error) {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		seen := r.maxSeen.Load()
		if n <= seen || r.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	key := domain.LockKey(tenant, resource)
	r.mu.Lock()
	r.runs[key]++
	r.mu.Unlock()
	r.started <- key

	select {
	case <-r.gate:
	case <-ctx.Done():
		return &domain.RunResult{Outcome: domain.OutcomeCancelled}, ctx.Err()
	}
	return &domain.RunResult{Outcome: domain.OutcomeCompleted}, nil
}

func (r *gatedRunner) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[key]
}

func TestScheduler_CoalescesQueuedTriggers(t *testing.T) {
	runner := newGatedRunner()
	s := NewScheduler(runner, 1, testLogger())
	defer s.Close()

	// T0 occupies the only slot so T1 stays queued.
	require.True(t, s.Trigger("T0", domain.ResourceProducts))
	<-runner.started

	assert.True(t, s.Trigger("T1", domain.ResourceProducts))
	assert.False(t, s.Trigger("T1", domain.ResourceProducts))
	assert.False(t, s.Trigger("T1", domain.ResourceProducts))
	assert.Equal(t, 2, s.Pending())

	close(runner.gate)
	require.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, runner.count("T1/products"))
}

func TestScheduler_TriggerWhileRunningSchedulesOneRerun(t *testing.T) {
	runner := newGatedRunner()
	s := NewScheduler(runner, 2, testLogger())
	defer s.Close()

	require.True(t, s.Trigger("T1", domain.ResourceProducts))
	<-runner.started

	assert.False(t, s.Trigger("T1", domain.ResourceProducts))
	assert.False(t, s.Trigger("T1", domain.ResourceProducts))

	close(runner.gate)
	require.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, runner.count("T1/products"))
}

func TestScheduler_BoundsConcurrency(t *testing.T) {
	runner := newGatedRunner()
	s := NewScheduler(runner, 2, testLogger())
	defer s.Close()

	for _, tenant := range []string{"T1", "T2", "T3", "T4"} {
		require.True(t, s.Trigger(tenant, domain.ResourceProducts))
	}
	<-runner.started
	<-runner.started
	assert.Eventually(t, func() bool { return runner.active.Load() == 2 }, time.Second, 5*time.Millisecond)

	close(runner.gate)
	require.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, runner.maxSeen.Load(), int32(2))
}

func TestScheduler_CloseCancelsRuns(t *testing.T) {
	runner := newGatedRunner()
	s := NewScheduler(runner, 1, testLogger())

	require.True(t, s.Trigger("T1", domain.ResourceProducts))
	require.True(t, s.Trigger("T2", domain.ResourceProducts))
	<-runner.started

	s.Close()
	assert.Equal(t, 0, s.Pending())
	assert.False(t, s.Trigger("T3", domain.ResourceProducts))
}
