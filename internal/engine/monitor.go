package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	apperrors "github.com/utafrali/storefront-search/pkg/errors"
)

// Monitor probes the engine on an interval and caches the latest status so
// request paths can check it without a network round trip.
type Monitor struct {
	engine   SearchEngine
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	status   atomic.Pointer[Status]
}

// NewMonitor creates a Monitor. The status is "not connected" until the
// first probe completes.
func NewMonitor(engine SearchEngine, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	m := &Monitor{
		engine:   engine,
		interval: interval,
		timeout:  min(interval, 5*time.Second),
		logger:   logger,
	}
	m.status.Store(&Status{})
	return m
}

// Run probes until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.Probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe checks the engine once and records the result.
func (m *Monitor) Probe(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	st := m.engine.Status(ctx)
	prev := m.status.Swap(&st)
	if prev.Ready() != st.Ready() {
		if st.Ready() {
			m.logger.InfoContext(ctx, "search engine available")
		} else {
			m.logger.WarnContext(ctx, "search engine unavailable",
				slog.Bool("connected", st.Connected),
				slog.Bool("initialized", st.Initialized),
				slog.String("error", st.Error),
			)
		}
	}
	engineUp.Set(boolGauge(st.Ready()))
	return st
}

// Current returns the last recorded status.
func (m *Monitor) Current() Status {
	return *m.status.Load()
}

// Ensure returns a retryable ErrSearchEngineUnavailable unless the last
// probe found the engine ready.
func (m *Monitor) Ensure() error {
	if st := m.Current(); !st.Ready() {
		return apperrors.Unavailable("search is temporarily unavailable", apperrors.ErrSearchEngineUnavailable)
	}
	return nil
}

// HealthCheck reports the last status for readiness probes.
func (m *Monitor) HealthCheck(context.Context) (map[string]any, error) {
	st := m.Current()
	details := map[string]any{
		"connected":   st.Connected,
		"initialized": st.Initialized,
	}
	if !st.CheckedAt.IsZero() {
		details["checked_at"] = st.CheckedAt
	}
	if !st.Ready() {
		return details, apperrors.ErrSearchEngineUnavailable
	}
	return details, nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
