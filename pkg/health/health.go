package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Checker is a function that checks the health of a dependency.
type Checker func(ctx context.Context) error

// DetailChecker is a Checker that also reports component-specific state,
// e.g. connected/initialized flags of a search engine.
type DetailChecker func(ctx context.Context) (map[string]any, error)

// Status represents the health status of a component.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Response is the JSON response returned by the health endpoint.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the result of a single health check.
type CheckResult struct {
	Status   Status         `json:"status"`
	Critical bool           `json:"critical"`
	Error    string         `json:"error,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

type registration struct {
	check    DetailChecker
	critical bool
}

// Handler provides HTTP health check endpoints.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]registration
	timeout  time.Duration
}

// NewHandler creates a new health check handler.
func NewHandler() *Handler {
	return &Handler{
		checkers: make(map[string]registration),
		timeout:  5 * time.Second,
	}
}

// Register adds a critical named health checker.
func (h *Handler) Register(name string, checker Checker) {
	h.RegisterCritical(name, checker)
}

// RegisterCritical adds a checker whose failure marks the service down (503).
func (h *Handler) RegisterCritical(name string, checker Checker) {
	h.register(name, true, plain(checker))
}

// RegisterNonCritical adds a checker whose failure only degrades the service.
func (h *Handler) RegisterNonCritical(name string, checker Checker) {
	h.register(name, false, plain(checker))
}

// RegisterDetailed adds a checker that reports extra details alongside its status.
func (h *Handler) RegisterDetailed(name string, critical bool, checker DetailChecker) {
	h.register(name, critical, checker)
}

func plain(c Checker) DetailChecker {
	return func(ctx context.Context) (map[string]any, error) {
		return nil, c(ctx)
	}
}

func (h *Handler) register(name string, critical bool, checker DetailChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = registration{check: checker, critical: critical}
}

// Check runs every registered checker and aggregates the overall status.
// Any critical failure yields down; otherwise any failure yields degraded.
func (h *Handler) Check(ctx context.Context) Response {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	regs := make(map[string]registration, len(h.checkers))
	for k, v := range h.checkers {
		names = append(names, k)
		regs[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	checks := make(map[string]CheckResult, len(names))
	overall := StatusUp

	for _, name := range names {
		reg := regs[name]
		details, err := reg.check(ctx)
		res := CheckResult{Status: StatusUp, Critical: reg.critical, Details: details}
		if err != nil {
			res.Status = StatusDown
			res.Error = err.Error()
			if reg.critical {
				overall = StatusDown
			} else if overall == StatusUp {
				overall = StatusDegraded
			}
		}
		checks[name] = res
	}

	return Response{
		Status:    overall,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}
}

// LivenessHandler returns a simple liveness check (always 200 if the process is running).
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, http.StatusOK, Response{
			Status:    StatusUp,
			Timestamp: time.Now().UTC(),
		})
	}
}

// ReadinessHandler checks all registered dependencies and returns 200 for
// up/degraded and 503 when a critical dependency is down.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		resp := h.Check(ctx)
		status := http.StatusOK
		if resp.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeResponse(w, status, resp)
	}
}

func writeResponse(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
