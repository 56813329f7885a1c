package domain

import (
	"fmt"
	"time"
)

// ResourceProducts is the only resource synced today.
const ResourceProducts = "products"

// Lease is a held lock on (Tenant, Resource). FenceToken strictly increases
// with every acquisition of the same (Tenant, Resource).
type Lease struct {
	Tenant     string    `json:"tenant_id"`
	Resource   string    `json:"resource"`
	HolderID   string    `json:"holder_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	FenceToken int64     `json:"fence_token"`
}

// Expired reports whether the lease is no longer live at now.
func (l *Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Key returns "tenant/resource".
func (l *Lease) Key() string {
	return LockKey(l.Tenant, l.Resource)
}

// LockKey identifies the lock record for a (tenant, resource).
func LockKey(tenant, resource string) string {
	return fmt.Sprintf("%s/%s", tenant, resource)
}

// Checkpoint is the durable sync cursor for a (Tenant, Resource). Sequence
// is the upstream position of Cursor and never decreases between resets.
type Checkpoint struct {
	Tenant              string    `json:"tenant_id"`
	Resource            string    `json:"resource"`
	Cursor              string    `json:"cursor"`
	Sequence            int64     `json:"sequence"`
	UpdatedAt           time.Time `json:"updated_at"`
	LastSuccessfulRunID string    `json:"last_successful_run_id"`
	FenceToken          int64     `json:"fence_token"`
}

// IsZero reports whether the checkpoint is at the beginning of the feed.
func (c *Checkpoint) IsZero() bool {
	return c == nil || (c.Cursor == "" && c.Sequence == 0)
}

// RunState is a state of the indexing state machine.
type RunState string

const (
	StateIdle          RunState = "IDLE"
	StateLockRequested RunState = "LOCK_REQUESTED"
	StateSyncing       RunState = "SYNCING"
	StateCheckpointing RunState = "CHECKPOINTING"
	StateFailed        RunState = "FAILED"
)

// RunOutcome summarises how a run ended.
type RunOutcome string

const (
	OutcomeCompleted RunOutcome = "completed"
	OutcomeSkipped   RunOutcome = "skipped"
	OutcomeFailed    RunOutcome = "failed"
	OutcomeCancelled RunOutcome = "cancelled"
)

// RunResult describes one indexing run.
type RunResult struct {
	RunID       string     `json:"run_id"`
	Tenant      string     `json:"tenant_id"`
	Resource    string     `json:"resource"`
	Outcome     RunOutcome `json:"outcome"`
	FullResync  bool       `json:"full_resync"`
	Batches     int        `json:"batches"`
	Upserted    int        `json:"upserted"`
	Deleted     int        `json:"deleted"`
	StartCursor string     `json:"start_cursor"`
	EndCursor   string     `json:"end_cursor"`
	FenceToken  int64      `json:"fence_token,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
	Error       string     `json:"error,omitempty"`
}

// SyncStatus is the observable state of a (Tenant, Resource).
type SyncStatus struct {
	Tenant     string      `json:"tenant_id"`
	Resource   string      `json:"resource"`
	State      RunState    `json:"state"`
	Checkpoint *Checkpoint `json:"checkpoint,omitempty"`
	LastRun    *RunResult  `json:"last_run,omitempty"`
}
