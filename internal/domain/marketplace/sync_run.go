package marketplace

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// SyncRunStatus
// ---------------------------------------------------------------------------

// SyncRunStatus is the lifecycle state of a sync run.
type SyncRunStatus string

const (
	// RunPending indicates the ledger row exists but no page was fetched yet.
	RunPending SyncRunStatus = "pending"
	// RunRunning indicates pages are being fetched.
	RunRunning SyncRunStatus = "running"
	// RunCompleted indicates the run finished normally.
	RunCompleted SyncRunStatus = "completed"
	// RunFailed indicates the run hit a fatal error (or was reaped).
	RunFailed SyncRunStatus = "failed"
	// RunTimedOut indicates the wall-clock budget expired mid-run.
	RunTimedOut SyncRunStatus = "timed_out"
)

// IsValid returns true if the status is valid.
func (s SyncRunStatus) IsValid() bool {
	switch s {
	case RunPending, RunRunning, RunCompleted, RunFailed, RunTimedOut:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is a final state.
func (s SyncRunStatus) IsTerminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunTimedOut:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncRunStatus.
func (s SyncRunStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// SyncRun
// ---------------------------------------------------------------------------

// SyncRun is one durable progress-ledger row. Other processes read it
// out-of-band to report history and to detect stuck runs, so every state
// transition must be persisted immediately.
//
// Invariant: at most one running row exists per (Scope, Resource) pair; the
// repository enforces this with an atomic check-and-mark, and the reaper
// repairs it when a crashed process left a row running.
type SyncRun struct {
	ID       uuid.UUID
	Scope    AccountScope
	Resource ResourceType
	Mode     SyncMode
	Status   SyncRunStatus

	StartedAt   *time.Time
	CompletedAt *time.Time

	PagesFetched   int
	ItemsProcessed int
	ItemsCreated   int
	ItemsUpdated   int
	ItemsFailed    int

	// LastError is the terminal error text, empty for completed runs.
	LastError string
}

// NewSyncRun creates a pending ledger row for the given scope and resource.
func NewSyncRun(scope AccountScope, resource ResourceType, mode SyncMode) *SyncRun {
	return &SyncRun{
		ID:       uuid.New(),
		Scope:    scope,
		Resource: resource,
		Mode:     mode,
		Status:   RunPending,
	}
}

// Start transitions the run to running and stamps StartedAt.
func (r *SyncRun) Start(now time.Time) {
	r.Status = RunRunning
	r.StartedAt = &now
}

// Complete transitions the run to its terminal completed state.
func (r *SyncRun) Complete(now time.Time) {
	r.Status = RunCompleted
	r.CompletedAt = &now
}

// Fail transitions the run to failed, recording the terminal error.
func (r *SyncRun) Fail(now time.Time, err error) {
	r.Status = RunFailed
	r.CompletedAt = &now
	if err != nil {
		r.LastError = err.Error()
	}
}

// Timeout transitions the run to timed_out, preserving counters as-is.
func (r *SyncRun) Timeout(now time.Time) {
	r.Status = RunTimedOut
	r.CompletedAt = &now
	r.LastError = ErrTimeoutExceeded.Error()
}

// RecordPage accumulates one page worth of counters.
func (r *SyncRun) RecordPage(processed, created, updated, failed int) {
	r.PagesFetched++
	r.ItemsProcessed += processed
	r.ItemsCreated += created
	r.ItemsUpdated += updated
	r.ItemsFailed += failed
}

// Duration returns the elapsed run time in seconds. A missing StartedAt
// yields 0; it never panics on incomplete timestamps.
func (r *SyncRun) Duration(now time.Time) float64 {
	if r.StartedAt == nil {
		return 0
	}
	end := now
	if r.CompletedAt != nil {
		end = *r.CompletedAt
	}
	d := end.Sub(*r.StartedAt)
	if d < 0 {
		return 0
	}
	return d.Seconds()
}

// CountersConsistent reports the accounting invariant:
// processed = created + updated + failed.
func (r *SyncRun) CountersConsistent() bool {
	return r.ItemsProcessed == r.ItemsCreated+r.ItemsUpdated+r.ItemsFailed
}

// ---------------------------------------------------------------------------
// Filters
// ---------------------------------------------------------------------------

// SyncRunFilter defines filter criteria for ledger history queries.
type SyncRunFilter struct {
	// Resource filters by resource (optional).
	Resource *ResourceType
	// Status filters by run status (optional).
	Status *SyncRunStatus
	// Limit caps the number of rows returned, newest first.
	Limit int
}

// CatalogFilter defines filter criteria for catalog queries.
type CatalogFilter struct {
	// Account filters by account type (optional).
	Account *AccountType
	// SKUs filters by SKU set (optional).
	SKUs []string
	// ActiveOnly restricts to live offers.
	ActiveOnly bool
}

// ---------------------------------------------------------------------------
// Repository Ports
// ---------------------------------------------------------------------------

// SyncRunRepository persists the progress ledger. Implementations must make
// writes immediately visible to other processes.
type SyncRunRepository interface {
	// Create inserts a new pending ledger row.
	Create(ctx context.Context, run *SyncRun) error

	// TryMarkRunning atomically transitions the row to running, but only if
	// no other row for the same (scope, resource) is currently running.
	// Returns ErrSyncAlreadyRunning when the pair is busy.
	TryMarkRunning(ctx context.Context, run *SyncRun) error

	// UpdateProgress persists the page/item counters of a running row.
	UpdateProgress(ctx context.Context, run *SyncRun) error

	// Finish persists the terminal status, counters and timestamps.
	Finish(ctx context.Context, run *SyncRun) error

	// FindByID retrieves one ledger row; ErrRunNotFound when absent.
	FindByID(ctx context.Context, id uuid.UUID) (*SyncRun, error)

	// FindAll lists ledger rows matching the filter, newest first.
	FindAll(ctx context.Context, filter SyncRunFilter) ([]SyncRun, error)

	// LastCompletedAt returns the completion time of the most recent
	// completed run for the pair, nil when none exists. Incremental syncs
	// use it as their lower time bound.
	LastCompletedAt(ctx context.Context, scope AccountScope, resource ResourceType) (*time.Time, error)

	// ReapStale transitions every running row older than the cutoff to
	// failed with the stuck-run marker, returning how many rows changed.
	// Rows already in a terminal state are left untouched.
	ReapStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// CatalogItemRepository persists synced catalog rows keyed (sku, account).
type CatalogItemRepository interface {
	// UpsertBatch writes the batch with last-write-wins semantics per key,
	// returning how many rows were created vs updated.
	UpsertBatch(ctx context.Context, items []CatalogItem) (created, updated int, err error)

	// ExistingKeys returns which of the given keys already have a row.
	ExistingKeys(ctx context.Context, keys []ItemKey) (map[ItemKey]struct{}, error)

	// FindCanonical returns the canonical row for a SKU (MAIN wins);
	// ErrItemNotFound when the SKU exists under neither account.
	FindCanonical(ctx context.Context, sku string) (*CatalogItem, error)

	// FindAll lists catalog rows matching the filter.
	FindAll(ctx context.Context, filter CatalogFilter) ([]CatalogItem, error)

	// Count returns the number of stored catalog rows.
	Count(ctx context.Context) (int64, error)
}

// OrderRepository persists synced orders keyed (external_id, account).
type OrderRepository interface {
	// UpsertBatch writes the batch with last-write-wins semantics per key,
	// returning how many rows were created vs updated.
	UpsertBatch(ctx context.Context, orders []Order) (created, updated int, err error)

	// Count returns the number of stored orders.
	Count(ctx context.Context) (int64, error)
}
