package sync

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sellerbridge/backend/internal/domain/marketplace"
)

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// StartRequest describes one sync run to start.
type StartRequest struct {
	// Scope selects the accounts to pull from.
	Scope marketplace.AccountScope
	// Resource selects the remote collection.
	Resource marketplace.ResourceType
	// Mode selects full or incremental retrieval.
	Mode marketplace.SyncMode
	// MaxPages overrides the configured page ceiling when positive.
	MaxPages int
	// Async starts the run in the background and returns immediately.
	Async bool
}

// Validate checks the request fields.
func (r *StartRequest) Validate() error {
	if !r.Scope.IsValid() {
		return fmt.Errorf("invalid account scope %q", string(r.Scope))
	}
	if !r.Resource.IsValid() {
		return fmt.Errorf("invalid resource %q", string(r.Resource))
	}
	if !r.Mode.IsValid() {
		return fmt.Errorf("invalid sync mode %q", string(r.Mode))
	}
	if r.MaxPages < 0 {
		return fmt.Errorf("max_pages must not be negative")
	}
	return nil
}

// ListRunsRequest describes a ledger history query.
type ListRunsRequest struct {
	// Resource filters by resource when non-empty.
	Resource string
	// Status filters by run status when non-empty.
	Status string
	// Limit caps the number of rows, newest first.
	Limit int
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// RunView is the read model of one ledger row.
type RunView struct {
	ID              uuid.UUID  `json:"id"`
	AccountScope    string     `json:"account_scope"`
	Resource        string     `json:"resource"`
	Mode            string     `json:"mode"`
	Status          string     `json:"status"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	PagesFetched    int        `json:"pages_fetched"`
	ItemsProcessed  int        `json:"items_processed"`
	ItemsCreated    int        `json:"items_created"`
	ItemsUpdated    int        `json:"items_updated"`
	ItemsFailed     int        `json:"items_failed"`
	DurationSeconds float64    `json:"duration_seconds"`
	LastError       string     `json:"last_error,omitempty"`
}

// NewRunView builds the read model from a ledger row.
func NewRunView(run *marketplace.SyncRun, now time.Time) RunView {
	return RunView{
		ID:              run.ID,
		AccountScope:    run.Scope.String(),
		Resource:        run.Resource.String(),
		Mode:            run.Mode.String(),
		Status:          run.Status.String(),
		StartedAt:       run.StartedAt,
		CompletedAt:     run.CompletedAt,
		PagesFetched:    run.PagesFetched,
		ItemsProcessed:  run.ItemsProcessed,
		ItemsCreated:    run.ItemsCreated,
		ItemsUpdated:    run.ItemsUpdated,
		ItemsFailed:     run.ItemsFailed,
		DurationSeconds: run.Duration(now),
		LastError:       run.LastError,
	}
}

// CleanupResult reports one reaper sweep.
type CleanupResult struct {
	ReapedRuns int64 `json:"reaped_runs"`
}
