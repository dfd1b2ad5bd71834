package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sellerbridge/backend/internal/domain/marketplace"
)

// Service is the application entry point for the sync engine: it owns run
// admission (create + atomic claim), dispatch to the orchestrator, ledger
// queries and the stuck-run cleanup.
type Service struct {
	runs         marketplace.SyncRunRepository
	catalog      marketplace.CatalogItemRepository
	orchestrator *Orchestrator
	reaper       *Reaper
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates the sync application service.
func NewService(
	runs marketplace.SyncRunRepository,
	catalog marketplace.CatalogItemRepository,
	orchestrator *Orchestrator,
	reaper *Reaper,
	log *zap.Logger,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		runs:         runs,
		catalog:      catalog,
		orchestrator: orchestrator,
		reaper:       reaper,
		logger:       log,
		now:          time.Now,
	}
}

// Start creates a ledger row, claims the (scope, resource) pair and executes
// the run. Synchronous requests return the terminal row; async requests
// return the running row immediately, with progress readable from the
// ledger. ErrSyncAlreadyRunning is returned when the pair is busy.
func (s *Service) Start(ctx context.Context, req StartRequest) (RunView, error) {
	if err := req.Validate(); err != nil {
		return RunView{}, err
	}

	run := marketplace.NewSyncRun(req.Scope, req.Resource, req.Mode)
	if err := s.runs.Create(ctx, run); err != nil {
		return RunView{}, fmt.Errorf("create sync run: %w", err)
	}

	if err := s.runs.TryMarkRunning(ctx, run); err != nil {
		if errors.Is(err, marketplace.ErrSyncAlreadyRunning) {
			// Close out the row we just created so it never counts as
			// claimable later.
			run.Fail(s.now(), err)
			if ferr := s.runs.Finish(ctx, run); ferr != nil {
				s.logger.Warn("could not close rejected run",
					zap.String("sync_run_id", run.ID.String()),
					zap.Error(ferr),
				)
			}
			return RunView{}, err
		}
		return RunView{}, fmt.Errorf("claim sync run: %w", err)
	}

	if req.Async {
		// Snapshot before the background goroutine starts mutating the run.
		view := NewRunView(run, s.now())
		s.orchestrator.Launch(run, req.MaxPages)
		return view, nil
	}

	// The orchestrator owns terminal status; an execution error is already
	// reflected in the returned row.
	if err := s.orchestrator.Execute(ctx, run, req.MaxPages); err != nil {
		s.logger.Warn("sync run ended with error",
			zap.String("sync_run_id", run.ID.String()),
			zap.Error(err),
		)
	}
	return NewRunView(run, s.now()), nil
}

// GetRun returns one ledger row; ErrRunNotFound when absent.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (RunView, error) {
	run, err := s.runs.FindByID(ctx, id)
	if err != nil {
		return RunView{}, err
	}
	return NewRunView(run, s.now()), nil
}

// ListRuns returns ledger history, newest first.
func (s *Service) ListRuns(ctx context.Context, req ListRunsRequest) ([]RunView, error) {
	filter := marketplace.SyncRunFilter{Limit: req.Limit}

	if req.Resource != "" {
		resource := marketplace.ResourceType(req.Resource)
		if !resource.IsValid() {
			return nil, fmt.Errorf("invalid resource %q", req.Resource)
		}
		filter.Resource = &resource
	}
	if req.Status != "" {
		status := marketplace.SyncRunStatus(req.Status)
		if !status.IsValid() {
			return nil, fmt.Errorf("invalid status %q", req.Status)
		}
		filter.Status = &status
	}

	runs, err := s.runs.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]RunView, 0, len(runs))
	for i := range runs {
		views = append(views, NewRunView(&runs[i], now))
	}
	return views, nil
}

// Cleanup reaps running rows older than the given age. A non-positive age
// uses the configured reaper default.
func (s *Service) Cleanup(ctx context.Context, olderThan time.Duration) (CleanupResult, error) {
	reaped, err := s.reaper.ReapOlderThan(ctx, olderThan)
	if err != nil {
		return CleanupResult{}, err
	}
	return CleanupResult{ReapedRuns: reaped}, nil
}

// CatalogCount returns the number of stored catalog rows.
func (s *Service) CatalogCount(ctx context.Context) (int64, error) {
	return s.catalog.Count(ctx)
}

// Canonical returns the canonical row for one SKU (MAIN wins).
func (s *Service) Canonical(ctx context.Context, sku string) (*marketplace.CatalogItem, error) {
	return s.catalog.FindCanonical(ctx, sku)
}
