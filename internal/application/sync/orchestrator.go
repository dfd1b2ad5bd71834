package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sellerbridge/backend/internal/domain/marketplace"
	"github.com/sellerbridge/backend/internal/infrastructure/config"
	"github.com/sellerbridge/backend/internal/infrastructure/logger"
	mktclient "github.com/sellerbridge/backend/internal/infrastructure/marketplace"
	"github.com/sellerbridge/backend/internal/infrastructure/telemetry"
)

const (
	// defaultRunTimeout bounds a run when no timeout is configured.
	defaultRunTimeout = 600 * time.Second
	// maxRunTimeout is the hard ceiling a configured timeout cannot exceed.
	maxRunTimeout = 900 * time.Second
	// finishGrace bounds the terminal ledger write after the run context died.
	finishGrace = 10 * time.Second
)

// Metrics receives run and item observations from the orchestrator. A nil
// recorder disables recording.
type Metrics interface {
	RecordItems(ctx context.Context, resource string, created, updated, failed int)
	RunStarted(ctx context.Context, resource string)
	RunFinished(ctx context.Context, resource, status string, elapsed time.Duration)
	RecordCatalogSize(ctx context.Context, count int64)
}

// Orchestrator drives one sync run end to end: ledger claim, per-account
// page walks, incremental persistence, terminal finalization. For ScopeBoth
// the MAIN account is always synced to completion before FBE starts.
type Orchestrator struct {
	runs      marketplace.SyncRunRepository
	catalog   marketplace.CatalogItemRepository
	orderProc *OrderProcessor
	apis      map[marketplace.AccountType]marketplace.API
	cfg       config.SyncConfig
	metrics   Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrchestrator creates a sync orchestrator.
func NewOrchestrator(
	runs marketplace.SyncRunRepository,
	catalog marketplace.CatalogItemRepository,
	orderProc *OrderProcessor,
	apis map[marketplace.AccountType]marketplace.API,
	cfg config.SyncConfig,
	log *zap.Logger,
) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		runs:      runs,
		catalog:   catalog,
		orderProc: orderProc,
		apis:      apis,
		cfg:       cfg,
		logger:    log,
		now:       time.Now,
	}
}

// SetMetrics sets the metrics recorder (optional).
func (o *Orchestrator) SetMetrics(m Metrics) {
	o.metrics = m
}

// runTimeout returns the wall-clock budget for one run, clamped to the
// hard ceiling.
func (o *Orchestrator) runTimeout() time.Duration {
	t := o.cfg.Timeout
	if t <= 0 {
		t = defaultRunTimeout
	}
	ceiling := o.cfg.MaxTimeout
	if ceiling <= 0 {
		ceiling = maxRunTimeout
	}
	if t > ceiling {
		t = ceiling
	}
	return t
}

// maxPagesFor resolves the page ceiling for one run.
func (o *Orchestrator) maxPagesFor(override int) int {
	if override > 0 {
		return override
	}
	if o.cfg.MaxPages > 0 {
		return o.cfg.MaxPages
	}
	return 1
}

// Execute runs a claimed ledger row to a terminal state. The run must
// already be marked running; Execute never returns before the terminal
// status is persisted.
func (o *Orchestrator) Execute(ctx context.Context, run *marketplace.SyncRun, maxPages int) error {
	start := o.now()

	runCtx, cancel := context.WithTimeout(ctx, o.runTimeout())
	defer cancel()

	runCtx, runLog := logger.WithSyncRun(runCtx, o.logger, run.ID.String())
	runCtx, span := telemetry.StartSpan(runCtx, "sync.run",
		telemetry.WithAttribute(telemetry.SpanAttrRunID, run.ID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrScope, run.Scope.String()),
		telemetry.WithAttribute(telemetry.SpanAttrResource, run.Resource.String()),
		telemetry.WithAttribute(telemetry.SpanAttrMode, run.Mode.String()),
	)
	defer span.End()

	runLog.Info("sync run started",
		zap.String("scope", run.Scope.String()),
		zap.String("resource", run.Resource.String()),
		zap.String("mode", run.Mode.String()),
	)
	if o.metrics != nil {
		o.metrics.RunStarted(runCtx, run.Resource.String())
	}

	var execErr error
	defer func() {
		o.finalize(run, execErr, runCtx.Err(), start)
		if execErr != nil {
			telemetry.RecordError(span, execErr)
		} else {
			telemetry.SetOK(span)
		}
		telemetry.SetAttribute(span, telemetry.SpanAttrStatus, run.Status.String())
	}()

	since, err := o.incrementalSince(runCtx, run)
	if err != nil {
		execErr = err
		return execErr
	}

	for _, account := range run.Scope.Accounts() {
		api, ok := o.apis[account]
		if !ok {
			execErr = fmt.Errorf("no api client configured for account %q", account.String())
			return execErr
		}
		if execErr = o.syncAccount(runCtx, run, api, since, o.maxPagesFor(maxPages)); execErr != nil {
			return execErr
		}
	}

	return nil
}

// incrementalSince resolves the lower time bound for incremental runs. Full
// runs get the zero time. A missing previous run degrades to a full walk.
func (o *Orchestrator) incrementalSince(ctx context.Context, run *marketplace.SyncRun) (time.Time, error) {
	if run.Mode != marketplace.ModeIncremental {
		return time.Time{}, nil
	}

	ts, err := o.runs.LastCompletedAt(ctx, run.Scope, run.Resource)
	if err != nil {
		return time.Time{}, fmt.Errorf("resolve incremental bound: %w", err)
	}
	if ts == nil {
		logger.L(ctx).Info("no previous completed run, falling back to full walk")
		return time.Time{}, nil
	}
	return *ts, nil
}

// syncAccount walks every page of one account's collection, persisting and
// recording progress after each page.
func (o *Orchestrator) syncAccount(
	ctx context.Context,
	run *marketplace.SyncRun,
	api marketplace.API,
	since time.Time,
	maxPages int,
) error {
	ctx, log := logger.WithAccount(ctx, o.logger, api.Account().String())
	log.Info("account sync started", zap.String("account", api.Account().String()))

	req := marketplace.ListRequest{
		PageSize:      o.cfg.PageSize,
		ModifiedSince: since,
	}

	var err error
	switch run.Resource {
	case marketplace.ResourceProducts:
		_, err = mktclient.WalkPages(ctx, api.ListProducts, req, maxPages, func(page int, items []marketplace.CatalogItem) error {
			return o.processProductPage(ctx, run, items)
		})
	case marketplace.ResourceOrders:
		_, err = mktclient.WalkPages(ctx, api.ListOrders, req, maxPages, func(page int, orders []marketplace.Order) error {
			return o.processOrderPage(ctx, run, orders)
		})
	default:
		err = fmt.Errorf("unsupported resource %q", run.Resource.String())
	}
	if err != nil {
		return fmt.Errorf("account %s: %w", api.Account().String(), err)
	}
	return nil
}

// processProductPage resolves and upserts one page of catalog items, then
// persists the updated counters so progress is visible mid-run.
func (o *Orchestrator) processProductPage(ctx context.Context, run *marketplace.SyncRun, items []marketplace.CatalogItem) error {
	valid := make([]marketplace.CatalogItem, 0, len(items))
	failed := 0
	for i := range items {
		if err := items[i].Validate(); err != nil {
			failed++
			logger.L(ctx).Warn("catalog item dropped",
				zap.String("sku", items[i].SKU),
				zap.Error(err),
			)
			continue
		}
		valid = append(valid, items[i])
	}

	created, updated := 0, 0
	if len(valid) > 0 {
		var err error
		created, updated, err = o.catalog.UpsertBatch(ctx, valid)
		if err != nil {
			return err
		}
	}

	return o.recordPage(ctx, run, created, updated, failed)
}

// processOrderPage delegates one page of orders to the batch processor.
func (o *Orchestrator) processOrderPage(ctx context.Context, run *marketplace.SyncRun, orders []marketplace.Order) error {
	created, updated, failed, err := o.orderProc.Process(ctx, orders)
	if err != nil {
		// Batches written before the failure still count.
		if rerr := o.recordPage(ctx, run, created, updated, failed); rerr != nil {
			logger.L(ctx).Warn("progress write failed after batch error", zap.Error(rerr))
		}
		return err
	}
	return o.recordPage(ctx, run, created, updated, failed)
}

// recordPage accumulates one page of counters into the run and persists it.
func (o *Orchestrator) recordPage(ctx context.Context, run *marketplace.SyncRun, created, updated, failed int) error {
	run.RecordPage(created+updated+failed, created, updated, failed)
	if err := o.runs.UpdateProgress(ctx, run); err != nil {
		return fmt.Errorf("persist progress: %w", err)
	}
	if o.metrics != nil {
		o.metrics.RecordItems(ctx, run.Resource.String(), created, updated, failed)
	}
	return nil
}

// finalize writes the terminal state of the run. It runs on its own bounded
// context because the run context is typically already expired on the
// timeout path. The repository ignores the write if the reaper got there
// first, so a reaped run keeps its verdict.
//
// ctxErr is the run context's own verdict at exit. A deadline that fired
// mid-page surfaces through whatever call was in flight, so the error chain
// alone is not trusted to carry context.DeadlineExceeded.
func (o *Orchestrator) finalize(run *marketplace.SyncRun, execErr, ctxErr error, start time.Time) {
	now := o.now()
	switch {
	case execErr == nil:
		run.Complete(now)
	case errors.Is(execErr, marketplace.ErrTimeoutExceeded) ||
		errors.Is(execErr, context.DeadlineExceeded) ||
		errors.Is(ctxErr, context.DeadlineExceeded):
		run.Timeout(now)
	default:
		run.Fail(now, execErr)
	}

	finishCtx, cancel := context.WithTimeout(context.Background(), finishGrace)
	defer cancel()

	if err := o.runs.Finish(finishCtx, run); err != nil {
		o.logger.Error("terminal ledger write failed",
			zap.String("sync_run_id", run.ID.String()),
			zap.Error(err),
		)
	}

	elapsed := now.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	if o.metrics != nil {
		o.metrics.RunFinished(finishCtx, run.Resource.String(), run.Status.String(), elapsed)
		if run.Status == marketplace.RunCompleted && run.Resource == marketplace.ResourceProducts {
			if count, err := o.catalog.Count(finishCtx); err == nil {
				o.metrics.RecordCatalogSize(finishCtx, count)
			}
		}
	}

	o.logger.Info("sync run finished",
		zap.String("sync_run_id", run.ID.String()),
		zap.String("status", run.Status.String()),
		zap.Int("pages_fetched", run.PagesFetched),
		zap.Int("items_processed", run.ItemsProcessed),
		zap.Float64("duration_seconds", run.Duration(now)),
	)
}

// ---------------------------------------------------------------------------
// Async Handles
// ---------------------------------------------------------------------------

// RunHandle controls one background run. Progress is observable only through
// the ledger; the handle just carries cancellation and completion signals.
type RunHandle struct {
	RunID  uuid.UUID
	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed when the background run reached a terminal state.
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Cancel aborts the background run. The orchestrator still writes the
// terminal ledger row before Done closes.
func (h *RunHandle) Cancel() {
	h.cancel()
}

// Launch starts a claimed run in the background and returns its handle. The
// run detaches from the caller's context; the wall-clock timeout is its only
// external bound besides Cancel.
func (o *Orchestrator) Launch(run *marketplace.SyncRun, maxPages int) *RunHandle {
	ctx, cancel := context.WithCancel(context.Background())
	handle := &RunHandle{
		RunID:  run.ID,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(handle.done)
		defer cancel()
		if err := o.Execute(ctx, run, maxPages); err != nil {
			o.logger.Warn("background sync run ended with error",
				zap.String("sync_run_id", run.ID.String()),
				zap.Error(err),
			)
		}
	}()

	return handle
}
