package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sellerbridge/backend/internal/domain/marketplace"
	"github.com/sellerbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// ReapedRunError is the terminal error text written to runs the reaper
// closes. Clients filter on it to distinguish crashes from API failures.
const ReapedRunError = "stuck run reaped"

// defaultRunListLimit bounds ledger history queries with no explicit limit.
const defaultRunListLimit = 50

// maxRunListLimit is the hard ceiling for ledger history queries.
const maxRunListLimit = 200

// GormSyncRunRepository implements marketplace.SyncRunRepository using GORM.
type GormSyncRunRepository struct {
	db *gorm.DB
}

var _ marketplace.SyncRunRepository = (*GormSyncRunRepository)(nil)

// NewGormSyncRunRepository creates a new GormSyncRunRepository
func NewGormSyncRunRepository(db *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormSyncRunRepository) WithTx(tx *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: tx}
}

// Create inserts a new pending ledger row.
func (r *GormSyncRunRepository) Create(ctx context.Context, run *marketplace.SyncRun) error {
	model := models.SyncRunModelFromDomain(run)
	return r.db.WithContext(ctx).Create(model).Error
}

// TryMarkRunning atomically transitions the row from pending to running.
// The guard rejects the transition while another row for the same
// (scope, resource) pair is running; a partial unique index on the pair
// backstops the race between the existence check and the update.
func (r *GormSyncRunRepository) TryMarkRunning(ctx context.Context, run *marketplace.SyncRun) error {
	now := time.Now().UTC()

	result := r.db.WithContext(ctx).
		Model(&models.SyncRunModel{}).
		Where("id = ? AND status = ?", run.ID, marketplace.RunPending.String()).
		Where(
			"NOT EXISTS (SELECT 1 FROM sync_runs busy WHERE busy.scope = ? AND busy.resource = ? AND busy.status = ?)",
			run.Scope.String(), run.Resource.String(), marketplace.RunRunning.String(),
		).
		Updates(map[string]any{
			"status":     marketplace.RunRunning.String(),
			"started_at": now,
			"updated_at": now,
		})

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return marketplace.ErrSyncAlreadyRunning
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return marketplace.ErrSyncAlreadyRunning
	}

	run.Start(now)
	return nil
}

// UpdateProgress persists the page and item counters of a running row.
func (r *GormSyncRunRepository) UpdateProgress(ctx context.Context, run *marketplace.SyncRun) error {
	result := r.db.WithContext(ctx).
		Model(&models.SyncRunModel{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"pages_fetched":   run.PagesFetched,
			"items_processed": run.ItemsProcessed,
			"items_created":   run.ItemsCreated,
			"items_updated":   run.ItemsUpdated,
			"items_failed":    run.ItemsFailed,
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return marketplace.ErrRunNotFound
	}
	return nil
}

// Finish persists the terminal status, counters and timestamps. Rows the
// reaper already closed are left untouched so the reaper's verdict wins.
func (r *GormSyncRunRepository) Finish(ctx context.Context, run *marketplace.SyncRun) error {
	model := models.SyncRunModelFromDomain(run)
	result := r.db.WithContext(ctx).
		Model(&models.SyncRunModel{}).
		Where("id = ? AND status NOT IN ?", run.ID, []string{
			marketplace.RunCompleted.String(),
			marketplace.RunFailed.String(),
			marketplace.RunTimedOut.String(),
		}).
		Updates(map[string]any{
			"status":          model.Status,
			"completed_at":    model.CompletedAt,
			"pages_fetched":   model.PagesFetched,
			"items_processed": model.ItemsProcessed,
			"items_created":   model.ItemsCreated,
			"items_updated":   model.ItemsUpdated,
			"items_failed":    model.ItemsFailed,
			"last_error":      model.LastError,
			"updated_at":      time.Now().UTC(),
		})
	return result.Error
}

// FindByID retrieves one ledger row.
func (r *GormSyncRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*marketplace.SyncRun, error) {
	var model models.SyncRunModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, marketplace.ErrRunNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists ledger rows matching the filter, newest first.
func (r *GormSyncRunRepository) FindAll(ctx context.Context, filter marketplace.SyncRunFilter) ([]marketplace.SyncRun, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncRunModel{})

	if filter.Resource != nil {
		query = query.Where("resource = ?", filter.Resource.String())
	}
	if filter.Status != nil {
		query = query.Where("status = ?", filter.Status.String())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultRunListLimit
	}
	if limit > maxRunListLimit {
		limit = maxRunListLimit
	}

	var rows []models.SyncRunModel
	if err := query.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	runs := make([]marketplace.SyncRun, len(rows))
	for i := range rows {
		runs[i] = *rows[i].ToDomain()
	}
	return runs, nil
}

// LastCompletedAt returns the completion time of the most recent completed
// run for the pair, nil when none exists.
func (r *GormSyncRunRepository) LastCompletedAt(ctx context.Context, scope marketplace.AccountScope, resource marketplace.ResourceType) (*time.Time, error) {
	var model models.SyncRunModel
	err := r.db.WithContext(ctx).
		Where("scope = ? AND resource = ? AND status = ?",
			scope.String(), resource.String(), marketplace.RunCompleted.String()).
		Order("completed_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.CompletedAt, nil
}

// ReapStale transitions every running row started before the cutoff to
// failed with the stuck-run marker. A single UPDATE keeps the sweep
// idempotent under concurrent reapers.
func (r *GormSyncRunRepository) ReapStale(ctx context.Context, olderThan time.Time) (int64, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.SyncRunModel{}).
		Where("status = ? AND started_at < ?", marketplace.RunRunning.String(), olderThan.UTC()).
		Updates(map[string]any{
			"status":       marketplace.RunFailed.String(),
			"completed_at": now,
			"last_error":   ReapedRunError,
			"updated_at":   now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
