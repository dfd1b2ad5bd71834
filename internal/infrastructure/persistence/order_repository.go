package persistence

import (
	"context"
	"time"

	"github.com/sellerbridge/backend/internal/domain/marketplace"
	"github.com/sellerbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOrderRepository implements marketplace.OrderRepository using GORM.
type GormOrderRepository struct {
	db *gorm.DB
}

var _ marketplace.OrderRepository = (*GormOrderRepository)(nil)

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormOrderRepository) WithTx(tx *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: tx}
}

// UpsertBatch writes the batch with last-write-wins semantics on the
// (external_id, account_type) key, returning the created/updated split.
func (r *GormOrderRepository) UpsertBatch(ctx context.Context, orders []marketplace.Order) (int, int, error) {
	if len(orders) == 0 {
		return 0, 0, nil
	}

	existing, err := r.existingKeys(ctx, orders)
	if err != nil {
		return 0, 0, err
	}

	// Postgres rejects two rows for the same key inside one INSERT ... ON
	// CONFLICT statement, so in-batch duplicates collapse before the write.
	// The last occurrence wins, matching last-write-wins.
	rows := make([]*models.OrderModel, 0, len(orders))
	now := time.Now().UTC()
	created, updated := 0, 0
	position := make(map[marketplace.OrderKey]int, len(orders))
	for i := range orders {
		model, err := models.OrderModelFromDomain(orders[i])
		if err != nil {
			return 0, 0, err
		}
		model.CreatedAt = now
		model.UpdatedAt = now

		key := orders[i].Key()
		if pos, dup := position[key]; dup {
			rows[pos] = model
			continue
		}
		position[key] = len(rows)
		rows = append(rows, model)
		if _, ok := existing[key]; ok {
			updated++
		} else {
			created++
		}
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_id"}, {Name: "account_type"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "customer_ref", "total_amount", "lines", "placed_at", "last_synced_at", "updated_at",
			}),
		}).
		CreateInBatches(rows, upsertChunkSize).Error
	if err != nil {
		return 0, 0, err
	}
	return created, updated, nil
}

// existingKeys returns which of the incoming orders already have a row.
func (r *GormOrderRepository) existingKeys(ctx context.Context, orders []marketplace.Order) (map[marketplace.OrderKey]struct{}, error) {
	pairs := make([][]any, len(orders))
	for i := range orders {
		pairs[i] = []any{orders[i].ExternalID, string(orders[i].Account)}
	}

	var rows []models.OrderModel
	err := r.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Select("external_id", "account_type").
		Where("(external_id, account_type) IN ?", pairs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	found := make(map[marketplace.OrderKey]struct{}, len(rows))
	for i := range rows {
		found[marketplace.OrderKey{
			ExternalID: rows[i].ExternalID,
			Account:    marketplace.AccountType(rows[i].AccountType),
		}] = struct{}{}
	}
	return found, nil
}

// Count returns the number of stored orders.
func (r *GormOrderRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.OrderModel{}).Count(&count).Error
	return count, err
}
