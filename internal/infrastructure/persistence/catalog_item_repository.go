package persistence

import (
	"context"
	"time"

	"github.com/sellerbridge/backend/internal/domain/marketplace"
	"github.com/sellerbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertChunkSize bounds the number of rows per INSERT so parameter counts
// stay well under the postgres limit.
const upsertChunkSize = 500

// GormCatalogItemRepository implements marketplace.CatalogItemRepository
// using GORM.
type GormCatalogItemRepository struct {
	db *gorm.DB
}

var _ marketplace.CatalogItemRepository = (*GormCatalogItemRepository)(nil)

// NewGormCatalogItemRepository creates a new GormCatalogItemRepository
func NewGormCatalogItemRepository(db *gorm.DB) *GormCatalogItemRepository {
	return &GormCatalogItemRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormCatalogItemRepository) WithTx(tx *gorm.DB) *GormCatalogItemRepository {
	return &GormCatalogItemRepository{db: tx}
}

// UpsertBatch writes the batch with last-write-wins semantics on the
// (sku, account_type) key. The created/updated split is derived from a
// key-existence probe taken just before the write; sync runs hold the
// only writer slot for their resource, so the probe cannot go stale.
func (r *GormCatalogItemRepository) UpsertBatch(ctx context.Context, items []marketplace.CatalogItem) (int, int, error) {
	if len(items) == 0 {
		return 0, 0, nil
	}

	keys := make([]marketplace.ItemKey, len(items))
	for i := range items {
		keys[i] = items[i].Key()
	}
	existing, err := r.ExistingKeys(ctx, keys)
	if err != nil {
		return 0, 0, err
	}

	// Postgres rejects two rows for the same key inside one INSERT ... ON
	// CONFLICT statement, so in-page duplicates collapse before the write.
	// The last occurrence wins, matching last-write-wins.
	rows := make([]*models.CatalogItemModel, 0, len(items))
	now := time.Now().UTC()
	created, updated := 0, 0
	position := make(map[marketplace.ItemKey]int, len(items))
	for i := range items {
		row := models.CatalogItemModelFromDomain(items[i])
		row.CreatedAt = now
		row.UpdatedAt = now

		key := items[i].Key()
		if pos, dup := position[key]; dup {
			rows[pos] = row
			continue
		}
		position[key] = len(rows)
		rows = append(rows, row)
		if _, ok := existing[key]; ok {
			updated++
		} else {
			created++
		}
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "sku"}, {Name: "account_type"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"remote_id", "name", "price", "stock", "active", "last_synced_at", "updated_at",
			}),
		}).
		CreateInBatches(rows, upsertChunkSize).Error
	if err != nil {
		return 0, 0, err
	}
	return created, updated, nil
}

// ExistingKeys returns which of the given keys already have a stored row.
func (r *GormCatalogItemRepository) ExistingKeys(ctx context.Context, keys []marketplace.ItemKey) (map[marketplace.ItemKey]struct{}, error) {
	if len(keys) == 0 {
		return map[marketplace.ItemKey]struct{}{}, nil
	}

	pairs := make([][]any, len(keys))
	for i, k := range keys {
		pairs[i] = []any{k.SKU, string(k.Account)}
	}

	var rows []models.CatalogItemModel
	err := r.db.WithContext(ctx).
		Model(&models.CatalogItemModel{}).
		Select("sku", "account_type").
		Where("(sku, account_type) IN ?", pairs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	found := make(map[marketplace.ItemKey]struct{}, len(rows))
	for i := range rows {
		found[marketplace.ItemKey{
			SKU:     rows[i].SKU,
			Account: marketplace.AccountType(rows[i].AccountType),
		}] = struct{}{}
	}
	return found, nil
}

// FindCanonical returns the canonical row for a SKU. Both account rows are
// loaded and the MAIN row wins whenever it exists.
func (r *GormCatalogItemRepository) FindCanonical(ctx context.Context, sku string) (*marketplace.CatalogItem, error) {
	var rows []models.CatalogItemModel
	err := r.db.WithContext(ctx).
		Where("sku = ?", sku).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, marketplace.ErrItemNotFound
	}

	items := make([]marketplace.CatalogItem, len(rows))
	for i := range rows {
		items[i] = rows[i].ToDomain()
	}
	canonical := marketplace.Canonical(items)
	return &canonical[0], nil
}

// FindAll lists catalog rows matching the filter, ordered by SKU.
func (r *GormCatalogItemRepository) FindAll(ctx context.Context, filter marketplace.CatalogFilter) ([]marketplace.CatalogItem, error) {
	query := r.db.WithContext(ctx).Model(&models.CatalogItemModel{})

	if filter.Account != nil {
		query = query.Where("account_type = ?", string(*filter.Account))
	}
	if len(filter.SKUs) > 0 {
		query = query.Where("sku IN ?", filter.SKUs)
	}
	if filter.ActiveOnly {
		query = query.Where("active = ?", true)
	}

	var rows []models.CatalogItemModel
	if err := query.Order("sku ASC, account_type ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	items := make([]marketplace.CatalogItem, len(rows))
	for i := range rows {
		items[i] = rows[i].ToDomain()
	}
	return items, nil
}

// Count returns the number of stored catalog rows.
func (r *GormCatalogItemRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CatalogItemModel{}).Count(&count).Error
	return count, err
}
