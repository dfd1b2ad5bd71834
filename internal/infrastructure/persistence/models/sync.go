package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sellerbridge/backend/internal/domain/marketplace"
	"github.com/shopspring/decimal"
)

// normalizeTime strips wall-clock zone information so every persisted
// timestamp is UTC. Postgres `timestamp` columns drop the zone on write;
// normalizing before the round trip keeps comparisons stable.
func normalizeTime(t time.Time) time.Time {
	return t.UTC()
}

func normalizeTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// ---------------------------------------------------------------------------
// SyncRunModel
// ---------------------------------------------------------------------------

// SyncRunModel is the persistence model for the sync progress ledger.
// A partial unique index on (scope, resource) WHERE status = 'running'
// backs the single-running-run invariant at the storage level.
type SyncRunModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`

	Scope    string `gorm:"type:varchar(8);not null;index:idx_sync_runs_pair"`
	Resource string `gorm:"type:varchar(16);not null;index:idx_sync_runs_pair"`
	Mode     string `gorm:"type:varchar(16);not null"`
	Status   string `gorm:"type:varchar(16);not null;index"`

	StartedAt   *time.Time
	CompletedAt *time.Time

	PagesFetched   int `gorm:"not null"`
	ItemsProcessed int `gorm:"not null"`
	ItemsCreated   int `gorm:"not null"`
	ItemsUpdated   int `gorm:"not null"`
	ItemsFailed    int `gorm:"not null"`

	LastError string `gorm:"type:text;not null"`
}

// TableName returns the table name for GORM
func (SyncRunModel) TableName() string {
	return "sync_runs"
}

// ToDomain converts the persistence model to a domain SyncRun.
func (m *SyncRunModel) ToDomain() *marketplace.SyncRun {
	return &marketplace.SyncRun{
		ID:             m.ID,
		Scope:          marketplace.AccountScope(m.Scope),
		Resource:       marketplace.ResourceType(m.Resource),
		Mode:           marketplace.SyncMode(m.Mode),
		Status:         marketplace.SyncRunStatus(m.Status),
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
		PagesFetched:   m.PagesFetched,
		ItemsProcessed: m.ItemsProcessed,
		ItemsCreated:   m.ItemsCreated,
		ItemsUpdated:   m.ItemsUpdated,
		ItemsFailed:    m.ItemsFailed,
		LastError:      m.LastError,
	}
}

// SyncRunModelFromDomain converts a domain SyncRun to its persistence model.
func SyncRunModelFromDomain(run *marketplace.SyncRun) *SyncRunModel {
	return &SyncRunModel{
		ID:             run.ID,
		Scope:          run.Scope.String(),
		Resource:       run.Resource.String(),
		Mode:           run.Mode.String(),
		Status:         run.Status.String(),
		StartedAt:      normalizeTimePtr(run.StartedAt),
		CompletedAt:    normalizeTimePtr(run.CompletedAt),
		PagesFetched:   run.PagesFetched,
		ItemsProcessed: run.ItemsProcessed,
		ItemsCreated:   run.ItemsCreated,
		ItemsUpdated:   run.ItemsUpdated,
		ItemsFailed:    run.ItemsFailed,
		LastError:      run.LastError,
	}
}

// ---------------------------------------------------------------------------
// CatalogItemModel
// ---------------------------------------------------------------------------

// CatalogItemModel is the persistence model for a synced catalog row.
// Identity is (sku, account_type); the two accounts never share rows.
type CatalogItemModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	SKU         string          `gorm:"column:sku;type:varchar(128);not null;uniqueIndex:idx_catalog_items_sku_account,priority:1"`
	AccountType string          `gorm:"type:varchar(8);not null;uniqueIndex:idx_catalog_items_sku_account,priority:2"`
	RemoteID    int64           `gorm:"not null"`
	Name        string          `gorm:"type:varchar(512);not null"`
	Price       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Stock       int             `gorm:"not null"`
	Active      bool            `gorm:"not null"`

	LastSyncedAt time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (CatalogItemModel) TableName() string {
	return "catalog_items"
}

// ToDomain converts the persistence model to a domain CatalogItem.
func (m *CatalogItemModel) ToDomain() marketplace.CatalogItem {
	return marketplace.CatalogItem{
		SKU:          m.SKU,
		Account:      marketplace.AccountType(m.AccountType),
		RemoteID:     m.RemoteID,
		Name:         m.Name,
		Price:        m.Price,
		Stock:        m.Stock,
		Active:       m.Active,
		LastSyncedAt: m.LastSyncedAt,
	}
}

// CatalogItemModelFromDomain converts a domain CatalogItem to its
// persistence model. The row ID is generated here; upserts on the
// (sku, account_type) key keep the original ID of existing rows.
func CatalogItemModelFromDomain(item marketplace.CatalogItem) *CatalogItemModel {
	return &CatalogItemModel{
		ID:           uuid.New(),
		SKU:          item.SKU,
		AccountType:  string(item.Account),
		RemoteID:     item.RemoteID,
		Name:         item.Name,
		Price:        item.Price,
		Stock:        item.Stock,
		Active:       item.Active,
		LastSyncedAt: normalizeTime(item.LastSyncedAt),
	}
}

// ---------------------------------------------------------------------------
// OrderModel
// ---------------------------------------------------------------------------

// OrderModel is the persistence model for a synced marketplace order.
// Identity is (external_id, account_type); numeric external IDs collide
// across accounts.
type OrderModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	ExternalID  int64           `gorm:"not null;uniqueIndex:idx_orders_external_account,priority:1"`
	AccountType string          `gorm:"type:varchar(8);not null;uniqueIndex:idx_orders_external_account,priority:2"`
	Status      int             `gorm:"not null"`
	CustomerRef string          `gorm:"type:varchar(256);not null"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	LinesJSON   string          `gorm:"column:lines;type:jsonb;not null"`

	PlacedAt     time.Time `gorm:"not null;index"`
	LastSyncedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// orderLineJSON is the stored shape of one order line.
type orderLineJSON struct {
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// ToDomain converts the persistence model to a domain Order.
func (m *OrderModel) ToDomain() (marketplace.Order, error) {
	var stored []orderLineJSON
	if m.LinesJSON != "" {
		if err := json.Unmarshal([]byte(m.LinesJSON), &stored); err != nil {
			return marketplace.Order{}, fmt.Errorf("decode order %d lines: %w", m.ExternalID, err)
		}
	}
	lines := make([]marketplace.OrderLine, len(stored))
	for i, l := range stored {
		lines[i] = marketplace.OrderLine{SKU: l.SKU, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return marketplace.Order{
		ExternalID:   m.ExternalID,
		Account:      marketplace.AccountType(m.AccountType),
		Status:       m.Status,
		CustomerRef:  m.CustomerRef,
		TotalAmount:  m.TotalAmount,
		Lines:        lines,
		PlacedAt:     m.PlacedAt,
		LastSyncedAt: m.LastSyncedAt,
	}, nil
}

// OrderModelFromDomain converts a domain Order to its persistence model.
func OrderModelFromDomain(order marketplace.Order) (*OrderModel, error) {
	stored := make([]orderLineJSON, len(order.Lines))
	for i, l := range order.Lines {
		stored[i] = orderLineJSON{SKU: l.SKU, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode order %d lines: %w", order.ExternalID, err)
	}
	return &OrderModel{
		ID:           uuid.New(),
		ExternalID:   order.ExternalID,
		AccountType:  string(order.Account),
		Status:       order.Status,
		CustomerRef:  order.CustomerRef,
		TotalAmount:  order.TotalAmount,
		LinesJSON:    string(raw),
		PlacedAt:     normalizeTime(order.PlacedAt),
		LastSyncedAt: normalizeTime(order.LastSyncedAt),
	}, nil
}
