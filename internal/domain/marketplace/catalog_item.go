package marketplace

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// CatalogItem
// ---------------------------------------------------------------------------

// CatalogItem is one synced catalog row. Uniqueness is on (SKU, Account):
// a logical product listed under both accounts has two rows, each carrying
// its own remote ID, price and stock. Remote IDs differ between the two
// accounts for the same SKU and must never be assumed to share an ID space.
type CatalogItem struct {
	// SKU is the stable seller-chosen key, unique per account.
	SKU string
	// Account is the seller account this row belongs to.
	Account AccountType
	// RemoteID is the marketplace-assigned numeric ID within the account.
	RemoteID int64
	// Name is the product title as listed.
	Name string
	// Price is the current sale price.
	Price decimal.Decimal
	// Stock is the available quantity.
	Stock int
	// Active indicates whether the offer is live on the marketplace.
	Active bool
	// LastSyncedAt is when this row was last written by a sync run.
	LastSyncedAt time.Time
}

// Key returns the (SKU, Account) identity of the item.
func (c *CatalogItem) Key() ItemKey {
	return ItemKey{SKU: c.SKU, Account: c.Account}
}

// Validate reports whether the item can be keyed for conflict resolution.
func (c *CatalogItem) Validate() error {
	if c.SKU == "" {
		return fmt.Errorf("%w: empty sku", ErrConflictResolution)
	}
	if !c.Account.IsValid() {
		return fmt.Errorf("%w: invalid account %q", ErrConflictResolution, string(c.Account))
	}
	return nil
}

// ItemKey is the full identity of a catalog row.
type ItemKey struct {
	SKU     string
	Account AccountType
}

// ---------------------------------------------------------------------------
// Conflict Resolution
// ---------------------------------------------------------------------------

// ResolveAction is the decision for one incoming item.
type ResolveAction int

const (
	// ActionInsert means no stored row exists for the key.
	ActionInsert ResolveAction = iota
	// ActionUpdate means a stored row exists and is overwritten.
	ActionUpdate
	// ActionSkip means the item is malformed and must be counted as failed.
	ActionSkip
)

// Resolve decides what to do with an incoming item given the set of keys
// already stored. Items are always keyed by the full (SKU, Account) pair:
// rows from the two accounts never collide, and newly arriving data always
// overwrites the stored row for its own key (last-write-wins per account,
// no cross-account field merging).
func Resolve(item *CatalogItem, existing map[ItemKey]struct{}) (ResolveAction, error) {
	if err := item.Validate(); err != nil {
		return ActionSkip, err
	}
	if _, ok := existing[item.Key()]; ok {
		return ActionUpdate, nil
	}
	return ActionInsert, nil
}

// Canonical projects one row per SKU from the per-account rows. When a SKU
// exists under both accounts the MAIN row always wins; the FBE row is used
// only when no MAIN row exists.
func Canonical(items []CatalogItem) []CatalogItem {
	bySKU := make(map[string]CatalogItem, len(items))
	for _, item := range items {
		current, ok := bySKU[item.SKU]
		if !ok {
			bySKU[item.SKU] = item
			continue
		}
		if current.Account != AccountMain && item.Account == AccountMain {
			bySKU[item.SKU] = item
		}
	}

	out := make([]CatalogItem, 0, len(bySKU))
	for _, item := range bySKU {
		out = append(out, item)
	}
	return out
}
