package marketplace

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Order
// ---------------------------------------------------------------------------

// Order is one synced marketplace order. External order IDs are scoped to
// their account and may collide numerically across accounts, so identity is
// always the (ExternalID, Account) pair. Orders are only ever appended or
// updated on re-sync, never deleted.
type Order struct {
	// ExternalID is the marketplace order ID within the account.
	ExternalID int64
	// Account is the seller account the order was placed against.
	Account AccountType
	// Status is the marketplace status code for the order.
	Status int
	// CustomerRef is the marketplace customer reference.
	CustomerRef string
	// TotalAmount is the order total.
	TotalAmount decimal.Decimal
	// Lines are the order line items.
	Lines []OrderLine
	// PlacedAt is when the order was created on the marketplace.
	PlacedAt time.Time
	// LastSyncedAt is when this row was last written by a sync run.
	LastSyncedAt time.Time
}

// OrderLine is one line item of a marketplace order.
type OrderLine struct {
	// SKU references the catalog item sold.
	SKU string
	// Quantity is the ordered quantity.
	Quantity int
	// UnitPrice is the sale price per unit.
	UnitPrice decimal.Decimal
}

// Key returns the (ExternalID, Account) identity of the order.
func (o *Order) Key() OrderKey {
	return OrderKey{ExternalID: o.ExternalID, Account: o.Account}
}

// Validate reports whether the order can be keyed for persistence.
func (o *Order) Validate() error {
	if o.ExternalID == 0 {
		return fmt.Errorf("%w: missing external order id", ErrConflictResolution)
	}
	if !o.Account.IsValid() {
		return fmt.Errorf("%w: invalid account %q", ErrConflictResolution, string(o.Account))
	}
	return nil
}

// OrderKey is the full identity of an order row.
type OrderKey struct {
	ExternalID int64
	Account    AccountType
}
