package marketplace

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// Marketplace API Port
// ---------------------------------------------------------------------------

// MaxPageSize is the largest page the remote list endpoints accept.
const MaxPageSize = 100

// ListRequest describes one page request against a remote collection.
type ListRequest struct {
	// Page is the 1-indexed page number.
	Page int
	// PageSize is the number of items per page, capped at MaxPageSize.
	PageSize int
	// ModifiedSince restricts the listing to items changed after the given
	// time. Zero means no restriction (full mode).
	ModifiedSince time.Time
}

// Normalize clamps the request to the remote API's accepted bounds.
func (r *ListRequest) Normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 || r.PageSize > MaxPageSize {
		r.PageSize = MaxPageSize
	}
}

// API is the port to one seller account of the remote marketplace. Concrete
// implementations live in the infrastructure layer and compose rate limiting
// and retries; callers only see typed page reads and writes.
//
// List responses deliberately expose no total-page metadata: the remote
// field exists but is unreliable, so pagination always terminates on a
// short page instead.
type API interface {
	// Account returns the seller account this client is bound to.
	Account() AccountType

	// ListProducts fetches one page of catalog items.
	ListProducts(ctx context.Context, req ListRequest) ([]CatalogItem, error)

	// ListOrders fetches one page of orders.
	ListOrders(ctx context.Context, req ListRequest) ([]Order, error)
}
