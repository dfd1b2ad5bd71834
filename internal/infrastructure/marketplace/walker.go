package marketplace

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	domain "github.com/sellerbridge/backend/internal/domain/marketplace"
	"github.com/sellerbridge/backend/internal/infrastructure/logger"
)

// PageFetcher returns one page of items. Implementations are closures over a
// Client list call, so every fetch passes through rate limiting and retry.
type PageFetcher[T any] func(ctx context.Context, req domain.ListRequest) ([]T, error)

// PageVisitor receives each fetched page in order. Returning an error ends
// the walk; pages already visited stay visited (the caller persists
// incrementally, not all-or-nothing).
type PageVisitor[T any] func(page int, items []T) error

// WalkPages drives paginated retrieval of one resource for one account.
//
// Termination: a page holding fewer items than pageSize is the last page, and
// maxPages is a hard ceiling. The remote's own total-page metadata is never
// consulted; it has been observed absent or wrong.
//
// Returns the number of fully visited pages alongside any error, so a caller
// can record exactly how far a failed walk got.
func WalkPages[T any](ctx context.Context, fetch PageFetcher[T], req domain.ListRequest, maxPages int, visit PageVisitor[T]) (int, error) {
	req.Normalize()
	if maxPages <= 0 {
		maxPages = 1
	}
	log := logger.L(ctx)

	pages := 0
	for page := 1; page <= maxPages; page++ {
		select {
		case <-ctx.Done():
			return pages, fmt.Errorf("%w: %v", domain.ErrTimeoutExceeded, ctx.Err())
		default:
		}

		pageReq := req
		pageReq.Page = page
		items, err := fetch(ctx, pageReq)
		if err != nil {
			return pages, fmt.Errorf("page %d: %w", page, err)
		}

		if err := visit(page, items); err != nil {
			return pages, fmt.Errorf("page %d: %w", page, err)
		}
		pages++

		log.Debug("page visited",
			zap.Int("page", page),
			zap.Int("items", len(items)),
		)

		// A short page is the last page.
		if len(items) < pageReq.PageSize {
			return pages, nil
		}
	}

	log.Warn("walk stopped at page ceiling", zap.Int("max_pages", maxPages))
	return pages, nil
}
