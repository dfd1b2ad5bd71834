package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sellerbridge/backend/internal/domain/marketplace"
	"github.com/sellerbridge/backend/internal/infrastructure/logger"
)

// DefaultOrderBatchSize is the bulk upsert size used when none is configured.
const DefaultOrderBatchSize = 100

// OrderProcessor writes fetched orders in bulk batches. Orders that cannot
// be keyed are counted as failed and never reach the store; the batch keeps
// going.
type OrderProcessor struct {
	orders    marketplace.OrderRepository
	batchSize int
}

// NewOrderProcessor creates an order processor with the given batch size.
// A non-positive size falls back to DefaultOrderBatchSize.
func NewOrderProcessor(orders marketplace.OrderRepository, batchSize int) *OrderProcessor {
	if batchSize <= 0 {
		batchSize = DefaultOrderBatchSize
	}
	return &OrderProcessor{
		orders:    orders,
		batchSize: batchSize,
	}
}

// Process validates and persists one page worth of orders. Returns the
// created/updated/failed split; an error aborts mid-page but the counters
// still reflect the batches that were written.
func (p *OrderProcessor) Process(ctx context.Context, incoming []marketplace.Order) (created, updated, failed int, err error) {
	log := logger.L(ctx)

	valid := make([]marketplace.Order, 0, len(incoming))
	for i := range incoming {
		if verr := incoming[i].Validate(); verr != nil {
			failed++
			log.Warn("order dropped",
				zap.Int64("external_id", incoming[i].ExternalID),
				zap.Error(verr),
			)
			continue
		}
		valid = append(valid, incoming[i])
	}

	total := len(valid)
	for start := 0; start < total; start += p.batchSize {
		end := start + p.batchSize
		if end > total {
			end = total
		}

		c, u, uerr := p.orders.UpsertBatch(ctx, valid[start:end])
		if uerr != nil {
			return created, updated, failed, uerr
		}
		created += c
		updated += u

		log.Info(fmt.Sprintf("processed batch %d-%d of %d", start+1, end, total),
			zap.Int("created", created),
			zap.Int("updated", updated),
		)
	}

	return created, updated, failed, nil
}
