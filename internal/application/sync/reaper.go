package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sellerbridge/backend/internal/domain/marketplace"
)

const (
	// DefaultReaperAge is the minimum age before a running row counts as stuck.
	DefaultReaperAge = 30 * time.Minute
	// defaultReaperInterval spaces the background sweeps.
	defaultReaperInterval = 5 * time.Minute
)

// Reaper repairs the ledger after crashed processes: any row still marked
// running past the age cutoff is flipped to failed with the stuck-run
// marker. The whole sweep is one conditional UPDATE, so running it from
// several processes at once is harmless.
type Reaper struct {
	runs     marketplace.SyncRunRepository
	age      time.Duration
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewReaper creates a reaper with the given stuck-run age. Non-positive
// values fall back to DefaultReaperAge.
func NewReaper(runs marketplace.SyncRunRepository, age time.Duration, log *zap.Logger) *Reaper {
	if age <= 0 {
		age = DefaultReaperAge
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reaper{
		runs:     runs,
		age:      age,
		interval: defaultReaperInterval,
		logger:   log,
		now:      time.Now,
	}
}

// ReapNow sweeps once with the configured age.
func (r *Reaper) ReapNow(ctx context.Context) (int64, error) {
	return r.ReapOlderThan(ctx, r.age)
}

// ReapOlderThan sweeps once, reaping running rows older than the given age.
func (r *Reaper) ReapOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		age = r.age
	}
	cutoff := r.now().Add(-age)

	reaped, err := r.runs.ReapStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if reaped > 0 {
		r.logger.Warn("reaped stuck sync runs",
			zap.Int64("count", reaped),
			zap.Duration("age", age),
		)
	}
	return reaped, nil
}

// Start sweeps periodically until the context is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Info("reaper stopped")
				return
			case <-ticker.C:
				if _, err := r.ReapNow(ctx); err != nil {
					r.logger.Error("reaper sweep failed", zap.Error(err))
				}
			}
		}
	}()
}
