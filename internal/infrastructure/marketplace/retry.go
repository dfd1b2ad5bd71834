package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	domain "github.com/sellerbridge/backend/internal/domain/marketplace"
	"github.com/sellerbridge/backend/internal/infrastructure/logger"
)

// RetryConfig bounds the retry loop around one API call.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration

	// Sleep is swappable for tests. Nil means a context-aware timer sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig matches the remote API's tolerance: three tries with a
// one-second seed capped at thirty seconds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	return c
}

// backoffDelay returns min(base << attempt, max), with a server-provided
// Retry-After hint overriding the computed value.
func (c RetryConfig) backoffDelay(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		return hint
	}
	delay := c.BaseDelay << attempt
	if delay > c.MaxDelay || delay <= 0 {
		delay = c.MaxDelay
	}
	return delay
}

// CallWithRetry runs fn up to cfg.MaxAttempts times. Transient failures
// (transport errors, HTTP 429 and 5xx) back off exponentially between tries;
// fatal failures propagate immediately. When the attempts run out the last
// error is wrapped with ErrRetryExhausted so callers can tell "gave up" from
// "failed outright".
func CallWithRetry[T any](ctx context.Context, cfg RetryConfig, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	cfg = cfg.normalized()
	log := logger.L(ctx)

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !domain.IsRetryable(err) {
			return zero, err
		}
		// A cancelled context is the wall-clock budget speaking, not a
		// transient remote failure. Keep the context error in the chain even
		// when the attempt error lost it.
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(err, ctxErr) {
				return zero, err
			}
			return zero, fmt.Errorf("%s: %w (last error: %v)", op, ctxErr, err)
		}
		lastErr = err

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := cfg.backoffDelay(attempt, domain.RetryAfterHint(err))
		log.Warn("retrying after transient failure",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if sleepErr := cfg.Sleep(ctx, delay); sleepErr != nil {
			return zero, fmt.Errorf("%w: %s: %w (last error: %v)",
				domain.ErrRetryExhausted, op, sleepErr, err)
		}
	}

	return zero, fmt.Errorf("%w: %s after %d attempts: %v",
		domain.ErrRetryExhausted, op, cfg.MaxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
