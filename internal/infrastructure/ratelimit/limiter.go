// Package ratelimit enforces the per-resource-class request budgets of the
// remote marketplace API. Every outbound call acquires a slot here first.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sellerbridge/backend/internal/domain/marketplace"
	"github.com/sellerbridge/backend/internal/infrastructure/config"
)

// FallbackClass is used when a caller names a class that is not configured.
const FallbackClass = "other"

// Usage is a point-in-time snapshot of one class's budget consumption,
// exposed for metrics.
type Usage struct {
	Class           string
	BucketTokens    float64 // tokens currently available in the per-second bucket
	WindowUsed      int     // requests recorded in the rolling minute window
	WindowRemaining int
}

// Limiter tracks a token bucket (per-second budget) and a rolling minute
// window (per-minute budget) for each resource class. A request slot is
// granted only when both budgets have room.
//
// Thread Safety: safe for concurrent use.
type Limiter struct {
	classes map[string]*classLimiter

	// now, sleep and jitterFn are swappable so budget arithmetic can be
	// tested against a simulated clock.
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	jitterFn func(minInterval time.Duration) time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

type classLimiter struct {
	bucket      *rate.Limiter
	window      *slidingWindow
	minInterval time.Duration

	mu        sync.Mutex
	notBefore time.Time // pushed forward by Penalize after a 429
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock and the sleeper, for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) {
		l.now = now
		l.sleep = sleep
	}
}

// WithJitter replaces the jitter function. Tests pass a zero jitter to make
// admission times exact.
func WithJitter(fn func(minInterval time.Duration) time.Duration) Option {
	return func(l *Limiter) {
		l.jitterFn = fn
	}
}

// New creates a Limiter from the configured class budgets. A class named
// "other" must exist; it is the fallback for unknown classes.
func New(budgets map[string]config.RateBudget, opts ...Option) (*Limiter, error) {
	if _, ok := budgets[FallbackClass]; !ok {
		return nil, fmt.Errorf("ratelimit: missing %q class budget", FallbackClass)
	}

	l := &Limiter{
		classes: make(map[string]*classLimiter, len(budgets)),
		now:     time.Now,
		sleep:   sleepContext,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	l.jitterFn = l.randomJitter
	for name, b := range budgets {
		if b.PerSecond <= 0 || b.PerMinute <= 0 {
			return nil, fmt.Errorf("ratelimit: class %q has non-positive budget", name)
		}
		// Burst of 1 paces requests evenly instead of allowing an initial
		// burst that would overrun the remote's one-second accounting.
		l.classes[name] = &classLimiter{
			bucket:      rate.NewLimiter(rate.Limit(b.PerSecond), 1),
			window:      newSlidingWindow(b.PerMinute, time.Minute),
			minInterval: time.Second / time.Duration(b.PerSecond),
		}
	}

	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Acquire blocks until both budgets of the class admit one request, or the
// context expires. The wait includes a small random jitter (up to 10% of the
// class's minimum inter-request interval) so concurrent callers do not fire
// in lockstep. Returns ErrRateLimitTimeout wrapped with detail on expiry.
func (l *Limiter) Acquire(ctx context.Context, class string) error {
	cl := l.class(class)
	start := l.now()

	res := cl.bucket.ReserveN(start, 1)
	if !res.OK() {
		return fmt.Errorf("%w: class %q bucket cannot admit request", marketplace.ErrRateLimitTimeout, class)
	}

	delay := res.DelayFrom(start)
	if wd := cl.window.delayAt(start); wd > delay {
		delay = wd
	}
	if penalty := cl.penaltyDelay(start); penalty > delay {
		delay = penalty
	}
	delay += l.jitterFn(cl.minInterval)

	if deadline, ok := ctx.Deadline(); ok && start.Add(delay).After(deadline) {
		res.CancelAt(start)
		return fmt.Errorf("%w: class %q needs %s, deadline in %s",
			marketplace.ErrRateLimitTimeout, class, delay, deadline.Sub(start))
	}

	if delay > 0 {
		if err := l.sleep(ctx, delay); err != nil {
			res.CancelAt(l.now())
			// Keep the context error in the chain so callers can tell a
			// wall-clock expiry from local budget exhaustion.
			return fmt.Errorf("%w: %w", marketplace.ErrRateLimitTimeout, err)
		}
	}

	cl.window.record(l.now())
	return nil
}

// Penalize pushes the next admission of the class out by retryAfter. Called
// when the remote API answers 429 despite local accounting, which happens
// when other consumers share the same remote quota.
func (l *Limiter) Penalize(class string, retryAfter time.Duration) {
	if retryAfter <= 0 {
		return
	}
	cl := l.class(class)
	until := l.now().Add(retryAfter)

	cl.mu.Lock()
	if until.After(cl.notBefore) {
		cl.notBefore = until
	}
	cl.mu.Unlock()
}

// Usage reports the current consumption of the class's budgets.
func (l *Limiter) Usage(class string) Usage {
	cl := l.class(class)
	now := l.now()
	used := cl.window.countAt(now)
	return Usage{
		Class:           l.resolveName(class),
		BucketTokens:    cl.bucket.TokensAt(now),
		WindowUsed:      used,
		WindowRemaining: cl.window.limit - used,
	}
}

// Classes returns the configured class names in stable order.
func (l *Limiter) Classes() []string {
	names := make([]string, 0, len(l.classes))
	for name := range l.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Limiter) class(name string) *classLimiter {
	if cl, ok := l.classes[name]; ok {
		return cl
	}
	return l.classes[FallbackClass]
}

func (l *Limiter) resolveName(name string) string {
	if _, ok := l.classes[name]; ok {
		return name
	}
	return FallbackClass
}

func (l *Limiter) randomJitter(minInterval time.Duration) time.Duration {
	maxJitter := minInterval / 10
	if maxJitter <= 0 {
		return 0
	}
	l.rngMu.Lock()
	defer l.rngMu.Unlock()
	return time.Duration(l.rng.Int63n(int64(maxJitter) + 1))
}

func (cl *classLimiter) penaltyDelay(now time.Time) time.Duration {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.notBefore.After(now) {
		return cl.notBefore.Sub(now)
	}
	return 0
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

// ---------------------------------------------------------------------------
// Sliding window
// ---------------------------------------------------------------------------

// slidingWindow counts admissions inside a rolling span. Unlike the token
// bucket it never smooths: the Nth admission within the span simply has to
// wait until the oldest one falls out.
type slidingWindow struct {
	mu     sync.Mutex
	limit  int
	span   time.Duration
	stamps []time.Time
}

func newSlidingWindow(limit int, span time.Duration) *slidingWindow {
	return &slidingWindow{
		limit:  limit,
		span:   span,
		stamps: make([]time.Time, 0, limit),
	}
}

// delayAt returns how long a caller arriving at t has to wait for the window
// to have room. Queries never mutate the stamp slice; only record prunes, so
// repeated reads at different instants stay consistent.
func (w *slidingWindow) delayAt(t time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	live := w.stamps[w.liveStart(t):]
	if len(live) < w.limit {
		return 0
	}
	// Room opens when the (len-limit+1)th oldest stamp leaves the span.
	opens := live[len(live)-w.limit].Add(w.span)
	return opens.Sub(t)
}

// record registers one admission at t.
func (w *slidingWindow) record(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i := w.liveStart(t); i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
	w.stamps = append(w.stamps, t)
}

// countAt returns how many admissions are inside the span ending at t.
func (w *slidingWindow) countAt(t time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.stamps) - w.liveStart(t)
}

// liveStart returns the index of the first stamp still inside the span
// ending at t. Caller holds w.mu.
func (w *slidingWindow) liveStart(t time.Time) int {
	cutoff := t.Add(-w.span)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	return i
}
