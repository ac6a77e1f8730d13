package alert

import (
	"context"
	"log/slog"
	"time"
)

// RetryScheduler periodically resubmits undelivered alerts through the
// manager's retry path. It stops when its context is cancelled; the tick
// source comes from the injected clock so tests can simulate many intervals
// without sleeping.
type RetryScheduler struct {
	manager    *Manager
	interval   time.Duration
	maxRetries int
	clock      Clock
}

// NewRetryScheduler builds a scheduler over manager. maxRetries is the
// terminal attempt count: an alert that reaches it is never retried again.
func NewRetryScheduler(manager *Manager, interval time.Duration, maxRetries int, clock Clock) *RetryScheduler {
	if clock == nil {
		clock = SystemClock
	}
	return &RetryScheduler{
		manager:    manager,
		interval:   interval,
		maxRetries: maxRetries,
		clock:      clock,
	}
}

// Run blocks until ctx is cancelled, retrying on every tick. Callers start it
// as a goroutine.
func (r *RetryScheduler) Run(ctx context.Context) {
	ticks, stop := r.clock.Tick(r.interval)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			r.RetryOnce(ctx)
		}
	}
}

// Drain performs retry passes on the configured cadence until no alerts
// remain eligible for retry or ctx ends, whichever comes first. It reports
// whether the retry set drained completely. One-shot callers use it to
// finish retrying before exit; long-running callers use Run.
func (r *RetryScheduler) Drain(ctx context.Context) bool {
	ticks, stop := r.clock.Tick(r.interval)
	defer stop()
	for {
		if len(r.manager.Undelivered(r.maxRetries)) == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticks:
			r.RetryOnce(ctx)
		}
	}
}

// RetryOnce performs a single retry pass. Exposed so one-shot callers and
// tests can drive passes directly.
func (r *RetryScheduler) RetryOnce(ctx context.Context) {
	for _, a := range r.manager.Undelivered(r.maxRetries) {
		slog.Info("retrying alert", "id", a.ID, "title", a.Title, "attempt", a.DeliveryAttempts+1)
		r.manager.Resend(ctx, a)
	}
}
