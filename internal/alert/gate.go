package alert

import "time"

// Decision is the outcome of the dedupe/rate-limit gate for one send.
type Decision int

const (
	Accepted Decision = iota
	DroppedRateLimited
	DroppedDuplicate
)

func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case DroppedRateLimited:
		return "rate_limited"
	case DroppedDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// gate guards dispatch with deduplication and rate limiting. It holds no lock
// of its own: the Manager calls admit inside its mutex so that the
// check-and-mutate sequence is one atomic step even with concurrent senders.
type gate struct {
	dedupeWindow time.Duration
	rateLimit    int
	rateWindow   time.Duration

	dedupeCache map[string]time.Time // dedupe key -> last accepted
	windowCount int
	windowStart time.Time
}

func newGate(dedupeWindow time.Duration, rateLimit int, rateWindow time.Duration) *gate {
	return &gate{
		dedupeWindow: dedupeWindow,
		rateLimit:    rateLimit,
		rateWindow:   rateWindow,
		dedupeCache:  make(map[string]time.Time),
	}
}

// admit decides whether an alert may be dispatched. The order matters and is
// relied on by callers: the rate window is reset and checked first, so a
// rate-limited call never consumes or refreshes a dedupe entry, and a
// duplicate never consumes rate budget. bypassDedup is set for retries, which
// would otherwise always collide with the dedupe entry left by their own
// first send.
func (g *gate) admit(dedupeKey string, now time.Time, bypassDedup bool) Decision {
	if now.Sub(g.windowStart) > g.rateWindow {
		g.windowCount = 0
		g.windowStart = now
	}
	if g.windowCount >= g.rateLimit {
		return DroppedRateLimited
	}
	if !bypassDedup {
		if last, ok := g.dedupeCache[dedupeKey]; ok && now.Sub(last) < g.dedupeWindow {
			return DroppedDuplicate
		}
		// Only first sends refresh the cache: a retry refreshing its own
		// entry would extend the suppression window past dedupeWindow for
		// genuinely new alerts with the same key.
		g.dedupeCache[dedupeKey] = now
	}
	g.windowCount++
	return Accepted
}

// prune drops dedupe entries whose window has fully elapsed. Called
// periodically by the Manager's maintenance job; without it the cache grows
// for every distinct dedupe key ever seen.
func (g *gate) prune(now time.Time) int {
	removed := 0
	for key, last := range g.dedupeCache {
		if now.Sub(last) >= g.dedupeWindow {
			delete(g.dedupeCache, key)
			removed++
		}
	}
	return removed
}
