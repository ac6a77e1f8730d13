package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Channel is a configured notification destination: a routing predicate plus
// a delivery adapter. Implemented by internal/notify.
type Channel interface {
	Name() string
	Kind() string
	Matches(a *Alert) bool
	Send(ctx context.Context, a *Alert) error
}

// Recorder persists an alert's identity and final delivery state. The manager
// calls it outside its lock after every accepted send; failures are logged
// and never affect dispatch.
type Recorder interface {
	RecordAlert(ctx context.Context, a *Alert) error
}

// Settings are the dispatch-gate parameters of a Manager.
type Settings struct {
	DedupeWindow    time.Duration
	RateLimit       int
	RateLimitWindow time.Duration
	HistoryLimit    int
}

// Manager owns all mutable alerting state: the dedupe/rate gate, the bounded
// history, and the delivery fields of every alert that passed the gate. It is
// safe for concurrent use; the gate decision and all state mutation happen
// under one mutex, while channel delivery (network I/O) happens outside it so
// a slow webhook cannot stall other senders' gate decisions.
type Manager struct {
	channels []Channel
	clock    Clock
	recorder Recorder
	maxHist  int

	mu      sync.Mutex
	gate    *gate
	history []*Alert
	// inflight holds alerts whose delivery has started but not finished, so
	// a retry pass cannot pick one up and double-deliver it.
	inflight map[*Alert]struct{}

	cron *cron.Cron
}

// ManagerOption customises Manager construction.
type ManagerOption func(*Manager)

// WithClock injects a clock, letting tests drive the gate through virtual time.
func WithClock(c Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// WithRecorder attaches a persistence hook for accepted alerts.
func WithRecorder(r Recorder) ManagerOption {
	return func(m *Manager) { m.recorder = r }
}

// NewManager builds a Manager over the given channels and starts its
// maintenance job, which prunes expired dedupe entries on the dedupe-window
// cadence. Call Close for graceful shutdown.
func NewManager(s Settings, channels []Channel, opts ...ManagerOption) *Manager {
	m := &Manager{
		channels: channels,
		clock:    SystemClock,
		maxHist:  s.HistoryLimit,
		gate:     newGate(s.DedupeWindow, s.RateLimit, s.RateLimitWindow),
		inflight: make(map[*Alert]struct{}),
		cron:     cron.New(),
	}
	for _, opt := range opts {
		opt(m)
	}

	spec := fmt.Sprintf("@every %s", s.DedupeWindow)
	if _, err := m.cron.AddFunc(spec, m.runMaintenance); err != nil {
		// "@every <duration>" with a validated positive window always parses.
		slog.Error("alert manager: registering maintenance job failed", "error", err)
	}
	m.cron.Start()
	return m
}

// Close stops the maintenance job.
func (m *Manager) Close() {
	if m.cron != nil {
		m.cron.Stop()
	}
}

// Send routes an alert through the gate and, if accepted, to every matching
// channel. It returns true iff at least one matched channel delivered.
// Rate-limited and duplicate alerts are dropped silently (logged, false).
func (m *Manager) Send(ctx context.Context, a *Alert) bool {
	return m.send(ctx, a, false)
}

// Resend is the retry path. It bypasses the dedupe stage, since a retried
// alert would otherwise always collide with the dedupe entry from its first
// send, but still consumes rate budget like any other dispatch.
func (m *Manager) Resend(ctx context.Context, a *Alert) bool {
	return m.send(ctx, a, true)
}

func (m *Manager) send(ctx context.Context, a *Alert, bypassDedup bool) bool {
	now := m.clock.Now()

	m.mu.Lock()
	decision := m.gate.admit(a.DedupeKey, now, bypassDedup)
	if decision == Accepted {
		if !bypassDedup {
			m.appendHistory(a)
		}
		m.inflight[a] = struct{}{}
	}
	m.mu.Unlock()

	switch decision {
	case DroppedRateLimited:
		slog.Warn("rate limit exceeded, dropping alert", "title", a.Title, "source", a.Source)
		return false
	case DroppedDuplicate:
		slog.Info("duplicate alert, dropping", "title", a.Title, "dedupe_key", a.DedupeKey)
		return false
	}

	delivered := m.deliver(ctx, a)

	if m.recorder != nil {
		// Snapshot under the lock: a concurrent retry pass may be mutating
		// the delivery fields while the recorder marshals.
		m.mu.Lock()
		snapshot := *a
		m.mu.Unlock()
		if err := m.recorder.RecordAlert(ctx, &snapshot); err != nil {
			slog.Warn("recording alert failed", "id", a.ID, "error", err)
		}
	}
	return delivered
}

// deliver fans the alert out to every matching channel and updates delivery
// state. Returns true iff at least one matched channel succeeded.
func (m *Manager) deliver(ctx context.Context, a *Alert) bool {
	matched, succeeded := 0, 0
	for _, ch := range m.channels {
		if !ch.Matches(a) {
			continue
		}
		matched++
		if err := ch.Send(ctx, a); err != nil {
			slog.Warn("channel delivery failed",
				"channel", ch.Name(), "kind", ch.Kind(), "alert", a.ID, "error", err)
			continue
		}
		succeeded++
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, a)
	if succeeded > 0 {
		a.Delivered = true
		return true
	}
	if matched > 0 {
		// One attempt per manager call, however many channels failed.
		a.DeliveryAttempts++
	}
	return false
}

// History returns up to limit most recent accepted alerts, oldest first.
func (m *Manager) History(limit int) []*Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.history) {
		limit = len(m.history)
	}
	out := make([]*Alert, limit)
	copy(out, m.history[len(m.history)-limit:])
	return out
}

// Undelivered returns history entries still eligible for retry. Alerts with
// a delivery currently in flight are excluded.
func (m *Manager) Undelivered(maxRetries int) []*Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Alert
	for _, a := range m.history {
		if _, busy := m.inflight[a]; busy {
			continue
		}
		if !a.Delivered && a.DeliveryAttempts < maxRetries {
			out = append(out, a)
		}
	}
	return out
}

// appendHistory is called with m.mu held.
func (m *Manager) appendHistory(a *Alert) {
	m.history = append(m.history, a)
	if m.maxHist > 0 && len(m.history) > m.maxHist {
		m.history = m.history[len(m.history)-m.maxHist:]
	}
}

func (m *Manager) runMaintenance() {
	now := m.clock.Now()
	m.mu.Lock()
	removed := m.gate.prune(now)
	m.mu.Unlock()
	if removed > 0 {
		slog.Debug("pruned dedupe cache", "removed", removed)
	}
}
