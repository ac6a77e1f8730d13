package alert

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryOnceResendsUndelivered(t *testing.T) {
	ch := &stubChannel{name: "flaky", err: errors.New("unreachable")}
	clk := newFakeClock()
	m := newTestManager(t, testSettings(), []Channel{ch}, WithClock(clk))

	a := New("svc down", "m", SeverityError, "probe")
	m.Send(context.Background(), a) // attempt 1, fails

	sched := NewRetryScheduler(m, 60*time.Second, 3, clk)

	// Channel recovers before the retry pass.
	ch.mu.Lock()
	ch.err = nil
	ch.mu.Unlock()

	sched.RetryOnce(context.Background())

	if ch.sendCount() != 2 {
		t.Fatalf("sends = %d, want 2 (original + one retry)", ch.sendCount())
	}
	if !a.Delivered {
		t.Fatal("alert not delivered after successful retry")
	}
	if got := m.Undelivered(3); len(got) != 0 {
		t.Fatalf("undelivered = %d after delivery, want 0", len(got))
	}
}

func TestRetryStopsAtMaxRetries(t *testing.T) {
	ch := &stubChannel{name: "down", err: errors.New("unreachable")}
	clk := newFakeClock()
	m := newTestManager(t, testSettings(), []Channel{ch}, WithClock(clk))

	a := New("svc down", "m", SeverityError, "probe")
	m.Send(context.Background(), a) // attempt 1

	sched := NewRetryScheduler(m, 60*time.Second, 3, clk)
	for i := 0; i < 5; i++ {
		sched.RetryOnce(context.Background())
	}

	// Attempt 1 at send, then retries at attempts 2 and 3; after the terminal
	// count is reached further passes must not touch the channel.
	if ch.sendCount() != 3 {
		t.Fatalf("sends = %d, want 3", ch.sendCount())
	}
	if a.DeliveryAttempts != 3 {
		t.Fatalf("delivery attempts = %d, want 3", a.DeliveryAttempts)
	}
}

func TestRetryBypassesDedupeButNotRateLimit(t *testing.T) {
	ch := &stubChannel{name: "flaky", err: errors.New("unreachable")}
	clk := newFakeClock()
	s := testSettings()
	s.RateLimit = 1
	m := newTestManager(t, s, []Channel{ch}, WithClock(clk))

	a := New("svc down", "m", SeverityError, "probe")
	m.Send(context.Background(), a)

	ch.mu.Lock()
	ch.err = nil
	ch.mu.Unlock()

	// Same rate window: retry must be rate limited even though it bypasses
	// its own dedupe entry.
	sched := NewRetryScheduler(m, 60*time.Second, 3, clk)
	sched.RetryOnce(context.Background())
	if ch.sendCount() != 1 {
		t.Fatalf("sends = %d, want 1 (retry rate limited)", ch.sendCount())
	}

	// Next window: the retry goes through despite the live dedupe entry.
	clk.advance(61 * time.Second)
	sched.RetryOnce(context.Background())
	if ch.sendCount() != 2 {
		t.Fatalf("sends = %d, want 2", ch.sendCount())
	}
	if !a.Delivered {
		t.Fatal("alert not delivered after retry")
	}
}

func TestDrainStopsOnceDelivered(t *testing.T) {
	ch := &stubChannel{name: "flaky", err: errors.New("unreachable")}
	clk := newFakeClock()
	m := newTestManager(t, testSettings(), []Channel{ch}, WithClock(clk))

	a := New("svc down", "m", SeverityError, "probe")
	m.Send(context.Background(), a)

	ch.mu.Lock()
	ch.err = nil
	ch.mu.Unlock()

	sched := NewRetryScheduler(m, 60*time.Second, 3, clk)
	drained := make(chan bool, 1)
	go func() { drained <- sched.Drain(context.Background()) }()

	clk.ticks <- clk.Now()

	select {
	case ok := <-drained:
		if !ok {
			t.Fatal("Drain = false, want true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Drain did not return after successful retry")
	}
	if !a.Delivered {
		t.Fatal("alert not delivered")
	}
	if ch.sendCount() != 2 {
		t.Fatalf("sends = %d, want 2", ch.sendCount())
	}
}

func TestDrainStopsAtTerminalAttempts(t *testing.T) {
	ch := &stubChannel{name: "down", err: errors.New("unreachable")}
	clk := newFakeClock()
	m := newTestManager(t, testSettings(), []Channel{ch}, WithClock(clk))

	a := New("svc down", "m", SeverityError, "probe")
	m.Send(context.Background(), a) // attempt 1

	sched := NewRetryScheduler(m, 60*time.Second, 3, clk)
	drained := make(chan bool, 1)
	go func() { drained <- sched.Drain(context.Background()) }()

	// Two more passes exhaust the terminal attempt count.
	clk.ticks <- clk.Now()
	clk.ticks <- clk.Now()

	select {
	case ok := <-drained:
		if !ok {
			t.Fatal("Drain = false, want true once nothing is eligible")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Drain did not return at terminal attempt count")
	}
	if a.DeliveryAttempts != 3 {
		t.Fatalf("delivery attempts = %d, want 3", a.DeliveryAttempts)
	}
	if a.Delivered {
		t.Fatal("alert wrongly marked delivered")
	}
}

func TestDrainReturnsFalseOnCancel(t *testing.T) {
	ch := &stubChannel{name: "down", err: errors.New("unreachable")}
	clk := newFakeClock()
	m := newTestManager(t, testSettings(), []Channel{ch}, WithClock(clk))

	m.Send(context.Background(), New("svc down", "m", SeverityError, "probe"))

	ctx, cancel := context.WithCancel(context.Background())
	sched := NewRetryScheduler(m, 60*time.Second, 3, clk)
	drained := make(chan bool, 1)
	go func() { drained <- sched.Drain(ctx) }()

	cancel()
	select {
	case ok := <-drained:
		if ok {
			t.Fatal("Drain = true after cancel with alerts still eligible")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Drain did not return after cancel")
	}
}

func TestRunRetriesOnTickAndStopsOnCancel(t *testing.T) {
	ch := &stubChannel{name: "flaky", err: errors.New("unreachable")}
	clk := newFakeClock()
	m := newTestManager(t, testSettings(), []Channel{ch}, WithClock(clk))

	a := New("svc down", "m", SeverityError, "probe")
	m.Send(context.Background(), a)

	ch.mu.Lock()
	ch.err = nil
	ch.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sched := NewRetryScheduler(m, 60*time.Second, 3, clk)
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	clk.ticks <- clk.Now()

	deadline := time.After(2 * time.Second)
	for ch.sendCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("sends = %d, want 2 after tick", ch.sendCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
