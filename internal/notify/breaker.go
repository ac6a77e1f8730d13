package notify

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/opsrelay/opsrelay/internal/alert"
)

// breakerSender wraps a Sender with a circuit breaker so a dead endpoint
// stops burning its full timeout on every alert. While the breaker is open,
// Send fails fast; the delivery still counts as failed and stays eligible
// for the retry scheduler.
type breakerSender struct {
	Sender
	cb *gobreaker.CircuitBreaker
}

func withBreaker(s Sender) Sender {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    s.Name(),
		Timeout: 30 * time.Second, // open -> half-open probe interval
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &breakerSender{Sender: s, cb: cb}
}

func (b *breakerSender) Send(ctx context.Context, a *alert.Alert) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.Sender.Send(ctx, a)
	})
	return err
}
