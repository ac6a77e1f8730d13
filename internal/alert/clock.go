package alert

import "time"

// Clock abstracts wall time so the retry scheduler and the dedupe/rate gate
// can be driven by virtual time in tests.
type Clock interface {
	Now() time.Time
	// Tick returns a channel that receives on every interval boundary and a
	// stop function releasing the underlying resources.
	Tick(interval time.Duration) (<-chan time.Time, func())
}

type systemClock struct{}

// SystemClock is the real wall clock used outside tests.
var SystemClock Clock = systemClock{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Tick(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}
