package jitter

import (
	"context"
	"time"
)

// Clock abstracts pacing time for the playout scheduler so tests can drive
// the tick loop with a virtual clock instead of real sleeps.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep waits for d or until ctx is cancelled, whichever comes first.
	// It returns ctx.Err() when the wait was cut short by cancellation and
	// nil when the full duration elapsed.
	Sleep(ctx context.Context, d time.Duration) error
}

// systemClock is the production Clock backed by the runtime timer.
type systemClock struct{}

// SystemClock returns the real-time Clock used outside of tests.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
