package ratelimit

import (
	"context"
	"time"
)

// Clock abstracts time for the limiter so tests can drive it without real
// sleeps.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for d or until ctx is cancelled, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock returns a Clock backed by the real wall clock.
func SystemClock() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
