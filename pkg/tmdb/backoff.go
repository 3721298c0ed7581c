package tmdb

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig holds the bounded escalation schedule applied on rate-limited
// responses: wait InitialBackoff, retry; double the wait on each further
// rejection; give up after MaxRetries retries. With the defaults the waits
// are 60s, 120s, 240s and the worst case before giving up is 420s, so a
// single item can never stall the run indefinitely.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries uint64

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration
}

// DefaultRetryConfig returns the production schedule.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 60 * time.Second,
	}
}

// newBackOff builds the fixed-schedule policy for one unit of work.
// Randomization is disabled so the waits are exactly the documented schedule,
// and the elapsed-time cap is removed so the retry count alone bounds the
// policy.
func (rc RetryConfig) newBackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rc.InitialBackoff
	b.RandomizationFactor = 0
	b.Multiplier = 2.0
	b.MaxInterval = rc.InitialBackoff << rc.MaxRetries
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, rc.MaxRetries), ctx)
}
