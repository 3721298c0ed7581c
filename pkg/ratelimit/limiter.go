// Package ratelimit enforces the client-side request ceiling for the TMDB API.
// TMDB publishes no remaining-budget headers, so the limiter tracks a sliding
// window of issued request timestamps locally and blocks the caller until the
// next request fits inside the window.
package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit waits.
var (
	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tmdb_rate_limit_waits_total",
		Help: "Total number of requests that had to wait for the rate limit window",
	})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tmdb_rate_limit_wait_seconds",
		Help:    "Time spent waiting for the rate limit window",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
	})
)

// Limiter permits at most limit calls inside any rolling window.
// It is not safe for concurrent use; the ingestion loop is single-threaded.
type Limiter struct {
	limit  int
	window time.Duration
	clock  Clock
	logger zerolog.Logger
	stamps []time.Time
}

// New creates a limiter using the system clock.
func New(limit int, window time.Duration, logger zerolog.Logger) *Limiter {
	return NewWithClock(limit, window, SystemClock(), logger)
}

// NewWithClock creates a limiter with an injected clock (for testing).
func NewWithClock(limit int, window time.Duration, clock Clock, logger zerolog.Logger) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		clock:  clock,
		logger: logger,
		stamps: make([]time.Time, 0, limit),
	}
}

// Allow blocks until one outbound request may be issued, then records it.
// It returns an error only when ctx is cancelled during the wait.
func (l *Limiter) Allow(ctx context.Context) error {
	now := l.clock.Now()
	l.evict(now)

	if len(l.stamps) >= l.limit {
		// Sleep until the oldest retained timestamp exits the window.
		wait := l.window - now.Sub(l.stamps[0])
		if wait > 0 {
			rateLimitWaitsTotal.Inc()
			rateLimitWaitSeconds.Observe(wait.Seconds())

			l.logger.Debug().
				Dur("wait", wait).
				Int("in_window", len(l.stamps)).
				Msg("Rate limit window full - waiting")

			if err := l.clock.Sleep(ctx, wait); err != nil {
				return err
			}
		}
		l.evict(l.clock.Now())
	}

	l.stamps = append(l.stamps, l.clock.Now())
	return nil
}

// InWindow returns the number of requests currently counted inside the window.
func (l *Limiter) InWindow() int {
	l.evict(l.clock.Now())
	return len(l.stamps)
}

// evict drops all timestamps that have left the window as of now.
func (l *Limiter) evict(now time.Time) {
	cut := 0
	for cut < len(l.stamps) && now.Sub(l.stamps[cut]) >= l.window {
		cut++
	}
	l.stamps = l.stamps[cut:]
}
