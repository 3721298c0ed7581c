package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestLimiter_NoWaitUnderLimit(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWithClock(5, time.Second, clock, testLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := limiter.Allow(ctx); err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
	}

	if len(clock.sleeps) != 0 {
		t.Errorf("Expected no sleeps under the limit, got %d", len(clock.sleeps))
	}
	if got := limiter.InWindow(); got != 5 {
		t.Errorf("InWindow() = %d, want 5", got)
	}
}

func TestLimiter_SlidingWindowBound(t *testing.T) {
	// For any sequence of limit+1 calls, the (limit+1)-th call must be issued
	// at least one window after the first.
	const limit = 3
	window := time.Second

	clock := newFakeClock()
	limiter := NewWithClock(limit, window, clock, testLogger())
	ctx := context.Background()

	first := clock.Now()
	for i := 0; i < limit; i++ {
		if err := limiter.Allow(ctx); err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		clock.advance(10 * time.Millisecond)
	}

	if err := limiter.Allow(ctx); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}

	if elapsed := clock.Now().Sub(first); elapsed < window {
		t.Errorf("Call %d issued %v after the first call, want >= %v", limit+1, elapsed, window)
	}
	if len(clock.sleeps) != 1 {
		t.Fatalf("Expected exactly one sleep, got %d", len(clock.sleeps))
	}
}

func TestLimiter_WindowSlides(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWithClock(2, time.Second, clock, testLogger())
	ctx := context.Background()

	if err := limiter.Allow(ctx); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if err := limiter.Allow(ctx); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}

	// After a full window has passed, both slots are free again.
	clock.advance(time.Second)

	if err := limiter.Allow(ctx); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("Expected no sleep after the window slid, got %d", len(clock.sleeps))
	}
	if got := limiter.InWindow(); got != 1 {
		t.Errorf("InWindow() = %d, want 1", got)
	}
}

func TestLimiter_PartialWait(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWithClock(2, time.Second, clock, testLogger())
	ctx := context.Background()

	if err := limiter.Allow(ctx); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	clock.advance(600 * time.Millisecond)
	if err := limiter.Allow(ctx); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}

	// Window is full; the oldest stamp exits in 400ms.
	if err := limiter.Allow(ctx); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}

	if len(clock.sleeps) != 1 {
		t.Fatalf("Expected one sleep, got %d", len(clock.sleeps))
	}
	if clock.sleeps[0] != 400*time.Millisecond {
		t.Errorf("Sleep duration = %v, want 400ms", clock.sleeps[0])
	}
}

func TestLimiter_ContextCancelled(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWithClock(1, time.Second, clock, testLogger())

	if err := limiter.Allow(context.Background()); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Allow(ctx); err == nil {
		t.Error("Allow() should return an error when the context is cancelled during the wait")
	}
}
