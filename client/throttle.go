package client

import (
	"context"
	"sync"
	"time"
)

// Throttle is the interface for rate limiting strategies.
type Throttle interface {
	// Acquire blocks until a request slot is available.
	Acquire(ctx context.Context) error
	// GetWindowCount returns the number of requests in the current window.
	GetWindowCount() int
	// GetRemaining returns remaining requests available in the current window.
	GetRemaining() int
	// Reset clears the throttle state.
	Reset()
}

// SlidingWindowThrottle allows at most limit requests in any window.
// The SeaTable API gateway enforces 300 requests per minute per base.
type SlidingWindowThrottle struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	timestamps []time.Time
}

// NewSlidingWindowThrottle creates a new sliding window throttle.
// Invalid values default to 300 requests per minute.
func NewSlidingWindowThrottle(limit int, window time.Duration) *SlidingWindowThrottle {
	if limit <= 0 {
		limit = 300
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindowThrottle{
		limit:      limit,
		window:     window,
		timestamps: make([]time.Time, 0, limit),
	}
}

// Acquire waits until a request slot is available.
func (t *SlidingWindowThrottle) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.mu.Lock()
		now := time.Now()
		t.prune(now)

		// If under the limit, record this request and return
		if len(t.timestamps) < t.limit {
			t.timestamps = append(t.timestamps, now)
			t.mu.Unlock()
			return nil
		}

		// Wait until the oldest request exits the window
		waitTime := t.timestamps[0].Add(t.window).Sub(now)
		t.mu.Unlock()

		if waitTime <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// prune drops timestamps outside the window (must be called with lock held).
func (t *SlidingWindowThrottle) prune(now time.Time) {
	windowStart := now.Add(-t.window)
	kept := t.timestamps[:0]
	for _, ts := range t.timestamps {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	t.timestamps = kept
}

// GetWindowCount returns the number of requests in the current window.
func (t *SlidingWindowThrottle) GetWindowCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune(time.Now())
	return len(t.timestamps)
}

// GetRemaining returns remaining requests available in the current window.
func (t *SlidingWindowThrottle) GetRemaining() int {
	return max(0, t.limit-t.GetWindowCount())
}

// Reset clears the throttle state.
func (t *SlidingWindowThrottle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timestamps = t.timestamps[:0]
}

// NoOpThrottle is a throttle that does nothing (for when throttling is disabled).
type NoOpThrottle struct{}

// NewNoOpThrottle creates a no-op throttle.
func NewNoOpThrottle() *NoOpThrottle {
	return &NoOpThrottle{}
}

// Acquire does nothing and returns immediately.
func (t *NoOpThrottle) Acquire(ctx context.Context) error {
	return nil
}

// GetWindowCount always returns 0.
func (t *NoOpThrottle) GetWindowCount() int {
	return 0
}

// GetRemaining always returns a large number.
func (t *NoOpThrottle) GetRemaining() int {
	return 1000000
}

// Reset does nothing.
func (t *NoOpThrottle) Reset() {}
