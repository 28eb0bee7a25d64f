package realtime

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter over the last limit accepted events.
// Accepted timestamps live in a fixed ring, so Allow never allocates; frames
// arrive many times per second and pass through here.
type RateLimiter struct {
	mu     sync.Mutex
	ring   []time.Time
	head   int // oldest accepted event once the ring is full
	n      int
	window time.Duration
}

// NewRateLimiter constructs a RateLimiter; non-positive inputs fall back to the connection defaults.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		ring:   make([]time.Time, limit),
		window: window,
	}
}

// Allow reports whether an event at now is permitted and records it if so.
// Refused events are not recorded.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.n < len(r.ring) {
		r.ring[(r.head+r.n)%len(r.ring)] = now
		r.n++
		return true
	}

	if r.ring[r.head].After(now.Add(-r.window)) {
		return false
	}
	r.ring[r.head] = now
	r.head = (r.head + 1) % len(r.ring)
	return true
}

// Limit returns the number of events allowed per window.
func (r *RateLimiter) Limit() int { return len(r.ring) }
