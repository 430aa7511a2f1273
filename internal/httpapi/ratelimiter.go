package httpapi

import (
	"sync"
	"time"
)

// SlidingWindowLimiter caps how many events one caller may perform within a
// rolling time window. The router attaches one per connection to throttle
// lobby creation.
type SlidingWindowLimiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu     sync.Mutex
	stamps []time.Time
}

// NewSlidingWindowLimiter allows up to limit events per window. A
// non-positive window or limit disables the limiter entirely.
func NewSlidingWindowLimiter(window time.Duration, limit int, timeSource func() time.Time) *SlidingWindowLimiter {
	if timeSource == nil {
		timeSource = time.Now
	}
	return &SlidingWindowLimiter{window: window, limit: limit, now: timeSource}
}

// Allow records one event attempt and reports whether it may proceed.
func (l *SlidingWindowLimiter) Allow() bool {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	if len(l.stamps) >= l.limit {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}

// Remaining reports how many events are still allowed in the current window.
func (l *SlidingWindowLimiter) Remaining() int {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.now())
	return l.limit - len(l.stamps)
}

// pruneLocked drops timestamps that slid out of the window.
func (l *SlidingWindowLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	kept := l.stamps[:0]
	for _, ts := range l.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.stamps = kept
}
