package ingest

import (
	"sync"
	"time"
)

// RateLimiter enforces a sliding one-second cap on accepted events. Rejected
// events are counted, never queued or retried.
type RateLimiter struct {
	limit int

	mu       sync.Mutex
	accepted []time.Time
	rejected uint64
}

// NewRateLimiter creates a limiter allowing limit events per second.
// A limit of zero or less disables limiting.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{limit: limit}
}

// Allow reports whether one more event fits in the current window.
func (l *RateLimiter) Allow() bool {
	return l.allowAt(time.Now())
}

func (l *RateLimiter) allowAt(now time.Time) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-time.Second)
	kept := l.accepted[:0]
	for _, t := range l.accepted {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.accepted = kept

	if len(l.accepted) >= l.limit {
		l.rejected++
		return false
	}
	l.accepted = append(l.accepted, now)
	return true
}

// Rejected returns how many events the limiter has refused.
func (l *RateLimiter) Rejected() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rejected
}
