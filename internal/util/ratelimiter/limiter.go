package ratelimiter

import (
	"sync"
	"time"
)

// Keyed allows one action per interval for each key.
// It is safe for concurrent use; distinct keys never share a window.
type Keyed struct {
	mu          sync.Mutex
	interval    time.Duration
	now         func() time.Time
	lastAllowed map[string]time.Time
}

// New creates a keyed limiter with the specified interval.
func New(interval time.Duration) *Keyed {
	return NewWithClock(interval, time.Now)
}

// NewWithClock creates a keyed limiter reading time from now.
func NewWithClock(interval time.Duration, now func() time.Time) *Keyed {
	return &Keyed{
		interval:    interval,
		now:         now,
		lastAllowed: make(map[string]time.Time),
	}
}

// Allow checks if an action for key is allowed at this time.
// Returns true if allowed (and records this as the last allowed time),
// or false with the remaining wait duration if rate-limited.
func (l *Keyed) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	last, seen := l.lastAllowed[key]
	if !seen {
		l.lastAllowed[key] = now
		return true, 0
	}

	since := now.Sub(last)
	if since >= l.interval {
		l.lastAllowed[key] = now
		return true, 0
	}

	return false, l.interval - since
}

// Forget drops the state of key, allowing its next action immediately.
func (l *Keyed) Forget(key string) {
	l.mu.Lock()
	delete(l.lastAllowed, key)
	l.mu.Unlock()
}

// Len returns the number of tracked keys.
func (l *Keyed) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lastAllowed)
}

// Interval returns the configured rate limit interval.
func (l *Keyed) Interval() time.Duration {
	return l.interval
}
