// Package ratelimit implements a per-user sliding-window call limiter.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most Calls calls per Period for each user id.
// Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	calls  int
	period time.Duration
	usage  map[int64][]time.Time
	now    func() time.Time
}

// New creates a limiter allowing calls per period.
func New(calls int, period time.Duration) *Limiter {
	return &Limiter{
		calls:  calls,
		period: period,
		usage:  make(map[int64][]time.Time),
		now:    time.Now,
	}
}

// Allow records and admits a call for userID if the budget permits.
// When rejected it returns the time remaining until the window frees a slot.
func (l *Limiter) Allow(userID int64) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.period)

	recent := l.usage[userID][:0]
	for _, ts := range l.usage[userID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	l.usage[userID] = recent

	if l.calls <= 0 {
		return false, l.period
	}

	if len(recent) >= l.calls {
		oldest := recent[0]
		for _, ts := range recent[1:] {
			if ts.Before(oldest) {
				oldest = ts
			}
		}
		wait := oldest.Add(l.period).Sub(now)
		if wait < time.Second {
			wait = time.Second
		}
		return false, wait
	}

	l.usage[userID] = append(recent, now)
	return true, 0
}

// Reset clears the window for one user.
func (l *Limiter) Reset(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.usage, userID)
}

// ResetAll clears every window.
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.usage = make(map[int64][]time.Time)
}
