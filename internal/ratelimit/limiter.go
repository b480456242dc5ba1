// Package ratelimit tracks when each sender last had a message accepted.
package ratelimit

import "sync"

// Limiter maps sender id to the unix time of its last accepted message.
// Entries are never removed; the table is bounded by distinct senders.
type Limiter struct {
	mu   sync.RWMutex
	last map[int64]int64
}

func New() *Limiter {
	return &Limiter{last: map[int64]int64{}}
}

// ShouldThrottle reports whether a message from sender at time at falls inside
// the window after its last accepted message (inclusive). Senders without a
// recorded message are never throttled. It does not modify state.
func (l *Limiter) ShouldThrottle(sender, at, window int64) bool {
	l.mu.RLock()
	t, ok := l.last[sender]
	l.mu.RUnlock()
	if !ok {
		return false
	}
	// at-t instead of t+window so a huge window cannot overflow.
	return at-t <= window
}

// RecordAccepted overwrites the last accepted time for sender.
func (l *Limiter) RecordAccepted(sender, at int64) {
	l.mu.Lock()
	l.last[sender] = at
	l.mu.Unlock()
}

// Last returns the recorded time for sender, if any.
func (l *Limiter) Last(sender int64) (int64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.last[sender]
	return t, ok
}

func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.last)
}
