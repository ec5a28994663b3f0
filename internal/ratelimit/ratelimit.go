// Package ratelimit provides a keyed token bucket limiter.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter gives each key its own independent token bucket. Buckets
// idle long enough to have refilled are dropped.
type KeyedRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*entry
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
}

// New creates a limiter allowing one action per interval per key, with the given burst
func New(interval time.Duration, burst int) *KeyedRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &KeyedRateLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Every(interval),
		burst:    burst,
		idle:     interval * time.Duration(burst),
	}
}

// Allow reports whether an action for key may happen now
func (l *KeyedRateLimiter) Allow(key string) bool {
	return l.AllowAt(key, time.Now())
}

// AllowAt is Allow evaluated at t
func (l *KeyedRateLimiter) AllowAt(key string, t time.Time) bool {
	l.mu.Lock()
	if t.Sub(l.lastSweep) >= l.idle {
		l.sweep(t)
	}
	e, ok := l.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	if t.After(e.lastSeen) {
		e.lastSeen = t
	}
	l.mu.Unlock()

	return e.limiter.AllowN(t, 1)
}

// Len returns the number of tracked keys
func (l *KeyedRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// sweep drops buckets unused for a full refill period. Callers hold mu.
func (l *KeyedRateLimiter) sweep(t time.Time) {
	for key, e := range l.limiters {
		if t.Sub(e.lastSeen) >= l.idle {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = t
}
