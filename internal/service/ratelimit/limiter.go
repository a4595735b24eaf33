// Package ratelimit implements per-client token buckets for the
// surveillance API endpoints.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// refill tops the bucket up for the time elapsed since the last call.
func (b *bucket) refill(now time.Time, capacity, perSec float64) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * perSec
	if b.tokens > capacity {
		b.tokens = capacity
	}
	b.last = now
}

// Limiter tracks one token bucket per key. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

func New() *Limiter {
	return &Limiter{buckets: make(map[string]*bucket)}
}

// Allow consumes one token for key, creating a full bucket on first sight.
// Capacity and refill rate travel with the call so different endpoints can
// share one limiter with different budgets.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, last: now}
		l.buckets[key] = b
	}
	b.refill(now, capacity, refillPerSec)

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
