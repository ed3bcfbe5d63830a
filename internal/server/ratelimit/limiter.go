// Package ratelimit enforces a per-device token bucket on sync traffic.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter maintains one token bucket per device key. Buckets are created
// lazily on first sight of a device and are never evicted; device counts per
// server are small enough that eviction is not worth the complexity yet.
type Limiter struct {
	perSecond rate.Limit
	burst     int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New builds a Limiter allowing perSecond sustained requests with the given
// burst per device.
func New(perSecond float64, burst int) *Limiter {
	return &Limiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		buckets:   make(map[string]*rate.Limiter),
	}
}

// Allow consumes one token for key. When the bucket is empty it returns
// false and the delay after which the caller should retry.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(l.perSecond, l.burst)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	r := bucket.Reserve()
	delay := r.Delay()
	if delay == 0 {
		return true, 0
	}
	// not serving this request, give the token back
	r.Cancel()
	return false, delay
}
