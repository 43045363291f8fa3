package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// attemptLimiter throttles login attempts per key with a token bucket each.
// Buckets idle for longer than idle are evicted on the next sweep.
type attemptLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newAttemptLimiter(limit rate.Limit, burst int) *attemptLimiter {
	if limit <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	// A bucket idle this long has refilled completely.
	idle := time.Duration(float64(burst)/float64(limit)*float64(time.Second)) + time.Minute
	return &attemptLimiter{
		limit:   limit,
		burst:   burst,
		idle:    idle,
		buckets: make(map[string]*bucket),
	}
}

// allow consumes one attempt for key. A nil limiter allows everything.
func (l *attemptLimiter) allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.idle {
		for k, b := range l.buckets {
			if now.Sub(b.seen) >= l.idle {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}
