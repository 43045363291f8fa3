package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-client sliding window limiter.
type RateLimitConfig struct {
	// Max requests allowed per Window.
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to the client IP.
	KeyFunc func(*http.Request) string
	// Skip exempts requests, e.g. health probes.
	Skip func(*http.Request) bool
}

// window counts requests in the current and previous fixed windows. The
// previous count is weighted by its overlap with the sliding window.
type window struct {
	prev      float64
	prevStart time.Time
	curr      float64
	currStart time.Time
}

type slidingLimiter struct {
	max  int
	size time.Duration

	mu      sync.Mutex
	clients map[string]*window
}

func newSlidingLimiter(max int, size time.Duration) *slidingLimiter {
	return &slidingLimiter{max: max, size: size, clients: make(map[string]*window)}
}

// take records a request for key if it fits, returning the remaining budget
// and when the current window ends.
func (l *slidingLimiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, found := l.clients[key]
	if !found {
		w = &window{currStart: now.Truncate(l.size)}
		l.clients[key] = w
	}

	if now.Sub(w.currStart) >= l.size {
		w.prev, w.prevStart = w.curr, w.currStart
		w.curr, w.currStart = 0, now.Truncate(l.size)
		if now.Sub(w.prevStart) >= 2*l.size {
			w.prev = 0
		}
	}

	overlap := max(0, 1-now.Sub(w.currStart).Seconds()/l.size.Seconds())
	used := w.prev*overlap + w.curr
	reset = w.currStart.Add(l.size)
	if used >= float64(l.max) {
		return 0, reset, false
	}

	w.curr++
	return max(0, int(float64(l.max)-used-1)), reset, true
}

// evict drops clients whose windows are both stale.
func (l *slidingLimiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.clients {
		if now.Sub(w.currStart) >= 2*l.size {
			delete(l.clients, key)
		}
	}
}

func (l *slidingLimiter) runEviction(ctx context.Context) {
	ticker := time.NewTicker(2 * l.size)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evict(now)
		}
	}
}

// RateLimit rejects clients exceeding cfg.Max requests per cfg.Window with
// 429 and a JSON error. Responses carry X-RateLimit-* headers. Stale client
// entries are evicted in the background until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	l := newSlidingLimiter(cfg.Max, cfg.Window)
	go l.runEviction(ctx)

	limit := strconv.Itoa(cfg.Max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			remaining, reset, ok := l.take(cfg.KeyFunc(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !ok {
				retry := max(0, time.Until(reset))
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address host, in that order.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
