package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter implements fixed-window rate limiting per caller.
type RateLimiter struct {
	mu          sync.Mutex
	max         int
	window      time.Duration
	counters    map[string]*window
	lastCleanup time.Time
}

type window struct {
	count    int
	resetAt  time.Time
	lastSeen time.Time
}

const (
	cleanupInterval    = 5 * time.Minute
	expiredWindowGrace = 10 * time.Minute
	staleEntryTTL      = 24 * time.Hour
)

// NewRateLimiter creates an in-memory limiter allowing max requests per window.
func NewRateLimiter(max int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		max:         max,
		window:      period,
		counters:    make(map[string]*window),
		lastCleanup: time.Now(),
	}
}

// Allow checks if key is within its rate limit.
// Returns (allowed, remaining, resetAt).
func (rl *RateLimiter) Allow(key string) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, exists := rl.counters[key]
	if !exists || now.After(w.resetAt) {
		rl.counters[key] = &window{
			count:    1,
			resetAt:  now.Add(rl.window),
			lastSeen: now,
		}
		rl.cleanupLocked(now)
		return true, rl.max - 1, now.Add(rl.window)
	}

	w.lastSeen = now
	resetAt := w.resetAt

	if w.count >= rl.max {
		rl.cleanupLocked(now)
		return false, 0, resetAt
	}

	w.count++
	rl.cleanupLocked(now)
	return true, rl.max - w.count, resetAt
}

// RateLimitMiddleware limits authenticated callers by address and everyone else by client IP.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl == nil || rl.max <= 0 || rl.window <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := GetCaller(r.Context())
			if key == "" {
				key = clientIPKey(r, "ip")
			}
			allowed, remaining, resetAt := rl.Allow(key)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				respondError(w, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) cleanupLocked(now time.Time) {
	if now.Sub(rl.lastCleanup) < cleanupInterval {
		return
	}

	for key, w := range rl.counters {
		if now.Sub(w.lastSeen) > staleEntryTTL || now.After(w.resetAt.Add(expiredWindowGrace)) {
			delete(rl.counters, key)
		}
	}

	rl.lastCleanup = now
}
