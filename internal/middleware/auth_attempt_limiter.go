package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/card-fund-service/internal/metrics"
)

const (
	defaultMaxFailures   = 5
	defaultFailureWindow = 5 * time.Minute
	defaultBlockDuration = 15 * time.Minute
)

// AuthAttemptLimiter blocks a client after repeated request-signature failures.
// A client is blocked for blockDuration once it accumulates maxFailures within window.
type AuthAttemptLimiter struct {
	mu            sync.Mutex
	clients       map[string]*failureRecord
	maxFailures   int
	window        time.Duration
	blockDuration time.Duration
	now           func() time.Time
	lastSweep     time.Time
}

type failureRecord struct {
	count        int
	since        time.Time
	blockedUntil time.Time
	lastSeen     time.Time
}

func NewAuthAttemptLimiter(maxFailures int, window, blockDuration time.Duration) *AuthAttemptLimiter {
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}
	if window <= 0 {
		window = defaultFailureWindow
	}
	if blockDuration <= 0 {
		blockDuration = defaultBlockDuration
	}
	return &AuthAttemptLimiter{
		clients:       make(map[string]*failureRecord),
		maxFailures:   maxFailures,
		window:        window,
		blockDuration: blockDuration,
		now:           time.Now,
		lastSweep:     time.Now(),
	}
}

// allow reports whether key may attempt authentication.
func (l *AuthAttemptLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	defer l.sweepLocked(now)

	rec, ok := l.clients[key]
	if !ok {
		return true
	}
	rec.lastSeen = now
	return !now.Before(rec.blockedUntil)
}

// registerFailure counts a rejected signature from key under reason.
func (l *AuthAttemptLimiter) registerFailure(key, reason string) {
	metrics.AuthFailures.WithLabelValues(reason).Inc()

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	defer l.sweepLocked(now)

	rec, ok := l.clients[key]
	if !ok || now.Sub(rec.since) > l.window {
		if !ok {
			rec = &failureRecord{}
			l.clients[key] = rec
		}
		rec.count = 0
		rec.since = now
	}
	rec.count++
	rec.lastSeen = now

	if rec.count >= l.maxFailures {
		rec.blockedUntil = now.Add(l.blockDuration)
		rec.count = 0
		rec.since = now
		metrics.AuthBlocked.Inc()
		log.Warn().Str("client", key).Time("blocked_until", rec.blockedUntil).Msg("blocking client after repeated signature failures")
	}
}

// registerSuccess clears the failure history of key.
func (l *AuthAttemptLimiter) registerSuccess(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.clients, key)
	l.sweepLocked(l.now())
}

// sweepLocked drops records that are neither blocked nor inside a live failure window.
func (l *AuthAttemptLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < cleanupInterval {
		return
	}
	for key, rec := range l.clients {
		if now.After(rec.blockedUntil) && now.Sub(rec.lastSeen) > l.window {
			delete(l.clients, key)
		}
	}
	l.lastSweep = now
}

func clientIPKey(r *http.Request, prefix string) string {
	host := r.RemoteAddr
	if parsedHost, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = parsedHost
	}
	if host == "" {
		host = "unknown"
	}
	return prefix + ":" + host
}
