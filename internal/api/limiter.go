package api

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"taskcal/internal/config"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL       = 10 * time.Minute
	limiterSweepInterval = time.Minute
)

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// rateLimiter keeps one token bucket per authenticated user. Buckets idle for
// limiterIdleTTL are evicted.
type rateLimiter struct {
	limiters sync.Map // user id -> *limiterEntry
	cfg      *config.APIConfig
	now      func() time.Time

	mu        sync.Mutex
	lastSweep time.Time
}

func newRateLimiter(cfg *config.APIConfig) *rateLimiter {
	return &rateLimiter{
		cfg: cfg,
		now: time.Now,
	}
}

func (l *rateLimiter) getLimiter(key string) *rate.Limiter {
	now := l.now()
	if l.sweepDue(now) {
		l.sweep(now)
	}

	if v, ok := l.limiters.Load(key); ok {
		if entry, ok := v.(*limiterEntry); ok {
			entry.lastSeen.Store(now.UnixNano())
			return entry.lim
		}
	}

	burst := l.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	entry := &limiterEntry{lim: rate.NewLimiter(rate.Limit(l.cfg.RateLimit.RPS), burst)}
	entry.lastSeen.Store(now.UnixNano())
	actual, loaded := l.limiters.LoadOrStore(key, entry)
	if loaded {
		if actualEntry, ok := actual.(*limiterEntry); ok {
			actualEntry.lastSeen.Store(now.UnixNano())
			return actualEntry.lim
		}
	}
	return entry.lim
}

func (l *rateLimiter) sweepDue(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) < limiterSweepInterval {
		return false
	}
	l.lastSweep = now
	return true
}

// sweep drops buckets not used within limiterIdleTTL; the next request
// starts with a full bucket.
func (l *rateLimiter) sweep(now time.Time) int {
	cutoff := now.Add(-limiterIdleTTL).UnixNano()
	removed := 0
	l.limiters.Range(func(key, val any) bool {
		if entry, ok := val.(*limiterEntry); ok && entry.lastSeen.Load() < cutoff {
			if l.limiters.CompareAndDelete(key, val) {
				removed++
			}
		}
		return true
	})
	return removed
}

// Wrap must run after authentication; requests are keyed by user id.
func (l *rateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.cfg.RateLimit.RPS <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key, ok := UserIDFromContext(r.Context())
		if !ok {
			key = "anonymous"
		}
		if !l.getLimiter(key).Allow() {
			writeJSON(w, http.StatusTooManyRequests, Envelope{Success: false, Message: "Rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
