package handlers

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bobbygour30/admitcard/internal/platform/httpx"
	"github.com/bobbygour30/admitcard/internal/platform/observability"
)

type rateLimiter interface {
	Allow(key string) bool
}

// RateLimit is a fixed window budget per client IP. A zero value disables limiting.
type RateLimit struct {
	Limit  int
	Window time.Duration
}

type simpleRateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	store  map[string]rateEntry
}

type rateEntry struct {
	count int
	reset time.Time
}

func newSimpleRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &simpleRateLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]rateEntry),
	}
}

func (l *simpleRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok || now.After(entry.reset) {
		l.store[key] = rateEntry{count: 1, reset: now.Add(l.window)}
		l.pruneExpiredLocked(now)
		return true
	}

	if entry.count >= l.limit {
		return false
	}
	entry.count++
	l.store[key] = entry
	return true
}

func (l *simpleRateLimiter) pruneExpiredLocked(now time.Time) {
	for key, entry := range l.store {
		if now.After(entry.reset) {
			delete(l.store, key)
		}
	}
}

// limitByClientIP rejects requests over budget with 429. A nil limiter lets everything through.
func limitByClientIP(limiter rateLimiter, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(scope + ":" + observability.ClientIP(r)) {
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "Too many requests, please try again later", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientRateLimit returns a middleware enforcing limit per client IP within scope.
func ClientRateLimit(limit RateLimit, scope string) func(http.Handler) http.Handler {
	return limitByClientIP(newSimpleRateLimiter(limit.Limit, limit.Window, nil), scope)
}
