package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/leadops/crm-api/internal/httpx"
)

type attemptWindow struct {
	count      int
	windowEnds time.Time
}

// IPRateLimiter counts requests per caller in fixed windows. Authenticated
// callers are keyed by user id so agents behind one NAT do not share a budget.
type IPRateLimiter struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	maxEntries int
	attempt    map[string]attemptWindow
	now        func() time.Time
}

func NewIPRateLimiter(limit int, window time.Duration) *IPRateLimiter {
	return NewIPRateLimiterWithMaxEntries(limit, window, 10000)
}

func NewIPRateLimiterWithMaxEntries(limit int, window time.Duration, maxEntries int) *IPRateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &IPRateLimiter{
		limit:      limit,
		window:     window,
		maxEntries: maxEntries,
		attempt:    map[string]attemptWindow{},
		now:        time.Now,
	}
}

func (rl *IPRateLimiter) Middleware(message string) func(http.Handler) http.Handler {
	if message == "" {
		message = "Rate limit exceeded"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(rateLimitKey(r)) {
				httpx.WriteError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", message, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *IPRateLimiter) allow(key string) bool {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.attempt[key]
	if !ok && len(rl.attempt) >= rl.maxEntries {
		rl.evictExpired(now)
		if len(rl.attempt) >= rl.maxEntries {
			return false
		}
	}
	if entry.windowEnds.Before(now) {
		entry = attemptWindow{windowEnds: now.Add(rl.window)}
	}
	entry.count++
	rl.attempt[key] = entry
	return entry.count <= rl.limit
}

func (rl *IPRateLimiter) evictExpired(now time.Time) {
	for key, entry := range rl.attempt {
		if entry.windowEnds.Before(now) {
			delete(rl.attempt, key)
		}
	}
}

func rateLimitKey(r *http.Request) string {
	if actor, ok := ActorFromContext(r.Context()); ok {
		return "user:" + actor.UserID.String()
	}
	ip := clientIP(r.RemoteAddr)
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
