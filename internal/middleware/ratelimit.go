package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/echo/internal/auth"
)

// RateLimiter throttles requests per client. Authenticated requests are
// keyed by user ID (so one user behind a NAT does not exhaust everyone
// else's budget), anonymous ones by remote IP; the token bucket allows short
// bursts while holding the sustained rate to the configured per-minute
// budget.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	perMin   int
	lastSeen time.Duration
}

type clientLimiter struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewRateLimiter creates a limiter allowing perMinute sustained requests per
// client with a burst of the same size. Run must be started for idle clients
// to be reaped.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		clients:  make(map[string]*clientLimiter),
		perMin:   perMinute,
		lastSeen: 10 * time.Minute,
	}
}

// Middleware rejects over-budget requests with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientKey(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error":   "rate_limited",
				"message": "too many requests, slow down",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[key]
	if !ok {
		c = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.perMin)/60.0), rl.perMin),
		}
		rl.clients[key] = c
	}
	c.seen = time.Now()
	return c.limiter.Allow()
}

// Run blocks until ctx is cancelled, periodically dropping limiters for
// clients idle longer than lastSeen so the map does not grow without bound.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.reap()
		}
	}
}

func (rl *RateLimiter) reap() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, c := range rl.clients {
		if time.Since(c.seen) > rl.lastSeen {
			delete(rl.clients, key)
		}
	}
}

// clientKey prefers the authenticated user ID (set by auth.OptionalAuth
// earlier in the chain) and falls back to the remote IP.
func clientKey(r *http.Request) string {
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		return "user:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
