// Package ratelimit throttles requests that start instance builds. Every
// refresh or reconfiguration makes the server probe a node, so mutating
// requests are limited per client with a token bucket; reads pass through.
package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config sets how many rebuilds a client may trigger
type Config struct {
	Enabled bool
	// RequestsPerMin is the sustained rebuild rate per client
	RequestsPerMin int
	// BurstSize is how many rebuilds a quiet client may trigger back to back
	BurstSize int
	// CleanupMinutes is how long a client stays tracked after its last rebuild
	CleanupMinutes int
}

// rebuildBudget is one client's token bucket
type rebuildBudget struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out rebuild budgets keyed by client address. Only
// requests that restart the binding spend tokens.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rebuildBudget
	rate     rate.Limit
	burst    int
	idle     time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a new RateLimiter with the given configuration
func New(cfg Config) *RateLimiter {
	// Convert requests per minute to rate.Limit (requests per second)
	r := rate.Limit(float64(cfg.RequestsPerMin) / 60.0)

	idle := time.Duration(cfg.CleanupMinutes) * time.Minute
	if idle <= 0 {
		idle = 10 * time.Minute
	}

	rl := &RateLimiter{
		limiters: make(map[string]*rebuildBudget),
		rate:     r,
		burst:    cfg.BurstSize,
		idle:     idle,
		stopCh:   make(chan struct{}),
	}

	go rl.pruneLoop()

	return rl
}

// Stop stops the prune goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) pruneLoop() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.prune(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// prune forgets clients not seen within the idle window before now
func (rl *RateLimiter) prune(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.idle)
	for client, l := range rl.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(rl.limiters, client)
		}
	}
}

// Allow reports whether client may trigger another rebuild now.
func (rl *RateLimiter) Allow(client string) bool {
	ok, _ := rl.reserve(client, time.Now())
	return ok
}

// reserve spends one token of client's budget. When the budget is empty it
// spends nothing and returns how long until the next token.
func (rl *RateLimiter) reserve(client string, now time.Time) (bool, time.Duration) {
	rl.mu.Lock()
	b, ok := rl.limiters[client]
	if !ok {
		b = &rebuildBudget{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[client] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, rl.idle
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// tracked returns the number of clients currently tracked
func (rl *RateLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Middleware rejects refresh and reconfiguration requests from clients
// that spent their rebuild budget, with 429 and a Retry-After matching the
// next free token. Reads pass through. Run chi's RealIP first when behind a
// proxy.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isRead(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if ok, wait := rl.reserve(ClientIP(r), time.Now()); !ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", retryAfter(wait))
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code":    "RATE_LIMIT_EXCEEDED",
						"message": "Too many rebuild requests. Please try again later.",
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Middleware returns a rate limiting middleware with the given configuration.
// The limiter's prune goroutine runs for the lifetime of the process.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return New(cfg).Middleware()
}

// retryAfter renders wait in whole seconds, rounded up and at least 1.
func retryAfter(wait time.Duration) string {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func isRead(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// ClientIP returns the host part of the request's remote address
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
