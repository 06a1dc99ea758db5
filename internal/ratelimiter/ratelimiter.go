package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter provides request rate limiting using the token bucket algorithm.
//
// It wraps golang.org/x/time/rate. The admin API uses one limiter per client
// address (see ClientLimiter) so a misbehaving script cannot trigger a storm of
// full re-downloads or deploys.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a new RateLimiter with the specified rate and burst capacity.
//
// Special cases:
//   - requestsPerSecond = 0: No rate limiting (unlimited)
//   - burst = 0: No burst allowed (only sustained rate)
func New(requestsPerSecond float64, burst uint) *RateLimiter {
	if requestsPerSecond <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow reports whether a request may proceed now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// ClientLimiter hands out one RateLimiter per client key (typically the remote
// IP). Limiters idle for longer than the eviction window are dropped on the
// next lookup.
type ClientLimiter struct {
	requestsPerSecond float64
	burst             uint
	idle              time.Duration

	mu      sync.Mutex
	clients map[string]*clientEntry
	now     func() time.Time
}

type clientEntry struct {
	limiter  *RateLimiter
	lastSeen time.Time
}

// NewClientLimiter creates a keyed limiter. idle <= 0 defaults to 10 minutes.
func NewClientLimiter(requestsPerSecond float64, burst uint, idle time.Duration) *ClientLimiter {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &ClientLimiter{
		requestsPerSecond: requestsPerSecond,
		burst:             burst,
		idle:              idle,
		clients:           make(map[string]*clientEntry),
		now:               time.Now,
	}
}

// Allow reports whether the client identified by key may proceed.
func (c *ClientLimiter) Allow(key string) bool {
	if c.requestsPerSecond <= 0 {
		return true
	}

	c.mu.Lock()
	now := c.now()
	for k, e := range c.clients {
		if now.Sub(e.lastSeen) > c.idle {
			delete(c.clients, k)
		}
	}

	entry, ok := c.clients[key]
	if !ok {
		entry = &clientEntry{limiter: New(c.requestsPerSecond, c.burst)}
		c.clients[key] = entry
	}
	entry.lastSeen = now
	c.mu.Unlock()

	return entry.limiter.Allow()
}

// Len returns the number of tracked clients.
func (c *ClientLimiter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}
