// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an edge-level token-bucket limiter that sits in front
// of the whole route tree. It is distinct from the per-client fixed-window
// quota enforced on /oracle: the quota is the product rule (N requests per
// window, Redis-backed), while this limiter is cheap process-local abuse
// protection that sheds bursts before they reach handlers.
//
// Buckets are created on demand, keyed by the same client identity used for
// the quota, and idle buckets are evicted opportunistically to bound memory.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/mkaramanlis/oracle-backend/internal/ratelimit"
)

// visitor holds a single bucket and the last time it was seen, so idle
// entries can be evicted.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// EdgeLimiter implements a per-identity token-bucket limiter. It is safe for
// concurrent use.
type EdgeLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewEdgeLimiter constructs an EdgeLimiter replenishing rps tokens per second
// with the given burst size. Burst values <= 0 are coerced to 1.
func NewEdgeLimiter(rps float64, burst int) *EdgeLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &EdgeLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// getVisitor returns (and refreshes) the bucket for key, creating it when
// absent. Eviction of idle entries runs before the lookup, after ~5000 calls,
// so an old bucket can be dropped even when it is the one being fetched.
func (el *EdgeLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	el.mu.Lock()
	el.cleanupN++
	if el.cleanupN >= 5000 {
		for k, v := range el.visitors {
			if now.Sub(v.lastSeen) >= el.ttl {
				delete(el.visitors, k)
			}
		}
		el.cleanupN = 0
	}

	if v, ok := el.visitors[key]; ok {
		v.lastSeen = now
		lim := v.limiter
		el.mu.Unlock()
		return lim
	}

	lim := rate.NewLimiter(el.rps, el.burst)
	el.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	el.mu.Unlock()
	return lim
}

// Handler returns a Gin middleware enforcing the per-identity bucket. Denied
// requests receive a compact 429 with a minimal Retry-After.
func (el *EdgeLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ratelimit.ClientIdentifier(c.Request.Header, c.Request.RemoteAddr)
		lim := el.getVisitor(key)

		if lim.Allow() {
			c.Next()
			return
		}

		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
