// file: internal/server/middleware/ratelimit.go
// version: 1.0.0
// guid: 2c8e4a0f-6b3d-4d9e-b7a1-4e0c8a6f2d4b

package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientIdleTTL is how long an idle client's bucket is kept before eviction.
const clientIdleTTL = 15 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter is a per-IP token bucket guard for the public API. It keeps
// one small bucket per recently seen client and evicts idle entries.
type IPRateLimiter struct {
	mu             sync.Mutex
	clients        map[string]*clientBucket
	requestsPerMin int
	burst          int
}

// NewIPRateLimiter creates a limiter allowing requestsPerMinute sustained
// requests with the given burst per client IP.
func NewIPRateLimiter(requestsPerMinute int, burst int) *IPRateLimiter {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &IPRateLimiter{
		clients:        make(map[string]*clientBucket),
		requestsPerMin: requestsPerMinute,
		burst:          burst,
	}
}

func (r *IPRateLimiter) bucketFor(ip string) *rate.Limiter {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for key, entry := range r.clients {
		if now.Sub(entry.lastSeen) > clientIdleTTL {
			delete(r.clients, key)
		}
	}

	entry, ok := r.clients[ip]
	if !ok {
		perSecond := float64(r.requestsPerMin) / 60.0
		entry = &clientBucket{
			limiter:  rate.NewLimiter(rate.Limit(perSecond), r.burst),
			lastSeen: now,
		}
		r.clients[ip] = entry
		return entry.limiter
	}

	entry.lastSeen = now
	return entry.limiter
}

// Middleware returns a Gin middleware that enforces the configured limit.
func (r *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !r.bucketFor(ip).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
