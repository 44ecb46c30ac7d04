package limiter

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/coroom/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests globally and per client key.
type RateLimiter struct {
	global    *rate.Limiter
	perClient rate.Limit
	burst     int

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

// NewRateLimiter allows perClientRPS with burst per key. The global bucket
// is sized for globalRPS; zero disables it.
func NewRateLimiter(globalRPS, perClientRPS float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		perClient: rate.Limit(perClientRPS),
		burst:     burst,
		clients:   make(map[string]*clientLimiter),
	}
	if globalRPS > 0 {
		rl.global = rate.NewLimiter(rate.Limit(globalRPS), int(globalRPS)*2)
	}
	return rl
}

func (rl *RateLimiter) clientLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	c, ok := rl.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.perClient, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = time.Now()
	return c.limiter
}

func (rl *RateLimiter) Allow(key string) bool {
	if rl.global != nil && !rl.global.Allow() {
		metrics.RateLimitHits.Inc()
		return false
	}
	if !rl.clientLimiter(key).Allow() {
		metrics.RateLimitHits.Inc()
		return false
	}
	return true
}

// Middleware rejects over-limit requests with 429. The key is the client
// token when the session middleware set one, the remote IP otherwise.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString("client_token")
		if key == "" {
			key = c.ClientIP()
		}
		if !rl.Allow(key) {
			log.Warn().Str("module", "limiter").Str("client", key).Msg("rate limited")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// Sweep forgets clients idle for longer than ttl.
func (rl *RateLimiter) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for key, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
			n++
		}
	}
	return n
}

// StartCleanup sweeps idle clients every interval until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := rl.Sweep(interval); n > 0 {
					log.Debug().Str("module", "limiter").Int("evicted", n).Msg("idle limiters removed")
				}
			}
		}
	}()
}
