package middleware

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"coachyard/backend/internal/config"
	"coachyard/backend/internal/services"
)

// clientLimiter stores the rate limiter for a specific client.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterMiddleware manages per-client token-bucket rate limiting with
// per-endpoint overrides from the config service.
type RateLimiterMiddleware struct {
	clients       map[string]*clientLimiter
	mu            sync.Mutex
	cfg           *config.Config
	configService services.IConfigService
}

// NewRateLimiterMiddleware creates a new RateLimiterMiddleware.
func NewRateLimiterMiddleware(cfg *config.Config, configService services.IConfigService) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		clients:       make(map[string]*clientLimiter),
		cfg:           cfg,
		configService: configService,
	}
	go rm.cleanupClients()
	return rm
}

// getClientIdentifier keys limiters per IP and endpoint so one hot route
// cannot starve a client's other requests.
func getClientIdentifier(c *gin.Context) string {
	return fmt.Sprintf("%s|%s", c.ClientIP(), c.FullPath())
}

func (rm *RateLimiterMiddleware) getClientLimiter(identifier string, refillRate, burst int) *clientLimiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	limiter, exists := rm.clients[identifier]
	if !exists {
		limiter = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(refillRate), burst),
		}
		rm.clients[identifier] = limiter
	}
	limiter.lastSeen = time.Now()
	return limiter
}

// cleanupClients periodically removes idle client entries.
func (rm *RateLimiterMiddleware) cleanupClients() {
	for {
		time.Sleep(10 * time.Minute)
		rm.mu.Lock()
		count := 0
		for id, client := range rm.clients {
			if time.Since(client.lastSeen) > 30*time.Minute {
				delete(rm.clients, id)
				count++
			}
		}
		rm.mu.Unlock()
		if count > 0 {
			log.Printf("Rate limiter cleanup removed %d old client entries.", count)
		}
	}
}

// Limit creates the Gin middleware handler.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := getClientIdentifier(c)
		endpoint := c.FullPath()
		ctx := c.Request.Context()

		// Process-wide defaults are runtime-tunable; per-endpoint overrides
		// still win below.
		refillRate := rm.configService.GetInt(ctx, "RATE_LIMIT_REFILL_RATE", rm.cfg.RateLimitRefillRate)
		burst := rm.configService.GetInt(ctx, "RATE_LIMIT_BUCKET_SIZE", rm.cfg.RateLimitBucketSize)

		apiCfg, err := rm.configService.GetAPIEndpointConfig(ctx, endpoint)
		if err != nil {
			log.Printf("Error fetching API config for %s: %v. Using defaults.", endpoint, err)
		}
		if apiCfg != nil && apiCfg.RateLimit != nil {
			refillRate = apiCfg.RateLimit.TokenRefillRate
			burst = apiCfg.RateLimit.BucketSize
		}

		limiter := rm.getClientLimiter(clientKey, refillRate, burst)
		if !limiter.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		c.Next()
	}
}
