package bootstrap

import (
	"log"

	"github.com/bitatlas/trustgate/internal/config"
	"github.com/bitatlas/trustgate/internal/limiter"
	"github.com/bitatlas/trustgate/internal/metrics"
	"github.com/bitatlas/trustgate/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// rateLimitMiddlewares holds the rate-limit middlewares for the different
// route groups.
type rateLimitMiddlewares struct {
	global      gin.HandlerFunc // per-IP, everything
	auth        gin.HandlerFunc // credential endpoints
	oauth       gin.HandlerFunc // authorize and token exchange
	perUser     gin.HandlerFunc // authenticated API routes
	perEndpoint gin.HandlerFunc // browser pages, keyed per route
}

// setupRateLimiting builds the middleware set from configuration. With rate
// limiting disabled every middleware is a pass-through.
func setupRateLimiting(
	cfg *config.Config,
	redisClient *redis.Client,
	rec metrics.Recorder,
) rateLimitMiddlewares {
	noOp := func(c *gin.Context) { c.Next() }
	if !cfg.EnableRateLimit {
		log.Printf("[Bootstrap] Rate limiting disabled")
		return rateLimitMiddlewares{global: noOp, auth: noOp, oauth: noOp, perUser: noOp, perEndpoint: noOp}
	}

	var counter limiter.Counter
	if redisClient != nil {
		counter = limiter.NewRedisCounter(redisClient)
		log.Printf("[Bootstrap] Rate limiting enabled (store: redis)")
	} else {
		counter = limiter.NewMemoryCounter()
		log.Printf("[Bootstrap] Rate limiting enabled (store: memory, single instance only)")
	}

	l := limiter.New(counter, cfg.RateLimitWindow)

	return rateLimitMiddlewares{
		global:      middleware.RateLimitPerIP(l, "global", int64(cfg.GlobalRateLimit), rec),
		auth:        middleware.RateLimitAuth(l, int64(cfg.AuthRateLimit), rec),
		oauth:       middleware.RateLimitOAuth(l, int64(cfg.OAuthRateLimit), rec),
		perUser:     middleware.RateLimitPerUser(l, "user", int64(cfg.PerUserRateLimit), rec),
		perEndpoint: middleware.RateLimitPerEndpoint(l, int64(cfg.AuthRateLimit), rec),
	}
}
