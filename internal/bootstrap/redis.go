package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bitatlas/trustgate/internal/config"

	"github.com/redis/go-redis/v9"
)

const redisConnTimeout = 5 * time.Second

// initializeRedisClient creates the go-redis client backing the distributed
// rate-limit counters. Returns nil when rate limiting is disabled or the
// memory store is selected; a nil client means single-instance counting.
func initializeRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if !cfg.EnableRateLimit {
		return nil, nil //nolint:nilnil // redis client not needed in this configuration
	}
	if cfg.RateLimitStore != "redis" {
		return nil, nil //nolint:nilnil // redis client not needed in this configuration
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, redisConnTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr, err)
	}

	log.Printf("[Bootstrap] Rate limit Redis client connected (address: %s, db: %d)", cfg.RedisAddr, cfg.RedisDB)
	return client, nil
}
