package limiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter counts in a shared Redis instance so limits hold across
// replicas. INCR and the conditional EXPIRE run in one pipeline; EXPIRE NX
// only sets the TTL on the window's first increment.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
