// Package limiter implements the fixed-window distributed rate limiter that
// guards every trust-sensitive endpoint. Counting happens in a shared
// counter store; when that store is unreachable the limiter fails open,
// favoring availability over strict enforcement. That degradation is a known
// trust boundary, not a bug.
package limiter

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Counter is the shared counter store behind the limiter. IncrWithTTL must
// atomically increment the key and return the post-increment value; the TTL
// is applied only on the first increment of a key so windows self-expire.
type Counter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Result describes one rate-limit decision.
type Result struct {
	Allowed    bool
	Limit      int64
	Current    int64
	Remaining  int64
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Limiter applies a fixed-window counter per (scope, identity) pair.
type Limiter struct {
	counter Counter
	window  time.Duration
}

func New(counter Counter, window time.Duration) *Limiter {
	return &Limiter{counter: counter, window: window}
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Allow counts one request for identity under scope and decides against
// max. The window index floors time into discrete buckets, so the key (and
// therefore the count) rolls over at fixed boundaries.
func (l *Limiter) Allow(ctx context.Context, scope, identity string, max int64) Result {
	now := time.Now()
	windowIndex := now.UnixMilli() / l.window.Milliseconds()
	key := fmt.Sprintf("ratelimit:%s:%s:%d", scope, identity, windowIndex)
	resetTime := time.UnixMilli((windowIndex + 1) * l.window.Milliseconds())

	count, err := l.counter.IncrWithTTL(ctx, key, l.window)
	if err != nil {
		// Fail open: an unreachable counter store must not take the
		// service down with it.
		log.Printf("[RateLimit] counter store error, failing open: %v", err)
		return Result{
			Allowed:   true,
			Limit:     max,
			Current:   0,
			Remaining: max,
			ResetTime: resetTime,
		}
	}

	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:    count <= max,
		Limit:      max,
		Current:    count,
		Remaining:  remaining,
		ResetTime:  resetTime,
		RetryAfter: time.Until(resetTime),
	}
}
