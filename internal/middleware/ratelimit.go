package middleware

import (
	"net/http"
	"strconv"

	"github.com/bitatlas/trustgate/internal/limiter"
	"github.com/bitatlas/trustgate/internal/metrics"

	"github.com/gin-gonic/gin"
)

// RateLimitOptions configures one rate-limit middleware instance. All
// specializations (per-IP, per-user, per-endpoint, OAuth flow, auth) share
// the same fixed-window primitive and differ only in scope, identity
// resolution, and limit.
type RateLimitOptions struct {
	Limiter  *limiter.Limiter
	Scope    string
	Max      int64
	Recorder metrics.Recorder

	// Identity resolves the caller identity for the counter key. Nil means
	// client IP.
	Identity func(c *gin.Context) string
}

// RateLimit builds the gin middleware for the given options. Allowed
// requests carry the remaining-quota headers; rejected requests get a 429
// with retry metadata.
func RateLimit(opts RateLimitOptions) gin.HandlerFunc {
	identity := opts.Identity
	if identity == nil {
		identity = func(c *gin.Context) string { return c.ClientIP() }
	}

	return func(c *gin.Context) {
		res := opts.Limiter.Allow(c.Request.Context(), opts.Scope, identity(c), opts.Max)

		c.Header("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))

		if !res.Allowed {
			if opts.Recorder != nil {
				opts.Recorder.RateLimitRejected(opts.Scope)
			}
			retryAfter := int(res.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "Too many requests, please try again later",
				"code":       "ERR_RATE_LIMITED",
				"limit":      res.Limit,
				"current":    res.Current,
				"resetTime":  res.ResetTime.Unix(),
				"retryAfter": retryAfter,
			})
			return
		}

		c.Next()
	}
}

// RateLimitPerIP limits every caller IP under one scope.
func RateLimitPerIP(l *limiter.Limiter, scope string, max int64, rec metrics.Recorder) gin.HandlerFunc {
	return RateLimit(RateLimitOptions{Limiter: l, Scope: scope, Max: max, Recorder: rec})
}

// RateLimitPerUser keys on the authenticated user and falls back to the
// client IP for anonymous requests. Must run after RequireBearer to see the
// user.
func RateLimitPerUser(l *limiter.Limiter, scope string, max int64, rec metrics.Recorder) gin.HandlerFunc {
	return RateLimit(RateLimitOptions{
		Limiter:  l,
		Scope:    scope,
		Max:      max,
		Recorder: rec,
		Identity: func(c *gin.Context) string {
			if userID, ok := c.Get(CtxUserID); ok {
				if id, ok := userID.(string); ok && id != "" {
					return "user:" + id
				}
			}
			return "ip:" + c.ClientIP()
		},
	})
}

// RateLimitPerEndpoint applies an endpoint-specific limit by folding the
// route template into the identity, so one noisy endpoint cannot consume
// another endpoint's quota for the same caller.
func RateLimitPerEndpoint(l *limiter.Limiter, max int64, rec metrics.Recorder) gin.HandlerFunc {
	return RateLimit(RateLimitOptions{
		Limiter:  l,
		Scope:    "endpoint",
		Max:      max,
		Recorder: rec,
		Identity: func(c *gin.Context) string {
			return c.FullPath() + ":" + c.ClientIP()
		},
	})
}

// RateLimitAuth guards the credential endpoints. It counts every attempt,
// successful or not; counting only failures would require deciding the
// outcome before the handler runs.
func RateLimitAuth(l *limiter.Limiter, max int64, rec metrics.Recorder) gin.HandlerFunc {
	return RateLimit(RateLimitOptions{Limiter: l, Scope: "auth", Max: max, Recorder: rec})
}

// RateLimitOAuth guards the authorization and token exchange endpoints.
func RateLimitOAuth(l *limiter.Limiter, max int64, rec metrics.Recorder) gin.HandlerFunc {
	return RateLimit(RateLimitOptions{Limiter: l, Scope: "oauth", Max: max, Recorder: rec})
}
