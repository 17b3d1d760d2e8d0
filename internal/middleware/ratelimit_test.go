package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bitatlas/trustgate/internal/limiter"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRateLimitedRouter(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/ping", mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	return r
}

func doRequest(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":12345"
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitAllowsWithinLimit(t *testing.T) {
	l := limiter.New(limiter.NewMemoryCounter(), time.Minute)
	r := newRateLimitedRouter(RateLimitPerIP(l, "test", 3, nil))

	for i := 0; i < 3; i++ {
		w := doRequest(r, "10.0.0.1")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	l := limiter.New(limiter.NewMemoryCounter(), time.Minute)
	r := newRateLimitedRouter(RateLimitPerIP(l, "test", 2, nil))

	doRequest(r, "10.0.0.1")
	doRequest(r, "10.0.0.1")
	w := doRequest(r, "10.0.0.1")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))

	var body struct {
		Error      string `json:"error"`
		Code       string `json:"code"`
		Limit      int64  `json:"limit"`
		Current    int64  `json:"current"`
		ResetTime  int64  `json:"resetTime"`
		RetryAfter int    `json:"retryAfter"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ERR_RATE_LIMITED", body.Code)
	assert.Equal(t, int64(2), body.Limit)
	assert.Equal(t, int64(3), body.Current)
	assert.GreaterOrEqual(t, body.RetryAfter, 1)
	assert.Greater(t, body.ResetTime, time.Now().Unix()-1)
}

func TestRateLimitIsolatesIPs(t *testing.T) {
	l := limiter.New(limiter.NewMemoryCounter(), time.Minute)
	r := newRateLimitedRouter(RateLimitPerIP(l, "test", 1, nil))

	assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(r, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.2").Code)
}

func TestRateLimitPerUserKeysOnUser(t *testing.T) {
	l := limiter.New(limiter.NewMemoryCounter(), time.Minute)

	r := gin.New()
	r.GET("/me", func(c *gin.Context) {
		// Simulates RequireBearer having identified the caller.
		c.Set(CtxUserID, c.Query("as"))
		c.Next()
	}, RateLimitPerUser(l, "user", 1, nil), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	get := func(userID string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me?as="+userID, nil)
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, get("u1"))
	assert.Equal(t, http.StatusTooManyRequests, get("u1"))
	// Same IP, different user: separate counter.
	assert.Equal(t, http.StatusOK, get("u2"))
}

func TestRateLimitPerEndpointSeparatesRoutes(t *testing.T) {
	l := limiter.New(limiter.NewMemoryCounter(), time.Minute)
	mw := RateLimitPerEndpoint(l, 1, nil)

	r := gin.New()
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/a", mw, ok)
	r.GET("/b", mw, ok)

	get := func(path string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.1:12345"
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, get("/a"))
	assert.Equal(t, http.StatusTooManyRequests, get("/a"))
	assert.Equal(t, http.StatusOK, get("/b"), "another endpoint keeps its own quota")
}
