package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bitatlas/trustgate/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		ServerAddr:             ":0",
		BaseURL:                "http://localhost:8080",
		JWTSecret:              "test-secret-at-least-32-bytes-long!",
		JWTExpiration:          time.Hour,
		SessionSecret:          "test-session-secret",
		RefreshTokenExpiration: 720 * time.Hour,
		AuthCodeExpiration:     10 * time.Minute,
		OAuthTokenExpiration:   720 * time.Hour,
		BcryptCost:             12,
		LockoutThreshold:       5,
		LockoutWindow:          15 * time.Minute,
		DatabaseDriver:         "sqlite",
		DatabaseDSN:            ":memory:",
		EnableRateLimit:        true,
		RateLimitStore:         "memory",
		RateLimitWindow:        time.Minute,
		GlobalRateLimit:        300,
		AuthRateLimit:          10,
		OAuthRateLimit:         30,
		PerUserRateLimit:       120,
	}
}

func TestNewApplicationWiresFullGraph(t *testing.T) {
	app, err := NewApplication(testConfig())
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.DB)
	assert.Nil(t, app.RedisClient, "memory store needs no redis client")
	assert.NotNil(t, app.AuthService)
	assert.NotNil(t, app.OAuthService)
	assert.NotNil(t, app.Registry)
	assert.NotNil(t, app.Router)
}

func TestNewApplicationRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BcryptCost = 4

	_, err := NewApplication(cfg)
	assert.Error(t, err)
}

func TestRouterServesCoreRoutes(t *testing.T) {
	app, err := NewApplication(testConfig())
	require.NoError(t, err)
	defer app.Close()

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		app.Router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, get("/").Code)
	assert.Equal(t, http.StatusOK, get("/healthz").Code)
	assert.Equal(t, http.StatusOK, get("/login").Code)

	// Anonymous consent-flow request bounces to the login page.
	w := get("/oauth/authorize?client_id=x&redirect_uri=y&response_type=code")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/login")

	// Protected API routes refuse anonymous callers.
	assert.Equal(t, http.StatusUnauthorized, get("/auth/profile").Code)
	assert.Equal(t, http.StatusUnauthorized, get("/oauth/tokens").Code)

	// The global limiter stamps quota headers on every response.
	assert.NotEmpty(t, get("/healthz").Header().Get("X-RateLimit-Limit"))

	// The login page carries its own endpoint-scoped quota, tighter than
	// the global per-IP ceiling.
	assert.Equal(t, "10", get("/login").Header().Get("X-RateLimit-Limit"))
}

func TestLogoutNeedsNoAccessToken(t *testing.T) {
	app, err := NewApplication(testConfig())
	require.NoError(t, err)
	defer app.Close()

	// The refresh token in the body is the credential; a client with an
	// expired access token can still end its session, and unknown tokens
	// are idempotent.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/logout",
		strings.NewReader(`{"refreshToken":"no-such-token"}`))
	req.Header.Set("Content-Type", "application/json")
	app.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
