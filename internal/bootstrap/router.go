package bootstrap

import (
	"log"
	"net/http"
	"os"

	"github.com/bitatlas/trustgate/internal/metrics"
	"github.com/bitatlas/trustgate/internal/middleware"
	"github.com/bitatlas/trustgate/internal/templates"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const sessionMaxAge = 3600 // one hour, consent flow only

// setupRouter configures the gin router with all routes and middleware.
func (app *Application) setupRouter() error {
	r := gin.New()

	r.Use(metrics.HTTPMiddleware(app.Metrics))
	r.Use(gin.Logger(), gin.Recovery())

	setupSessionMiddleware(r, app.Config.SessionSecret)

	tmpl, err := templates.Load()
	if err != nil {
		return err
	}
	r.SetHTMLTemplate(tmpl)

	// Global per-IP ceiling in front of everything else.
	r.Use(app.RateLimit.global)

	h := app.Handlers

	r.GET("/", h.health.Index)
	r.GET("/healthz", h.health.Health)
	setupMetricsEndpoint(r, app.Config.EnableMetrics)

	// Password auth API.
	auth := r.Group("/auth")
	{
		auth.POST("/register", app.RateLimit.auth, h.auth.Register)
		auth.POST("/login", app.RateLimit.auth, h.auth.Login)
		auth.POST("/refresh", app.RateLimit.auth, h.auth.Refresh)
		auth.POST("/logout", h.auth.Logout)
		auth.GET("/profile", middleware.RequireBearer(app.Tokens, app.DB), app.RateLimit.perUser, h.auth.Profile)
	}

	// Browser login for the consent flow.
	r.GET("/login", app.RateLimit.perEndpoint, h.authorization.LoginPage)
	r.POST("/login", app.RateLimit.auth, h.authorization.Login)

	// Token exchange is public; the grant itself is the credential.
	r.POST("/oauth/token", app.RateLimit.oauth, h.token.Token)

	// Consent flow requires a logged-in browser session.
	authorize := r.Group("/oauth")
	authorize.Use(middleware.RequireLogin())
	{
		authorize.GET("/authorize", app.RateLimit.oauth, h.authorization.Authorize)
		authorize.POST("/authorize", app.RateLimit.oauth, h.authorization.CompleteAuthorization)
	}

	// Issued-token management for the authenticated owner.
	tokensGroup := r.Group("/oauth/tokens")
	tokensGroup.Use(middleware.RequireBearer(app.Tokens, app.DB), app.RateLimit.perUser)
	{
		tokensGroup.GET("", h.token.ListTokens)
		tokensGroup.DELETE("/:token", h.token.RevokeToken)
	}

	app.Router = r
	return nil
}

func setupSessionMiddleware(r *gin.Engine, secret string) {
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   os.Getenv("GIN_MODE") == "release",
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("trustgate_session", store))
}

func setupMetricsEndpoint(r *gin.Engine, enabled bool) {
	if !enabled {
		log.Printf("[Bootstrap] Prometheus metrics disabled")
		return
	}
	log.Printf("[Bootstrap] Prometheus metrics enabled at /metrics")
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
