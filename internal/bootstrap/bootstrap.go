// Package bootstrap is the composition root: every component is
// constructed once here and passed by reference, with no module-level
// singletons anywhere in the tree.
package bootstrap

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/bitatlas/trustgate/internal/clients"
	"github.com/bitatlas/trustgate/internal/config"
	"github.com/bitatlas/trustgate/internal/crypto"
	"github.com/bitatlas/trustgate/internal/metrics"
	"github.com/bitatlas/trustgate/internal/services"
	"github.com/bitatlas/trustgate/internal/store"
	"github.com/bitatlas/trustgate/internal/token"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Application holds all initialized components.
type Application struct {
	Config *config.Config

	// Core infrastructure
	DB          *store.Store
	RedisClient *redis.Client
	Metrics     metrics.Recorder
	Hasher      *crypto.Hasher
	Tokens      *token.Service
	Registry    *clients.Registry

	// Services
	AuthService  *services.AuthService
	OAuthService *services.OAuthService

	// HTTP
	Handlers  handlerSet
	RateLimit rateLimitMiddlewares
	Router    *gin.Engine
	Server    *http.Server
}

// Run initializes and starts the application, blocking until shutdown.
func Run(cfg *config.Config) error {
	app, err := NewApplication(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	app.startJanitor()

	return app.serve()
}

// NewApplication wires the full component graph without starting the
// server. Tests use it to get a fully constructed router.
func NewApplication(cfg *config.Config) (*Application, error) {
	app := &Application{Config: cfg}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := app.initializeInfrastructure(); err != nil {
		return nil, err
	}
	app.initializeBusinessLayer()
	if err := app.initializeHTTP(); err != nil {
		return nil, err
	}
	return app, nil
}

func (app *Application) initializeInfrastructure() error {
	db, err := store.New(app.Config.DatabaseDriver, app.Config.DatabaseDSN)
	if err != nil {
		return err
	}
	app.DB = db
	log.Printf("[Bootstrap] Connected to %s credential store", app.Config.DatabaseDriver)

	redisClient, err := initializeRedisClient(context.Background(), app.Config)
	if err != nil {
		return err
	}
	app.RedisClient = redisClient

	app.Metrics = metrics.Init(app.Config.EnableMetrics)
	app.Hasher = crypto.NewHasher(app.Config.BcryptCost)
	app.Tokens = token.NewService(app.Config.JWTSecret, app.Config.BaseURL)

	registry, err := clients.NewRegistry(app.Config.OAuthClientsFile)
	if err != nil {
		return err
	}
	app.Registry = registry

	return nil
}

func (app *Application) initializeBusinessLayer() {
	app.AuthService = services.NewAuthService(
		app.DB,
		app.Hasher,
		app.Tokens,
		services.AuthConfig{
			AccessTokenLifetime:  app.Config.JWTExpiration,
			RefreshTokenLifetime: app.Config.RefreshTokenExpiration,
			LockoutThreshold:     app.Config.LockoutThreshold,
			LockoutWindow:        app.Config.LockoutWindow,
		},
		app.Metrics,
	)

	app.OAuthService = services.NewOAuthService(
		app.DB,
		app.Registry,
		app.Tokens,
		services.OAuthConfig{
			CodeLifetime:  app.Config.AuthCodeExpiration,
			TokenLifetime: app.Config.OAuthTokenExpiration,
		},
		app.Metrics,
	)
}

func (app *Application) initializeHTTP() error {
	app.Handlers = newHandlerSet(app)
	app.RateLimit = setupRateLimiting(app.Config, app.RedisClient, app.Metrics)
	return app.setupRouter()
}

// startJanitor launches the background sweep that removes expired
// sessions, codes, and tokens. Counter-store windows expire via TTL and
// need no sweeping.
func (app *Application) startJanitor() {
	interval := app.Config.CleanupInterval
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			now := time.Now()
			if n, err := app.DB.DeleteExpiredSessions(now); err != nil {
				log.Printf("[Janitor] session sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("[Janitor] removed %d expired sessions", n)
			}
			if n, err := app.DB.DeleteExpiredCodes(now); err != nil {
				log.Printf("[Janitor] code sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("[Janitor] removed %d expired authorization codes", n)
			}
			if n, err := app.DB.DeleteExpiredOAuthTokens(now); err != nil {
				log.Printf("[Janitor] token sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("[Janitor] removed %d expired oauth tokens", n)
			}
		}
	}()
}

// Close releases infrastructure handles.
func (app *Application) Close() {
	if app.RedisClient != nil {
		if err := app.RedisClient.Close(); err != nil {
			log.Printf("[Bootstrap] redis close: %v", err)
		}
	}
}
