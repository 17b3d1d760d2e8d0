package bootstrap

import (
	"github.com/bitatlas/trustgate/internal/handlers"
)

// handlerSet holds all HTTP handlers.
type handlerSet struct {
	auth          *handlers.AuthHandler
	authorization *handlers.AuthorizationHandler
	token         *handlers.TokenHandler
	health        *handlers.HealthHandler
}

func newHandlerSet(app *Application) handlerSet {
	return handlerSet{
		auth:          handlers.NewAuthHandler(app.AuthService),
		authorization: handlers.NewAuthorizationHandler(app.OAuthService, app.AuthService),
		token:         handlers.NewTokenHandler(app.OAuthService),
		health:        handlers.NewHealthHandler(app.DB),
	}
}
