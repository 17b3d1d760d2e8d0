package middleware

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bitatlas/trustgate/internal/crypto"
	"github.com/bitatlas/trustgate/internal/token"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middlewares.
const (
	CtxUserID = "user_id"
	CtxEmail  = "email"
	CtxScopes = "scopes"
)

// SessionUserID is the key of the logged-in user in the consent-flow cookie
// session.
const SessionUserID = "user_id"

// OAuthTokenChecker reports whether an OAuth access token still has a live
// backing row. A revoked token keeps verifying cryptographically until its
// exp claim, so signature checks alone cannot see revocation.
type OAuthTokenChecker interface {
	OAuthTokenActive(tokenHash string, now time.Time) (bool, error)
}

// RequireBearer authenticates API requests with a signed access token.
// Session tokens (login/refresh issued) and OAuth tokens (code grant issued)
// are both accepted; OAuth tokens must additionally have a live store row,
// which is what revocation deletes. Every verification failure collapses
// into one 401 so callers cannot distinguish malformed from expired from
// forged from revoked.
func RequireBearer(tokens *token.Service, oauthTokens OAuthTokenChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			unauthorized(c)
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := tokens.Verify(tokenString, token.TypeSession)
		if err != nil {
			claims, err = tokens.Verify(tokenString, token.TypeOAuth)
			if err != nil {
				unauthorized(c)
				return
			}
			active, err := oauthTokens.OAuthTokenActive(crypto.SHA256Hex(tokenString), time.Now())
			if err != nil || !active {
				unauthorized(c)
				return
			}
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxEmail, claims.Email)
		c.Set(CtxScopes, claims.Scopes)
		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": "Invalid or expired token",
		"code":  "ERR_UNAUTHORIZED",
	})
}

// RequireLogin gates the browser consent flow on the cookie session. An
// anonymous user is bounced to the login page with the original URL as the
// return target.
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID := session.Get(SessionUserID)

		if userID == nil {
			c.Redirect(http.StatusFound, "/login?redirect="+url.QueryEscape(c.Request.URL.String()))
			c.Abort()
			return
		}

		c.Set(CtxUserID, userID)
		c.Next()
	}
}
