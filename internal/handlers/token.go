package handlers

import (
	"errors"
	"net/http"

	"github.com/bitatlas/trustgate/internal/middleware"
	"github.com/bitatlas/trustgate/internal/services"

	"github.com/gin-gonic/gin"
)

// TokenHandler serves the token exchange endpoint and the authenticated
// token-management endpoints.
type TokenHandler struct {
	oauth *services.OAuthService
}

func NewTokenHandler(oauth *services.OAuthService) *TokenHandler {
	return &TokenHandler{oauth: oauth}
}

// Token handles POST /oauth/token. Parameters arrive form-encoded per
// RFC 6749; JSON bodies are accepted as well for SPA callers.
func (h *TokenHandler) Token(c *gin.Context) {
	grantType := c.PostForm("grant_type")
	code := c.PostForm("code")
	redirectURI := c.PostForm("redirect_uri")
	clientID := c.PostForm("client_id")

	if grantType == "" && code == "" {
		var body struct {
			GrantType   string `json:"grant_type"`
			Code        string `json:"code"`
			RedirectURI string `json:"redirect_uri"`
			ClientID    string `json:"client_id"`
		}
		if err := c.ShouldBindJSON(&body); err == nil {
			grantType, code = body.GrantType, body.Code
			redirectURI, clientID = body.RedirectURI, body.ClientID
		}
	}

	grant, err := h.oauth.ExchangeCode(c.Request.Context(), grantType, code, redirectURI, clientID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnsupportedGrantType):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "unsupported_grant_type",
				"error_description": "Only authorization_code is supported",
			})
		case errors.Is(err, services.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_request",
				"error_description": "code, redirect_uri, and client_id are required",
			})
		case errors.Is(err, services.ErrInvalidGrant):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_grant",
				"error_description": "Authorization code is invalid, expired, or already used",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":             "server_error",
				"error_description": "Token issuance failed",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": grant.AccessToken,
		"token_type":   grant.TokenType,
		"expires_in":   grant.ExpiresIn,
		"scope":        grant.Scope,
	})
}

// ListTokens handles GET /oauth/tokens for the authenticated user.
func (h *TokenHandler) ListTokens(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserID)

	tokens, err := h.oauth.ListTokens(userID)
	if err != nil {
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// RevokeToken handles DELETE /oauth/tokens/:token. The path parameter is
// the token value itself; revocation is scoped to the authenticated owner.
func (h *TokenHandler) RevokeToken(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserID)
	plainToken := c.Param("token")

	if err := h.oauth.RevokeToken(userID, plainToken); err != nil {
		if errors.Is(err, services.ErrTokenNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "token not found",
				"code":  "ERR_TOKEN_NOT_FOUND",
			})
			return
		}
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "token revoked"})
}
