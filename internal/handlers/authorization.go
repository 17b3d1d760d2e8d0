package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/bitatlas/trustgate/internal/middleware"
	"github.com/bitatlas/trustgate/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const maxStateLength = 1024

// AuthorizationHandler serves the browser side of the authorization-code
// grant: the login form that backs the consent flow, the consent page, and
// the consent decision.
type AuthorizationHandler struct {
	oauth *services.OAuthService
	auth  *services.AuthService
}

func NewAuthorizationHandler(oauth *services.OAuthService, auth *services.AuthService) *AuthorizationHandler {
	return &AuthorizationHandler{oauth: oauth, auth: auth}
}

// ============================================================
// Consent-flow login
// ============================================================

// LoginPage renders the login form (GET /login).
func (h *AuthorizationHandler) LoginPage(c *gin.Context) {
	session := sessions.Default(c)
	if session.Get(middleware.SessionUserID) != nil {
		c.Redirect(http.StatusFound, safeRedirect(c.Query("redirect")))
		return
	}
	c.HTML(http.StatusOK, "login.html", gin.H{
		"Redirect": c.Query("redirect"),
		"Error":    c.Query("error"),
	})
}

// Login processes the login form (POST /login). Lockout applies here
// exactly as on the API login; only the response shape differs.
func (h *AuthorizationHandler) Login(c *gin.Context) {
	email := c.PostForm("email")
	password := c.PostForm("password")
	redirectTo := c.PostForm("redirect")

	user, err := h.auth.VerifyCredentials(c.Request.Context(), email, password)
	if err != nil {
		msg := "Invalid email or password"
		if errors.Is(err, services.ErrAccountLocked) {
			msg = "Account temporarily locked, try again later"
		}
		c.HTML(http.StatusUnauthorized, "login.html", gin.H{
			"Redirect": redirectTo,
			"Error":    msg,
		})
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.SessionUserID, user.ID)
	if err := session.Save(); err != nil {
		c.HTML(http.StatusInternalServerError, "error.html", gin.H{
			"Error": "Failed to create session",
		})
		return
	}

	c.Redirect(http.StatusFound, safeRedirect(redirectTo))
}

// ============================================================
// Authorization endpoint
// ============================================================

// Authorize renders the consent page (GET /oauth/authorize). RequireLogin
// has already ensured a logged-in browser session.
func (h *AuthorizationHandler) Authorize(c *gin.Context) {
	clientID := c.Query("client_id")
	redirectURI := c.Query("redirect_uri")
	responseType := c.Query("response_type")
	scope := c.Query("scope")
	state := c.Query("state")

	if len(state) > maxStateLength {
		h.renderOAuthError(c, "invalid_request", "state parameter exceeds maximum length")
		return
	}

	req, err := h.oauth.ValidateAuthorizationRequest(clientID, redirectURI, responseType, scope, state)
	if err != nil {
		// Validation failures must not redirect: the redirect_uri is not
		// trusted until it passed the allowlist check.
		h.renderOAuthError(c, oauthErrorCode(err), err.Error())
		return
	}

	userID := c.GetString(middleware.CtxUserID)
	user, err := h.auth.Profile(userID)
	if err != nil {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	c.HTML(http.StatusOK, "consent.html", gin.H{
		"Email":             user.Email,
		"ClientID":          req.Client.ClientID,
		"ClientName":        req.Client.Name,
		"ClientDescription": req.Client.Description,
		"RedirectURI":       req.RedirectURI,
		"Scope":             req.Scope,
		"ScopeList":         strings.Fields(req.Scope),
		"State":             req.State,
	})
}

// CompleteAuthorization processes the consent decision (POST /oauth/authorize).
func (h *AuthorizationHandler) CompleteAuthorization(c *gin.Context) {
	action := c.PostForm("action") // "approve" or "deny"
	clientID := c.PostForm("client_id")
	redirectURI := c.PostForm("redirect_uri")
	scope := c.PostForm("scope")
	state := c.PostForm("state")

	if len(state) > maxStateLength {
		h.renderOAuthError(c, "invalid_request", "state parameter exceeds maximum length")
		return
	}

	// Re-validate on POST so hidden-field tampering cannot widen the grant.
	req, err := h.oauth.ValidateAuthorizationRequest(clientID, redirectURI, "code", scope, state)
	if err != nil {
		h.renderOAuthError(c, oauthErrorCode(err), err.Error())
		return
	}

	if action != "approve" {
		h.redirectWithError(c, req.RedirectURI, req.State, "access_denied",
			"User denied the authorization request")
		return
	}

	userID := c.GetString(middleware.CtxUserID)
	plainCode, err := h.oauth.CreateAuthorizationCode(c.Request.Context(), req, userID)
	if err != nil {
		h.redirectWithError(c, req.RedirectURI, req.State, "server_error",
			"Failed to generate authorization code")
		return
	}

	u, err := url.Parse(req.RedirectURI)
	if err != nil {
		h.renderOAuthError(c, "invalid_request", "invalid redirect_uri")
		return
	}
	q := u.Query()
	q.Set("code", plainCode)
	if req.State != "" {
		q.Set("state", req.State)
	}
	u.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, u.String())
}

// redirectWithError sends an OAuth error to a redirect_uri that already
// passed allowlist validation.
func (h *AuthorizationHandler) redirectWithError(
	c *gin.Context,
	redirectURI, state, errorCode, description string,
) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		h.renderOAuthError(c, errorCode, description)
		return
	}
	q := u.Query()
	q.Set("error", errorCode)
	q.Set("error_description", description)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, u.String())
}

// renderOAuthError answers without redirecting, for requests whose
// redirect_uri cannot be trusted. Browsers get the error page, API callers
// the RFC 6749 JSON shape.
func (h *AuthorizationHandler) renderOAuthError(c *gin.Context, errorCode, description string) {
	if strings.Contains(c.GetHeader("Accept"), "text/html") {
		c.HTML(http.StatusBadRequest, "error.html", gin.H{
			"Error":   errorCode,
			"Message": description,
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error":             errorCode,
		"error_description": description,
	})
}

// oauthErrorCode maps service errors to RFC 6749 error codes.
func oauthErrorCode(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidClient):
		return "invalid_client"
	case errors.Is(err, services.ErrUnsupportedResponseType):
		return "unsupported_response_type"
	default:
		return "invalid_request"
	}
}

// safeRedirect allows only same-site relative paths as post-login targets.
func safeRedirect(target string) string {
	if target == "" {
		return "/"
	}
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") ||
		strings.ContainsAny(target, "\r\n\\") {
		return "/"
	}
	return target
}
