package handlers

import (
	"errors"
	"net/http"

	"github.com/bitatlas/trustgate/internal/middleware"
	"github.com/bitatlas/trustgate/internal/services"

	"github.com/gin-gonic/gin"
)

// AuthHandler exposes the JSON credential endpoints under /auth.
type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "email and password are required",
			"code":  "ERR_MISSING_FIELDS",
		})
		return
	}

	user, err := h.auth.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
				"code":  "ERR_WEAK_PASSWORD",
			})
		case errors.Is(err, services.ErrUserExists):
			c.JSON(http.StatusConflict, gin.H{
				"error": "a user with this email already exists",
				"code":  "ERR_USER_EXISTS",
			})
		default:
			internalError(c)
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user": gin.H{
			"id":         user.ID,
			"email":      user.Email,
			"created_at": user.CreatedAt,
		},
	})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "email and password are required",
			"code":  "ERR_MISSING_FIELDS",
		})
		return
	}

	_, pair, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, services.DeviceInfo{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAccountLocked):
			c.JSON(http.StatusLocked, gin.H{
				"error": "account temporarily locked due to repeated failed logins",
				"code":  "ERR_ACCOUNT_LOCKED",
			})
		case errors.Is(err, services.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid email or password",
				"code":  "ERR_INVALID_CREDENTIALS",
			})
		default:
			internalError(c)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"expiresIn":    pair.ExpiresIn,
	})
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "refreshToken is required",
			"code":  "ERR_MISSING_FIELDS",
		})
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken, services.DeviceInfo{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidRefreshToken) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired refresh token",
				"code":  "ERR_INVALID_REFRESH_TOKEN",
			})
			return
		}
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"expiresIn":    pair.ExpiresIn,
	})
}

// Logout handles POST /auth/logout. Idempotent: logging out an unknown
// token still succeeds.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "refreshToken is required",
			"code":  "ERR_MISSING_FIELDS",
		})
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to log out",
			"code":  "ERR_LOGOUT_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Profile handles GET /auth/profile (requires a Bearer access token).
func (h *AuthHandler) Profile(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserID)

	user, err := h.auth.Profile(userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or expired token",
			"code":  "ERR_UNAUTHORIZED",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":         user.ID,
			"email":      user.Email,
			"created_at": user.CreatedAt,
		},
	})
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "internal server error",
		"code":  "ERR_INTERNAL",
	})
}
