// Package token signs and verifies the JWTs issued by the service: short
// session access tokens and long-lived OAuth access tokens.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TypeSession marks access tokens issued at login/refresh.
	TypeSession = "session"
	// TypeOAuth marks long-lived tokens issued through the code grant.
	TypeOAuth = "oauth"
)

// DefaultSessionScopes are embedded in every session access token.
const DefaultSessionScopes = "files:read files:write files:delete"

// Claims is the verified payload of an access token.
type Claims struct {
	UserID    string
	Email     string
	ClientID  string
	Scopes    string
	TokenType string
	ExpiresAt time.Time
}

// Service signs and verifies HS256 JWTs.
type Service struct {
	secret []byte
	issuer string
}

func NewService(secret, issuer string) *Service {
	return &Service{secret: []byte(secret), issuer: issuer}
}

// SignSessionToken issues a session access token carrying the default file
// scopes. Lifetime is the configured JWT expiration (default 1h).
func (s *Service) SignSessionToken(userID, email string, lifetime time.Duration) (string, time.Time, error) {
	expiresAt := time.Now().Add(lifetime)
	return s.sign(jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"scope":   DefaultSessionScopes,
		"type":    TypeSession,
		"exp":     expiresAt.Unix(),
		"iat":     time.Now().Unix(),
		"iss":     s.issuer,
		"sub":     userID,
		"jti":     uuid.New().String(),
	}, expiresAt)
}

// SignOAuthToken issues a long-lived access token bound to a client and the
// scopes the user consented to. Lifetime defaults to 30 days; the length is
// a deliberate trade-off for unattended integrations that cannot
// interactively refresh.
func (s *Service) SignOAuthToken(userID, clientID, scopes string, lifetime time.Duration) (string, time.Time, error) {
	expiresAt := time.Now().Add(lifetime)
	return s.sign(jwt.MapClaims{
		"user_id":   userID,
		"client_id": clientID,
		"scope":     scopes,
		"type":      TypeOAuth,
		"exp":       expiresAt.Unix(),
		"iat":       time.Now().Unix(),
		"iss":       s.issuer,
		"sub":       userID,
		"jti":       uuid.New().String(),
	}, expiresAt)
}

func (s *Service) sign(claims jwt.MapClaims, expiresAt time.Time) (string, time.Time, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	return signed, expiresAt, nil
}

// Verify parses and validates a token of the expected type. Any failure
// (malformed, wrong signature, wrong type) maps to ErrInvalidToken, except
// expiry which maps to ErrExpiredToken.
func (s *Service) Verify(tokenString, expectedType string) (*Claims, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !t.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	tokenType, _ := claims["type"].(string)
	if tokenType != expectedType {
		return nil, ErrInvalidToken
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, _ := claims["user_id"].(string)
	email, _ := claims["email"].(string)
	clientID, _ := claims["client_id"].(string)
	scopes, _ := claims["scope"].(string)

	return &Claims{
		UserID:    userID,
		Email:     email,
		ClientID:  clientID,
		Scopes:    scopes,
		TokenType: tokenType,
		ExpiresAt: time.Unix(int64(exp), 0),
	}, nil
}
