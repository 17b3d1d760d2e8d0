package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bitatlas/trustgate/internal/clients"
	"github.com/bitatlas/trustgate/internal/crypto"
	"github.com/bitatlas/trustgate/internal/metrics"
	"github.com/bitatlas/trustgate/internal/models"
	"github.com/bitatlas/trustgate/internal/store"
	"github.com/bitatlas/trustgate/internal/token"

	"github.com/google/uuid"
)

// OAuth flow errors, named after the RFC 6749 error codes they map to.
var (
	ErrInvalidRequest          = errors.New("invalid_request")
	ErrInvalidClient           = errors.New("invalid_client")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrUnsupportedGrantType    = errors.New("unsupported_grant_type")
	ErrInvalidGrant            = errors.New("invalid_grant")
	ErrTokenNotFound           = errors.New("token not found")
)

const authorizationCodeBytes = 32

// OAuthConfig carries the authorization server tunables.
type OAuthConfig struct {
	CodeLifetime  time.Duration // default 10 minutes
	TokenLifetime time.Duration // default 30 days
}

// AuthorizeRequest is a validated authorization request: known client,
// allowlisted redirect URI, scopes narrowed to the client's grant.
type AuthorizeRequest struct {
	Client      *clients.Client
	RedirectURI string
	Scope       string
	State       string
}

// TokenGrant is the outcome of a code exchange.
type TokenGrant struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int
	Scope       string
}

// TokenInfo is one row of a user's token listing.
type TokenInfo struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Scopes    string    `json:"scopes"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IsExpired bool      `json:"is_expired"`
}

// OAuthService implements the authorization-code grant against the closed
// client registry.
type OAuthService struct {
	store    *store.Store
	registry *clients.Registry
	tokens   *token.Service
	cfg      OAuthConfig
	metrics  metrics.Recorder
}

func NewOAuthService(
	s *store.Store,
	registry *clients.Registry,
	tokens *token.Service,
	cfg OAuthConfig,
	rec metrics.Recorder,
) *OAuthService {
	if rec == nil {
		rec = metrics.NewNoop()
	}
	return &OAuthService{
		store:    s,
		registry: registry,
		tokens:   tokens,
		cfg:      cfg,
		metrics:  rec,
	}
}

// ValidateAuthorizationRequest checks every parameter of an incoming
// authorization request. The requested scopes are intersected with the
// client's allowlist; bogus scopes are dropped silently and an empty
// intersection falls back to the minimal default scope.
func (s *OAuthService) ValidateAuthorizationRequest(
	clientID, redirectURI, responseType, scope, state string,
) (*AuthorizeRequest, error) {
	if clientID == "" || redirectURI == "" || responseType == "" {
		return nil, ErrInvalidRequest
	}
	if responseType != "code" {
		return nil, ErrUnsupportedResponseType
	}

	client := s.registry.Get(clientID)
	if client == nil {
		return nil, ErrInvalidClient
	}

	if !client.AllowsRedirectURI(redirectURI) {
		return nil, fmt.Errorf("%w: redirect_uri not registered for client", ErrInvalidRequest)
	}

	return &AuthorizeRequest{
		Client:      client,
		RedirectURI: redirectURI,
		Scope:       client.IntersectScopes(scope),
		State:       state,
	}, nil
}

// CreateAuthorizationCode mints a single-use code bound to the user, the
// client, and the redirect URI from issuance. Only the SHA-256 hash is
// persisted; the plaintext goes into the redirect and is never stored.
func (s *OAuthService) CreateAuthorizationCode(
	ctx context.Context,
	req *AuthorizeRequest,
	userID string,
) (string, error) {
	plainCode, err := crypto.RandomToken(authorizationCodeBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}

	record := &models.AuthorizationCode{
		CodeHash:    crypto.SHA256Hex(plainCode),
		CodePrefix:  plainCode[:8],
		UserID:      userID,
		ClientID:    req.Client.ClientID,
		RedirectURI: req.RedirectURI,
		Scope:       req.Scope,
		State:       req.State,
		ExpiresAt:   time.Now().Add(s.cfg.CodeLifetime),
	}
	if err := s.store.CreateAuthorizationCode(record); err != nil {
		return "", fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.metrics.CodeIssued()
	log.Printf("[OAuth] Issued code %s… for client %s", record.CodePrefix, record.ClientID)
	return plainCode, nil
}

// ExchangeCode validates and consumes an authorization code, then issues
// the long-lived access token. The code row must match code, client_id,
// AND redirect_uri, be unexpired, and be unused; anything less is
// invalid_grant with no further detail. Consumption happens before minting
// so a concurrent duplicate exchange can never yield two tokens.
func (s *OAuthService) ExchangeCode(
	ctx context.Context,
	grantType, code, redirectURI, clientID string,
) (*TokenGrant, error) {
	if grantType != "authorization_code" {
		return nil, ErrUnsupportedGrantType
	}
	if code == "" || redirectURI == "" || clientID == "" {
		return nil, ErrInvalidRequest
	}

	record, err := s.store.GetAuthorizationCodeByHash(crypto.SHA256Hex(code))
	if err != nil {
		s.metrics.CodeExchanged("invalid_grant")
		return nil, ErrInvalidGrant
	}

	// Strict binding to the issuance parameters closes the code
	// substitution attack: a code leaked to another client or replayed
	// against a different redirect URI is worthless.
	if record.ClientID != clientID || record.RedirectURI != redirectURI {
		s.metrics.CodeExchanged("invalid_grant")
		return nil, ErrInvalidGrant
	}
	if record.IsExpired() || record.IsUsed() {
		s.metrics.CodeExchanged("invalid_grant")
		return nil, ErrInvalidGrant
	}

	if err := s.store.ConsumeAuthorizationCode(record.ID, time.Now()); err != nil {
		if errors.Is(err, store.ErrCodeAlreadyUsed) {
			s.metrics.CodeExchanged("invalid_grant")
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	accessToken, expiresAt, err := s.tokens.SignOAuthToken(
		record.UserID, record.ClientID, record.Scope, s.cfg.TokenLifetime,
	)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateOAuthToken(&models.OAuthToken{
		ID:        uuid.New().String(),
		UserID:    record.UserID,
		ClientID:  record.ClientID,
		TokenHash: crypto.SHA256Hex(accessToken),
		Scopes:    record.Scope,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, err
	}

	s.metrics.CodeExchanged("success")
	s.metrics.TokenIssued("oauth")
	log.Printf("[OAuth] Exchanged code %s… for client %s", record.CodePrefix, clientID)

	return &TokenGrant{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(expiresAt).Seconds()),
		Scope:       record.Scope,
	}, nil
}

// ListTokens returns the user's issued OAuth tokens with a computed
// is_expired flag. The token values themselves are not recoverable; only
// their hashes are stored.
func (s *OAuthService) ListTokens(userID string) ([]TokenInfo, error) {
	rows, err := s.store.ListOAuthTokensByUserID(userID)
	if err != nil {
		return nil, err
	}

	infos := make([]TokenInfo, 0, len(rows))
	for _, t := range rows {
		infos = append(infos, TokenInfo{
			ID:        t.ID,
			ClientID:  t.ClientID,
			Scopes:    t.Scopes,
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
			IsExpired: t.IsExpired(),
		})
	}
	return infos, nil
}

// RevokeToken deletes one token by value, scoped to the authenticated
// owner. A token belonging to another user looks identical to a token that
// never existed.
func (s *OAuthService) RevokeToken(userID, plainToken string) error {
	err := s.store.DeleteOAuthTokenByHash(userID, crypto.SHA256Hex(plainToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTokenNotFound
		}
		return err
	}
	s.metrics.TokenRevoked("oauth")
	return nil
}
