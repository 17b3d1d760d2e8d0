package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/bitatlas/trustgate/internal/crypto"
	"github.com/bitatlas/trustgate/internal/metrics"
	"github.com/bitatlas/trustgate/internal/models"
	"github.com/bitatlas/trustgate/internal/store"
	"github.com/bitatlas/trustgate/internal/token"

	"github.com/google/uuid"
)

var (
	ErrUserExists = errors.New("user already exists")
	// ErrWeakPassword re-exports the hasher's policy sentinel so handlers
	// depend on one package.
	ErrWeakPassword = crypto.ErrWeakPassword
	// ErrInvalidCredentials covers both unknown email and wrong password,
	// so responses never leak whether an account exists.
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrAccountLocked       = errors.New("account temporarily locked")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
)

const refreshTokenBytes = 32

// AuthConfig carries the tunables of the session manager.
type AuthConfig struct {
	AccessTokenLifetime  time.Duration
	RefreshTokenLifetime time.Duration
	LockoutThreshold     int
	LockoutWindow        time.Duration
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // seconds until the access token expires
}

// DeviceInfo is the metadata stored alongside a session.
type DeviceInfo struct {
	UserAgent string
	IPAddress string
}

// AuthService orchestrates register, login, refresh, and logout over the
// credential store, password hasher, and token service.
type AuthService struct {
	store   *store.Store
	hasher  *crypto.Hasher
	tokens  *token.Service
	cfg     AuthConfig
	metrics metrics.Recorder
}

func NewAuthService(
	s *store.Store,
	hasher *crypto.Hasher,
	tokens *token.Service,
	cfg AuthConfig,
	rec metrics.Recorder,
) *AuthService {
	if rec == nil {
		rec = metrics.NewNoop()
	}
	return &AuthService{
		store:   s,
		hasher:  hasher,
		tokens:  tokens,
		cfg:     cfg,
		metrics: rec,
	}
}

// Register creates a new user. Email comparison is case-insensitive, so the
// address is folded before both the existence check and the insert.
func (s *AuthService) Register(ctx context.Context, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)

	if err := crypto.ValidatePassword(password); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByEmail(email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(user); err != nil {
		// A concurrent registration can win the race between the existence
		// check and the insert; the unique index is authoritative.
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	s.metrics.UserRegistered()
	log.Printf("[Auth] Registered user %s", user.ID)
	return user, nil
}

// VerifyCredentials runs the full credential check with lockout
// bookkeeping but issues no tokens. The consent-flow login uses it
// directly; Login layers token issuance on top.
func (s *AuthService) VerifyCredentials(ctx context.Context, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)
	now := time.Now()

	user, err := s.store.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.LoginAttempt("invalid_credentials")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	// The lock predicate re-evaluates the window on every attempt; a stale
	// locked flag past the window does not deny the attempt, and nothing
	// clears the flag until a successful authentication.
	if user.IsLocked(s.cfg.LockoutWindow, now) {
		s.metrics.LoginAttempt("locked")
		return nil, ErrAccountLocked
	}

	if !s.hasher.Verify(ctx, password, user.PasswordHash) {
		attempts, err := s.store.RecordFailedLogin(user.ID, now, s.cfg.LockoutThreshold)
		if err != nil {
			return nil, err
		}
		if attempts >= s.cfg.LockoutThreshold {
			log.Printf("[Auth] Locked account %s after %d failed attempts", user.ID, attempts)
		}
		s.metrics.LoginAttempt("invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	if err := s.store.RecordSuccessfulLogin(user.ID, now); err != nil {
		return nil, err
	}

	s.metrics.LoginAttempt("success")
	return user, nil
}

// Login authenticates and issues a fresh token pair, replacing any prior
// session for the user.
func (s *AuthService) Login(ctx context.Context, email, password string, device DeviceInfo) (*models.User, *TokenPair, error) {
	user, err := s.VerifyCredentials(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.issueTokenPair(user, device)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh rotates the refresh token: the presented token must match an
// unexpired session, and the upsert that stores the new token invalidates
// the old one as a side effect of the one-session-per-user scheme.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, device DeviceInfo) (*TokenPair, error) {
	session, err := s.store.GetSessionByTokenHash(crypto.SHA256Hex(refreshToken), time.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	user, err := s.store.GetUserByID(session.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	return s.issueTokenPair(user, device)
}

// Logout deletes the session matching the refresh token. Idempotent:
// unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.store.DeleteSessionByTokenHash(crypto.SHA256Hex(refreshToken))
}

// Profile returns the user for an authenticated request.
func (s *AuthService) Profile(userID string) (*models.User, error) {
	user, err := s.store.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) issueTokenPair(user *models.User, device DeviceInfo) (*TokenPair, error) {
	accessToken, _, err := s.tokens.SignSessionToken(user.ID, user.Email, s.cfg.AccessTokenLifetime)
	if err != nil {
		return nil, err
	}

	refreshToken, err := crypto.RandomToken(refreshTokenBytes)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpsertSession(&models.Session{
		UserID:           user.ID,
		RefreshTokenHash: crypto.SHA256Hex(refreshToken),
		ExpiresAt:        time.Now().Add(s.cfg.RefreshTokenLifetime),
		UserAgent:        device.UserAgent,
		IPAddress:        device.IPAddress,
	}); err != nil {
		return nil, err
	}

	s.metrics.TokenIssued("session")
	s.metrics.TokenIssued("refresh")

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.cfg.AccessTokenLifetime.Seconds()),
	}, nil
}

// NormalizeEmail case-folds and trims an email address for storage and
// lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
