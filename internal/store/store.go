// Package store owns all access to the relational credential store. Every
// cross-request race (failed-login counting, session replacement, code
// consumption) is resolved here with atomic statements rather than
// in-process locks.
package store

import (
	"errors"
	"time"

	"github.com/bitatlas/trustgate/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

func New(driver, dsn string) (*Store, error) {
	dialector, err := openDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.AuthorizationCode{},
		&models.OAuthToken{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// ============================================================
// User operations
// ============================================================

func (s *Store) CreateUser(user *models.User) error {
	if err := s.db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// GetUserByEmail looks up a user by case-folded email.
func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// RecordFailedLogin atomically increments the failed-login counter, stamps
// the attempt time, and returns the post-increment count. When the count
// reaches threshold the locked flag is set in the same round trip's second
// statement, guarded so concurrent callers cannot lock below threshold.
func (s *Store) RecordFailedLogin(userID string, now time.Time, threshold int) (int, error) {
	var attempts int
	err := s.db.Raw(
		`UPDATE users
		 SET failed_login_attempts = failed_login_attempts + 1,
		     last_login_attempt = ?,
		     updated_at = ?
		 WHERE id = ?
		 RETURNING failed_login_attempts`,
		now, now, userID,
	).Scan(&attempts).Error
	if err != nil {
		return 0, err
	}

	if attempts >= threshold {
		err = s.db.Model(&models.User{}).
			Where("id = ? AND failed_login_attempts >= ?", userID, threshold).
			Update("account_locked", true).Error
		if err != nil {
			return attempts, err
		}
	}
	return attempts, nil
}

// RecordSuccessfulLogin resets the lockout state. This is the only path
// that clears failed_login_attempts and account_locked.
func (s *Store) RecordSuccessfulLogin(userID string, now time.Time) error {
	return s.db.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"failed_login_attempts": 0,
			"account_locked":        false,
			"last_login_attempt":    now,
		}).Error
}

// ============================================================
// Session operations
// ============================================================

// UpsertSession replaces any prior session row for the user in one atomic
// statement, which is what invalidates the previous refresh token on login
// and on rotation.
func (s *Store) UpsertSession(session *models.Session) error {
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"refresh_token_hash", "expires_at", "user_agent", "ip_address", "updated_at",
		}),
	}).Create(session).Error
}

// GetSessionByTokenHash returns the unexpired session matching the hashed
// refresh token.
func (s *Store) GetSessionByTokenHash(tokenHash string, now time.Time) (*models.Session, error) {
	var session models.Session
	err := s.db.Where("refresh_token_hash = ? AND expires_at > ?", tokenHash, now).
		First(&session).Error
	if err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

// DeleteSessionByTokenHash removes the session holding the hashed refresh
// token. Deleting a nonexistent token is not an error (logout is idempotent).
func (s *Store) DeleteSessionByTokenHash(tokenHash string) error {
	return s.db.Where("refresh_token_hash = ?", tokenHash).
		Delete(&models.Session{}).Error
}

func (s *Store) DeleteExpiredSessions(now time.Time) (int64, error) {
	res := s.db.Where("expires_at < ?", now).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

// ============================================================
// Authorization code operations
// ============================================================

func (s *Store) CreateAuthorizationCode(code *models.AuthorizationCode) error {
	return s.db.Create(code).Error
}

// GetAuthorizationCodeByHash fetches a code row by the SHA-256 hash of the
// plaintext code. Validity checks (client, redirect URI, expiry, used state)
// belong to the service layer.
func (s *Store) GetAuthorizationCodeByHash(codeHash string) (*models.AuthorizationCode, error) {
	var code models.AuthorizationCode
	if err := s.db.Where("code_hash = ?", codeHash).First(&code).Error; err != nil {
		return nil, translate(err)
	}
	return &code, nil
}

// ConsumeAuthorizationCode marks the code used. The WHERE used_at IS NULL
// guard makes consumption atomic: of N concurrent exchanges exactly one
// updates a row, the rest get ErrCodeAlreadyUsed.
func (s *Store) ConsumeAuthorizationCode(id uint, now time.Time) error {
	res := s.db.Model(&models.AuthorizationCode{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCodeAlreadyUsed
	}
	return nil
}

func (s *Store) DeleteExpiredCodes(now time.Time) (int64, error) {
	res := s.db.Where("expires_at < ?", now).Delete(&models.AuthorizationCode{})
	return res.RowsAffected, res.Error
}

// ============================================================
// OAuth token operations
// ============================================================

func (s *Store) CreateOAuthToken(token *models.OAuthToken) error {
	return s.db.Create(token).Error
}

func (s *Store) ListOAuthTokensByUserID(userID string) ([]models.OAuthToken, error) {
	var tokens []models.OAuthToken
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&tokens).Error
	return tokens, err
}

// DeleteOAuthTokenByHash deletes one token by value, scoped to its owner so
// a user can never revoke another user's token. Returns ErrNotFound when no
// row matched.
func (s *Store) DeleteOAuthTokenByHash(userID, tokenHash string) error {
	res := s.db.Where("user_id = ? AND token_hash = ?", userID, tokenHash).
		Delete(&models.OAuthToken{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// OAuthTokenActive reports whether a live oauth_tokens row backs the hash.
// Revocation deletes the row while the JWT stays verifiable until expiry,
// so bearer auth consults this before accepting an OAuth token.
func (s *Store) OAuthTokenActive(tokenHash string, now time.Time) (bool, error) {
	var count int64
	err := s.db.Model(&models.OAuthToken{}).
		Where("token_hash = ? AND expires_at > ?", tokenHash, now).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) DeleteExpiredOAuthTokens(now time.Time) (int64, error) {
	res := s.db.Where("expires_at < ?", now).Delete(&models.OAuthToken{})
	return res.RowsAffected, res.Error
}

// ============================================================
// Infrastructure
// ============================================================

// Health checks the database connection
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DB returns the underlying GORM database connection (for transactions)
func (s *Store) DB() *gorm.DB {
	return s.db
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
