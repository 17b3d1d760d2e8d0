package models

import "time"

// AuthorizationCode stores OAuth 2.0 authorization codes (RFC 6749).
// Codes are short-lived (default 10 minutes) and single-use.
type AuthorizationCode struct {
	ID uint `gorm:"primaryKey;autoIncrement"`

	// Code storage: SHA256 hash for security, prefix for log correlation
	CodeHash   string `gorm:"uniqueIndex;not null"`
	CodePrefix string `gorm:"index;not null;size:8"`

	UserID      string `gorm:"not null;index"`
	ClientID    string `gorm:"not null;index"`
	RedirectURI string `gorm:"not null"`
	Scope       string `gorm:"not null"` // space-delimited
	State       string

	ExpiresAt time.Time
	UsedAt    *time.Time // Set exactly once upon exchange; prevents replay
	CreatedAt time.Time
}

func (a *AuthorizationCode) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

func (a *AuthorizationCode) IsUsed() bool {
	return a.UsedAt != nil
}

func (AuthorizationCode) TableName() string {
	return "oauth_codes"
}
