package models

import (
	"time"
)

// Session is the single active refresh session for a user. Issuing new
// tokens upserts on user_id, so a login or refresh on any device replaces
// the previous session and invalidates its refresh token.
type Session struct {
	UserID           string `gorm:"primaryKey"`
	RefreshTokenHash string `gorm:"uniqueIndex;not null"` // SHA256(plain token)
	ExpiresAt        time.Time
	UserAgent        string
	IPAddress        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
