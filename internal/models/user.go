package models

import (
	"time"
)

type User struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"` // stored lowercased
	PasswordHash string `gorm:"not null"`             // bcrypt; embeds its per-user salt

	// Brute-force lockout state. The locked flag is never proactively
	// cleared when the window elapses; IsLocked re-evaluates the window
	// on every login attempt.
	AccountLocked       bool       `gorm:"not null;default:false"`
	FailedLoginAttempts int        `gorm:"not null;default:0"`
	LastLoginAttempt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLocked reports whether the account is currently locked. The time check
// is authoritative: a stale locked flag outside the window does not deny
// the attempt.
func (u *User) IsLocked(window time.Duration, now time.Time) bool {
	if !u.AccountLocked {
		return false
	}
	if u.LastLoginAttempt == nil {
		return true
	}
	return now.Before(u.LastLoginAttempt.Add(window))
}
