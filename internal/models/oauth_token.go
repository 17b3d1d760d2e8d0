package models

import "time"

// OAuthToken is a long-lived access token issued through the authorization
// code grant. A user may hold several at once, one per authorized client
// session. Revocation deletes the row; the JWT itself stays verifiable until
// expiry, so bearer auth checks the row is still present before accepting
// an OAuth token.
type OAuthToken struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	ClientID  string `gorm:"not null;index"`
	TokenHash string `gorm:"uniqueIndex;not null"` // SHA256(plain token)
	Scopes    string `gorm:"not null"`             // space-delimited
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (t *OAuthToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

func (OAuthToken) TableName() string {
	return "oauth_tokens"
}
