// Package crypto implements server-side password hashing, password strength
// validation, and opaque token generation.
package crypto

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"runtime"
	"unicode"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// MinBcryptCost is the lowest cost factor the service accepts.
const MinBcryptCost = 12

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// ErrWeakPassword is returned by ValidatePassword when the plaintext does
// not satisfy the strength policy.
var ErrWeakPassword = errors.New(
	"password must be at least 8 characters and contain uppercase, lowercase, digit, and symbol",
)

// Hasher wraps bcrypt with a bounded admission semaphore so that a burst of
// registrations or logins cannot monopolize every CPU with hashing work.
type Hasher struct {
	cost int
	sem  *semaphore.Weighted
}

func NewHasher(cost int) *Hasher {
	if cost < MinBcryptCost {
		cost = MinBcryptCost
	}
	return &Hasher{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
}

// Hash returns the bcrypt hash of password. bcrypt generates a random
// per-password salt and embeds it in the returned string.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether password matches the stored bcrypt hash.
// bcrypt's comparison is constant-time.
func (h *Hasher) Verify(ctx context.Context, password, hash string) bool {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.sem.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePassword enforces the registration strength policy: minimum
// length plus one character from each of the upper, lower, digit, and
// symbol classes.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSymbol {
		return ErrWeakPassword
	}
	return nil
}

// RandomToken returns n cryptographically secure random bytes, hex-encoded.
// Refresh tokens and authorization codes use n >= 32 (256-bit entropy).
func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// SHA256Hex returns the SHA-256 hash of s as a lowercase hex string.
// Intended for server-side storage of high-entropy values (refresh tokens,
// authorization codes, OAuth tokens); no salt is required for such inputs.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
