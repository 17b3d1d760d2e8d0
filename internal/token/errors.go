package token

import "errors"

var (
	// ErrInvalidToken covers malformed tokens, wrong signatures, and wrong
	// token types.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned when the token signature is valid but the
	// exp claim is in the past.
	ErrExpiredToken = errors.New("token expired")

	// ErrTokenGeneration indicates signing failed.
	ErrTokenGeneration = errors.New("failed to generate token")
)
