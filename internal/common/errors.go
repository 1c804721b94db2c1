// Package common defines shared sentinel errors used across the
// authentication service layers. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyRegistered  = errors.New("user already registered")
	ErrIdentityMismatch   = errors.New("identity mismatch")
	ErrStoreUnavailable   = errors.New("store unavailable")

	// Token lifecycle errors.
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenNotYetValid = errors.New("token not yet valid")

	// Auth errors (invalid or malformed token).
	ErrTokenMalformed   = errors.New("token malformed")
	ErrInvalidSignature = errors.New("invalid token signature")
)
