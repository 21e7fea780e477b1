// Package common defines shared constants and sentinel errors used across
// the client and server layers of Anchored. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Crypto errors. Wrong key, corrupt ciphertext, and malformed field
	// records all surface as ErrDecryption.
	ErrDecryption = errors.New("decryption failed")

	// Service-level errors.
	ErrInternal          = errors.New("internal error")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUnavailable       = errors.New("backend unavailable")
	ErrInvalidResolution = errors.New("invalid resolution")

	// Validation errors (import files, request payloads).
	ErrValidation = errors.New("validation error")
)
