// Package common defines shared constants and sentinel errors used across
// FinSync components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Transport-level errors.
	ErrConnection    = errors.New("connection error")
	ErrTaskCancelled = errors.New("task cancelled")
	ErrSession       = errors.New("no transport session available")

	// Auth errors. Both are terminal and bypass retry.
	ErrAccessRevoked        = errors.New("access revoked")
	ErrIncorrectCredentials = errors.New("incorrect credentials")

	// Cache / repository errors.
	ErrNoCache  = errors.New("no cache")
	ErrNotFound = errors.New("not found")
)
