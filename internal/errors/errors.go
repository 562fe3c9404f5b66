package errors

import "errors"

// Common error types for the session client
var (
	// Transport errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrNoToken      = errors.New("no token available")
)
