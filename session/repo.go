package session

import (
	"context"

	"github.com/fxsociety/go-session-client/users"
)

// Keys under which the Manager persists the credential and its identity hint.
const (
	TokenKey     = "auth_token"
	EmailHintKey = "user_email"
)

// Store defines the interface for the durable key-value slot that carries the
// credential across restarts. The Manager is its sole writer; the API
// transport only reads it to attach the token to outgoing requests.
type Store interface {
	// Get retrieves the value for a key, returning "" when the key is absent
	Get(key string) (string, error)

	// Set writes the value for a key, replacing any previous value
	Set(key, value string) error

	// Delete removes a key; deleting an absent key is not an error
	Delete(key string) error
}

// Transport defines the backend API surface the Manager consumes.
type Transport interface {
	// FetchCurrentUser resolves the profile for a bearer token. It must
	// return an error, never a nil profile, when the token is rejected.
	FetchCurrentUser(ctx context.Context, token string) (*users.User, error)

	// OnAuthError registers fn to run whenever any authenticated request in
	// the application is rejected as unauthorized. The returned unsubscribe
	// function is idempotent.
	OnAuthError(fn func()) (unsubscribe func())
}
