// Package users defines the profile entity returned by the storefront API.
package users

import "time"

// User is the profile snapshot fetched from the backend after a token is
// accepted. It is a best-effort enrichment of the session: the token, not the
// profile, is the authority on whether a credential exists.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Placeholder synthesizes a minimal profile around a known email address.
// Used when a fresh login succeeds but the follow-up profile fetch fails, so
// profile-gated surfaces do not bounce a just-authenticated user.
func Placeholder(email string) *User {
	return &User{
		ID:       0,
		Email:    email,
		IsActive: true,
	}
}
