// Package token inspects bearer tokens on the client side. Tokens are decoded
// without signature verification: the client has no verification keys and the
// backend remains the authority on validity. Decoding is only used to answer
// expiry questions locally, so a stale token is never presented to the API.
package token

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/fxsociety/go-session-client/internal/utils"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// DefaultExpiryBuffer is how early a token is considered expired, so a
// request never races the server-side expiry of an about-to-expire token.
const DefaultExpiryBuffer = 60 * time.Second

// Claims holds the decoded payload of a bearer token. All claim fields are
// optional; absence of Exp means the token fails closed as already expired.
type Claims struct {
	Exp   *int64   // Expiration (seconds since epoch)
	Iat   *int64   // Issued at time
	Sub   *string  // Subject identifier
	Email string   // Email, if the backend embeds one
	Roles []string // Roles assigned to the user
}

// Decode parses the claims payload of a bearer token without verifying the
// signature. It returns nil for any malformed input (missing segments, bad
// encoding, non-JSON payload) and never panics; corrupted or truncated
// tokens are a normal, expected case.
func Decode(rawToken string) *Claims {
	if strings.TrimSpace(rawToken) == "" {
		return nil
	}

	unverifiedToken, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil
	}

	mapClaims, ok := unverifiedToken.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil
	}

	claims := &Claims{}

	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.Exp = utils.Ptr(int64(exp))
	}
	if iat, ok := mapClaims["iat"].(float64); ok {
		claims.Iat = utils.Ptr(int64(iat))
	}
	if sub, ok := mapClaims["sub"].(string); ok {
		claims.Sub = utils.Ptr(sub)
	}
	if email, ok := mapClaims["email"].(string); ok {
		claims.Email = email
	}
	if claimRoles, ok := mapClaims["roles"].([]any); ok {
		claims.Roles = utils.ToStringSlice(claimRoles)
	}

	return claims
}

// IsExpired reports whether rawToken should be treated as expired: true when
// the claims cannot be decoded, when no expiration claim is present, or when
// now >= exp - buffer. An un-expiring token is not a supported shape.
func IsExpired(rawToken string, buffer time.Duration) bool {
	claims := Decode(rawToken)
	if claims == nil || claims.Exp == nil {
		return true
	}
	expiresAt := time.Unix(*claims.Exp, 0)
	return !NowTimeFunc().Before(expiresAt.Add(-buffer))
}

// ExpiresIn returns the time remaining until rawToken's hard expiry, or zero
// when the claims cannot be decoded or the token has already expired.
func ExpiresIn(rawToken string) time.Duration {
	claims := Decode(rawToken)
	if claims == nil || claims.Exp == nil {
		return 0
	}
	remaining := time.Unix(*claims.Exp, 0).Sub(NowTimeFunc())
	if remaining < 0 {
		return 0
	}
	return remaining
}
