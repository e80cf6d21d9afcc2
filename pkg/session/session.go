// Package session inspects bearer tokens issued by the key server. Tokens are
// decoded without signature verification: the server remains the authority on
// validity, the client only wants to know when a stored session is certainly
// dead so it can skip restoring it.
package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresAt returns the expiry claim of the token, if the token parses as a
// JWT and carries one.
func ExpiresAt(token string) (time.Time, bool) {
	parser := jwt.NewParser()

	var claims jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Expired reports whether the token carries an expiry claim in the past.
// Opaque tokens and tokens without an exp claim are never considered expired
// client-side.
func Expired(token string, now time.Time) bool {
	exp, ok := ExpiresAt(token)
	if !ok {
		return false
	}
	return exp.Before(now)
}
