// Package token persists the storefront's bearer token and last-known user
// snapshot under fixed storage keys, one record per device slot.
//
// The token itself is opaque to this client, which holds no verification
// key. The one readable part is the embedded expiry claim, which
// [ParseExpiry] extracts without validating the signature. Everything else
// about the token is the auth service's business.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNotFound is returned by Load when no record exists for the device.
	ErrNotFound = errors.New("token record not found")
	// ErrDesynced is returned by Load when token and user were not persisted
	// together. Callers are expected to clear the record and re-authenticate.
	ErrDesynced = errors.New("token record desynchronized")
	// ErrCorrupt is returned by Load when the stored blob cannot be decoded.
	ErrCorrupt = errors.New("token record corrupt")
	// ErrUnavailable wraps backend failures of the Redis-backed store.
	ErrUnavailable = errors.New("token store unavailable")
	// ErrTokenMalformed is returned by ParseExpiry for an undecodable token.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrNoExpiry is returned by ParseExpiry when the token carries no exp
	// claim.
	ErrNoExpiry = errors.New("token has no expiry claim")
)

// User is the persisted user snapshot. Field names match the serialized JSON
// the storefront has always written, including the legacy top-level userId
// mirror on [Record].
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

// Record is the persisted unit: token and user are written together. UserID
// mirrors User.ID for consumers that read only the key; older records may
// lack it, and Load repairs that from the user snapshot.
type Record struct {
	Token  string `json:"token"`
	User   *User  `json:"user,omitempty"`
	UserID string `json:"userId,omitempty"`
}

// Desynced reports whether the record violates the written-together
// invariant: a token without a user, or a user without a token.
func (r *Record) Desynced() bool {
	if r == nil {
		return false
	}
	return (r.Token == "") != (r.User == nil)
}

// ParseExpiry extracts the exp claim from an opaque bearer token without
// verifying its signature.
func ParseExpiry(tokenStr string) (time.Time, error) {
	if tokenStr == "" {
		return time.Time{}, ErrTokenMalformed
	}

	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, &claims); err != nil {
		return time.Time{}, ErrTokenMalformed
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}

	return claims.ExpiresAt.Time, nil
}
