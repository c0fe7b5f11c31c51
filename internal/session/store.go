// Package session maps opaque bearer tokens to user identities. Tokens are
// server-side state: logging out (or losing the store) kills them, which is
// the point — revocation has to be immediate.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// ErrInvalidToken is returned by Resolve for unknown or expired tokens.
var ErrInvalidToken = errors.New("invalid session token")

// Store is the session table. Invalidate is idempotent: invalidating an
// unknown token is a no-op so logout can never fail.
type Store interface {
	Create(ctx context.Context, userID int) (string, error)
	Resolve(ctx context.Context, token string) (int, error)
	Invalidate(ctx context.Context, token string) error
}

// NewToken returns a fresh unguessable bearer token (32 bytes of entropy,
// base64url without padding).
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
