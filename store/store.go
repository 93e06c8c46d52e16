package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no record exists for the requested key.
var ErrNotFound = errors.New("store: not found")

// Tokens is one OAuth credential pair for a (user, service) combination.
type Tokens struct {
	AccessToken  string `firestore:"access_token"`
	RefreshToken string `firestore:"refresh_token"`
}

// AuthState is the CSRF state persisted between the authorization redirect
// and the provider callback. It is keyed by a fixed per-provider key, so a
// new authorization attempt for the same provider overwrites the previous
// in-flight one.
type AuthState struct {
	State  string `firestore:"state"`
	UserID string `firestore:"user_id"`
}

// TokenStore persists OAuth credentials and in-flight authorization state.
type TokenStore interface {
	// SaveTokens stores the credential pair for (userID, service). Tokens for
	// other services under the same user are left untouched.
	SaveTokens(ctx context.Context, userID, service string, t Tokens) error

	// Tokens returns the credential pair for (userID, service), or
	// ErrNotFound when the user has never authorized that service.
	Tokens(ctx context.Context, userID, service string) (Tokens, error)

	// SaveAuthState stores the CSRF state under the given provider key,
	// replacing any previous value.
	SaveAuthState(ctx context.Context, key string, s AuthState) error

	// AuthState returns the stored CSRF state for the provider key, or
	// ErrNotFound when no authorization is in flight.
	AuthState(ctx context.Context, key string) (AuthState, error)
}
