// Package state defines the cross-request flow-state store the host provides
// for correlating the redirect-out and callback halves of an authentication
// attempt. The bundled in-memory implementation exists for tests and the CLI;
// production hosts plug in their own session-backed store.
package state

import (
	"context"
	"errors"
)

// Stages separate login and logout continuations so a callback can never be
// resumed against the wrong flow.
const (
	// StageLogin is the stage for login flow state, persisted between the
	// authorization redirect and the code callback.
	StageLogin = "oauth2:login"

	// StageLogout is the stage for RP-initiated logout state.
	StageLogout = "oauth2:logout"
)

// ErrNoState is returned when state is absent, expired, or stored under a
// different stage than expected. Callers surface this as a bad-request
// condition since it usually indicates a replayed or forged callback.
var ErrNoState = errors.New("no state found")

// Store persists opaque flow state between the two inbound requests of an
// authentication attempt.
type Store interface {
	// Save persists st under the given stage and returns the opaque id the
	// callback will present.
	Save(ctx context.Context, stage string, st map[string]any) (string, error)

	// Load retrieves the state saved under id, failing with ErrNoState if it
	// is absent or was saved under a different stage. The state is consumed:
	// a second Load of the same id fails.
	Load(ctx context.Context, id, stage string) (map[string]any, error)
}

// PKCEStore persists the PKCE code verifier in the end user's browser
// session between the authorization request and the token exchange.
type PKCEStore interface {
	// Save stores value under key.
	Save(ctx context.Context, key, value string) error

	// Load returns the value stored under key, or "" and false when absent.
	Load(ctx context.Context, key string) (string, bool, error)
}
