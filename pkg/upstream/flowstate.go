// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

// Well-known flow-state keys. FlowState itself is an opaque map the host
// persists between the redirect-out and the callback; these are the keys
// this module reads and writes.
const (
	// KeySourceID carries the authentication-source identifier. It is
	// injected on every Save; without it the callback cannot resume.
	KeySourceID = "authbridge:AuthID"

	// KeyIDToken is the raw ID token persisted for RP-initiated logout.
	KeyIDToken = "authbridge:IDToken"

	// KeyLogoutIdPInitiated flags a logout that was already triggered by the
	// identity provider; Logout becomes a no-op then.
	KeyLogoutIdPInitiated = "authbridge:LogoutIdPInitiated"

	// KeyForceAuthn and KeyIsPassive are host-side hints OIDC variants turn
	// into prompt=login / prompt=none.
	KeyForceAuthn = "ForceAuthn"
	KeyIsPassive  = "isPassive"

	// KeyPKCEKey stores the lookup key of the PKCE code verifier, so the
	// callback half of the flow can find it again.
	KeyPKCEKey = "authbridge:PKCEKey"

	// AuthorizeHintPrefix marks caller-supplied state keys that are forwarded
	// to the authorization request with the prefix stripped.
	AuthorizeHintPrefix = "authbridge:authorize:"
)

// FlowState is the opaque, serializable key->value map carrying
// cross-request continuity data for one authentication attempt.
type FlowState = map[string]any

// stateString reads a string value from flow state, tolerating absence.
func stateString(st FlowState, key string) string {
	if st == nil {
		return ""
	}
	if v, ok := st[key].(string); ok {
		return v
	}
	return ""
}

// stateBool reads a boolean value from flow state, tolerating absence and
// string-encoded booleans (hosts serialize state through formats that may
// not preserve types).
func stateBool(st FlowState, key string) bool {
	if st == nil {
		return false
	}
	switch v := st[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	default:
		return false
	}
}
