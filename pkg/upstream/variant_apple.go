// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"

	"github.com/authbridge/authbridge/pkg/attributes"
)

// appleVariant handles Sign in with Apple. Apple has no userinfo endpoint:
// the profile is the ID token's claims, decoded without signature
// verification because the token arrives over the server-to-server TLS
// channel of the code exchange. When name or email scopes are requested Apple
// demands response_mode=form_post on the authorization request.
type appleVariant struct{}

func (*appleVariant) Name() string { return "apple" }
func (*appleVariant) OIDC() bool   { return false }

func (*appleVariant) AuthorizeParams(e *Engine, _ FlowState) map[string]string {
	if e.cfg.hasScope("name") || e.cfg.hasScope("email") {
		return map[string]string{"response_mode": "form_post"}
	}
	return nil
}

func (*appleVariant) ResourceOwner(_ context.Context, _ *Engine, tok *Token) (map[string]any, error) {
	if tok.IDToken == "" {
		return nil, newTokenValidationError("token response carries no id_token", nil)
	}
	claims, err := decodeJWTPayload(tok.IDToken)
	if err != nil {
		return nil, newTokenValidationError("undecodable id_token", err)
	}
	tok.Claims = claims
	return claims, nil
}

func (*appleVariant) PostProcess(context.Context, *Engine, *Token, map[string]any, attributes.Set) error {
	return nil
}
