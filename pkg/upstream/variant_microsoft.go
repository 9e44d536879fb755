// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"

	"github.com/authbridge/authbridge/pkg/attributes"
	"github.com/authbridge/authbridge/pkg/logger"
)

// microsoftVariant handles Azure AD / Entra ID in hybrid fashion: the Graph
// /me document is the profile, and identity claims from the ID token are
// layered on top afterwards since Graph omits them for some account types.
// The ID token is decoded best-effort without verification; an undecodable
// one is logged, not fatal.
type microsoftVariant struct{}

// idTokenClaimsOfInterest are the ID token claims promoted into the
// attribute set, overriding any same-named Graph field.
var idTokenClaimsOfInterest = []string{"email", "name", "preferred_username"}

func (*microsoftVariant) Name() string { return "microsoft" }
func (*microsoftVariant) OIDC() bool   { return false }

func (*microsoftVariant) AuthorizeParams(*Engine, FlowState) map[string]string { return nil }

func (*microsoftVariant) ResourceOwner(ctx context.Context, e *Engine, tok *Token) (map[string]any, error) {
	return e.fetchProfile(ctx, e.cfg.UserinfoEndpoint, tok)
}

func (*microsoftVariant) PostProcess(_ context.Context, e *Engine, tok *Token, _ map[string]any, attrs attributes.Set) error {
	if tok.IDToken == "" {
		return nil
	}

	claims, err := decodeJWTPayload(tok.IDToken)
	if err != nil {
		logger.Warnw("undecodable id_token, continuing with Graph profile only",
			"source", e.cfg.SourceID, "error", err)
		return nil
	}
	tok.Claims = claims

	for _, claim := range idTokenClaimsOfInterest {
		if s, ok := claims[claim].(string); ok && s != "" {
			attrs[e.cfg.AttributePrefix+claim] = []string{s}
		}
	}
	return nil
}
