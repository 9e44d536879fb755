// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"strings"

	"github.com/authbridge/authbridge/pkg/attributes"
)

// oidcVariant is the standards-track OIDC flow: endpoints from discovery, a
// verified ID token required, userinfo as the profile source. Host-side
// authentication hints map onto the prompt parameter.
type oidcVariant struct{}

func (*oidcVariant) Name() string { return "oidc" }
func (*oidcVariant) OIDC() bool   { return true }

func (*oidcVariant) AuthorizeParams(_ *Engine, st FlowState) map[string]string {
	params := map[string]string{}

	// Forced re-authentication wins over passive probing when a host sets
	// both.
	if stateBool(st, KeyForceAuthn) {
		params["prompt"] = "login"
	} else if stateBool(st, KeyIsPassive) {
		params["prompt"] = "none"
	}

	for key, value := range st {
		hint, ok := strings.CutPrefix(key, AuthorizeHintPrefix)
		if !ok || hint == "" {
			continue
		}
		if s, ok := value.(string); ok && s != "" {
			params[hint] = s
		}
	}
	return params
}

func (*oidcVariant) ResourceOwner(ctx context.Context, e *Engine, tok *Token) (map[string]any, error) {
	return e.fetchProfile(ctx, e.cfg.UserinfoEndpoint, tok)
}

func (*oidcVariant) PostProcess(context.Context, *Engine, *Token, map[string]any, attributes.Set) error {
	return nil
}
