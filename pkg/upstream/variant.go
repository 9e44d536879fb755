// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"sort"

	"github.com/authbridge/authbridge/pkg/attributes"
)

// Variant captures the per-IdP behavioral overrides layered on the base
// flow: extra authorization parameters, resource-owner fetching, and
// post-processing of the normalized attributes. Variants are selected by
// the configuration-level provider name through an explicit registry, never
// by runtime type loading.
type Variant interface {
	// Name is the registry name the variant was selected under.
	Name() string

	// OIDC reports whether the variant requires a verified ID token; for
	// OIDC variants a missing or invalid ID token is a hard failure.
	OIDC() bool

	// AuthorizeParams contributes flow-specific authorization request
	// parameters derived from configuration and caller state.
	AuthorizeParams(e *Engine, st FlowState) map[string]string

	// ResourceOwner obtains the resource-owner profile.
	ResourceOwner(ctx context.Context, e *Engine, tok *Token) (map[string]any, error)

	// PostProcess runs after normalization and may merge in ID-token-derived
	// attributes or perform secondary lookups. Secondary-lookup failures are
	// swallowed inside the hook; a returned error is terminal.
	PostProcess(ctx context.Context, e *Engine, tok *Token, profile map[string]any, attrs attributes.Set) error
}

// VariantFactory constructs a variant for one authentication attempt.
type VariantFactory func() Variant

var variantRegistry = map[string]VariantFactory{
	"oauth2":    func() Variant { return &oauth2Variant{} },
	"oidc":      func() Variant { return &oidcVariant{} },
	"apple":     func() Variant { return &appleVariant{} },
	"orcid":     func() Variant { return &orcidVariant{} },
	"linkedin":  func() Variant { return &linkedinVariant{} },
	"microsoft": func() Variant { return &microsoftVariant{} },
	"bitbucket": func() Variant { return &bitbucketVariant{} },
}

func variantRegistered(name string) bool {
	_, ok := variantRegistry[name]
	return ok
}

func variantNames() []string {
	names := make([]string, 0, len(variantRegistry))
	for name := range variantRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newVariant(name string) Variant {
	return variantRegistry[name]()
}

// oauth2Variant is the plain OAuth2 base behavior: no extra authorization
// parameters, bearer GET against the configured userinfo endpoint, no
// post-processing.
type oauth2Variant struct{}

func (*oauth2Variant) Name() string { return "oauth2" }
func (*oauth2Variant) OIDC() bool   { return false }

func (*oauth2Variant) AuthorizeParams(*Engine, FlowState) map[string]string { return nil }

func (*oauth2Variant) ResourceOwner(ctx context.Context, e *Engine, tok *Token) (map[string]any, error) {
	return e.fetchProfile(ctx, e.cfg.UserinfoEndpoint, tok)
}

func (*oauth2Variant) PostProcess(context.Context, *Engine, *Token, map[string]any, attributes.Set) error {
	return nil
}
