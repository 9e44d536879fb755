// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/authbridge/authbridge/pkg/attributes"
	"github.com/authbridge/authbridge/pkg/logger"
)

// linkedinVariant handles LinkedIn's v2 API. Names come back as locale-keyed
// maps, so a single display value is promoted after flattening; the email
// address lives behind a separate projection endpoint gated on the
// r_emailaddress scope.
type linkedinVariant struct{}

func (*linkedinVariant) Name() string { return "linkedin" }
func (*linkedinVariant) OIDC() bool   { return false }

func (*linkedinVariant) AuthorizeParams(*Engine, FlowState) map[string]string { return nil }

func (*linkedinVariant) ResourceOwner(ctx context.Context, e *Engine, tok *Token) (map[string]any, error) {
	return e.fetchProfile(ctx, e.cfg.UserinfoEndpoint, tok)
}

func (*linkedinVariant) PostProcess(ctx context.Context, e *Engine, tok *Token, profile map[string]any, attrs attributes.Set) error {
	if name := localizedValue(profile, "firstName"); name != "" {
		attrs[e.cfg.AttributePrefix+"firstName"] = []string{name}
	}
	if name := localizedValue(profile, "lastName"); name != "" {
		attrs[e.cfg.AttributePrefix+"lastName"] = []string{name}
	}

	if e.cfg.EmailLookupEndpoint == "" || !e.cfg.hasScope("r_emailaddress") {
		return nil
	}

	raw, err := e.authenticatedGet(ctx, e.cfg.EmailLookupEndpoint, tok)
	if err != nil {
		logger.Warnw("LinkedIn email lookup failed", "source", e.cfg.SourceID, "error", err)
		return nil
	}

	if email := gjson.GetBytes(raw, "elements.0.handle~.emailAddress").String(); email != "" {
		attrs[e.cfg.AttributePrefix+"emailAddress"] = []string{email}
	}
	return nil
}

// localizedValue unwraps LinkedIn's {"localized": {"en_US": "..."}} shape.
// Locale keys are visited in sorted order so the promoted value is stable.
func localizedValue(profile map[string]any, field string) string {
	outer, _ := profile[field].(map[string]any)
	localized, _ := outer["localized"].(map[string]any)
	if len(localized) == 0 {
		return ""
	}

	locales := make([]string, 0, len(localized))
	for locale := range localized {
		locales = append(locales, locale)
	}
	sort.Strings(locales)

	for _, locale := range locales {
		if s, ok := localized[locale].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
