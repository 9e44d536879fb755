// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/authbridge/authbridge/pkg/attributes"
	"github.com/authbridge/authbridge/pkg/logger"
)

// orcidVariant handles ORCID. The ID token's sub claim is the ORCID iD, which
// is also the path segment of the public record and email APIs; the
// configured endpoints carry a %s placeholder for it. Record and email
// lookups enrich the profile but never fail the authentication.
type orcidVariant struct{}

func (*orcidVariant) Name() string { return "orcid" }
func (*orcidVariant) OIDC() bool   { return true }

func (*orcidVariant) AuthorizeParams(*Engine, FlowState) map[string]string { return nil }

func (*orcidVariant) ResourceOwner(ctx context.Context, e *Engine, tok *Token) (map[string]any, error) {
	orcidID, _ := tok.Claims["sub"].(string)
	if orcidID == "" {
		return nil, newTokenValidationError("ID token carries no sub claim", nil)
	}

	profile := make(map[string]any, len(tok.Claims)+1)
	maps.Copy(profile, tok.Claims)
	profile["orcid"] = orcidID

	if e.cfg.UserinfoEndpoint == "" {
		return profile, nil
	}

	raw, err := e.authenticatedGet(ctx, expandEndpoint(e.cfg.UserinfoEndpoint, orcidID), tok)
	if err != nil {
		logger.Warnw("ORCID record lookup failed", "source", e.cfg.SourceID, "orcid", orcidID, "error", err)
		return profile, nil
	}

	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		logger.Warnw("ORCID record is not a JSON object", "source", e.cfg.SourceID, "orcid", orcidID, "error", err)
		return profile, nil
	}
	maps.Copy(profile, record)
	return profile, nil
}

func (*orcidVariant) PostProcess(ctx context.Context, e *Engine, tok *Token, _ map[string]any, attrs attributes.Set) error {
	if e.cfg.EmailLookupEndpoint == "" {
		return nil
	}
	orcidID, _ := tok.Claims["sub"].(string)

	raw, err := e.authenticatedGet(ctx, expandEndpoint(e.cfg.EmailLookupEndpoint, orcidID), tok)
	if err != nil {
		logger.Warnw("ORCID email lookup failed", "source", e.cfg.SourceID, "orcid", orcidID, "error", err)
		return nil
	}

	if email := pickOrcidEmail(raw); email != "" {
		attrs[e.cfg.AttributePrefix+"email"] = []string{email}
	}
	return nil
}

// pickOrcidEmail selects from the record's email list: the first address
// marked primary wins; with no primary the last listed address is used.
func pickOrcidEmail(raw []byte) string {
	var picked string
	gjson.GetBytes(raw, "email").ForEach(func(_, entry gjson.Result) bool {
		addr := entry.Get("email").String()
		if addr == "" {
			return true
		}
		picked = addr
		return !entry.Get("primary").Bool()
	})
	return picked
}

// expandEndpoint substitutes the resource-owner id into a %s-patterned
// endpoint URL. Endpoints without the placeholder pass through unchanged.
func expandEndpoint(endpoint, id string) string {
	if !strings.Contains(endpoint, "%s") {
		return endpoint
	}
	return fmt.Sprintf(endpoint, url.PathEscape(id))
}
