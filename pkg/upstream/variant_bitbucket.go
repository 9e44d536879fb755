// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/authbridge/authbridge/pkg/attributes"
	"github.com/authbridge/authbridge/pkg/logger"
)

// bitbucketVariant handles Bitbucket Cloud. The user document carries no
// email address; when the email scope was requested a second call to the
// emails collection picks the primary confirmed address.
type bitbucketVariant struct{}

func (*bitbucketVariant) Name() string { return "bitbucket" }
func (*bitbucketVariant) OIDC() bool   { return false }

func (*bitbucketVariant) AuthorizeParams(*Engine, FlowState) map[string]string { return nil }

func (*bitbucketVariant) ResourceOwner(ctx context.Context, e *Engine, tok *Token) (map[string]any, error) {
	return e.fetchProfile(ctx, e.cfg.UserinfoEndpoint, tok)
}

func (*bitbucketVariant) PostProcess(ctx context.Context, e *Engine, tok *Token, _ map[string]any, attrs attributes.Set) error {
	if e.cfg.EmailLookupEndpoint == "" || !e.cfg.hasScope("email") {
		return nil
	}

	raw, err := e.authenticatedGet(ctx, e.cfg.EmailLookupEndpoint, tok)
	if err != nil {
		logger.Warnw("Bitbucket email lookup failed", "source", e.cfg.SourceID, "error", err)
		return nil
	}

	if email := pickBitbucketEmail(raw); email != "" {
		attrs[e.cfg.AttributePrefix+"email"] = []string{email}
	}
	return nil
}

// pickBitbucketEmail selects the first primary entry of type "email" from the
// emails collection.
func pickBitbucketEmail(raw []byte) string {
	var picked string
	gjson.GetBytes(raw, "values").ForEach(func(_, entry gjson.Result) bool {
		if entry.Get("is_primary").Bool() && entry.Get("type").String() == "email" {
			picked = entry.Get("email").String()
			return false
		}
		return true
	})
	return picked
}
