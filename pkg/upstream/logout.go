// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"net/url"

	"github.com/authbridge/authbridge/pkg/logger"
	"github.com/authbridge/authbridge/pkg/state"
)

// Logout starts RP-initiated logout at the provider's end-session endpoint.
// It returns a nil redirect (and nil error) when there is nothing to do: the
// provider initiated the logout itself, the provider advertises no
// end-session endpoint, or no ID token survived from the login. Each no-op
// case is logged so operators can tell why no upstream logout happened.
func (e *Engine) Logout(ctx context.Context, st FlowState) (*Redirect, error) {
	if stateBool(st, KeyLogoutIdPInitiated) {
		logger.Debugw("skipping upstream logout: provider initiated it", "source", e.cfg.SourceID)
		return nil, nil
	}

	idToken := stateString(st, KeyIDToken)
	if idToken == "" {
		logger.Debugw("skipping upstream logout: no ID token in flow state", "source", e.cfg.SourceID)
		return nil, nil
	}

	endSession, err := e.endSessionEndpoint(ctx)
	if err != nil {
		return nil, sourceErr(e.cfg.SourceID, err)
	}
	if endSession == "" {
		logger.Debugw("skipping upstream logout: provider has no end_session_endpoint", "source", e.cfg.SourceID)
		return nil, nil
	}

	id, err := e.store.Save(ctx, state.StageLogout, FlowState{KeySourceID: e.cfg.SourceID})
	if err != nil {
		return nil, sourceErr(e.cfg.SourceID, err)
	}

	params := url.Values{}
	params.Set("id_token_hint", idToken)
	params.Set("state", logoutStatePrefix+id)
	if e.cfg.PostLogoutRedirectURI != "" {
		params.Set("post_logout_redirect_uri", e.cfg.PostLogoutRedirectURI)
	}

	logger.Infow("redirecting to identity provider for logout", "source", e.cfg.SourceID, "state_id", id)
	return &Redirect{URL: joinQuery(endSession, params), StateID: id}, nil
}

// endSessionEndpoint resolves the provider's end-session endpoint from the
// discovery document. Providers configured without discovery never advertise
// one.
func (e *Engine) endSessionEndpoint(ctx context.Context) (string, error) {
	if e.resolver == nil {
		return "", nil
	}
	doc, err := e.resolver.Resolve(ctx)
	if err != nil {
		return "", err
	}
	return doc.EndSessionEndpoint, nil
}
