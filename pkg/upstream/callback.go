// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/authbridge/authbridge/pkg/logger"
	"github.com/authbridge/authbridge/pkg/state"
)

// Callback is the interpreted result of an inbound provider redirect.
type Callback struct {
	// StateID is the flow-state id extracted from the state parameter, ready
	// to be passed to the state store's Load.
	StateID string

	// Stage is the store stage the state was issued for (login or logout).
	Stage string

	// Code is the authorization code. Empty for logout callbacks.
	Code string
}

// ParseCallback interprets the query parameters of an inbound redirect from
// the identity provider. It returns ErrUserAborted (wrapped, with the
// provider's code attached) when the user declined consent, a ProviderError
// for other provider-reported errors, and state.ErrNoState when the state
// parameter is missing or was not issued by this module.
func ParseCallback(query url.Values) (*Callback, error) {
	stateID, stage, err := splitStateToken(query.Get("state"))
	if err != nil {
		return nil, err
	}

	if errCode := query.Get("error"); errCode != "" {
		description := query.Get("error_description")
		if consentDeniedCodes[errCode] {
			logger.Infow("user declined authorization", "code", errCode, "state_id", stateID)
			return nil, fmt.Errorf("%w: %s", ErrUserAborted, errCode)
		}
		return nil, &ProviderError{Code: errCode, Description: description}
	}

	cb := &Callback{StateID: stateID, Stage: stage}
	if stage == state.StageLogin {
		cb.Code = query.Get("code")
		if cb.Code == "" {
			return nil, fmt.Errorf("callback carries neither code nor error")
		}
	}
	return cb, nil
}

// splitStateToken validates the issued-by-us marker and maps it back to the
// store stage. Unrecognized state means a forged, truncated or replayed
// callback.
func splitStateToken(token string) (stateID, stage string, err error) {
	if id, ok := strings.CutPrefix(token, loginStatePrefix); ok && id != "" {
		return id, state.StageLogin, nil
	}
	if id, ok := strings.CutPrefix(token, logoutStatePrefix); ok && id != "" {
		return id, state.StageLogout, nil
	}
	return "", "", fmt.Errorf("%w: unrecognized state parameter", state.ErrNoState)
}

// ConsentRedirect returns the configured consent-declined page for an
// ErrUserAborted outcome, or nil when none is configured and the error should
// surface to the host.
func (e *Engine) ConsentRedirect() *Redirect {
	if e.cfg.ConsentErrorPage == "" {
		return nil
	}
	return &Redirect{URL: e.cfg.ConsentErrorPage}
}
