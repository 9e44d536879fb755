// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authbridge/authbridge/pkg/state"
)

func TestParseCallbackLogin(t *testing.T) {
	t.Parallel()

	cb, err := ParseCallback(url.Values{
		"state": {loginStatePrefix + "abc-123"},
		"code":  {"theCode"},
	})
	require.NoError(t, err)
	assert.Equal(t, "abc-123", cb.StateID)
	assert.Equal(t, state.StageLogin, cb.Stage)
	assert.Equal(t, "theCode", cb.Code)
}

func TestParseCallbackLogout(t *testing.T) {
	t.Parallel()

	cb, err := ParseCallback(url.Values{
		"state": {logoutStatePrefix + "xyz-789"},
	})
	require.NoError(t, err)
	assert.Equal(t, "xyz-789", cb.StateID)
	assert.Equal(t, state.StageLogout, cb.Stage)
	assert.Empty(t, cb.Code)
}

func TestParseCallbackUnrecognizedState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state string
	}{
		{"missing", ""},
		{"foreign", "somebody-elses-state"},
		{"bare login marker", loginStatePrefix},
		{"bare logout marker", logoutStatePrefix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseCallback(url.Values{"state": {tt.state}, "code": {"theCode"}})
			require.ErrorIs(t, err, state.ErrNoState)
		})
	}
}

func TestParseCallbackConsentDenied(t *testing.T) {
	t.Parallel()

	for code := range consentDeniedCodes {
		t.Run(code, func(t *testing.T) {
			t.Parallel()

			_, err := ParseCallback(url.Values{
				"state": {loginStatePrefix + "abc-123"},
				"error": {code},
			})
			require.ErrorIs(t, err, ErrUserAborted)
			assert.Contains(t, err.Error(), code)
		})
	}
}

func TestParseCallbackProviderError(t *testing.T) {
	t.Parallel()

	_, err := ParseCallback(url.Values{
		"state":             {loginStatePrefix + "abc-123"},
		"error":             {"temporarily_unavailable"},
		"error_description": {"try later"},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserAborted)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "temporarily_unavailable", provErr.Code)
	assert.Equal(t, "try later", provErr.Description)
}

func TestParseCallbackNoCodeNoError(t *testing.T) {
	t.Parallel()

	_, err := ParseCallback(url.Values{"state": {loginStatePrefix + "abc-123"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither code nor error")
}

func TestConsentRedirect(t *testing.T) {
	t.Parallel()

	stub := newProviderStub(t)
	cfg := stub.config()
	e := newStubEngine(t, cfg, state.NewMemoryStore(), WithHTTPClient(stub.srv.Client()))
	assert.Nil(t, e.ConsentRedirect())

	cfg.ConsentErrorPage = "https://sp.example.org/consent-declined"
	e = newStubEngine(t, cfg, state.NewMemoryStore(), WithHTTPClient(stub.srv.Client()))
	red := e.ConsentRedirect()
	require.NotNil(t, red)
	assert.Equal(t, "https://sp.example.org/consent-declined", red.URL)
}
