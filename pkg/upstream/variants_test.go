// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authbridge/authbridge/pkg/attributes"
	"github.com/authbridge/authbridge/pkg/state"
)

func TestVariantRegistry(t *testing.T) {
	t.Parallel()

	names := variantNames()
	assert.Equal(t, []string{"apple", "bitbucket", "linkedin", "microsoft", "oauth2", "oidc", "orcid"}, names)

	for _, name := range names {
		v := newVariant(name)
		require.NotNil(t, v)
		assert.Equal(t, name, v.Name())
	}
}

func TestOIDCVariantAuthorizeParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		st   FlowState
		want map[string]string
	}{
		{
			name: "no hints",
			st:   FlowState{},
			want: map[string]string{},
		},
		{
			name: "forced re-authentication",
			st:   FlowState{KeyForceAuthn: true},
			want: map[string]string{"prompt": "login"},
		},
		{
			name: "passive probe",
			st:   FlowState{KeyIsPassive: "true"},
			want: map[string]string{"prompt": "none"},
		},
		{
			name: "forced wins over passive",
			st:   FlowState{KeyForceAuthn: true, KeyIsPassive: true},
			want: map[string]string{"prompt": "login"},
		},
		{
			name: "namespaced hints forwarded stripped",
			st: FlowState{
				AuthorizeHintPrefix + "login_hint": "bob@example.org",
				AuthorizeHintPrefix + "ui_locales": "de",
				"unrelated":                        "ignored",
			},
			want: map[string]string{"login_hint": "bob@example.org", "ui_locales": "de"},
		},
		{
			name: "non-string hint ignored",
			st:   FlowState{AuthorizeHintPrefix + "max_age": 300},
			want: map[string]string{},
		},
	}

	v := &oidcVariant{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, v.AuthorizeParams(nil, tt.st))
		})
	}
}

func TestAppleAuthorizeParams(t *testing.T) {
	t.Parallel()

	v := &appleVariant{}

	withProfile := &Engine{cfg: Config{Scopes: []string{"name", "email"}}}
	assert.Equal(t, map[string]string{"response_mode": "form_post"}, v.AuthorizeParams(withProfile, nil))

	plain := &Engine{cfg: Config{Scopes: []string{"openid"}}}
	assert.Nil(t, v.AuthorizeParams(plain, nil))
}

func TestAppleFlow(t *testing.T) {
	t.Parallel()

	idToken := unsignedJWT(t, map[string]any{
		"sub":   "001234.fingerprint.5678",
		"email": "bob@privaterelay.appleid.com",
	})

	stub := newProviderStub(t)
	stub.mux.HandleFunc("/apple-token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-apple","id_token":"` + idToken + `"}`))
	})

	cfg := Config{
		SourceID:              "apple-login",
		Provider:              "apple",
		ClientID:              "client-1",
		ClientSecret:          "hush",
		RedirectURI:           "http://127.0.0.1/callback",
		Scopes:                []string{"name", "email"},
		AttributePrefix:       "apple.",
		AuthorizationEndpoint: stub.srv.URL + "/authorize",
		TokenEndpoint:         stub.srv.URL + "/apple-token",
	}
	e := newStubEngine(t, cfg, state.NewMemoryStore(), WithHTTPClient(stub.srv.Client()))

	attrs, err := e.FinalStep(context.Background(), FlowState{}, "theCode")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob@privaterelay.appleid.com"}, attrs["apple.email"])
	assert.Equal(t, []string{"001234.fingerprint.5678"}, attrs["apple.sub"])
}

func TestAppleMissingIDToken(t *testing.T) {
	t.Parallel()

	v := &appleVariant{}
	_, err := v.ResourceOwner(context.Background(), nil, &Token{AccessToken: "at"})
	require.Error(t, err)

	var valErr *TokenValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestExpandEndpoint(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"https://pub.orcid.org/v3.0/0000-0002-1825-0097/record",
		expandEndpoint("https://pub.orcid.org/v3.0/%s/record", "0000-0002-1825-0097"))
	assert.Equal(t,
		"https://api.example.org/me",
		expandEndpoint("https://api.example.org/me", "0000-0002-1825-0097"))
}

func TestOrcidResourceOwner(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3.0/0000-0002-1825-0097/record", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"person":{"name":{"given-names":{"value":"Josiah"}}}}`))
	}))
	t.Cleanup(srv.Close)

	e := &Engine{
		cfg: Config{
			SourceID:         "orcid-login",
			UserinfoEndpoint: srv.URL + "/v3.0/%s/record",
		},
		client: srv.Client(),
	}
	tok := &Token{
		AccessToken: "at",
		Claims:      map[string]any{"sub": "0000-0002-1825-0097"},
	}

	profile, err := (&orcidVariant{}).ResourceOwner(context.Background(), e, tok)
	require.NoError(t, err)
	assert.Equal(t, "0000-0002-1825-0097", profile["orcid"])
	assert.Contains(t, profile, "person")
}

func TestOrcidResourceOwnerLookupFailureTolerated(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "record locked", http.StatusConflict)
	}))
	t.Cleanup(srv.Close)

	e := &Engine{
		cfg:    Config{SourceID: "orcid-login", UserinfoEndpoint: srv.URL + "/v3.0/%s/record"},
		client: srv.Client(),
	}
	tok := &Token{AccessToken: "at", Claims: map[string]any{"sub": "0000-0002-1825-0097"}}

	profile, err := (&orcidVariant{}).ResourceOwner(context.Background(), e, tok)
	require.NoError(t, err)
	assert.Equal(t, "0000-0002-1825-0097", profile["orcid"])
}

func TestOrcidResourceOwnerNoSub(t *testing.T) {
	t.Parallel()

	tok := &Token{AccessToken: "at", Claims: map[string]any{}}
	_, err := (&orcidVariant{}).ResourceOwner(context.Background(), &Engine{}, tok)
	require.Error(t, err)
}

func TestPickOrcidEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "first primary wins",
			body: `{"email":[
				{"email":"old@example.org","primary":false},
				{"email":"main@example.org","primary":true},
				{"email":"other@example.org","primary":true}
			]}`,
			want: "main@example.org",
		},
		{
			name: "no primary takes last",
			body: `{"email":[
				{"email":"first@example.org","primary":false},
				{"email":"last@example.org","primary":false}
			]}`,
			want: "last@example.org",
		},
		{
			name: "empty list",
			body: `{"email":[]}`,
			want: "",
		},
		{
			name: "entries without address skipped",
			body: `{"email":[{"primary":true},{"email":"kept@example.org"}]}`,
			want: "kept@example.org",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, pickOrcidEmail([]byte(tt.body)))
		})
	}
}

func TestOrcidPostProcessEmail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3.0/0000-0002-1825-0097/email", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":[{"email":"main@example.org","primary":true}]}`))
	}))
	t.Cleanup(srv.Close)

	e := &Engine{
		cfg: Config{
			SourceID:            "orcid-login",
			AttributePrefix:     "orcid.",
			EmailLookupEndpoint: srv.URL + "/v3.0/%s/email",
		},
		client: srv.Client(),
	}
	tok := &Token{AccessToken: "at", Claims: map[string]any{"sub": "0000-0002-1825-0097"}}
	attrs := attributes.Set{}

	require.NoError(t, (&orcidVariant{}).PostProcess(context.Background(), e, tok, nil, attrs))
	assert.Equal(t, []string{"main@example.org"}, attrs["orcid.email"])
}

func TestLocalizedValue(t *testing.T) {
	t.Parallel()

	profile := map[string]any{
		"firstName": map[string]any{
			"localized": map[string]any{
				"en_US": "Robert",
				"de_DE": "Rupert",
			},
		},
	}

	// Locale keys visited in sorted order: de_DE before en_US.
	assert.Equal(t, "Rupert", localizedValue(profile, "firstName"))
	assert.Empty(t, localizedValue(profile, "lastName"))
	assert.Empty(t, localizedValue(map[string]any{"firstName": "plain"}, "firstName"))
}

func TestLinkedInPostProcess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"elements":[{"handle~":{"emailAddress":"bob@example.org"}}]}`))
	}))
	t.Cleanup(srv.Close)

	e := &Engine{
		cfg: Config{
			SourceID:            "li-login",
			AttributePrefix:     "linkedin.",
			Scopes:              []string{"r_liteprofile", "r_emailaddress"},
			EmailLookupEndpoint: srv.URL + "/v2/emailAddress",
		},
		client: srv.Client(),
	}
	profile := map[string]any{
		"firstName": map[string]any{"localized": map[string]any{"en_US": "Robert"}},
		"lastName":  map[string]any{"localized": map[string]any{"en_US": "Tables"}},
	}
	attrs := attributes.Set{}

	require.NoError(t, (&linkedinVariant{}).PostProcess(context.Background(), e, &Token{AccessToken: "at"}, profile, attrs))
	assert.Equal(t, []string{"Robert"}, attrs["linkedin.firstName"])
	assert.Equal(t, []string{"Tables"}, attrs["linkedin.lastName"])
	assert.Equal(t, []string{"bob@example.org"}, attrs["linkedin.emailAddress"])
}

func TestLinkedInEmailLookupGatedOnScope(t *testing.T) {
	t.Parallel()

	lookupCalled := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		lookupCalled = true
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	e := &Engine{
		cfg: Config{
			SourceID:            "li-login",
			AttributePrefix:     "linkedin.",
			Scopes:              []string{"r_liteprofile"},
			EmailLookupEndpoint: srv.URL + "/v2/emailAddress",
		},
		client: srv.Client(),
	}

	require.NoError(t, (&linkedinVariant{}).PostProcess(context.Background(), e, &Token{}, map[string]any{}, attributes.Set{}))
	assert.False(t, lookupCalled)
}

func TestMicrosoftPostProcess(t *testing.T) {
	t.Parallel()

	idToken := unsignedJWT(t, map[string]any{
		"email": "bob@contoso.com",
		"name":  "Bob Tables",
		"oid":   "not-promoted",
	})

	e := &Engine{cfg: Config{SourceID: "ms-login", AttributePrefix: "microsoft."}}
	attrs := attributes.Set{
		"microsoft.displayName": {"R. Tables"},
		"microsoft.email":       {"stale@contoso.com"},
	}

	require.NoError(t, (&microsoftVariant{}).PostProcess(context.Background(), e, &Token{IDToken: idToken}, nil, attrs))

	// ID token claims override the Graph values; unknown claims stay out.
	assert.Equal(t, []string{"bob@contoso.com"}, attrs["microsoft.email"])
	assert.Equal(t, []string{"Bob Tables"}, attrs["microsoft.name"])
	assert.Equal(t, []string{"R. Tables"}, attrs["microsoft.displayName"])
	assert.NotContains(t, attrs, "microsoft.oid")
}

func TestMicrosoftPostProcessBadIDToken(t *testing.T) {
	t.Parallel()

	e := &Engine{cfg: Config{SourceID: "ms-login", AttributePrefix: "microsoft."}}
	attrs := attributes.Set{"microsoft.email": {"kept@contoso.com"}}

	require.NoError(t, (&microsoftVariant{}).PostProcess(context.Background(), e, &Token{IDToken: "garbage"}, nil, attrs))
	assert.Equal(t, []string{"kept@contoso.com"}, attrs["microsoft.email"])
}

func TestPickBitbucketEmail(t *testing.T) {
	t.Parallel()

	body := `{"values":[
		{"type":"email","email":"secondary@example.org","is_primary":false},
		{"type":"newsletter","email":"list@example.org","is_primary":true},
		{"type":"email","email":"primary@example.org","is_primary":true}
	]}`
	assert.Equal(t, "primary@example.org", pickBitbucketEmail([]byte(body)))
	assert.Empty(t, pickBitbucketEmail([]byte(`{"values":[]}`)))
}

func TestBitbucketPostProcess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"values":[{"type":"email","email":"bob@example.org","is_primary":true}]}`))
	}))
	t.Cleanup(srv.Close)

	e := &Engine{
		cfg: Config{
			SourceID:            "bb-login",
			AttributePrefix:     "bitbucket.",
			Scopes:              []string{"account", "email"},
			EmailLookupEndpoint: srv.URL + "/2.0/user/emails",
		},
		client: srv.Client(),
	}
	attrs := attributes.Set{}

	require.NoError(t, (&bitbucketVariant{}).PostProcess(context.Background(), e, &Token{AccessToken: "at"}, nil, attrs))
	assert.Equal(t, []string{"bob@example.org"}, attrs["bitbucket.email"])
}
