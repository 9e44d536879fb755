// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package upstream implements the authorization-code protocol engine that
// bridges a host application to upstream OAuth2 and OIDC identity providers.
// The host drives two entry points per attempt: Authenticate produces the
// redirect to the provider, and FinalStep turns the callback's authorization
// code into a normalized attribute set.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"dario.cat/mergo"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/authbridge/authbridge/pkg/attributes"
	"github.com/authbridge/authbridge/pkg/logger"
	"github.com/authbridge/authbridge/pkg/networking"
	"github.com/authbridge/authbridge/pkg/retry"
	"github.com/authbridge/authbridge/pkg/state"
)

// State tokens carry a recognizable marker so the callback endpoint can tell
// login and logout continuations apart, and reject anything it never issued.
const (
	loginStatePrefix  = "authbridge|"
	logoutStatePrefix = "authbridge-logout|"
	pkceKeyPrefix     = "authbridge:pkce:"
)

// Redirect is a browser redirect the host must issue. Redirects are values
// returned up the call stack, never performed by this package.
type Redirect struct {
	// URL is the absolute URL to send the user agent to.
	URL string

	// StateID is the opaque flow-state id embedded in the redirect, returned
	// so hosts can correlate logs or pre-provision session data.
	StateID string
}

// ProcessingFilter runs after a successful authentication, in registration
// order, and may inspect or mutate the final attribute set. An error aborts
// the authentication.
type ProcessingFilter func(ctx context.Context, st FlowState, attrs attributes.Set) error

// Engine drives the authorization-code flow against one configured upstream
// provider. Construct one per provider configuration; it is safe for
// concurrent use.
type Engine struct {
	cfg      Config
	store    state.Store
	pkce     state.PKCEStore
	client   networking.HTTPClient
	resolver *DiscoveryResolver
	verifier *TokenVerifier
	variant  Variant
	filters  []ProcessingFilter
}

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient injects the HTTP client used for every outgoing call.
func WithHTTPClient(client networking.HTTPClient) Option {
	return func(e *Engine) { e.client = client }
}

// WithPKCEStore injects the store holding PKCE code verifiers. Required when
// the configuration enables PKCE.
func WithPKCEStore(store state.PKCEStore) Option {
	return func(e *Engine) { e.pkce = store }
}

// WithProcessingFilter appends a post-authentication filter.
func WithProcessingFilter(filter ProcessingFilter) Option {
	return func(e *Engine) { e.filters = append(e.filters, filter) }
}

// NewEngine resolves and validates cfg and builds the engine for it. The
// provider variant, discovery resolver and ID-token verifier are all fixed
// here so misconfiguration surfaces at load time, not mid-flow.
func NewEngine(cfg Config, store state.Store, opts ...Option) (*Engine, error) {
	resolved, err := cfg.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolving upstream configuration: %w", err)
	}

	e := &Engine{cfg: resolved, store: store}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, fmt.Errorf("a flow-state store is required")
	}
	if e.client == nil {
		e.client = networking.DefaultClient(e.cfg.Timeout)
	}
	if e.cfg.PKCEEnabled && e.pkce == nil {
		return nil, fmt.Errorf("pkce_enabled requires a PKCE store")
	}

	e.variant = newVariant(e.cfg.Provider)
	if e.cfg.usesDiscovery() {
		e.resolver = NewDiscoveryResolver(&e.cfg, e.client)
	}
	if e.variant.OIDC() {
		if e.resolver == nil && len(e.cfg.StaticJWKS) == 0 {
			return nil, fmt.Errorf("provider %q requires issuer, discovery_url or static_jwks for ID token verification", e.cfg.Provider)
		}
		e.verifier = NewTokenVerifier(&e.cfg, e.client, e.resolver)
	}
	return e, nil
}

// Config returns the resolved configuration the engine runs with.
func (e *Engine) Config() Config {
	return e.cfg
}

// Authenticate starts an authentication attempt: it injects the source id
// into st, persists it under the login stage, and builds the authorization
// redirect carrying the returned state id. The caller-provided st may carry
// variant hints (ForceAuthn, isPassive, authorize hints); it is mutated.
func (e *Engine) Authenticate(ctx context.Context, st FlowState) (*Redirect, error) {
	red, err := e.authenticate(ctx, st)
	if err != nil {
		return nil, sourceErr(e.cfg.SourceID, err)
	}
	return red, nil
}

func (e *Engine) authenticate(ctx context.Context, st FlowState) (*Redirect, error) {
	if st == nil {
		st = FlowState{}
	}
	st[KeySourceID] = e.cfg.SourceID

	authorizeEndpoint := e.cfg.AuthorizationEndpoint
	if authorizeEndpoint == "" {
		doc, err := e.resolver.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		authorizeEndpoint = doc.AuthorizationEndpoint
	}

	var challenge string
	if e.cfg.PKCEEnabled {
		verifier := oauth2.GenerateVerifier()
		pkceKey := pkceKeyPrefix + uuid.NewString()
		if err := e.pkce.Save(ctx, pkceKey, verifier); err != nil {
			return nil, fmt.Errorf("persisting PKCE verifier: %w", err)
		}
		st[KeyPKCEKey] = pkceKey
		challenge = oauth2.S256ChallengeFromVerifier(verifier)
	}

	id, err := e.store.Save(ctx, state.StageLogin, st)
	if err != nil {
		return nil, fmt.Errorf("persisting flow state: %w", err)
	}

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", e.cfg.ClientID)
	params.Set("redirect_uri", e.cfg.RedirectURI)
	params.Set("state", loginStatePrefix+id)
	if len(e.cfg.Scopes) > 0 {
		params.Set("scope", strings.Join(e.cfg.Scopes, e.cfg.ScopeSeparator))
	}
	for k, v := range e.cfg.AuthorizeParams {
		params.Set(k, v)
	}
	for k, v := range e.variant.AuthorizeParams(e, st) {
		params.Set(k, v)
	}
	if challenge != "" {
		params.Set("code_challenge", challenge)
		params.Set("code_challenge_method", "S256")
	}

	logger.Infow("redirecting to identity provider",
		"source", e.cfg.SourceID,
		"provider", e.variant.Name(),
		"state_id", id,
	)
	return &Redirect{URL: joinQuery(authorizeEndpoint, params), StateID: id}, nil
}

// FinalStep completes the attempt: it exchanges code for tokens, verifies the
// ID token for OIDC variants, fetches and merges the resource-owner profile,
// and returns the flattened attribute set. st must be the flow state loaded
// for the callback's state id; it is mutated (the raw ID token is persisted
// for later logout). Terminal failures are wrapped with the source id, except
// ErrUserAborted which passes through unwrapped.
func (e *Engine) FinalStep(ctx context.Context, st FlowState, code string) (attributes.Set, error) {
	attrs, err := e.finalStep(ctx, st, code)
	if err != nil {
		if errors.Is(err, ErrUserAborted) {
			return nil, err
		}
		return nil, sourceErr(e.cfg.SourceID, err)
	}
	return attrs, nil
}

func (e *Engine) finalStep(ctx context.Context, st FlowState, code string) (attributes.Set, error) {
	if code == "" {
		return nil, fmt.Errorf("no authorization code presented")
	}
	if st == nil {
		st = FlowState{}
	}

	tokenEndpoint := e.cfg.TokenEndpoint
	if tokenEndpoint == "" {
		doc, err := e.resolver.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		tokenEndpoint = doc.TokenEndpoint
	}

	var codeVerifier string
	if e.cfg.PKCEEnabled {
		pkceKey := stateString(st, KeyPKCEKey)
		if pkceKey == "" {
			return nil, fmt.Errorf("flow state carries no PKCE verifier key")
		}
		verifier, ok, err := e.pkce.Load(ctx, pkceKey)
		if err != nil {
			return nil, fmt.Errorf("loading PKCE verifier: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("PKCE verifier expired or missing")
		}
		codeVerifier = verifier
	}

	tok, err := retry.Do(ctx, func() (*Token, error) {
		return e.exchangeCode(ctx, tokenEndpoint, code, codeVerifier)
	}, e.cfg.Retries, e.cfg.RetryDelay)
	if err != nil {
		return nil, err
	}

	if e.variant.OIDC() {
		if tok.IDToken == "" {
			return nil, newTokenValidationError("token response carries no id_token", nil)
		}
		claims, err := e.verifier.Verify(ctx, tok.IDToken)
		if err != nil {
			return nil, err
		}
		tok.Claims = claims
		st[KeyIDToken] = tok.IDToken
	}

	profile, err := retry.Do(ctx, func() (map[string]any, error) {
		return e.variant.ResourceOwner(ctx, e, tok)
	}, e.cfg.Retries, e.cfg.RetryDelay)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		profile = map[string]any{}
	}

	e.mergeAuxiliary(ctx, tok, profile)

	attrs := attributes.Flatten(profile, e.cfg.AttributePrefix)

	if err := e.variant.PostProcess(ctx, e, tok, profile, attrs); err != nil {
		return nil, err
	}
	for _, filter := range e.filters {
		if err := filter(ctx, st, attrs); err != nil {
			return nil, fmt.Errorf("processing filter: %w", err)
		}
	}

	logger.Infow("authentication completed",
		"source", e.cfg.SourceID,
		"provider", e.variant.Name(),
		"attributes", len(attrs),
	)
	return attrs, nil
}

// exchangeCode redeems the authorization code at the token endpoint. Client
// credentials travel in the form body, which every supported provider
// accepts.
func (e *Engine) exchangeCode(ctx context.Context, endpoint, code, codeVerifier string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", e.cfg.RedirectURI)
	form.Set("client_id", e.cfg.ClientID)
	form.Set("client_secret", e.cfg.ClientSecret)
	if codeVerifier != "" {
		form.Set("code_verifier", codeVerifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, body, err := e.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, providerErrorFromResponse(resp.StatusCode, endpoint, body)
	}
	return decodeTokenResponse(resp.Header.Get("Content-Type"), body)
}

// providerErrorFromResponse maps a non-2xx token endpoint answer to a
// ProviderError when the body carries the standard OAuth2 error shape, and to
// an HTTPError otherwise. Neither is ever retried.
func providerErrorFromResponse(status int, urlStr string, body []byte) error {
	var pe ProviderError
	if err := json.Unmarshal(body, &pe); err == nil && pe.Code != "" {
		pe.Body = string(body)
		return &pe
	}
	return networking.NewHTTPErrorWithBody(status, urlStr, "identity provider rejected the request", string(body))
}

// fetchProfile GETs endpoint with the access token as bearer credential and
// decodes the JSON object it returns. An empty endpoint falls back to the
// discovery document's userinfo_endpoint.
func (e *Engine) fetchProfile(ctx context.Context, endpoint string, tok *Token) (map[string]any, error) {
	if endpoint == "" {
		if e.resolver == nil {
			return nil, fmt.Errorf("no userinfo endpoint available")
		}
		doc, err := e.resolver.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		endpoint = doc.UserinfoEndpoint
	}

	body, err := e.authenticatedGet(ctx, e.applyTokenFieldParams(endpoint, tok), tok)
	if err != nil {
		return nil, err
	}

	var profile map[string]any
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("unable to decode resource-owner profile: %w", err)
	}
	return profile, nil
}

// authenticatedGet performs a bearer-authenticated GET and returns the body.
// Non-2xx answers become HTTPError with the body attached.
func (e *Engine) authenticatedGet(ctx context.Context, endpoint string, tok *Token) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, body, err := e.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, networking.NewHTTPErrorWithBody(resp.StatusCode, endpoint, "request rejected", string(body))
	}
	return body, nil
}

// applyTokenFieldParams appends configured token response fields as query
// parameters (field name -> parameter name). Providers like ORCID deliver the
// record locator only in the token response.
func (e *Engine) applyTokenFieldParams(endpoint string, tok *Token) string {
	if len(e.cfg.TokenFieldParams) == 0 {
		return endpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	for field, param := range e.cfg.TokenFieldParams {
		if v := tok.ExtraString(field); v != "" {
			q.Set(param, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// mergeAuxiliary folds the configured extra API responses into the profile.
// Later endpoints override earlier values on key collisions; any failure is
// logged and skipped, never failing the authentication.
func (e *Engine) mergeAuxiliary(ctx context.Context, tok *Token, profile map[string]any) {
	for _, endpoint := range e.cfg.ExtraAPIEndpoints {
		body, err := e.authenticatedGet(ctx, e.applyTokenFieldParams(endpoint, tok), tok)
		if err != nil {
			logger.Warnw("auxiliary API call failed", "source", e.cfg.SourceID, "url", endpoint, "error", err)
			continue
		}

		var aux map[string]any
		if err := json.Unmarshal(body, &aux); err != nil {
			logger.Warnw("auxiliary API response is not a JSON object", "source", e.cfg.SourceID, "url", endpoint, "error", err)
			continue
		}

		if err := mergo.Merge(&profile, aux, mergo.WithOverride); err != nil {
			logger.Warnw("merging auxiliary API response failed", "source", e.cfg.SourceID, "url", endpoint, "error", err)
		}
	}
}

// do executes the request and reads the size-capped body. Transport-level
// failures come back unwrapped so the retry layer can classify them.
func (e *Engine) do(req *http.Request) (*http.Response, []byte, error) {
	if e.cfg.LogHTTPTraffic {
		logger.Debugw("outgoing request", "method", req.Method, "url", req.URL.Redacted())
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Debugf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, nil, fmt.Errorf("reading response from %s: %w", req.URL.Redacted(), err)
	}

	if e.cfg.LogHTTPTraffic {
		logger.Debugw("incoming response", "url", req.URL.Redacted(), "status", resp.StatusCode, "bytes", len(body))
	}
	return resp, body, nil
}

// joinQuery appends params to endpoint, tolerating endpoints that already
// carry a query string.
func joinQuery(endpoint string, params url.Values) string {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + params.Encode()
}
