// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/authbridge/authbridge/pkg/logger"
	"github.com/authbridge/authbridge/pkg/networking"
)

// UserAgent is sent on every outgoing request.
const UserAgent = "authbridge/1.0"

// maxResponseSize bounds discovery, token and profile responses. 1MB.
const maxResponseSize = 1024 * 1024

// DiscoveryDocument is the validated set of OIDC endpoints fetched from the
// provider's well-known location.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
}

// DiscoveryResolver fetches and validates the discovery document for one
// provider instance. The result is memoized for the resolver's lifetime —
// one authentication attempt — so repeat calls never re-fetch.
type DiscoveryResolver struct {
	cfg    *Config
	client networking.HTTPClient

	once sync.Once
	doc  *DiscoveryDocument
	err  error
}

// NewDiscoveryResolver creates a resolver for the given configuration.
// A nil client falls back to a default client with the configured timeout.
func NewDiscoveryResolver(cfg *Config, client networking.HTTPClient) *DiscoveryResolver {
	if client == nil {
		client = networking.DefaultClient(cfg.Timeout)
	}
	return &DiscoveryResolver{cfg: cfg, client: client}
}

// Resolve returns the validated discovery document, fetching it on first
// use. Any failure is a DiscoveryError; discovery failures are never
// retried since they indicate a structural problem, not a blip.
func (r *DiscoveryResolver) Resolve(ctx context.Context) (*DiscoveryDocument, error) {
	r.once.Do(func() {
		r.doc, r.err = r.fetch(ctx)
	})
	return r.doc, r.err
}

func (r *DiscoveryResolver) fetch(ctx context.Context) (*DiscoveryDocument, error) {
	discoveryURL := r.cfg.discoveryURL()

	logger.Debugw("fetching discovery document", "url", discoveryURL, "source", r.cfg.SourceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, newDiscoveryError(discoveryURL, "building request", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, newDiscoveryError(discoveryURL, "endpoint unreachable", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Debugf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, newDiscoveryError(discoveryURL, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}

	var doc DiscoveryDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&doc); err != nil {
		return nil, newDiscoveryError(discoveryURL, "body is not valid JSON", err)
	}

	if err := r.validate(discoveryURL, &doc); err != nil {
		return nil, err
	}

	logger.Debugw("discovery document validated",
		"issuer", doc.Issuer,
		"has_end_session_endpoint", doc.EndSessionEndpoint != "",
	)
	return &doc, nil
}

// validate checks every required field before returning, failing fast on the
// first violation with the field name in the error.
func (r *DiscoveryResolver) validate(discoveryURL string, doc *DiscoveryDocument) error {
	required := []struct {
		name  string
		value string
	}{
		{"issuer", doc.Issuer},
		{"authorization_endpoint", doc.AuthorizationEndpoint},
		{"token_endpoint", doc.TokenEndpoint},
		{"jwks_uri", doc.JWKSURI},
		{"userinfo_endpoint", doc.UserinfoEndpoint},
	}

	for _, field := range required {
		if field.value == "" {
			return newDiscoveryError(discoveryURL, fmt.Sprintf("missing required field %q", field.name), nil)
		}
		if field.name == "issuer" {
			continue
		}
		if err := networking.ValidateEndpointURL(field.value); err != nil {
			return newDiscoveryError(discoveryURL, fmt.Sprintf("invalid %s", field.name), err)
		}
	}

	if r.cfg.Issuer != "" && doc.Issuer != r.cfg.Issuer {
		return newDiscoveryError(discoveryURL,
			fmt.Sprintf("issuer mismatch: expected %q, got %q", r.cfg.Issuer, doc.Issuer), nil)
	}

	if doc.EndSessionEndpoint != "" {
		if err := networking.ValidateEndpointURL(doc.EndSessionEndpoint); err != nil {
			return newDiscoveryError(discoveryURL, "invalid end_session_endpoint", err)
		}
	}

	// The issuer itself must be a well-formed HTTPS URL even when no
	// explicit issuer was configured to compare against.
	if err := networking.ValidateEndpointURL(doc.Issuer); err != nil {
		return newDiscoveryError(discoveryURL, "invalid issuer", err)
	}

	return nil
}
