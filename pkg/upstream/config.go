// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/authbridge/authbridge/pkg/networking"
)

// Defaults applied by Config.Resolve when neither the template nor the
// explicit configuration sets a value.
const (
	// DefaultRetries is the number of retries for transient network failures.
	DefaultRetries = 1

	// DefaultRetryDelay is the pause between retry attempts.
	DefaultRetryDelay = time.Second

	// DefaultScopeSeparator joins scopes in the authorization request.
	DefaultScopeSeparator = " "
)

// Config is the resolved, immutable configuration for one upstream identity
// provider. It is built once per authentication attempt from a named
// template plus explicit overrides; explicit values always win.
type Config struct {
	// SourceID is the authentication-source identifier the host knows this
	// provider under. It is injected into every persisted flow state.
	SourceID string `mapstructure:"source_id"`

	// Template names a bundle of defaults for a well-known provider
	// (GoogleOIDC, MicrosoftOIDC, ...). Empty means no template.
	Template string `mapstructure:"template"`

	// Provider selects the behavioral variant from the registry
	// (oauth2, oidc, apple, orcid, linkedin, microsoft, bitbucket).
	Provider string `mapstructure:"provider"`

	// ClientID is the OAuth client id registered with the provider.
	ClientID string `mapstructure:"client_id"`

	// ClientSecret is the OAuth client secret.
	ClientSecret string `mapstructure:"client_secret"`

	// RedirectURI is the callback URL registered with the provider.
	RedirectURI string `mapstructure:"redirect_uri"`

	// Scopes are the scopes to request.
	Scopes []string `mapstructure:"scopes"`

	// ScopeSeparator joins Scopes in the authorization request. Defaults to
	// a single space; some providers require ",".
	ScopeSeparator string `mapstructure:"scope_separator"`

	// AttributePrefix is prepended to every key of the final attribute set.
	AttributePrefix string `mapstructure:"attribute_prefix"`

	// AuthorizationEndpoint, TokenEndpoint and UserinfoEndpoint are the
	// provider endpoints. For OIDC variants they may be left empty and are
	// then taken from the discovery document.
	AuthorizationEndpoint string `mapstructure:"authorization_endpoint"`
	TokenEndpoint         string `mapstructure:"token_endpoint"`
	UserinfoEndpoint      string `mapstructure:"userinfo_endpoint"`

	// EmailLookupEndpoint is the secondary endpoint some variants query for
	// the user's email address (ORCID, LinkedIn, Bitbucket).
	EmailLookupEndpoint string `mapstructure:"email_lookup_endpoint"`

	// ExtraAPIEndpoints are auxiliary authenticated API URLs whose responses
	// are deep-merged into the resource-owner profile. Failures here are
	// logged and never fail the authentication.
	ExtraAPIEndpoints []string `mapstructure:"extra_api_endpoints"`

	// Issuer is the expected OIDC issuer.
	Issuer string `mapstructure:"issuer"`

	// DiscoveryURL overrides the default
	// {issuer}/.well-known/openid-configuration location.
	DiscoveryURL string `mapstructure:"discovery_url"`

	// DisableIssuerValidation turns off the exact issuer check on ID tokens.
	DisableIssuerValidation bool `mapstructure:"disable_issuer_validation"`

	// StaticJWKS is an inline JWKS document used instead of the discovery
	// document's jwks_uri when set.
	StaticJWKS json.RawMessage `mapstructure:"static_jwks"`

	// Retries is the number of retries for transient network failures on the
	// token exchange and resource-owner fetch (each independently).
	Retries int `mapstructure:"retries"`

	// RetryDelay is the pause between retry attempts.
	RetryDelay time.Duration `mapstructure:"retry_delay"`

	// Timeout is passed through to the HTTP transport.
	Timeout time.Duration `mapstructure:"timeout"`

	// AuthorizeParams are extra query options added to every authorization
	// request.
	AuthorizeParams map[string]string `mapstructure:"authorize_params"`

	// TokenFieldParams forwards fields of the token response as query
	// parameters of the resource-owner request
	// (token response field name -> query parameter name).
	TokenFieldParams map[string]string `mapstructure:"token_field_params"`

	// PKCEEnabled turns on the S256 code challenge. Requires a PKCEStore.
	PKCEEnabled bool `mapstructure:"pkce_enabled"`

	// LogHTTPTraffic enables request/response debug logging (method, URL,
	// status; never bodies carrying credentials).
	LogHTTPTraffic bool `mapstructure:"log_http_traffic"`

	// PostLogoutRedirectURI is where the provider sends the browser after
	// RP-initiated logout. Defaults to RedirectURI.
	PostLogoutRedirectURI string `mapstructure:"post_logout_redirect_uri"`

	// ConsentErrorPage, when set, is where the callback handler should send
	// users who declined consent instead of surfacing ErrUserAborted.
	ConsentErrorPage string `mapstructure:"consent_error_page"`
}

// templates are the built-in default bundles. A template carries endpoint
// defaults only; credentials always come from the explicit configuration.
var templates = map[string]Config{
	"GenericOIDC": {
		Provider:        "oidc",
		Scopes:          []string{"openid", "profile", "email"},
		AttributePrefix: "oidc.",
	},
	"GoogleOIDC": {
		Provider:        "oidc",
		Issuer:          "https://accounts.google.com",
		Scopes:          []string{"openid", "profile", "email"},
		AttributePrefix: "oidc.",
		PKCEEnabled:     true,
	},
	"MicrosoftOIDC": {
		Provider:              "microsoft",
		AuthorizationEndpoint: "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
		TokenEndpoint:         "https://login.microsoftonline.com/common/oauth2/v2.0/token",
		UserinfoEndpoint:      "https://graph.microsoft.com/v1.0/me",
		Scopes:                []string{"openid", "profile", "email", "User.Read"},
		AttributePrefix:       "microsoft.",
	},
	"AppleOIDC": {
		Provider:              "apple",
		AuthorizationEndpoint: "https://appleid.apple.com/auth/authorize",
		TokenEndpoint:         "https://appleid.apple.com/auth/token",
		Issuer:                "https://appleid.apple.com",
		Scopes:                []string{"name", "email"},
		AttributePrefix:       "apple.",
	},
	"OrcidOIDC": {
		Provider:            "orcid",
		Issuer:              "https://orcid.org",
		UserinfoEndpoint:    "https://pub.orcid.org/v3.0/%s/record",
		EmailLookupEndpoint: "https://pub.orcid.org/v3.0/%s/email",
		Scopes:              []string{"openid"},
		AttributePrefix:     "orcid.",
	},
	"LinkedInAuth": {
		Provider:              "linkedin",
		AuthorizationEndpoint: "https://www.linkedin.com/oauth/v2/authorization",
		TokenEndpoint:         "https://www.linkedin.com/oauth/v2/accessToken",
		UserinfoEndpoint:      "https://api.linkedin.com/v2/me",
		EmailLookupEndpoint:   "https://api.linkedin.com/v2/emailAddress?q=members&projection=(elements*(handle~))",
		Scopes:                []string{"r_liteprofile", "r_emailaddress"},
		AttributePrefix:       "linkedin.",
	},
	"BitbucketAuth": {
		Provider:              "bitbucket",
		AuthorizationEndpoint: "https://bitbucket.org/site/oauth2/authorize",
		TokenEndpoint:         "https://bitbucket.org/site/oauth2/access_token",
		UserinfoEndpoint:      "https://api.bitbucket.org/2.0/user",
		EmailLookupEndpoint:   "https://api.bitbucket.org/2.0/user/emails",
		Scopes:                []string{"account", "email"},
		AttributePrefix:       "bitbucket.",
	},
}

// Resolve merges the named template (if any) under the explicit values,
// applies defaults, and validates the result. The variant name is checked
// against the registry here, at configuration-load time, so a bad provider
// name fails before any flow starts.
func (c Config) Resolve() (Config, error) {
	if c.Template != "" {
		tmpl, ok := templates[c.Template]
		if !ok {
			return Config{}, fmt.Errorf("unknown provider template %q", c.Template)
		}
		c = mergeConfig(tmpl, c)
	}

	if c.Provider == "" {
		c.Provider = "oauth2"
	}
	if c.ScopeSeparator == "" {
		c.ScopeSeparator = DefaultScopeSeparator
	}
	if c.Retries == 0 {
		c.Retries = DefaultRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.Timeout == 0 {
		c.Timeout = networking.HttpTimeout
	}
	if c.PostLogoutRedirectURI == "" {
		c.PostLogoutRedirectURI = c.RedirectURI
	}

	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// mergeConfig overlays explicit values on top of template defaults.
// Only zero-valued fields of the explicit config fall back to the template.
func mergeConfig(tmpl, explicit Config) Config {
	out := explicit
	if out.Provider == "" {
		out.Provider = tmpl.Provider
	}
	if out.Issuer == "" {
		out.Issuer = tmpl.Issuer
	}
	if out.DiscoveryURL == "" {
		out.DiscoveryURL = tmpl.DiscoveryURL
	}
	if out.AuthorizationEndpoint == "" {
		out.AuthorizationEndpoint = tmpl.AuthorizationEndpoint
	}
	if out.TokenEndpoint == "" {
		out.TokenEndpoint = tmpl.TokenEndpoint
	}
	if out.UserinfoEndpoint == "" {
		out.UserinfoEndpoint = tmpl.UserinfoEndpoint
	}
	if out.EmailLookupEndpoint == "" {
		out.EmailLookupEndpoint = tmpl.EmailLookupEndpoint
	}
	if len(out.Scopes) == 0 {
		out.Scopes = tmpl.Scopes
	}
	if out.ScopeSeparator == "" {
		out.ScopeSeparator = tmpl.ScopeSeparator
	}
	if out.AttributePrefix == "" {
		out.AttributePrefix = tmpl.AttributePrefix
	}
	if !out.PKCEEnabled {
		out.PKCEEnabled = tmpl.PKCEEnabled
	}
	return out
}

func (c *Config) validate() error {
	if c.SourceID == "" {
		return fmt.Errorf("source_id is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if c.RedirectURI == "" {
		return fmt.Errorf("redirect_uri is required")
	}
	if !variantRegistered(c.Provider) {
		return fmt.Errorf("unknown provider %q (registered: %v)", c.Provider, variantNames())
	}

	if c.usesDiscovery() {
		if c.Issuer == "" && c.DiscoveryURL == "" {
			return fmt.Errorf("issuer or discovery_url is required for provider %q", c.Provider)
		}
	} else {
		if c.AuthorizationEndpoint == "" {
			return fmt.Errorf("authorization_endpoint is required")
		}
		if c.TokenEndpoint == "" {
			return fmt.Errorf("token_endpoint is required")
		}
	}

	for name, endpoint := range map[string]string{
		"authorization_endpoint": c.AuthorizationEndpoint,
		"token_endpoint":         c.TokenEndpoint,
		"discovery_url":          c.DiscoveryURL,
		"issuer":                 c.Issuer,
	} {
		if endpoint == "" {
			continue
		}
		if err := networking.ValidateEndpointURL(endpoint); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// usesDiscovery reports whether the selected variant resolves its endpoints
// from an OIDC discovery document when they are not configured explicitly.
func (c *Config) usesDiscovery() bool {
	if c.AuthorizationEndpoint != "" && c.TokenEndpoint != "" {
		return false
	}
	return c.Issuer != "" || c.DiscoveryURL != ""
}

// discoveryURL returns the effective discovery document location.
func (c *Config) discoveryURL() string {
	if c.DiscoveryURL != "" {
		return c.DiscoveryURL
	}
	return c.Issuer + "/.well-known/openid-configuration"
}

// hasScope reports whether the given scope was part of the original request.
func (c *Config) hasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
