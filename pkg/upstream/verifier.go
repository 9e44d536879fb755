// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"slices"

	"github.com/golang-jwt/jwt/v5"

	"github.com/authbridge/authbridge/pkg/logger"
	"github.com/authbridge/authbridge/pkg/networking"
)

// idTokenAlgorithms pins the accepted signature algorithm family. Taking the
// algorithm from the token header would open the door to algorithm-confusion
// attacks, so RS256 it is.
var idTokenAlgorithms = []string{"RS256"}

// TokenVerifier validates signed ID tokens against keys resolved from the
// provider's JWKS (via discovery or a static configured key set).
type TokenVerifier struct {
	cfg      *Config
	client   networking.HTTPClient
	resolver *DiscoveryResolver
}

// NewTokenVerifier creates a verifier. The resolver supplies jwks_uri when
// no static JWKS is configured.
func NewTokenVerifier(cfg *Config, client networking.HTTPClient, resolver *DiscoveryResolver) *TokenVerifier {
	if client == nil {
		client = networking.DefaultClient(cfg.Timeout)
	}
	return &TokenVerifier{cfg: cfg, client: client, resolver: resolver}
}

// Verify parses and validates raw: signature against the resolved key set,
// audience containing the client id, and (unless disabled) exact issuer
// equality. It returns the token's claims on success; every failure is a
// TokenValidationError.
func (v *TokenVerifier) Verify(ctx context.Context, raw string) (map[string]any, error) {
	keys, err := v.signingKeys(ctx)
	if err != nil {
		return nil, err
	}

	claims, err := verifySignature(raw, keys)
	if err != nil {
		return nil, err
	}

	if !audienceContains(claims["aud"], v.cfg.ClientID) {
		return nil, newTokenValidationError("incorrect audience", nil)
	}

	if !v.cfg.DisableIssuerValidation {
		iss, _ := claims["iss"].(string)
		if iss != v.expectedIssuer() {
			return nil, newTokenValidationError("incorrect issuer", nil)
		}
	}

	return claims, nil
}

// expectedIssuer prefers the configured issuer and falls back to the
// discovered one.
func (v *TokenVerifier) expectedIssuer() string {
	if v.cfg.Issuer != "" {
		return v.cfg.Issuer
	}
	if v.resolver != nil {
		if doc, err := v.resolver.Resolve(context.Background()); err == nil {
			return doc.Issuer
		}
	}
	return ""
}

// verifySignature tries the candidate keys: the kid-matched key first, then
// every other key, since only keys actually able to verify the token matter.
func verifySignature(raw string, keys signingKeySet) (map[string]any, error) {
	candidates := keys.candidatesFor(kidOf(raw))
	if len(candidates) == 0 {
		return nil, newTokenValidationError("no usable signing keys", nil)
	}

	var lastErr error
	for _, key := range candidates {
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return key, nil
		}, jwt.WithValidMethods(idTokenAlgorithms))
		if err == nil {
			return claims, nil
		}
		lastErr = err

		// Only a signature mismatch justifies trying the next key; a
		// malformed or expired token fails the same way for every key.
		if !isSignatureError(err) {
			break
		}
	}
	return nil, newTokenValidationError("unable to validate token", lastErr)
}

func isSignatureError(err error) bool {
	return errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenUnverifiable)
}

// kidOf extracts the key id from the token header without verification, so
// key lookup can prefer the referenced key. Empty on any parse problem.
func kidOf(raw string) string {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	if kid, ok := token.Header["kid"].(string); ok {
		return kid
	}
	return ""
}

func audienceContains(aud any, clientID string) bool {
	switch v := aud.(type) {
	case string:
		return v == clientID
	case []any:
		for _, entry := range v {
			if s, ok := entry.(string); ok && s == clientID {
				return true
			}
		}
	case []string:
		return slices.Contains(v, clientID)
	}
	return false
}

// signingKeySet maps key ids to public keys; keys without a kid are kept
// under their position so they still participate in verification.
type signingKeySet struct {
	byKID map[string]crypto.PublicKey
	order []string
}

// candidatesFor returns the keys to try: the kid match alone when present,
// all keys otherwise.
func (s signingKeySet) candidatesFor(kid string) []crypto.PublicKey {
	if kid != "" {
		if key, ok := s.byKID[kid]; ok {
			return []crypto.PublicKey{key}
		}
	}
	out := make([]crypto.PublicKey, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byKID[id])
	}
	return out
}

// signingKeys resolves the key set: static JWKS when configured, the
// discovery document's jwks_uri otherwise.
func (v *TokenVerifier) signingKeys(ctx context.Context) (signingKeySet, error) {
	raw := v.cfg.StaticJWKS
	if len(raw) == 0 {
		if v.resolver == nil {
			return signingKeySet{}, newTokenValidationError("no signing keys configured and no discovery resolver", nil)
		}
		doc, err := v.resolver.Resolve(ctx)
		if err != nil {
			return signingKeySet{}, err
		}
		raw, err = v.fetchJWKS(ctx, doc.JWKSURI)
		if err != nil {
			return signingKeySet{}, err
		}
	}
	return parseSigningKeys(raw)
}

func (v *TokenVerifier) fetchJWKS(ctx context.Context, jwksURI string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURI, nil)
	if err != nil {
		return nil, newTokenValidationError("building JWKS request", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, newTokenValidationError("fetching signing keys", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Debugf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, newTokenValidationError(fmt.Sprintf("fetching signing keys: HTTP %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, newTokenValidationError("reading signing keys", err)
	}
	return body, nil
}

type jwksDocument struct {
	Keys []jwksEntry `json:"keys"`
}

type jwksEntry struct {
	KID string   `json:"kid"`
	KTY string   `json:"kty"`
	Use string   `json:"use"`
	X5C []string `json:"x5c"`
	N   string   `json:"n"`
	E   string   `json:"e"`
}

// parseSigningKeys builds the key set from a JWKS document. An x5c chain
// wins over the modulus/exponent pair; key types other than RSA are skipped
// with a warning since only keys the token actually references matter.
func parseSigningKeys(raw []byte) (signingKeySet, error) {
	var doc jwksDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return signingKeySet{}, newTokenValidationError("JWKS is not valid JSON", err)
	}

	set := signingKeySet{byKID: make(map[string]crypto.PublicKey)}
	for i, entry := range doc.Keys {
		key, err := entry.publicKey()
		if err != nil {
			logger.Warnw("skipping unusable JWKS entry", "kid", entry.KID, "kty", entry.KTY, "error", err)
			continue
		}
		id := entry.KID
		if id == "" {
			id = fmt.Sprintf("#%d", i)
		}
		if _, dup := set.byKID[id]; dup {
			continue
		}
		set.byKID[id] = key
		set.order = append(set.order, id)
	}

	if len(set.order) == 0 {
		return signingKeySet{}, newTokenValidationError("JWKS contains no usable keys", nil)
	}
	return set, nil
}

func (e *jwksEntry) publicKey() (crypto.PublicKey, error) {
	if len(e.X5C) > 0 {
		der, err := base64.StdEncoding.DecodeString(e.X5C[0])
		if err != nil {
			return nil, fmt.Errorf("decoding x5c certificate: %w", err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("parsing x5c certificate: %w", err)
		}
		return cert.PublicKey, nil
	}

	if e.KTY != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", e.KTY)
	}
	if e.N == "" || e.E == "" {
		return nil, fmt.Errorf("RSA key missing modulus or exponent")
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(e.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
