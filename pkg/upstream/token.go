// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"strings"
)

// Token is the result of a successful code exchange. Immutable once obtained.
type Token struct {
	// AccessToken is the access token string.
	AccessToken string

	// IDToken is the raw ID token, when the provider returned one.
	IDToken string

	// RefreshToken is the refresh token, when the provider returned one.
	RefreshToken string

	// Claims holds the verified (or, for variants that skip verification,
	// decoded) ID token claims. Nil when no ID token was processed.
	Claims map[string]any

	// Extra holds every other field of the token response.
	Extra map[string]any
}

// ExtraString returns an extra response field as a string, or "" when the
// field is absent or not a string.
func (t *Token) ExtraString(field string) string {
	switch field {
	case "access_token":
		return t.AccessToken
	case "id_token":
		return t.IDToken
	case "refresh_token":
		return t.RefreshToken
	}
	if v, ok := t.Extra[field].(string); ok {
		return v
	}
	return ""
}

// decodeTokenResponse parses a token endpoint response body. JSON is the
// default; form/query encoding is handled for providers that still answer
// with application/x-www-form-urlencoded.
func decodeTokenResponse(contentType string, body []byte) (*Token, error) {
	mediaType := contentType
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = mt
	}

	var fields map[string]any
	switch {
	case strings.Contains(mediaType, "x-www-form-urlencoded"), strings.Contains(mediaType, "text/plain"):
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("unable to decode form-encoded token response: %w", err)
		}
		fields = make(map[string]any, len(values))
		for k := range values {
			fields[k] = values.Get(k)
		}
	default:
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("unable to decode token response: %w", err)
		}
	}

	tok := &Token{Extra: make(map[string]any)}
	for k, v := range fields {
		switch k {
		case "access_token":
			tok.AccessToken, _ = v.(string)
		case "id_token":
			tok.IDToken, _ = v.(string)
		case "refresh_token":
			tok.RefreshToken, _ = v.(string)
		default:
			tok.Extra[k] = v
		}
	}

	if tok.AccessToken == "" && tok.IDToken == "" {
		return nil, fmt.Errorf("token response carries neither access_token nor id_token")
	}
	return tok, nil
}

// decodeJWTPayload decodes the claims segment of a JWT without verifying the
// signature. Used where the token arrived over a server-to-server TLS
// channel and the variant explicitly trusts it (Apple), and for best-effort
// claim extraction (Microsoft hybrid).
func decodeJWTPayload(raw string) (map[string]any, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed JWT: expected 3 segments, got %d", len(parts))
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decoding JWT payload: %w", err)
	}

	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("unmarshal JWT claims: %w", err)
	}
	return claims, nil
}
