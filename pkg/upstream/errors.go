// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"errors"
	"fmt"
)

// ErrUserAborted is returned when the end user declined authorization at the
// identity provider. It is recognized via a fixed set of error codes shared
// across providers and is never reported as a generic provider failure.
var ErrUserAborted = errors.New("user aborted authentication")

// consentDeniedCodes are the callback error codes that mean the user
// declined, across the providers this module supports.
var consentDeniedCodes = map[string]bool{
	"access_denied":           true,
	"consent_required":        true,
	"user_cancelled_authorize": true,
	"user_cancelled_login":    true,
	"user_denied":             true,
}

// ProviderError is an application-level error reported by the authorization
// server (bad grant, invalid client, ...). It is never retried. The raw
// response body is attached when available for diagnosability.
type ProviderError struct {
	// Code is the OAuth2 error code ("invalid_grant", ...).
	Code string `json:"error"`

	// Description is the human-readable error_description, if any.
	Description string `json:"error_description"`

	// Body is the raw response body the error was parsed from.
	Body string `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// DiscoveryError means the OIDC discovery document could not be fetched or
// failed validation. Always fatal; retrying does not change a structural
// invalidity.
type DiscoveryError struct {
	// URL is the discovery URL that was fetched.
	URL string

	// Reason identifies the failed field or check.
	Reason string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *DiscoveryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("discovery document %s: %s: %v", e.URL, e.Reason, e.Cause)
	}
	return fmt.Sprintf("discovery document %s: %s", e.URL, e.Reason)
}

// Unwrap returns the underlying error.
func (e *DiscoveryError) Unwrap() error {
	return e.Cause
}

func newDiscoveryError(url, reason string, cause error) error {
	return &DiscoveryError{URL: url, Reason: reason, Cause: cause}
}

// TokenValidationError means an ID token was malformed or untrustworthy.
// Always fatal, never retried.
type TokenValidationError struct {
	// Reason describes the failed check.
	Reason string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *TokenValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("id token validation failed: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("id token validation failed: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *TokenValidationError) Unwrap() error {
	return e.Cause
}

func newTokenValidationError(reason string, cause error) error {
	return &TokenValidationError{Reason: reason, Cause: cause}
}

// SourceError annotates a terminal flow failure with the authentication
// source it belongs to, so the host's error reporting can attribute it.
type SourceError struct {
	// SourceID is the authentication-source identifier.
	SourceID string

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	return fmt.Sprintf("authentication source %q: %v", e.SourceID, e.Err)
}

// Unwrap returns the underlying error.
func (e *SourceError) Unwrap() error {
	return e.Err
}

func sourceErr(sourceID string, err error) error {
	if err == nil {
		return nil
	}
	return &SourceError{SourceID: sourceID, Err: err}
}
