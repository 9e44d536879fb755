// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// HTTPError represents an application-level HTTP error response with status
// code, URL, and message. It means the server answered; these are never
// retried by the protocol engine.
type HTTPError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is a description of the error (may be a preview of the response body).
	Message string

	// URL is the requested URL.
	URL string

	// Body is the raw response body, when it was available.
	Body string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, url, message string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// NewHTTPErrorWithBody creates a new HTTP error carrying the response body.
func NewHTTPErrorWithBody(statusCode int, url, message, body string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
		Body:       body,
	}
}

// IsHTTPError checks if an error is an HTTPError with the specified status code.
// If statusCode is 0, it matches any HTTPError.
func IsHTTPError(err error, statusCode int) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	if statusCode == 0 {
		return true
	}
	return httpErr.StatusCode == statusCode
}

// TransientError represents a connection-level failure: the request never
// produced an HTTP response (DNS failure, refused connection, reset, timeout).
// These are the only errors the retry layer will retry.
type TransientError struct {
	// URL is the requested URL.
	URL string

	// Cause is the underlying transport error.
	Cause error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient network error for URL %s: %v", e.URL, e.Cause)
}

// Unwrap returns the underlying error.
func (e *TransientError) Unwrap() error {
	return e.Cause
}

// NewTransientError creates a new transient network error.
func NewTransientError(url string, cause error) error {
	return &TransientError{URL: url, Cause: cause}
}

// IsTransient reports whether err is a connection-level failure that may
// succeed on retry. Application errors (HTTPError), decode errors and
// context cancellation are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}

	// A completed HTTP exchange is never transient, whatever the status.
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return false
	}

	// Caller gave up; retrying would only delay the inevitable.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// url.Error wraps everything the transport can fail with.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return IsTransient(urlErr.Err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
