// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package networking provides HTTP client plumbing shared by the protocol
// engine: a minimal client interface for dependency injection, endpoint URL
// validation, and the transient/application error split the retry layer
// depends on.
package networking

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HttpTimeout is the default timeout for outgoing HTTP requests.
const HttpTimeout = 30 * time.Second

const (
	// HttpScheme is the insecure URL scheme.
	HttpScheme = "http"
	// HttpsScheme is the secure URL scheme.
	HttpsScheme = "https"
)

// HTTPClient is the interface used for outgoing requests. *http.Client
// satisfies it; tests inject recording implementations.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultClient returns an HTTP client with the given timeout. A zero
// timeout falls back to HttpTimeout. The transport-level TLS and proxy
// behavior is the stock library behavior; the host owns anything fancier.
func DefaultClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = HttpTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
		},
	}
}

// IsLocalhost returns true if the host portion of addr refers to the local
// machine (localhost, 127.0.0.0/8, ::1).
func IsLocalhost(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")

	if strings.EqualFold(host, "localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// ValidateEndpointURL checks that rawURL is a well-formed absolute HTTPS URL.
// HTTP is tolerated for localhost so local test providers work.
func ValidateEndpointURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL %q has no host", rawURL)
	}
	switch parsed.Scheme {
	case HttpsScheme:
		return nil
	case HttpScheme:
		if IsLocalhost(parsed.Host) {
			return nil
		}
		return fmt.Errorf("URL %q must use HTTPS", rawURL)
	default:
		return fmt.Errorf("URL %q has unsupported scheme %q", rawURL, parsed.Scheme)
	}
}
