// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package retry wraps fallible network operations with bounded
// retry-with-delay. Only connection-level failures are retried; identity
// provider application errors, decode errors and anything else propagate on
// first occurrence.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/authbridge/authbridge/pkg/logger"
	"github.com/authbridge/authbridge/pkg/networking"
)

// Do runs op up to maxRetries+1 times, sleeping delay between attempts.
// A negative maxRetries behaves like zero (single attempt); a negative delay
// is floored to zero. Retries happen only when networking.IsTransient
// classifies the failure as connection-level; when attempts are exhausted,
// the last transient failure is returned.
func Do[T any](ctx context.Context, op func() (T, error), maxRetries int, delay time.Duration) (T, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if delay < 0 {
		delay = 0
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		result, err := op()
		if err != nil && !networking.IsTransient(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(delay)),
		backoff.WithMaxTries(uint(maxRetries+1)), // #nosec G115 -- +1 because it includes the initial attempt
		backoff.WithNotify(func(err error, duration time.Duration) {
			logger.Warnw("transient network failure, retrying",
				"attempt", attempt,
				"max_attempts", maxRetries+1,
				"delay", duration,
				"error", err,
			)
		}),
	)
}
