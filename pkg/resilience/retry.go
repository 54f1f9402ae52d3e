// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package resilience provides retry with exponential backoff for remote calls.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/jllopis/agis/pkg/errors"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryConfig controls retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first (must be >= 1).
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff delay. Zero means no cap.
	MaxDelay time.Duration

	// Multiplier for exponential backoff (default 2.0).
	Multiplier float64

	// IsRecoverable determines if an error should be retried.
	// If nil, only recoverable AgisErrors are retried.
	IsRecoverable func(error) bool

	// Jitter adds randomness to backoff. 0.1 means ±10%.
	Jitter float64

	// OnRetry is called before sleeping for a retry. attempt is the 1-based
	// number of the attempt that just failed. It is not called after the
	// last attempt.
	OnRetry func(attempt int, delay time.Duration, err error)

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep SleepFunc
}

// DefaultRetryConfig returns the gateway policy: three attempts, each
// recoverable failure followed by a delay of 1s, 2s and 4s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		IsRecoverable: errors.IsRecoverable,
	}
}

// WithMaxAttempts returns a new config with MaxAttempts set.
func (rc RetryConfig) WithMaxAttempts(max int) RetryConfig {
	rc.MaxAttempts = max
	return rc
}

// WithInitialDelay returns a new config with InitialDelay set.
func (rc RetryConfig) WithInitialDelay(d time.Duration) RetryConfig {
	rc.InitialDelay = d
	return rc
}

// WithMaxDelay returns a new config with MaxDelay set.
func (rc RetryConfig) WithMaxDelay(d time.Duration) RetryConfig {
	rc.MaxDelay = d
	return rc
}

// WithIsRecoverable returns a new config with IsRecoverable set.
func (rc RetryConfig) WithIsRecoverable(fn func(error) bool) RetryConfig {
	rc.IsRecoverable = fn
	return rc
}

// WithSleep returns a new config with Sleep set.
func (rc RetryConfig) WithSleep(fn SleepFunc) RetryConfig {
	rc.Sleep = fn
	return rc
}

// WithOnRetry returns a new config with OnRetry set.
func (rc RetryConfig) WithOnRetry(fn func(attempt int, delay time.Duration, err error)) RetryConfig {
	rc.OnRetry = fn
	return rc
}

// Do executes fn with retry logic, returning the last error if all attempts fail.
// Non-recoverable errors are returned immediately. Every recoverable failure,
// the last one included, waits Backoff(attempt) before Do moves on.
func (rc RetryConfig) Do(ctx context.Context, fn func(attempt int) error) error {
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = 1
	}
	if rc.IsRecoverable == nil {
		rc.IsRecoverable = errors.IsRecoverable
	}
	if rc.Sleep == nil {
		rc.Sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= rc.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !rc.IsRecoverable(err) {
			return err
		}

		delay := rc.Backoff(attempt)
		if rc.OnRetry != nil && attempt < rc.MaxAttempts {
			rc.OnRetry(attempt, delay, err)
		}
		if err := rc.Sleep(ctx, delay); err != nil {
			return errors.New(errors.CodeContextLost, "context canceled during retry", err).
				WithContext("attempt", attempt).
				WithContext("max_attempts", rc.MaxAttempts)
		}
	}

	return lastErr
}

// Backoff returns the delay applied after the given failed attempt:
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (rc RetryConfig) Backoff(attempt int) time.Duration {
	if rc.Multiplier == 0 {
		rc.Multiplier = 2.0
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(rc.InitialDelay) * math.Pow(rc.Multiplier, float64(attempt-1)))
	if rc.MaxDelay > 0 && delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}

	if rc.Jitter > 0 {
		jitterRange := float64(delay) * rc.Jitter * 2 * (rand.Float64() - 0.5)
		delay = time.Duration(float64(delay) + jitterRange)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
