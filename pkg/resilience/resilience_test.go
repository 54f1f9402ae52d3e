// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	aerrors "github.com/jllopis/agis/pkg/errors"
)

func recordingSleep(delays *[]time.Duration) SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestRetrySuccess(t *testing.T) {
	var delays []time.Duration
	attempts := 0
	config := DefaultRetryConfig().WithSleep(recordingSleep(&delays))
	err := config.Do(context.Background(), func(int) error {
		attempts++
		if attempts < 3 {
			return aerrors.New(aerrors.CodeServerError, "transient", nil)
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected success, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if len(delays) != 2 {
		t.Errorf("expected 2 delays, got %d", len(delays))
	}
}

func TestRetryLastAttemptSucceeds(t *testing.T) {
	var delays []time.Duration
	attempts := 0
	err := DefaultRetryConfig().WithSleep(recordingSleep(&delays)).Do(context.Background(), func(attempt int) error {
		attempts++
		if attempt < 3 {
			return aerrors.New(aerrors.CodeRateLimit, "throttled", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on the third attempt, got %v", err)
	}
	if attempts != 3 || len(delays) != 2 {
		t.Errorf("expected 3 attempts and 2 delays, got %d and %v", attempts, delays)
	}
}

func TestRetryDelaySequence(t *testing.T) {
	var delays []time.Duration
	attempts := 0
	config := DefaultRetryConfig().WithSleep(recordingSleep(&delays))
	err := config.Do(context.Background(), func(int) error {
		attempts++
		return aerrors.New(aerrors.CodeServerError, "unavailable", nil)
	})

	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d: expected %v, got %v", i, want[i], delays[i])
		}
	}
	if attempts != 3 {
		t.Errorf("expected the call to fail after 3 attempts, got %d", attempts)
	}
}

func TestRetryNonRecoverable(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig().WithSleep(func(context.Context, time.Duration) error {
		t.Fatalf("should not sleep for fatal errors")
		return nil
	})
	err := config.Do(context.Background(), func(int) error {
		attempts++
		return aerrors.New(aerrors.CodeAuth, "bad key", nil)
	})

	if err == nil {
		t.Errorf("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryUntypedErrorIsFatal(t *testing.T) {
	attempts := 0
	err := DefaultRetryConfig().Do(context.Background(), func(int) error {
		attempts++
		return errors.New("boom")
	})
	if err == nil || attempts != 1 {
		t.Fatalf("expected a single failed attempt, got %d (err=%v)", attempts, err)
	}
}

func TestRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := DefaultRetryConfig().WithInitialDelay(time.Hour)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := config.Do(ctx, func(int) error {
		attempts++
		return aerrors.New(aerrors.CodeRateLimit, "throttled", nil)
	})

	if aerrors.CodeOf(err) != aerrors.CodeContextLost {
		t.Errorf("expected CONTEXT_LOST, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", attempts)
	}
}

func TestOnRetryHook(t *testing.T) {
	var seen []int
	config := DefaultRetryConfig().
		WithSleep(func(context.Context, time.Duration) error { return nil }).
		WithOnRetry(func(attempt int, _ time.Duration, _ error) { seen = append(seen, attempt) })

	_ = config.Do(context.Background(), func(int) error {
		return aerrors.New(aerrors.CodeRateLimit, "throttled", nil)
	})

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("unexpected retry attempts %v", seen)
	}
}

func TestBackoffCap(t *testing.T) {
	config := DefaultRetryConfig().WithMaxDelay(3 * time.Second)
	if got := config.Backoff(3); got != 3*time.Second {
		t.Fatalf("expected capped delay 3s, got %v", got)
	}
	if got := config.Backoff(1); got != time.Second {
		t.Fatalf("expected 1s, got %v", got)
	}
}
