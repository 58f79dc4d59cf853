// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package errs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleep captures backoff delays without waiting
func recordingSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	var delays []time.Duration
	calls := 0

	err := Retry(context.Background(), RetryOptions{
		MaxAttempts: 5,
		BaseDelay:   10 * time.Millisecond,
		Sleep:       recordingSleep(&delays),
	}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return New(CodeUpgradeBlocked, "busy")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, delays, 2)
}

func TestRetry_ExhaustsExactlyMaxAttempts(t *testing.T) {
	var delays []time.Duration
	calls := 0
	final := New(CodeConnectionTerminated, "terminated")

	err := Retry(context.Background(), RetryOptions{
		MaxAttempts: 4,
		Sleep:       recordingSleep(&delays),
	}, func(ctx context.Context) error {
		calls++
		return final
	})

	require.Error(t, err)
	assert.Same(t, final, err)
	assert.Equal(t, 4, calls)
	assert.Len(t, delays, 3)
}

func TestRetry_NonRetryableFailsFast(t *testing.T) {
	var delays []time.Duration
	calls := 0

	err := Retry(context.Background(), RetryOptions{
		MaxAttempts: 5,
		Sleep:       recordingSleep(&delays),
	}, func(ctx context.Context) error {
		calls++
		return NotFound("segments", "s1")
	})

	assert.True(t, Is(err, CodeItemNotFound))
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestRetry_UnknownErrorsAreRetried(t *testing.T) {
	var delays []time.Duration
	calls := 0

	err := Retry(context.Background(), RetryOptions{
		MaxAttempts: 3,
		Sleep:       recordingSleep(&delays),
	}, func(ctx context.Context) error {
		calls++
		return errors.New("flaky")
	})

	assert.EqualError(t, err, "flaky")
	assert.Equal(t, 3, calls)
}

func TestRetry_ExponentialBackoffCapped(t *testing.T) {
	var delays []time.Duration

	_ = Retry(context.Background(), RetryOptions{
		MaxAttempts:       5,
		BaseDelay:         10 * time.Millisecond,
		MaxDelay:          30 * time.Millisecond,
		BackoffMultiplier: 2,
		Sleep:             recordingSleep(&delays),
	}, func(ctx context.Context) error {
		return New(CodeStorage, "transient")
	})

	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		30 * time.Millisecond,
	}, delays)
}

func TestRetry_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Retry(ctx, RetryOptions{MaxAttempts: 10, BaseDelay: time.Hour}, func(ctx context.Context) error {
		calls++
		cancel()
		return New(CodeStorage, "transient")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
