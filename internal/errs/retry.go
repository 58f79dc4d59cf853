// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package errs

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// Retry defaults
const (
	DefaultMaxAttempts       = 3
	DefaultBaseDelay         = 100 * time.Millisecond
	DefaultMaxDelay          = 2 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// RetryOptions configures Retry
type RetryOptions struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64

	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryOptions returns the retry policy used by the stores.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:       DefaultMaxAttempts,
		BaseDelay:         DefaultBaseDelay,
		MaxDelay:          DefaultMaxDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.MaxDelay < o.BaseDelay {
		o.MaxDelay = o.BaseDelay
	}
	if o.BackoffMultiplier < 1 {
		o.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	return o
}

// Retry runs op until it succeeds, fails with a non-retryable error, or
// MaxAttempts calls have been made. The last error is returned unchanged.
func Retry(ctx context.Context, opts RetryOptions, op func(ctx context.Context) error) error {
	opts = opts.withDefaults()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = opts.BaseDelay
	exp.Multiplier = opts.BackoffMultiplier
	exp.MaxInterval = opts.MaxDelay
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()

	var err error
	for attempt := 1; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt >= opts.MaxAttempts {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if serr := opts.Sleep(ctx, exp.NextBackOff()); serr != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
