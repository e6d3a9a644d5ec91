// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package queue

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/openviking/internal/errors"
)

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestBackoffWithJitterStaysUnderCeiling(t *testing.T) {
	base := 500 * time.Millisecond
	limit := 30 * time.Second
	for attempt := 0; attempt <= 8; attempt++ {
		ceiling := time.Duration(float64(base) * pow(2, attempt))
		if ceiling > limit {
			ceiling = limit
		}
		for i := 0; i < 50; i++ {
			d := backoffWithJitter(base, attempt, 2, limit)
			assert.GreaterOrEqual(t, d, time.Duration(0), "attempt %d", attempt)
			assert.LessOrEqual(t, d, ceiling, "attempt %d", attempt)
		}
	}
}

func pow(base float64, n int) float64 {
	out := 1.0
	for i := 0; i < n; i++ {
		out *= base
	}
	return out
}

func TestBackoffWithJitterCap(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := backoffWithJitter(500*time.Millisecond, 30, 2, 30*time.Second)
		assert.LessOrEqual(t, d, 30*time.Second)
	}
}

func TestWithRetryTransientThenSuccess(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, Base: time.Millisecond, Cap: 2 * time.Millisecond}
	calls := 0
	err := withRetry(context.Background(), policy, discardLogger(), "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.DependencyError(nil, "model unreachable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryPermanentFailsImmediately(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, Base: time.Millisecond}
	calls := 0
	err := withRetry(context.Background(), policy, discardLogger(), "test", func(ctx context.Context) error {
		calls++
		return errors.InvalidArgument("bad request")
	})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidArgument), "got %v", err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, Base: time.Millisecond, Cap: 2 * time.Millisecond}
	calls := 0
	err := withRetry(context.Background(), policy, discardLogger(), "test", func(ctx context.Context) error {
		calls++
		return errors.Timeout("deadline blown")
	})
	assert.True(t, errors.HasCode(err, errors.CodeTimeout), "got %v", err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := RetryPolicy{MaxAttempts: 5, Base: time.Hour}
	calls := 0
	err := withRetry(ctx, policy, discardLogger(), "test", func(ctx context.Context) error {
		calls++
		return errors.DependencyError(nil, "model unreachable")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "no second attempt after cancellation")
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"dependency error", errors.DependencyError(nil, "agfs down"), true},
		{"timeout", errors.Timeout("too slow"), true},
		{"cancelled", errors.Cancelled("caller gone"), false},
		{"invalid argument", errors.InvalidArgument("bad"), false},
		{"not found", errors.NotFound("missing"), false},
		{"context cancelled", context.Canceled, false},
		{"context deadline", context.DeadlineExceeded, true},
		{"raw connection refused", fmt.Errorf("dial tcp: connection refused"), true},
		{"raw rate limit", fmt.Errorf("provider said rate limit exceeded"), true},
		{"raw http 503", fmt.Errorf("ollama summarize error (status 503): busy"), true},
		{"raw http 400", fmt.Errorf("ollama summarize error (status 400): bad"), false},
		{"plain failure", fmt.Errorf("no parser for input"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isTransient(tc.err))
		})
	}
}
