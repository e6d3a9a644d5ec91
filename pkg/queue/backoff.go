// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package queue

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/kraklabs/openviking/internal/errors"
)

// RetryPolicy shapes the exponential backoff applied to summariser, embedder
// and vector upsert calls.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	Multiplier  float64
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.Base <= 0 {
		p.Base = 500 * time.Millisecond
	}
	if p.Cap <= 0 {
		p.Cap = 30 * time.Second
	}
	if p.Multiplier <= 1 {
		p.Multiplier = 2
	}
	return p
}

// withRetry runs fn until it succeeds, fails permanently, or exhausts the
// policy. Only transient failures are retried; between attempts the caller
// sleeps for an exponentially growing, fully jittered delay.
func withRetry(ctx context.Context, p RetryPolicy, logger *slog.Logger, op string, fn func(context.Context) error) error {
	p = p.withDefaults()
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !isTransient(err) || attempt == p.MaxAttempts-1 {
			break
		}
		sleep := backoffWithJitter(p.Base, attempt, p.Multiplier, p.Cap)
		recordRetry()
		logger.Warn("queue.retry",
			"op", op,
			"attempt", attempt+1,
			"sleep_ms", sleep.Milliseconds(),
			"err", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
	return err
}

// isTransient decides whether an error is worth retrying. Classified errors
// answer through the taxonomy; raw provider errors fall back to matching the
// usual network and HTTP failure shapes.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	switch errors.CodeOf(err) {
	case errors.CodeTimeout, errors.CodeDependencyError:
		return true
	case errors.CodeCancelled:
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"timeout", "timed out", "temporarily unavailable",
		"connection refused", "connection reset", "no such host",
		"rate limit", "eof",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	for _, s := range []string{"status 429", "status 500", "status 502", "status 503", "status 504"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// backoffWithJitter returns base*mult^attempt capped at capDur, then draws
// uniformly from [0, d] so synchronised workers spread out.
func backoffWithJitter(base time.Duration, attempt int, mult float64, capDur time.Duration) time.Duration {
	exp := float64(base)
	for i := 0; i < attempt; i++ {
		exp *= mult
	}
	d := time.Duration(exp)
	if d > capDur {
		d = capDur
	}
	if d <= 0 {
		return base
	}
	return time.Duration(rand.Int64N(int64(d) + 1))
}
