// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"fmt"
	"os"
	"strconv"
)

const (
	// DefaultSoftLimitBytes is the baseline soft limit for write and ingest
	// payloads.
	DefaultSoftLimitBytes = 64 << 20 // 64 MiB

	// ReasonMaxBytes is the maximum length for the optional ingest reason
	// field recorded alongside a resource.
	ReasonMaxBytes = 1024

	// MaxFindLimit caps the result count a single find call may request.
	MaxFindLimit = 1000

	// MaxNodeLimit caps ls/tree enumeration to keep single responses bounded.
	MaxNodeLimit = 10000
)

// SoftLimitBytes returns the effective soft limit for payload size.
// Controlled via env VIKING_SOFT_LIMIT_BYTES; falls back to DefaultSoftLimitBytes.
func SoftLimitBytes() int {
	if v := os.Getenv("VIKING_SOFT_LIMIT_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return DefaultSoftLimitBytes
}

// ValidationResult represents the result of a validation check.
type ValidationResult struct {
	OK      bool
	Message string
}

func ok() *ValidationResult { return &ValidationResult{OK: true} }

func fail(format string, args ...any) *ValidationResult {
	return &ValidationResult{OK: false, Message: fmt.Sprintf(format, args...)}
}

// ValidatePayload checks a write or ingest payload against the soft limit.
func ValidatePayload(data []byte) *ValidationResult {
	if len(data) > SoftLimitBytes() {
		return fail("payload of %d bytes exceeds soft limit of %d", len(data), SoftLimitBytes())
	}
	return ok()
}

// ValidateLimit checks a result-count limit. Zero means "use the default"
// and is accepted; negative values and values over MaxFindLimit are not.
func ValidateLimit(limit int) *ValidationResult {
	if limit < 0 {
		return fail("limit must not be negative, got %d", limit)
	}
	if limit > MaxFindLimit {
		return fail("limit %d exceeds maximum of %d", limit, MaxFindLimit)
	}
	return ok()
}

// ValidateNodeLimit checks an ls/tree node budget, zero meaning default.
func ValidateNodeLimit(n int) *ValidationResult {
	if n < 0 {
		return fail("node_limit must not be negative, got %d", n)
	}
	if n > MaxNodeLimit {
		return fail("node_limit %d exceeds maximum of %d", n, MaxNodeLimit)
	}
	return ok()
}

// ValidateScoreThreshold checks a similarity threshold. Scores are clamped
// into [0, 1] before comparison, so thresholds outside that range can never
// match anything meaningful.
func ValidateScoreThreshold(t float64) *ValidationResult {
	if t < 0 || t > 1 {
		return fail("score_threshold must be within [0, 1], got %g", t)
	}
	return ok()
}

// ValidateReason checks the optional ingest reason annotation.
func ValidateReason(reason string) *ValidationResult {
	if len(reason) > ReasonMaxBytes {
		return fail("reason of %d bytes exceeds maximum of %d", len(reason), ReasonMaxBytes)
	}
	return ok()
}

// ValidateRange checks a read window. Both values are byte offsets; zero
// limit means "to the end".
func ValidateRange(offset, limit int64) *ValidationResult {
	if offset < 0 {
		return fail("offset must not be negative, got %d", offset)
	}
	if limit < 0 {
		return fail("limit must not be negative, got %d", limit)
	}
	return ok()
}
