// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestError_Error verifies the Error() method implementation.
func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "with underlying error",
			err: &Error{
				Code:    CodeDependencyError,
				Message: "upsert failed",
				Err:     fmt.Errorf("connection refused"),
			},
			want: "DEPENDENCY_ERROR: upsert failed: connection refused",
		},
		{
			name: "without underlying error",
			err: &Error{
				Code:    CodeInvalidArgument,
				Message: "bad limit",
			},
			want: "INVALID_ARGUMENT: bad limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestCodeOf verifies code extraction across wrapping and context errors.
func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"direct", NotFound("gone"), CodeNotFound},
		{
			"wrapped once",
			fmt.Errorf("promote tree: %w", AlreadyExists("target present")),
			CodeAlreadyExists,
		},
		{
			"wrapped twice",
			fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", NotProcessed("pending"))),
			CodeNotProcessed,
		},
		{"deadline", context.DeadlineExceeded, CodeTimeout},
		{"canceled", context.Canceled, CodeCancelled},
		{
			"wrapped deadline",
			fmt.Errorf("agfs read: %w", context.DeadlineExceeded),
			CodeTimeout,
		},
		{"unclassified", errors.New("plain"), CodeInvariantViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("stat: %w", NotFound("no such uri"))) {
		t.Error("IsNotFound() should see through wrapping")
	}
	if IsNotFound(AlreadyExists("present")) {
		t.Error("IsNotFound() matched the wrong code")
	}
	if IsNotFound(nil) {
		t.Error("IsNotFound(nil) should be false")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"dependency", DependencyError(nil, "backend 503"), true},
		{"timeout", Timeout("deadline"), true},
		{"invalid argument", InvalidArgument("bad limit"), false},
		{"not found", NotFound("gone"), false},
		{"cancelled", Cancelled("caller revoked"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestExitCode verifies the taxonomy-to-exit-code mapping.
func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{InvalidArgument("x"), ExitInput},
		{UnsupportedFormat("x"), ExitInput},
		{NotFound("x"), ExitNotFound},
		{AlreadyExists("x"), ExitConflict},
		{NotProcessed("x"), ExitConflict},
		{Timeout("x"), ExitUnavailable},
		{Cancelled("x"), ExitUnavailable},
		{ResourceExhausted("x"), ExitUnavailable},
		{DependencyError(nil, "x"), ExitUnavailable},
		{InvariantViolation("x"), ExitInternal},
		{errors.New("plain"), ExitInternal},
	}

	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWithCauseAndFixDoNotMutate(t *testing.T) {
	base := NotFound("session missing")
	withCtx := base.WithCause("state.json absent").WithFix("viking session ls")

	if base.Cause != "" {
		t.Error("WithCause mutated the receiver")
	}
	if withCtx.Cause != "state.json absent" || withCtx.Fix != "viking session ls" {
		t.Errorf("unexpected copy: %+v", withCtx)
	}
	if withCtx.Code != base.Code {
		t.Error("copy lost the code")
	}
}

// TestFormat verifies the terminal rendering with colors disabled.
func TestFormat(t *testing.T) {
	err := NotProcessed("abstract not ready").
		WithCause("semantic job still pending").
		WithFix("run 'viking wait'")

	out := err.Format(true)

	for _, want := range []string{
		"Error: abstract not ready [NOT_PROCESSED]",
		"Cause: semantic job still pending",
		"Fix:   run 'viking wait'",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q in:\n%s", want, out)
		}
	}
}

func TestFormatOmitsEmptySections(t *testing.T) {
	out := InvalidArgument("limit must be positive").Format(true)
	if strings.Contains(out, "Cause:") || strings.Contains(out, "Fix:") {
		t.Errorf("Format() rendered empty sections:\n%s", out)
	}
}

func TestAsJSON(t *testing.T) {
	j := AsJSON(fmt.Errorf("outer: %w", Timeout("embedder deadline")))
	if j.Code != "TIMEOUT" {
		t.Errorf("Code = %q, want TIMEOUT", j.Code)
	}
	if j.ExitCode != ExitUnavailable {
		t.Errorf("ExitCode = %d, want %d", j.ExitCode, ExitUnavailable)
	}

	j = AsJSON(errors.New("mystery"))
	if j.Code != string(CodeInvariantViolation) {
		t.Errorf("Code = %q, want %q", j.Code, CodeInvariantViolation)
	}
	if j.Message != "mystery" {
		t.Errorf("Message = %q, want %q", j.Message, "mystery")
	}
}

func TestUnwrapChain(t *testing.T) {
	inner := errors.New("io failure")
	err := DependencyError(inner, "agfs write")
	if !errors.Is(err, inner) {
		t.Error("errors.Is should reach the wrapped error")
	}
}
