// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package errors defines the OpenViking error taxonomy.
//
// Every failure that crosses the engine's public surface maps to exactly one
// Code. Internally, errors are created with the per-code constructors and
// wrapped with fmt.Errorf("…: %w", err) at boundaries; CodeOf recovers the
// code anywhere up the chain, so transport layers and the CLI can translate
// any error into the stable {code, message} wire shape.
//
// # Usage Example
//
//	if !st.Exists {
//	    return errors.NotFound("uri %s does not exist", u)
//	}
//
//	if err := fs.Write(ctx, u, data); err != nil {
//	    return fmt.Errorf("persist job: %w", err)
//	}
//
// At the surface:
//
//	code := errors.CodeOf(err)      // e.g. NOT_FOUND
//	exit := errors.ExitCode(err)    // e.g. 6
//
// # Exit Codes
//
// The CLI exits with a semantic code derived from the taxonomy:
//   - ExitSuccess (0): successful execution
//   - ExitInput (4): INVALID_ARGUMENT, UNSUPPORTED_FORMAT
//   - ExitNotFound (6): NOT_FOUND
//   - ExitConflict (7): ALREADY_EXISTS, NOT_PROCESSED
//   - ExitUnavailable (3): RESOURCE_EXHAUSTED, TIMEOUT, CANCELLED, DEPENDENCY_ERROR
//   - ExitInternal (10): INVARIANT_VIOLATION and unclassified errors
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Code identifies one failure class of the public taxonomy.
type Code string

const (
	// CodeNotFound: URI or session does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeAlreadyExists: create-only target already present.
	CodeAlreadyExists Code = "ALREADY_EXISTS"

	// CodeInvalidArgument: malformed URI, unsupported scope, bad parameter.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodeUnsupportedFormat: no parser matches the input.
	CodeUnsupportedFormat Code = "UNSUPPORTED_FORMAT"

	// CodeNotProcessed: semantic artefact requested before its job completed.
	CodeNotProcessed Code = "NOT_PROCESSED"

	// CodeInvariantViolation: internal consistency check failed. Always a bug
	// or corruption, never a caller mistake.
	CodeInvariantViolation Code = "INVARIANT_VIOLATION"

	// CodeResourceExhausted: bounded queue or semaphore at cap and the caller
	// declined to wait.
	CodeResourceExhausted Code = "RESOURCE_EXHAUSTED"

	// CodeTimeout: operation exceeded its deadline.
	CodeTimeout Code = "TIMEOUT"

	// CodeCancelled: caller revoked the request.
	CodeCancelled Code = "CANCELLED"

	// CodeDependencyError: AGFS, VectorDB, summariser, or embedder returned a
	// non-recoverable failure.
	CodeDependencyError Code = "DEPENDENCY_ERROR"
)

// Exit codes for the CLI, derived from the taxonomy.
const (
	ExitSuccess     = 0
	ExitUnavailable = 3
	ExitInput       = 4
	ExitNotFound    = 6
	ExitConflict    = 7
	ExitInternal    = 10
)

// Error carries a taxonomy code plus the structured context the CLI renders:
// what went wrong (Message), why (Cause), and how to fix it (Fix).
type Error struct {
	// Code is the taxonomy class of this failure.
	Code Code

	// Message describes what went wrong in user-facing language.
	Message string

	// Cause explains why the error occurred (diagnostic information).
	Cause string

	// Fix provides an actionable suggestion on how to resolve the error.
	Fix string

	// Err is the underlying error, if any. Enables errors.Is/As chains.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithCause returns a copy carrying diagnostic context.
func (e *Error) WithCause(cause string) *Error {
	c := *e
	c.Cause = cause
	return &c
}

// WithFix returns a copy carrying an actionable suggestion.
func (e *Error) WithFix(fix string) *Error {
	c := *e
	c.Fix = fix
	return &c
}

// New creates a taxonomy error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a taxonomy error around an underlying error.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Per-code constructors. These are the creation points used throughout the
// engine; grep for the constructor name to find all producers of a code.

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, format, args...)
}

func AlreadyExists(format string, args ...any) *Error {
	return New(CodeAlreadyExists, format, args...)
}

func InvalidArgument(format string, args ...any) *Error {
	return New(CodeInvalidArgument, format, args...)
}

func UnsupportedFormat(format string, args ...any) *Error {
	return New(CodeUnsupportedFormat, format, args...)
}

func NotProcessed(format string, args ...any) *Error {
	return New(CodeNotProcessed, format, args...)
}

func InvariantViolation(format string, args ...any) *Error {
	return New(CodeInvariantViolation, format, args...)
}

func ResourceExhausted(format string, args ...any) *Error {
	return New(CodeResourceExhausted, format, args...)
}

func Timeout(format string, args ...any) *Error {
	return New(CodeTimeout, format, args...)
}

func Cancelled(format string, args ...any) *Error {
	return New(CodeCancelled, format, args...)
}

func DependencyError(err error, format string, args ...any) *Error {
	return Wrap(CodeDependencyError, err, format, args...)
}

// CodeOf extracts the taxonomy code from anywhere in an error chain.
//
// Context errors classify without wrapping: context.DeadlineExceeded is
// TIMEOUT and context.Canceled is CANCELLED. Errors with no taxonomy code
// report INVARIANT_VIOLATION, the "this should not happen" class.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	if stderrors.Is(err, context.Canceled) {
		return CodeCancelled
	}
	return CodeInvariantViolation
}

// HasCode reports whether the error chain carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsNotFound is a convenience for the most commonly branched-on code.
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// Retryable reports whether the failure class is transient. Only timeouts and
// dependency errors qualify; everything else either cannot succeed on retry
// or must surface immediately.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeTimeout, CodeDependencyError:
		return true
	}
	return false
}

// ExitCode maps an error to the CLI exit code for its taxonomy class.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch CodeOf(err) {
	case CodeInvalidArgument, CodeUnsupportedFormat:
		return ExitInput
	case CodeNotFound:
		return ExitNotFound
	case CodeAlreadyExists, CodeNotProcessed:
		return ExitConflict
	case CodeResourceExhausted, CodeTimeout, CodeCancelled, CodeDependencyError:
		return ExitUnavailable
	}
	return ExitInternal
}

// Color definitions for error formatting.
var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format returns a formatted error message for terminal display.
//
// Example output:
//
//	Error: cannot read viking://resources/doc [NOT_FOUND]
//	Cause: the resource was removed while the listing was open
//	Fix:   re-run 'viking ls viking://resources'
//
// Empty Cause or Fix fields are omitted. Color output respects the NO_COLOR
// environment variable and the noColor parameter.
//
// Note: this method temporarily modifies the global color.NoColor state and
// restores it after formatting.
func (e *Error) Format(noColor bool) string {
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()

	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString(" [" + string(e.Code) + "]")
	out.WriteString("\n")

	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}

	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}

	return out.String()
}

// ErrorJSON is the machine-readable form used by --json CLI output and by
// the wire envelope.
type ErrorJSON struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// ToJSON converts the error to its JSON-serialisable structure.
func (e *Error) ToJSON() ErrorJSON {
	return ErrorJSON{
		Code:     string(e.Code),
		Message:  e.Message,
		Cause:    e.Cause,
		Fix:      e.Fix,
		ExitCode: ExitCode(e),
	}
}

// AsJSON renders any error into the wire shape, classifying unstructured
// errors through CodeOf.
func AsJSON(err error) ErrorJSON {
	var e *Error
	if stderrors.As(err, &e) {
		return e.ToJSON()
	}
	return ErrorJSON{
		Code:     string(CodeOf(err)),
		Message:  err.Error(),
		ExitCode: ExitCode(err),
	}
}

// FatalError prints the error and exits with its taxonomy exit code.
//
// This function never returns.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stderr)
		enc.SetIndent("", "  ")
		// Encode error is intentionally ignored since we're about to exit.
		_ = enc.Encode(AsJSON(err))
		os.Exit(ExitCode(err))
	}

	var e *Error
	if stderrors.As(err, &e) {
		fmt.Fprint(os.Stderr, e.Format(false))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(ExitCode(err))
}
