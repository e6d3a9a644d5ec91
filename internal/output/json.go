// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package output provides utilities for consistent CLI output formatting.
//
// This package handles JSON encoding for machine-readable output, ensuring
// every viking command emits the same wire envelope the HTTP collaborator
// uses: {status: "ok", result, time_ms} on success and
// {status: "error", error: {code, message}} on failure. It complements the
// ui package (human-readable output) and the errors package (taxonomy).
//
// # Usage
//
// For envelope output in CLI commands:
//
//	started := time.Now()
//	result, err := eng.Find(ctx, query, opts)
//	if err != nil {
//	    return output.Envelope(output.Err(err))
//	}
//	return output.Envelope(output.OK(result, time.Since(started)))
//
// For raw JSON (e.g. trace dumps):
//
//	if err := output.JSON(traceResult); err != nil {
//	    errors.FatalError(err, true)
//	}
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kraklabs/openviking/internal/errors"
)

// Response is the stable wire envelope for every public operation.
type Response struct {
	Status string            `json:"status"`
	Result any               `json:"result,omitempty"`
	TimeMS int64             `json:"time_ms,omitempty"`
	Error  *errors.ErrorJSON `json:"error,omitempty"`
}

// OK builds a success envelope.
func OK(result any, elapsed time.Duration) Response {
	return Response{
		Status: "ok",
		Result: result,
		TimeMS: elapsed.Milliseconds(),
	}
}

// Err builds an error envelope, classifying the error through the taxonomy.
func Err(err error) Response {
	j := errors.AsJSON(err)
	return Response{
		Status: "error",
		Error:  &j,
	}
}

// Envelope writes a response envelope to stdout (success) or stderr (error).
func Envelope(resp Response) error {
	if resp.Status == "ok" {
		return JSONTo(os.Stdout, resp)
	}
	return JSONTo(os.Stderr, resp)
}

// JSON writes data as pretty-printed JSON to stdout.
//
// The output is formatted with 2-space indentation for readability.
// This is the standard format for --json output in viking CLI commands.
//
// Returns an error if JSON encoding fails (e.g., for unencodable types
// like channels or functions).
func JSON(data any) error {
	return JSONTo(os.Stdout, data)
}

// JSONTo writes data as pretty-printed JSON to the specified writer.
//
// This is useful for testing or when output needs to go somewhere
// other than stdout.
func JSONTo(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("JSON encoding failed: %w", err)
	}
	return nil
}

// JSONCompact writes data as compact JSON to stdout.
//
// The output contains no extra whitespace, making it suitable for
// streaming output or when size matters.
func JSONCompact(data any) error {
	return JSONCompactTo(os.Stdout, data)
}

// JSONCompactTo writes data as compact JSON to the specified writer.
func JSONCompactTo(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("JSON encoding failed: %w", err)
	}
	return nil
}

// JSONError writes an error envelope to stderr.
//
// Returns an error only if JSON encoding itself fails (rare).
func JSONError(err error) error {
	return JSONErrorTo(os.Stderr, err)
}

// JSONErrorTo writes an error envelope to the specified writer.
//
// This is useful for testing.
func JSONErrorTo(w io.Writer, err error) error {
	if encErr := JSONTo(w, Err(err)); encErr != nil {
		return fmt.Errorf("JSON error encoding failed: %w", encErr)
	}
	return nil
}
