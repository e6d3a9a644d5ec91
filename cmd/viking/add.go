// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/internal/output"
	"github.com/kraklabs/openviking/internal/ui"
	"github.com/kraklabs/openviking/pkg/viking"
)

// runAdd executes the 'add' command, ingesting a file, directory or URL
// into viking://resources.
//
// Without --wait the command parses and promotes the input, enqueues
// the semantic jobs, and returns; 'viking wait' drains them later. With
// --wait the workers run in-process until both queues are idle, so the
// resource is fully searchable when the command returns.
//
// Flags:
//   - -r, --reason: why this resource is being added (stored in metadata)
//   - -w, --wait: process the queues before returning
//   - --trace: include the request trace in the output
//   - --timeout: bound for --wait (default 10m)
//
// Examples:
//
//	viking add ./docs/handbook.md
//	viking add ./docs --reason "product documentation" --wait
//	viking add https://example.com/guide.html --wait --trace --json
func runAdd(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	reason := fs.StringP("reason", "r", "", "Why this resource is being added")
	wait := fs.BoolP("wait", "w", false, "Process the queues before returning")
	withTrace := fs.Bool("trace", false, "Include the request trace in the output")
	timeout := fs.Duration("timeout", 10*time.Minute, "Processing timeout when --wait is set")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: viking add [options] <path|url>

Ingests a document, directory or URL as a resource. The input is parsed
into sections, promoted under viking://resources, and queued for
summarisation and embedding.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  viking add ./docs/handbook.md
  viking add ./docs --reason "product documentation" --wait
  viking add https://example.com/guide.html --wait --json
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: exactly one path or URL argument required\n")
		fs.Usage()
		os.Exit(1)
	}
	input := fs.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var eng *viking.Engine
	if *wait {
		eng = startEngine(ctx, globals)
	} else {
		eng = openEngine(ctx, globals)
	}
	defer closeEngine(eng)

	progress := NewProgressConfig(globals)
	spinner := NewSpinner(progress, phaseDescription("parsing"))

	started := time.Now()
	res, err := eng.AddResource(ctx, input, viking.AddResourceOptions{
		Reason: *reason,
		Wait:   *wait,
		Trace:  *withTrace,
	})
	if spinner != nil {
		_ = spinner.Finish()
	}
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(res, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	ui.Successf("Added %s", res.TargetURI)
	fmt.Printf("Format:   %s\n", res.Format)
	fmt.Printf("Files:    %d\n", res.Files)
	if *wait {
		fmt.Printf("Processed %d semantic nodes in %s\n", res.Enqueued, FormatDuration(time.Since(started)))
	} else {
		fmt.Printf("Enqueued: %d semantic jobs\n", res.Enqueued)
		fmt.Println()
		fmt.Println("Run 'viking wait' to process them, or re-add with --wait.")
	}
	if res.Trace != nil {
		_ = output.JSON(res.Trace)
	}
}
