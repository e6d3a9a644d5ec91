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
)

// runWait executes the 'wait' command: it starts the workers in-process
// and blocks until both queues are idle or the timeout passes.
//
// Hitting the timeout is not an error; the final queue state is printed
// either way and the exit code stays 0 so cron jobs can call this
// opportunistically. Failed jobs are reported; requeue them with
// 'viking queue requeue'.
//
// Flags:
//   - -t, --timeout: give up after this long (default 10m, 0 = forever)
//
// Examples:
//
//	viking wait
//	viking wait --timeout 30s
func runWait(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("wait", flag.ExitOnError)
	timeout := fs.DurationP("timeout", "t", 10*time.Minute, "Give up after this long (0 = wait forever)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: viking wait [options]

Runs the semantic and embedding workers until both queues drain.
Pending jobs left behind by 'viking add' (without --wait) are processed
here.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  viking wait
  viking wait --timeout 30s
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx := context.Background()
	eng := startEngine(ctx, globals)
	defer closeEngine(eng)

	progress := NewProgressConfig(globals)
	spinner := NewSpinner(progress, phaseDescription("processing"))

	started := time.Now()
	res, err := eng.Wait(ctx, *timeout)
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

	if res.Idle() {
		ui.Successf("Queues drained: %d jobs processed in %s", res.Processed, FormatDuration(time.Since(started)))
	} else {
		ui.Warningf("Timed out with %d pending, %d in progress", res.Pending, res.InProgress)
	}
	if res.Errors > 0 {
		ui.Warningf("%d jobs failed; inspect with 'viking queue ls <queue> --failed' and requeue with 'viking queue requeue'", res.Errors)
	}
}
