// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/internal/output"
	"github.com/kraklabs/openviking/internal/ui"
)

// runReset executes the 'reset' command, deleting all workspace data:
// the AGFS tree, the vector index, everything ingested. config.yaml is
// kept so 'viking init' restores a working layout with the same
// backends.
//
// Flags:
//   - --yes: Confirm the reset (required)
//
// Examples:
//
//	viking reset --yes
func runReset(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	confirm := fs.Bool("yes", false, "Confirm the reset (required)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: viking reset [options]

Deletes all workspace data: the AGFS tree, the vector index, every
ingested resource, memory and session. config.yaml is kept.

WARNING: This operation is destructive and cannot be undone!

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if !*confirm {
		fmt.Fprintf(os.Stderr, "Error: you must pass --yes to confirm the reset\n")
		fmt.Fprintf(os.Stderr, "This will delete all ingested data in the workspace.\n")
		os.Exit(1)
	}

	workspace := resolveWorkspace(globals)
	if _, err := os.Stat(workspace); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "No workspace found at %s\n", workspace)
		os.Exit(0)
	}

	fmt.Printf("Resetting workspace %s...\n", workspace)

	// Data lives in two sibling directories next to config.yaml.
	for _, dir := range []string{"agfs", "vectors"} {
		path := filepath.Join(workspace, dir)
		if err := os.RemoveAll(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to delete %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	fmt.Println("Reset complete. All ingested data has been deleted.")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  viking init    Recreate the workspace layout")
}

// runSweep executes the 'sweep' command, deleting scratch trees under
// viking://temp older than the configured grace period. The engine
// also does this hourly while workers run; the command exists for
// workspaces that only see short-lived CLI invocations.
//
// Examples:
//
//	viking sweep
func runSweep(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: viking sweep

Deletes scratch trees under viking://temp that are older than the
configured grace period (temp.grace_period, default 24h).
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	n, err := eng.SweepTemp(ctx)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(map[string]int{"swept": n}, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}
	ui.Successf("Swept %d expired scratch trees", n)
}
