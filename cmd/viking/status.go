// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/internal/output"
	"github.com/kraklabs/openviking/internal/ui"
	"github.com/kraklabs/openviking/pkg/viking"
)

// statusReport is the combined status + readiness view for JSON output.
type statusReport struct {
	*viking.StatusResult
	Ready *viking.ReadyResult `json:"ready"`
}

// runStatus executes the 'status' command, showing workspace state:
// backends, queue depths, vector and session counts, plus per-component
// readiness.
//
// Flags:
//   - --json: Output as JSON (default: false)
//
// Examples:
//
//	viking status           Display formatted status
//	viking status --json    Output as JSON for programmatic use
func runStatus(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: viking status [options]

Shows workspace status: backends, queue depths, vector and session
counts, and per-component readiness.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	useJSON := globals.JSON || *jsonOutput

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	st, err := eng.Status(ctx)
	if err != nil {
		errors.FatalError(err, useJSON)
	}
	report := statusReport{StatusResult: st, Ready: eng.Ready(ctx)}

	if useJSON {
		if err := output.Envelope(output.OK(report, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	ui.Header("OpenViking Workspace Status")
	fmt.Printf("Workspace:  %s\n", st.Workspace)
	fmt.Printf("AGFS:       %s\n", st.AGFSBackend)
	fmt.Printf("Vectors:    %s (%d points)\n", st.VectorBackend, st.Vectors)
	fmt.Printf("Summarizer: %s\n", st.Summarizer)
	fmt.Printf("Embedder:   %s\n", st.Embedder)
	fmt.Printf("Sessions:   %d\n", st.Sessions)
	fmt.Println()

	fmt.Println("Queues:")
	fmt.Printf("  semantic:   %d pending, %d in progress, %d done, %d failed\n",
		st.Semantic.Pending, st.Semantic.InProgress, st.Semantic.Done, st.Semantic.Failed)
	fmt.Printf("  embedding:  %d pending, %d in progress, %d done, %d failed\n",
		st.Embedding.Pending, st.Embedding.InProgress, st.Embedding.Done, st.Embedding.Failed)
	fmt.Println()

	if report.Ready.Status == "ok" {
		ui.Success("All components ready")
		return
	}
	ui.Warningf("Degraded: %s", report.Ready.Status)
	for name, state := range report.Ready.Checks {
		if state != "ok" {
			fmt.Printf("  %s: %s\n", name, state)
		}
	}
}
