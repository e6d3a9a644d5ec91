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

// runFind executes the 'find' command: hierarchical semantic search
// over the tree.
//
// Flags:
//   - -t, --target: scope the search to a subtree (default: everything)
//   - -n, --limit: maximum results (default from config, max 1000)
//   - --threshold: minimum cosine score in [0,1] (default from config)
//   - --trace: include the request trace in the output
//
// Examples:
//
//	viking find "how do I rotate the api key"
//	viking find "deployment runbook" --target viking://resources --limit 5
//	viking find "user preferences" --target viking://user/memories --json
func runFind(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("find", flag.ExitOnError)
	target := fs.StringP("target", "t", "", "Scope the search to a subtree URI")
	limit := fs.IntP("limit", "n", 0, "Maximum results (0 = config default)")
	threshold := fs.Float64("threshold", -1, "Minimum score in [0,1] (-1 = config default)")
	withTrace := fs.Bool("trace", false, "Include the request trace in the output")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: viking find [options] <query>

Semantic search over the tree. The query is embedded and routed down
the hierarchy: directory abstracts first, then their children, so
results arrive with navigable context.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  viking find "how do I rotate the api key"
  viking find "deployment runbook" --target viking://resources --limit 5
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: exactly one query argument required\n")
		fs.Usage()
		os.Exit(1)
	}
	query := fs.Arg(0)

	opts := viking.FindOptions{
		Target: *target,
		Limit:  *limit,
		Trace:  *withTrace,
	}
	if *threshold >= 0 {
		opts.ScoreThreshold = threshold
	}

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	res, err := eng.Find(ctx, query, opts)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(res, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	if len(res.Results) == 0 {
		fmt.Println("No results")
		return
	}
	for _, r := range res.Results {
		fmt.Printf("%.3f  %s\n", r.Score, ui.URIText(r.URI))
		if r.Abstract != "" {
			fmt.Printf("       %s\n", ui.DimText(firstLine(r.Abstract)))
		}
	}
	fmt.Printf("\n(%d results in %s)\n", len(res.Results), FormatDuration(time.Since(started)))
	if res.Trace != nil {
		_ = output.JSON(res.Trace)
	}
}

// firstLine truncates text to its first line, capped at 100 runes.
func firstLine(text string) string {
	for i, r := range text {
		if r == '\n' {
			text = text[:i]
			break
		}
	}
	runes := []rune(text)
	if len(runes) > 100 {
		return string(runes[:97]) + "..."
	}
	return text
}
