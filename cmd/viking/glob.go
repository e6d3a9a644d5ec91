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
)

// runGlob executes the 'glob' command, enumerating nodes whose path
// relative to the target matches a doublestar pattern.
//
// Examples:
//
//	viking glob "**/*.md" viking://resources
//	viking glob "api/*.go" viking://resources/repo
func runGlob(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("glob", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: viking glob <pattern> <uri>

Enumerates nodes under the target whose relative path matches the
pattern. Patterns use doublestar syntax, so ** crosses directory
levels. Hidden nodes never match.

Examples:
  viking glob "**/*.md" viking://resources
  viking glob "api/*.go" viking://resources/repo
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "Error: glob requires a pattern and a target URI\n")
		fs.Usage()
		os.Exit(1)
	}
	pattern, target := fs.Arg(0), fs.Arg(1)

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	res, err := eng.Glob(ctx, pattern, target)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(res, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	for _, m := range res.Matches {
		fmt.Println(ui.URIText(m.URI))
	}
	fmt.Printf("\n(%d matches)\n", len(res.Matches))
}
