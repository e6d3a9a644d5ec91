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

// runGrep executes the 'grep' command: exact content search over leaf
// files, the literal complement to 'viking find'.
//
// Flags:
//   - -t, --target: scope the scan to a subtree (default: everything)
//   - -i, --ignore-case: case-insensitive matching
//   - -n, --max-results: stop after this many matches (default 100)
//
// Examples:
//
//	viking grep "func main" --target viking://resources/repo
//	viking grep -i "api key" --max-results 20
func runGrep(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("grep", flag.ExitOnError)
	target := fs.StringP("target", "t", "", "Scope the scan to a subtree URI")
	ignoreCase := fs.BoolP("ignore-case", "i", false, "Case-insensitive matching")
	maxResults := fs.IntP("max-results", "n", 0, "Stop after this many matches (0 = default 100)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: viking grep [options] <pattern>

Scans leaf file contents for a Go regular expression. Nothing semantic
happens here: every visible file under the target is read and matched
line by line. Binary and hidden files are skipped.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  viking grep "func main" --target viking://resources/repo
  viking grep -i "api key" --max-results 20
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: exactly one pattern argument required\n")
		fs.Usage()
		os.Exit(1)
	}
	pattern := fs.Arg(0)

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	res, err := eng.Grep(ctx, pattern, viking.GrepOptions{
		Target:          *target,
		CaseInsensitive: *ignoreCase,
		MaxResults:      *maxResults,
	})
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
		fmt.Printf("%s:%d: %s\n", ui.URIText(m.URI), m.Line, m.Text)
	}
	fmt.Printf("\n(%d matches, %d files scanned", len(res.Matches), res.FilesScanned)
	if res.Truncated {
		fmt.Print(", truncated")
	}
	fmt.Println(")")
}
