// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/internal/output"
	"github.com/kraklabs/openviking/internal/ui"
)

// runSkill executes the 'skill' command, storing a distilled skill
// document under viking://agent/skills/<slug>.
//
// The content comes from a file argument, or from stdin when the
// argument is omitted or "-". Processing is queued like any resource;
// run 'viking wait' to make the skill searchable.
//
// Examples:
//
//	viking skill "deploy checklist" ./notes/deploy.md
//	cat howto.md | viking skill "rotate api keys"
func runSkill(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("skill", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: viking skill <name> [file]

Stores a distilled skill document under viking://agent/skills. The
skill name is slugified into the target URI; content is read from the
file argument, or from stdin when the argument is omitted or "-".

Examples:
  viking skill "deploy checklist" ./notes/deploy.md
  cat howto.md | viking skill "rotate api keys"
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fmt.Fprintf(os.Stderr, "Error: skill requires a name and an optional file argument\n")
		fs.Usage()
		os.Exit(1)
	}
	name := fs.Arg(0)

	content, err := readSkillContent(fs.Arg(1))
	if err != nil {
		errors.FatalError(errors.InvalidArgument("read skill content: %v", err), globals.JSON)
	}

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	res, err := eng.AddSkill(ctx, name, string(content))
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(res, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	ui.Successf("Added skill %s", res.TargetURI)
	fmt.Printf("Enqueued: %d semantic jobs\n", res.Enqueued)
	fmt.Println()
	fmt.Println("Run 'viking wait' to make it searchable.")
}

// readSkillContent reads the skill body from path, or stdin when path
// is empty or "-".
func readSkillContent(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path) //nolint:gosec // G304: operator-supplied input path
}
