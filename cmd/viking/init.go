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

	"github.com/kraklabs/openviking/internal/bootstrap"
	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/internal/output"
	"github.com/kraklabs/openviking/internal/ui"
)

// runInit executes the 'init' command, creating and initialising a
// workspace: the directory itself, config.yaml with documented defaults,
// and the scope roots (resources, user, agent, temp, .system) on the
// configured backend.
//
// Initialisation is idempotent. Re-running against an existing workspace
// verifies the layout and leaves config.yaml untouched; backend flags
// only apply when the config file is created.
//
// Flags:
//   - --agfs-backend: AGFS backend (local, s3, remote)
//   - --vector-backend: vector index backend (sqlite, remote)
//   - --summarizer: summariser provider (openai, ollama, mock)
//   - --embedder: embedder provider (openai, ollama, mock)
//
// Examples:
//
//	viking init
//	viking init --workspace /srv/viking
//	viking init --summarizer openai --embedder openai
func runInit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	agfsBackend := fs.String("agfs-backend", "", "AGFS backend: local, s3, remote (default local)")
	vectorBackend := fs.String("vector-backend", "", "Vector backend: sqlite, remote (default sqlite)")
	summarizer := fs.String("summarizer", "", "Summariser provider: openai, ollama, mock (default mock)")
	embedder := fs.String("embedder", "", "Embedder provider: openai, ollama, mock (default mock)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: viking init [options]

Creates the workspace directory, writes config.yaml with documented
defaults, and creates the scope roots on the configured backend.

Re-running is safe: an existing config.yaml is never overwritten, so
the backend and provider flags only take effect on first run.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  viking init
  viking init --workspace /srv/viking
  viking init --summarizer openai --embedder openai
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	started := time.Now()
	info, err := bootstrap.InitWorkspace(context.Background(), bootstrap.InitConfig{
		Workspace:      resolveWorkspace(globals),
		AGFSBackend:    *agfsBackend,
		VectorBackend:  *vectorBackend,
		SummarizerType: *summarizer,
		EmbedderType:   *embedder,
	}, nil)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(info, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	if info.Created {
		ui.Successf("Created workspace %s", info.Workspace)
	} else {
		ui.Successf("Workspace %s is ready", info.Workspace)
	}
	fmt.Printf("Config: %s\n", info.ConfigPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review config.yaml (providers default to mock)")
	fmt.Println("  2. Ingest a document:   viking add README.md --wait")
	fmt.Println("  3. Search it:           viking find \"getting started\"")
}
