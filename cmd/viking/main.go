// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package main implements the viking CLI for managing an OpenViking
// context workspace: ingesting resources, searching the semantic tree,
// and operating the background queues.
//
// Usage:
//
//	viking init                        Create and initialise a workspace
//	viking add <path|url>              Ingest a document, directory or URL
//	viking find <query>                Semantic search over the tree
//	viking ls <uri>                    List children of a directory
//	viking status [--json]             Show workspace status
//	viking wait                        Drain the processing queues
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/kraklabs/openviking/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags carries the options every command honours.
type GlobalFlags struct {
	// Workspace overrides the workspace directory (default ~/.openviking,
	// or VIKING_WORKSPACE).
	Workspace string

	// JSON emits the machine envelope instead of human output. Implies Quiet.
	JSON bool

	// Quiet suppresses progress and informational output.
	Quiet bool

	// NoColor disables ANSI colours.
	NoColor bool

	// Verbose raises log verbosity: 0 warnings, 1 info, 2 debug.
	Verbose int
}

// main parses global flags and dispatches to the command handlers.
//
// Commands:
//   - init: create and initialise a workspace
//   - add / skill: ingest resources and skills
//   - find / grep / glob: search the tree
//   - ls / tree / stat / cat / write / rm / mv / abstract / overview: filesystem surface
//   - session: manage conversation sessions and memory commits
//   - status / queue / wait / sweep / reset: operate the workspace
//   - completion: generate shell completion scripts
func main() {
	var (
		globals     GlobalFlags
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.StringVar(&globals.Workspace, "workspace", "", "Workspace directory (default: ~/.openviking or $VIKING_WORKSPACE)")
	flag.BoolVar(&globals.JSON, "json", false, "Emit machine-readable JSON envelopes")
	flag.BoolVar(&globals.Quiet, "q", false, "Suppress progress and informational output")
	flag.BoolVar(&globals.NoColor, "no-color", false, "Disable coloured output")
	flag.IntVar(&globals.Verbose, "verbose", 0, "Log verbosity: 0 warnings, 1 info, 2 debug")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `viking - OpenViking context engine

OpenViking is a context database for AI agents. It ingests documents,
code and conversations into a hierarchical semantic tree on a virtual
filesystem, indexes it for vector search, and answers natural-language
queries over the result.

Usage:
  viking [global options] <command> [options]

Commands:
  init          Create and initialise a workspace
  add           Ingest a document, directory or URL as a resource
  skill         Store a distilled skill under viking://agent/skills
  find          Semantic search over the tree
  grep          Literal/regexp search over leaf contents
  glob          Enumerate nodes matching a path pattern
  ls            List children of a directory
  tree          Nested listing of a subtree
  stat          Show node metadata
  cat           Print file content
  write         Write file content from stdin or an argument
  rm            Remove a resource and its index entries
  mv            Move a resource, carrying its vectors
  abstract      Print a directory's L1 summary
  overview      Print a directory's L0 navigation map
  session       Manage sessions: create, add-message, commit, delete, list
  status        Show workspace and queue status
  queue         Inspect and repair the processing queues
  wait          Run the workers until the queues drain
  sweep         Delete expired scratch trees under viking://temp
  reset         Delete all workspace data (destructive!)
  completion    Generate shell completion script (bash|zsh|fish)

Global Options:
  --workspace   Workspace directory (default: ~/.openviking)
  --json        Emit machine-readable JSON envelopes
  -q            Suppress progress and informational output
  --no-color    Disable coloured output
  --verbose     Log verbosity: 0 warnings, 1 info, 2 debug
  --version     Show version and exit

Examples:
  viking init
  viking add ./docs --reason "product documentation" --wait
  viking find "how do I rotate the api key" --target viking://resources
  viking ls viking://resources
  viking status --json
  viking session create

Getting Started:
  1. Initialise a workspace:    viking init
  2. Ingest your first doc:     viking add README.md --wait
  3. Search it:                 viking find "getting started"

Data Storage:
  Workspace data lives in ~/.openviking (config.yaml, agfs/, vectors/).

Environment Variables:
  VIKING_WORKSPACE         Workspace directory override
  VIKING_SOFT_LIMIT_BYTES  Payload soft limit override

For detailed command help: viking <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("viking version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	// JSON output is for machines; progress noise would corrupt it.
	if globals.JSON {
		globals.Quiet = true
	}

	ui.InitColors(globals.NoColor)
	setupLogging(globals)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "add":
		runAdd(cmdArgs, globals)
	case "skill":
		runSkill(cmdArgs, globals)
	case "find":
		runFind(cmdArgs, globals)
	case "grep":
		runGrep(cmdArgs, globals)
	case "glob":
		runGlob(cmdArgs, globals)
	case "ls":
		runLs(cmdArgs, globals)
	case "tree":
		runTree(cmdArgs, globals)
	case "stat":
		runStat(cmdArgs, globals)
	case "cat":
		runCat(cmdArgs, globals)
	case "write":
		runWrite(cmdArgs, globals)
	case "rm":
		runRm(cmdArgs, globals)
	case "mv":
		runMv(cmdArgs, globals)
	case "abstract":
		runAbstract(cmdArgs, globals)
	case "overview":
		runOverview(cmdArgs, globals)
	case "session":
		runSession(cmdArgs, globals)
	case "status":
		runStatus(cmdArgs, globals)
	case "queue":
		runQueue(cmdArgs, globals)
	case "wait":
		runWait(cmdArgs, globals)
	case "sweep":
		runSweep(cmdArgs, globals)
	case "reset":
		runReset(cmdArgs, globals)
	case "completion":
		runCompletion(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

// setupLogging installs the process-wide slog handler. Logs go to stderr
// so they never mix with command output on stdout.
func setupLogging(globals GlobalFlags) {
	level := slog.LevelWarn
	switch {
	case globals.Quiet:
		level = slog.LevelError
	case globals.Verbose >= 2:
		level = slog.LevelDebug
	case globals.Verbose == 1:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
