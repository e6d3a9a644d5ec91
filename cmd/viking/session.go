// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/internal/output"
	"github.com/kraklabs/openviking/internal/ui"
)

// runSession dispatches the 'session' subcommands: create, add-message,
// commit, delete, list.
//
// Sessions collect a conversation transcript; commit distils it into
// memories under viking://user/memories and enqueues their embeddings.
//
// Examples:
//
//	viking session create
//	viking session add-message <id> user "prefer tabs over spaces"
//	viking session commit <id> --wait
//	viking session list
func runSession(args []string, globals GlobalFlags) {
	if len(args) == 0 {
		sessionUsage()
		os.Exit(1)
	}

	sub := args[0]
	subArgs := args[1:]

	switch sub {
	case "create":
		runSessionCreate(subArgs, globals)
	case "add-message":
		runSessionAddMessage(subArgs, globals)
	case "commit":
		runSessionCommit(subArgs, globals)
	case "delete":
		runSessionDelete(subArgs, globals)
	case "list":
		runSessionList(subArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown session subcommand: %s\n", sub)
		sessionUsage()
		os.Exit(1)
	}
}

func sessionUsage() {
	fmt.Fprintf(os.Stderr, `Usage: viking session <subcommand> [options]

Subcommands:
  create                       Open a fresh session, print its id
  add-message <id> <role> <content>
                               Append one message (role: user|assistant|system)
  commit <id>                  Distil the transcript into memories
  delete <id>                  Remove a session; extracted memories stay
  list                         Enumerate sessions

Examples:
  viking session create
  viking session add-message 2f1c... user "prefer tabs over spaces"
  viking session commit 2f1c... --wait
`)
}

func runSessionCreate(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("session create", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	id, err := eng.CreateSession(ctx)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(map[string]string{"session_id": id}, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}
	fmt.Println(id)
}

func runSessionAddMessage(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("session add-message", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 3 {
		fmt.Fprintf(os.Stderr, "Error: add-message requires <id> <role> <content>\n")
		sessionUsage()
		os.Exit(1)
	}
	id, role, content := fs.Arg(0), fs.Arg(1), fs.Arg(2)

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	if err := eng.AddMessage(ctx, id, role, content); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(map[string]string{"session_id": id}, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}
	ui.Successf("Appended %s message to %s", role, id)
}

func runSessionCommit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("session commit", flag.ExitOnError)
	wait := fs.BoolP("wait", "w", false, "Process the embedding queue before returning")
	withTrace := fs.Bool("trace", false, "Include the request trace in the output")
	timeout := fs.Duration("timeout", 10*time.Minute, "Processing timeout when --wait is set")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: commit requires a session id\n")
		sessionUsage()
		os.Exit(1)
	}
	id := fs.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	res, err := eng.CommitSession(ctx, id, *withTrace)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	// Commit extracts synchronously but embeds async; --wait drains the
	// embedding jobs so the memories are searchable on return.
	if *wait && res.Extracted > 0 {
		if err := eng.Start(ctx); err != nil {
			errors.FatalError(err, globals.JSON)
		}
		if _, err := eng.Wait(ctx, *timeout); err != nil {
			errors.FatalError(err, globals.JSON)
		}
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(res, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	if res.Extracted == 0 {
		ui.Info("Nothing to extract from this session")
		return
	}
	ui.Successf("Extracted %d memories to %s", res.Extracted, res.TargetURI)
	if res.Trace != nil {
		_ = output.JSON(res.Trace)
	}
}

func runSessionDelete(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("session delete", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: delete requires a session id\n")
		sessionUsage()
		os.Exit(1)
	}
	id := fs.Arg(0)

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	if err := eng.DeleteSession(ctx, id); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(map[string]string{"session_id": id}, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}
	ui.Successf("Deleted session %s", id)
}

func runSessionList(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("session list", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	sessions, err := eng.ListSessions(ctx)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(sessions, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tMESSAGES\tCREATED")
	for _, s := range sessions {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.SessionID, s.Status, s.Messages, s.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}
