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
	"github.com/kraklabs/openviking/pkg/queue"
)

// runQueue dispatches the 'queue' subcommands: ls, requeue, prune.
//
// The queues are plain job files on AGFS, so these commands work
// whether or not workers are running elsewhere.
//
// Examples:
//
//	viking queue ls semantic
//	viking queue ls embedding --failed
//	viking queue requeue                  Requeue every failed job
//	viking queue requeue semantic <id>    Requeue one job
//	viking queue prune --older-than 24h
func runQueue(args []string, globals GlobalFlags) {
	if len(args) == 0 {
		queueUsage()
		os.Exit(1)
	}

	sub := args[0]
	subArgs := args[1:]

	switch sub {
	case "ls":
		runQueueLs(subArgs, globals)
	case "requeue":
		runQueueRequeue(subArgs, globals)
	case "prune":
		runQueuePrune(subArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown queue subcommand: %s\n", sub)
		queueUsage()
		os.Exit(1)
	}
}

func queueUsage() {
	fmt.Fprintf(os.Stderr, `Usage: viking queue <subcommand> [options]

Subcommands:
  ls <semantic|embedding>         List jobs in a queue
  requeue [<queue> <job-id>]      Requeue one failed job, or all of them
  prune [--older-than d]          Drop finished jobs

Examples:
  viking queue ls semantic --failed
  viking queue requeue
  viking queue prune --older-than 24h
`)
}

func runQueueLs(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("queue ls", flag.ExitOnError)
	failedOnly := fs.Bool("failed", false, "Show only failed jobs")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: queue ls requires a queue name (semantic or embedding)\n")
		queueUsage()
		os.Exit(1)
	}
	name := fs.Arg(0)

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	jobs, err := eng.QueueJobs(ctx, name)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if *failedOnly {
		kept := jobs[:0]
		for _, j := range jobs {
			if j.Status == queue.StatusFailed {
				kept = append(kept, j)
			}
		}
		jobs = kept
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(jobs, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tATTEMPTS\tURI\tLAST ERROR")
	for _, j := range jobs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", j.ID, j.Status, j.Attempts, j.URI, truncateError(j.LastError))
	}
	_ = w.Flush()
	fmt.Printf("\n(%s)\n", ui.CountText(len(jobs)))
}

func runQueueRequeue(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("queue requeue", flag.ExitOnError)

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	switch fs.NArg() {
	case 0:
		n, err := eng.RequeueFailed(ctx)
		if err != nil {
			errors.FatalError(err, globals.JSON)
		}
		if globals.JSON {
			if err := output.Envelope(output.OK(map[string]int{"requeued": n}, time.Since(started))); err != nil {
				errors.FatalError(err, true)
			}
			return
		}
		ui.Successf("Requeued %d failed jobs", n)
		if n > 0 {
			fmt.Println("Run 'viking wait' to process them.")
		}
	case 2:
		name, id := fs.Arg(0), fs.Arg(1)
		if err := eng.RequeueJob(ctx, name, id); err != nil {
			errors.FatalError(err, globals.JSON)
		}
		if globals.JSON {
			if err := output.Envelope(output.OK(map[string]string{"queue": name, "job_id": id}, time.Since(started))); err != nil {
				errors.FatalError(err, true)
			}
			return
		}
		ui.Successf("Requeued %s/%s", name, id)
	default:
		fmt.Fprintf(os.Stderr, "Error: requeue takes no arguments (all failed) or <queue> <job-id>\n")
		queueUsage()
		os.Exit(1)
	}
}

func runQueuePrune(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("queue prune", flag.ExitOnError)
	olderThan := fs.Duration("older-than", 24*time.Hour, "Drop done jobs older than this")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	n, err := eng.PruneQueues(ctx, *olderThan)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(map[string]int{"pruned": n}, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}
	ui.Successf("Pruned %d finished jobs", n)
}

// truncateError shortens a job error for table display.
func truncateError(msg string) string {
	if len(msg) > 60 {
		return msg[:57] + "..."
	}
	return msg
}
