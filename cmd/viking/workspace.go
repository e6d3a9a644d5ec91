// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/kraklabs/openviking/internal/bootstrap"
	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/viking"
)

// resolveWorkspace picks the workspace directory: the --workspace flag
// wins, then VIKING_WORKSPACE, then the default location.
func resolveWorkspace(globals GlobalFlags) string {
	if globals.Workspace != "" {
		return globals.Workspace
	}
	if ws := os.Getenv("VIKING_WORKSPACE"); ws != "" {
		return ws
	}
	return viking.DefaultWorkspace()
}

// openEngine opens the engine for the resolved workspace. Background
// workers are not started: most commands only read or enqueue, and
// leaving jobs pending keeps their output deterministic. Commands that
// drain the queues (add --wait, wait, session commit --wait) call
// startEngine instead. Exits the process on failure.
func openEngine(ctx context.Context, globals GlobalFlags) *viking.Engine {
	eng, err := bootstrap.OpenEngine(ctx, resolveWorkspace(globals), nil)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	return eng
}

// startEngine opens the engine and starts its workers.
func startEngine(ctx context.Context, globals GlobalFlags) *viking.Engine {
	eng := openEngine(ctx, globals)
	if err := eng.Start(ctx); err != nil {
		_ = eng.Close()
		errors.FatalError(err, globals.JSON)
	}
	return eng
}

// closeEngine closes eng. Close errors are logged, not fatal: by the
// time we get here the command output is already on the wire.
func closeEngine(eng *viking.Engine) {
	if err := eng.Close(); err != nil {
		slog.Warn("cli.engine.close_failed", "error", err)
	}
}
