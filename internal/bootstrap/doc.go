// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package bootstrap handles workspace initialisation and opening.
//
// This internal package creates the on-disk workspace layout the engine
// expects: the root directory, a config.yaml with documented defaults,
// and the scope roots (resources, user/memories, agent/skills, temp,
// .system) on the configured backend.
//
// # Initialisation workflow
//
// A typical workflow for setting up a new workspace:
//
//	// Initialise the workspace (creates directories and config)
//	info, err := bootstrap.InitWorkspace(ctx, bootstrap.InitConfig{
//	    Workspace:   "/srv/viking",
//	    AGFSBackend: "local", // Optional: defaults to local
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Workspace initialised at: %s\n", info.Workspace)
//
//	// Later, open the engine against the workspace
//	engine, err := bootstrap.OpenEngine(ctx, "/srv/viking", logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
// # Idempotency
//
// InitWorkspace is idempotent: running it against an existing workspace
// keeps the existing config.yaml untouched and only re-verifies the
// layout. This makes it suitable for scripts and automated workflows.
//
// # Configuration
//
// InitConfig controls what the fresh config.yaml records:
//
//   - Workspace: Optional. Root directory. Defaults to ~/.openviking.
//   - AGFSBackend: Optional. One of "local", "s3", "remote". Defaults to local.
//   - VectorBackend: Optional. One of "sqlite", "remote". Defaults to sqlite.
//   - SummarizerType, EmbedderType: Optional. One of "openai", "ollama",
//     "mock". Default to mock so a fresh workspace works offline.
//
// Overrides only apply when the config file is being created; an existing
// file is authoritative and edited by hand.
package bootstrap
