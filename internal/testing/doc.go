// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package testing provides fixtures for OpenViking integration tests.
//
// Every fixture runs against a throwaway workspace under t.TempDir with
// the local AGFS backend, the sqlite vector index and mock providers.
// Tests never need network access or credentials.
//
// # Quick Start
//
// Use SetupTestEngine to get a running engine with workers started:
//
//	func TestMyFeature(t *testing.T) {
//	    engine := testing.SetupTestEngine(t)
//
//	    target := testing.SeedResource(t, engine, "guide", "# guide\n\nsome text\n")
//
//	    entries, err := engine.Ls(context.Background(), string(target), agfs.ListOptions{})
//	    require.NoError(t, err)
//	    require.NotEmpty(t, entries)
//	}
//
// # Seeding Test Data
//
//   - SeedResource: ingest a markdown document and wait for processing
//   - SeedSession: create a session with user messages
//   - DrainQueues: block until both queues go idle
//
// SetupTestWorkspace is the lighter option when a test only needs an
// initialised workspace directory and no running engine.
package testing
