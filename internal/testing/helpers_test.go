// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package testing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/openviking/pkg/agfs"
)

// TestSetupTestWorkspace verifies the workspace is fully initialised.
func TestSetupTestWorkspace(t *testing.T) {
	workspace := SetupTestWorkspace(t)

	// Workspace root and config should exist
	info, err := os.Stat(workspace)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = os.Stat(filepath.Join(workspace, "config.yaml"))
	assert.NoError(t, err)
}

// TestSetupTestEngine verifies the engine comes up ready.
func TestSetupTestEngine(t *testing.T) {
	engine := SetupTestEngine(t)
	require.NotNil(t, engine)

	ready := engine.Ready(context.Background())
	assert.Equal(t, "ok", ready.Status)
}

// TestSeedResource verifies seeding runs the full pipeline.
func TestSeedResource(t *testing.T) {
	engine := SetupTestEngine(t)

	target := SeedResource(t, engine, "guide", "# guide\n\nsetup instructions go here\n")
	assert.Equal(t, "viking://resources/guide", string(target))

	// Pipeline finished, so the abstract must exist
	abstract, err := engine.Abstract(context.Background(), string(target))
	require.NoError(t, err)
	assert.NotEmpty(t, abstract)
}

// TestSeedSession verifies session seeding.
func TestSeedSession(t *testing.T) {
	engine := SetupTestEngine(t)

	id := SeedSession(t, engine, "hello", "prefer tabs over spaces")
	require.NotEmpty(t, id)

	sessions, err := engine.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].SessionID)
	assert.Equal(t, 2, sessions[0].Messages)
}

// TestEngineIsolation verifies each test gets an isolated workspace.
func TestEngineIsolation(t *testing.T) {
	// Create first engine and add data
	engine1 := SetupTestEngine(t)
	SeedResource(t, engine1, "first", "# first\n\nonly in engine one\n")

	// Create second engine - should be empty
	engine2 := SetupTestEngine(t)
	entries, err := engine2.Ls(context.Background(), "viking://resources", agfs.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, entries, "second engine should be isolated from first")

	// Verify first engine still has data
	entries1, err := engine1.Ls(context.Background(), "viking://resources", agfs.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, entries1, 1)
}
