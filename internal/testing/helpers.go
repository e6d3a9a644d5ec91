// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package testing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kraklabs/openviking/internal/bootstrap"
	"github.com/kraklabs/openviking/pkg/uri"
	"github.com/kraklabs/openviking/pkg/viking"
)

// SetupTestWorkspace initialises a throwaway workspace under t.TempDir
// and returns its root. The workspace uses the local backend, the
// sqlite index and mock providers, so tests run offline.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    workspace := testing.SetupTestWorkspace(t)
//
//	    // workspace/config.yaml and the scope roots exist
//	}
func SetupTestWorkspace(t *testing.T) string {
	t.Helper()

	workspace := filepath.Join(t.TempDir(), "workspace")
	_, err := bootstrap.InitWorkspace(context.Background(), bootstrap.InitConfig{
		Workspace: workspace,
	}, nil)
	if err != nil {
		t.Fatalf("failed to init test workspace: %v", err)
	}
	return workspace
}

// SetupTestEngine initialises a workspace, opens its engine and starts
// the background workers. The engine is closed when the test finishes.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    engine := testing.SetupTestEngine(t)
//
//	    target := testing.SeedResource(t, engine, "guide", "# guide\n\nsome text\n")
//
//	    // Run your tests...
//	}
func SetupTestEngine(t *testing.T) *viking.Engine {
	t.Helper()

	workspace := SetupTestWorkspace(t)
	engine, err := bootstrap.OpenEngine(context.Background(), workspace, nil)
	if err != nil {
		t.Fatalf("failed to open test engine: %v", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("failed to start test engine: %v", err)
	}

	t.Cleanup(func() {
		_ = engine.Close()
	})
	return engine
}

// SeedResource ingests a markdown document and blocks until the
// pipeline has fully processed it. Returns the resource's URI.
func SeedResource(t *testing.T, engine *viking.Engine, name, markdown string) uri.URI {
	t.Helper()

	path := filepath.Join(t.TempDir(), name+".md")
	if err := os.WriteFile(path, []byte(markdown), 0o644); err != nil {
		t.Fatalf("failed to write seed document: %v", err)
	}
	res, err := engine.AddResource(context.Background(), path, viking.AddResourceOptions{Wait: true})
	if err != nil {
		t.Fatalf("failed to seed resource %s: %v", name, err)
	}
	return res.TargetURI
}

// SeedSession creates a session holding the given user messages.
func SeedSession(t *testing.T, engine *viking.Engine, messages ...string) string {
	t.Helper()

	ctx := context.Background()
	id, err := engine.CreateSession(ctx)
	if err != nil {
		t.Fatalf("failed to create test session: %v", err)
	}
	for _, msg := range messages {
		if err := engine.AddMessage(ctx, id, "user", msg); err != nil {
			t.Fatalf("failed to append test message: %v", err)
		}
	}
	return id
}

// DrainQueues blocks until both queues are idle, failing the test if
// they have not drained within 30 seconds.
func DrainQueues(t *testing.T, engine *viking.Engine) {
	t.Helper()

	res, err := engine.Wait(context.Background(), 30*time.Second)
	if err != nil {
		t.Fatalf("failed to wait for queues: %v", err)
	}
	if !res.Idle() {
		t.Fatalf("queues did not drain: %+v", res)
	}
}
