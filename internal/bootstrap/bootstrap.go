// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kraklabs/openviking/pkg/viking"
)

// InitConfig holds the choices an operator can make at workspace
// creation time. Zero values fall back to the documented defaults.
type InitConfig struct {
	// Workspace is the root directory. Defaults to ~/.openviking.
	Workspace string

	// AGFSBackend selects the filesystem backend: "local", "s3" or
	// "remote". Defaults to "local".
	AGFSBackend string

	// VectorBackend selects the index backend: "sqlite" or "remote".
	// Defaults to "sqlite".
	VectorBackend string

	// SummarizerType and EmbedderType select the model providers:
	// "openai", "ollama" or "mock". Default to "mock".
	SummarizerType string
	EmbedderType   string
}

// WorkspaceInfo describes an initialised workspace.
type WorkspaceInfo struct {
	Workspace  string
	ConfigPath string

	// Created is false when the workspace already existed and init only
	// verified it.
	Created bool
}

// InitWorkspace creates a workspace: the root directory, a config.yaml
// with the documented defaults (plus any overrides from config), and
// the scope roots on the configured backend. Idempotent: running it
// against an existing workspace keeps the existing config and only
// re-verifies the layout.
func InitWorkspace(ctx context.Context, config InitConfig, logger *slog.Logger) (*WorkspaceInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	workspace := config.Workspace
	if workspace == "" {
		workspace = viking.DefaultWorkspace()
	}

	logger.Info("bootstrap.workspace.init.start", "workspace", workspace)

	created := false
	if _, err := os.Stat(workspace); os.IsNotExist(err) {
		if err := os.MkdirAll(workspace, 0o750); err != nil {
			return nil, fmt.Errorf("create workspace: %w", err)
		}
		created = true
	}

	configPath := viking.ConfigPath(workspace)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := viking.DefaultConfig()
		cfg.Workspace = workspace
		if config.AGFSBackend != "" {
			cfg.AGFS.Backend = config.AGFSBackend
		}
		if config.VectorBackend != "" {
			cfg.Vector.Backend = config.VectorBackend
		}
		if config.SummarizerType != "" {
			cfg.LLM.Summarizer.Type = config.SummarizerType
		}
		if config.EmbedderType != "" {
			cfg.LLM.Embedder.Type = config.EmbedderType
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if err := cfg.Save(configPath); err != nil {
			return nil, err
		}
		logger.Info("bootstrap.workspace.config.written", "path", configPath)
	}

	// Open the engine once to create the scope roots on the configured
	// backend, then release it. Catches backend misconfiguration at
	// init time instead of on first use.
	cfg, err := viking.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Workspace = workspace
	engine, err := viking.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = engine.Close() }()
	if err := engine.EnsureLayout(ctx); err != nil {
		return nil, fmt.Errorf("create workspace layout: %w", err)
	}

	logger.Info("bootstrap.workspace.init.success",
		"workspace", workspace,
		"created", created,
	)
	return &WorkspaceInfo{
		Workspace:  workspace,
		ConfigPath: configPath,
		Created:    created,
	}, nil
}

// OpenEngine opens the engine of an existing workspace without starting
// its workers. The caller owns the engine and must Close it.
func OpenEngine(ctx context.Context, workspace string, logger *slog.Logger) (*viking.Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if workspace == "" {
		workspace = viking.DefaultWorkspace()
	}

	cfg, err := viking.LoadConfig(viking.ConfigPath(workspace))
	if err != nil {
		return nil, err
	}
	cfg.Workspace = workspace

	logger.Debug("bootstrap.workspace.open", "workspace", workspace)
	return viking.New(ctx, cfg, logger)
}
