// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package viking

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/llm"
	"github.com/kraklabs/openviking/pkg/vector"
)

// ConfigName is the file the workspace configuration lives in.
const ConfigName = "config.yaml"

// Config holds the whole engine configuration. Durations are strings in
// time.ParseDuration syntax; the accessor methods apply defaults when a
// field is empty or unparseable.
type Config struct {
	// Workspace is the root directory holding agfs/, vectors/ and the
	// config file. Defaults to ~/.openviking.
	Workspace string `yaml:"workspace"`

	AGFS    AGFSConfig    `yaml:"agfs"`
	Vector  VectorConfig  `yaml:"vector"`
	LLM     LLMConfig     `yaml:"llm"`
	Queue   QueueConfig   `yaml:"queue"`
	Retry   RetryConfig   `yaml:"retry"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Search  SearchConfig  `yaml:"search"`
	Timeout TimeoutConfig `yaml:"timeouts"`
	Trace   TraceConfig   `yaml:"trace"`
	Temp    TempConfig    `yaml:"temp"`
}

// AGFSConfig selects and configures the filesystem backend.
type AGFSConfig struct {
	Backend string            `yaml:"backend"` // local, s3, remote
	S3      agfs.S3Config     `yaml:"s3"`
	Remote  agfs.RemoteConfig `yaml:"remote"`
}

// VectorConfig selects and configures the vector index backend.
type VectorConfig struct {
	Backend string              `yaml:"backend"` // sqlite, remote
	Remote  vector.RemoteConfig `yaml:"remote"`
}

// LLMConfig configures the two model capabilities.
type LLMConfig struct {
	Summarizer llm.ProviderConfig `yaml:"summarizer"`
	Embedder   llm.ProviderConfig `yaml:"embedder"`
}

// QueueConfig tunes the background workers.
type QueueConfig struct {
	MaxConcurrentSemanticJobs int    `yaml:"max_concurrent_semantic_jobs"`
	MaxConcurrentLLM          int    `yaml:"max_concurrent_llm"`
	EmbeddingBatchSize        int    `yaml:"embedding_batch_size"`
	LeaseTimeout              string `yaml:"lease_timeout"`
	MaxAttempts               int    `yaml:"max_attempts"`
}

// RetryConfig shapes the backoff schedule for transient failures.
type RetryConfig struct {
	Base string `yaml:"base"`
	Cap  string `yaml:"cap"`
}

// IngestConfig tunes parsing and summarisation.
type IngestConfig struct {
	CodeSummaryMode    string `yaml:"code_summary_mode"` // ast, llm, ast_llm
	MaxImagesPerCall   int    `yaml:"max_images_per_call"`
	MaxSectionsPerCall int    `yaml:"max_sections_per_call"`
	SplitTokens        int    `yaml:"split_tokens"`
	MergeTokens        int    `yaml:"merge_tokens"`
}

// SearchConfig tunes the retriever.
type SearchConfig struct {
	DefaultLimit   int     `yaml:"default_limit"`
	ScoreThreshold float64 `yaml:"score_threshold"`
}

// TimeoutConfig bounds single calls against external dependencies.
type TimeoutConfig struct {
	Summarizer string `yaml:"summarizer"`
	Embedder   string `yaml:"embedder"`
	AGFS       string `yaml:"agfs"`
	Vector     string `yaml:"vector"`
}

// TraceConfig tunes request tracing.
type TraceConfig struct {
	MaxEvents int `yaml:"max_events"`
}

// TempConfig tunes garbage collection of abandoned scratch trees.
type TempConfig struct {
	GracePeriod string `yaml:"grace_period"`
}

// DefaultWorkspace returns ~/.openviking, or ./.openviking when the home
// directory cannot be resolved.
func DefaultWorkspace() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".openviking"
	}
	return filepath.Join(home, ".openviking")
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Workspace: DefaultWorkspace(),
		AGFS:      AGFSConfig{Backend: "local"},
		Vector:    VectorConfig{Backend: "sqlite"},
		LLM: LLMConfig{
			Summarizer: llm.ProviderConfig{Type: "mock"},
			Embedder:   llm.ProviderConfig{Type: "mock"},
		},
		Queue: QueueConfig{
			MaxConcurrentSemanticJobs: 10,
			MaxConcurrentLLM:          10,
			EmbeddingBatchSize:        32,
			LeaseTimeout:              "10m",
			MaxAttempts:               5,
		},
		Retry: RetryConfig{Base: "500ms", Cap: "30s"},
		Ingest: IngestConfig{
			CodeSummaryMode:    "ast",
			MaxImagesPerCall:   10,
			MaxSectionsPerCall: 20,
			SplitTokens:        1024,
			MergeTokens:        512,
		},
		Search: SearchConfig{
			DefaultLimit:   10,
			ScoreThreshold: 0.3,
		},
		Timeout: TimeoutConfig{
			Summarizer: "180s",
			Embedder:   "60s",
			AGFS:       "30s",
			Vector:     "10s",
		},
		Trace: TraceConfig{MaxEvents: 500},
		Temp:  TempConfig{GracePeriod: "24h"},
	}
}

// ConfigPath returns the config file location inside a workspace.
func ConfigPath(workspace string) string {
	return filepath.Join(workspace, ConfigName)
}

// LoadConfig reads a config file, layering it over the defaults. A missing
// file returns the defaults unchanged; a present but unreadable one is an
// error. Environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = ConfigPath(cfg.Workspace)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if ws := os.Getenv("VIKING_WORKSPACE"); ws != "" {
		c.Workspace = ws
	}
	if b := os.Getenv("VIKING_AGFS_BACKEND"); b != "" {
		c.AGFS.Backend = b
	}
	if b := os.Getenv("VIKING_VECTOR_BACKEND"); b != "" {
		c.Vector.Backend = b
	}
}

// Validate rejects configurations the engine cannot start with.
func (c *Config) Validate() error {
	switch c.AGFS.Backend {
	case "", "local", "s3", "remote":
	default:
		return fmt.Errorf("agfs.backend %q is not one of local, s3, remote", c.AGFS.Backend)
	}
	switch c.Vector.Backend {
	case "", "sqlite", "remote":
	default:
		return fmt.Errorf("vector.backend %q is not one of sqlite, remote", c.Vector.Backend)
	}
	switch c.Ingest.CodeSummaryMode {
	case "", "ast", "llm", "ast_llm":
	default:
		return fmt.Errorf("ingest.code_summary_mode %q is not one of ast, llm, ast_llm", c.Ingest.CodeSummaryMode)
	}
	if c.Search.ScoreThreshold < 0 || c.Search.ScoreThreshold > 1 {
		return fmt.Errorf("search.score_threshold %g is outside [0, 1]", c.Search.ScoreThreshold)
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// LeaseTimeout returns queue.lease_timeout as a duration.
func (c *Config) LeaseTimeout() time.Duration {
	return parseDuration(c.Queue.LeaseTimeout, 10*time.Minute)
}

// RetryBase returns retry.base as a duration.
func (c *Config) RetryBase() time.Duration {
	return parseDuration(c.Retry.Base, 500*time.Millisecond)
}

// RetryCap returns retry.cap as a duration.
func (c *Config) RetryCap() time.Duration {
	return parseDuration(c.Retry.Cap, 30*time.Second)
}

// SummarizerTimeout returns timeouts.summarizer as a duration.
func (c *Config) SummarizerTimeout() time.Duration {
	return parseDuration(c.Timeout.Summarizer, 180*time.Second)
}

// EmbedderTimeout returns timeouts.embedder as a duration.
func (c *Config) EmbedderTimeout() time.Duration {
	return parseDuration(c.Timeout.Embedder, 60*time.Second)
}

// AGFSTimeout returns timeouts.agfs as a duration.
func (c *Config) AGFSTimeout() time.Duration {
	return parseDuration(c.Timeout.AGFS, 30*time.Second)
}

// VectorTimeout returns timeouts.vector as a duration.
func (c *Config) VectorTimeout() time.Duration {
	return parseDuration(c.Timeout.Vector, 10*time.Second)
}

// TempGracePeriod returns temp.grace_period as a duration.
func (c *Config) TempGracePeriod() time.Duration {
	return parseDuration(c.Temp.GracePeriod, 24*time.Hour)
}
