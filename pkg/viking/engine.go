// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package viking assembles the context engine behind one handle. An
// Engine owns the AGFS workspace, the vector index, the model
// capabilities and the background workers, and exposes the public
// operations: filesystem access, ingestion, retrieval, sessions and
// system introspection. An HTTP collaborator can map these methods
// one-to-one onto routes; the CLI does the same onto commands.
package viking

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/ingest"
	"github.com/kraklabs/openviking/pkg/llm"
	"github.com/kraklabs/openviking/pkg/queue"
	"github.com/kraklabs/openviking/pkg/search"
	"github.com/kraklabs/openviking/pkg/session"
	"github.com/kraklabs/openviking/pkg/trace"
	"github.com/kraklabs/openviking/pkg/uri"
	"github.com/kraklabs/openviking/pkg/vector"
)

// Engine is the assembled context engine. Construct with New, then
// Start to run the background pipeline; Close stops the workers and
// releases the backends. All methods are safe for concurrent use.
type Engine struct {
	cfg    *Config
	logger *slog.Logger

	fs         agfs.FS
	vectors    vector.Store
	summarizer llm.Summarizer
	embedder   llm.Embedder

	registry  *ingest.Registry
	builder   *ingest.Builder
	semantic  *queue.SemanticQueue
	embedQ    *queue.EmbeddingQueue
	semWorker *queue.SemanticWorker
	embWorker *queue.EmbeddingWorker
	retriever *search.Retriever
	sessions  *session.Store
	committer *session.Committer

	mu        sync.Mutex
	started   bool
	closed    bool
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New assembles an engine from the configuration without starting the
// background workers. The context bounds backend dialing (S3 bucket
// checks and the like), not the engine's lifetime.
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.InvalidArgument("%v", err)
	}

	fs, err := openFS(ctx, cfg)
	if err != nil {
		return nil, err
	}
	vectors, err := openVectors(cfg)
	if err != nil {
		return nil, err
	}
	summarizer, err := openSummarizer(cfg)
	if err != nil {
		return nil, err
	}
	embedder, err := openEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	mode, err := ingest.ParseSummaryMode(cfg.Ingest.CodeSummaryMode)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		fs:         fs,
		vectors:    vectors,
		summarizer: summarizer,
		embedder:   embedder,
	}

	lease := queue.StoreOptions{Lease: cfg.LeaseTimeout()}
	retry := queue.RetryPolicy{
		MaxAttempts: cfg.Queue.MaxAttempts,
		Base:        cfg.RetryBase(),
		Cap:         cfg.RetryCap(),
	}

	e.registry = ingest.NewRegistry(fs, logger, ingest.RegistryOptions{
		Split: ingest.SplitOptions{
			SplitTokens: cfg.Ingest.SplitTokens,
			MergeTokens: cfg.Ingest.MergeTokens,
		},
	})
	e.semantic = queue.NewSemanticQueue(fs, logger, lease)
	e.embedQ = queue.NewEmbeddingQueue(fs, logger, lease)
	e.builder = ingest.NewBuilder(fs, e.semantic, logger)
	e.semWorker = queue.NewSemanticWorker(e.semantic, e.embedQ, fs, summarizer, queue.SemanticWorkerConfig{
		MaxConcurrentJobs:  cfg.Queue.MaxConcurrentSemanticJobs,
		MaxConcurrentLLM:   cfg.Queue.MaxConcurrentLLM,
		MaxSectionsPerCall: cfg.Ingest.MaxSectionsPerCall,
		MaxImagesPerCall:   cfg.Ingest.MaxImagesPerCall,
		MaxAttempts:        cfg.Queue.MaxAttempts,
		Mode:               mode,
		Retry:              retry,
	}, logger)
	e.embWorker = queue.NewEmbeddingWorker(e.embedQ, fs, embedder, vectors, queue.EmbeddingWorkerConfig{
		BatchSize:   cfg.Queue.EmbeddingBatchSize,
		MaxAttempts: cfg.Queue.MaxAttempts,
		Retry:       retry,
	}, logger)
	e.retriever = search.NewRetriever(fs, vectors, embedder, search.Config{
		Limit:          cfg.Search.DefaultLimit,
		ScoreThreshold: cfg.Search.ScoreThreshold,
	}, logger)
	e.sessions = session.NewStore(fs, logger)
	e.committer = session.NewCommitter(fs, e.sessions, summarizer, e.builder, logger)

	logger.Info("engine.new",
		"workspace", cfg.Workspace,
		"agfs", backendName(cfg.AGFS.Backend),
		"vector", backendName(cfg.Vector.Backend),
		"summarizer", summarizer.Name(),
		"embedder", embedder.Name(),
	)
	return e, nil
}

func backendName(b string) string {
	if b == "" {
		return "local"
	}
	return b
}

func openFS(ctx context.Context, cfg *Config) (agfs.FS, error) {
	var (
		fs  agfs.FS
		err error
	)
	switch cfg.AGFS.Backend {
	case "", "local":
		if _, statErr := os.Stat(cfg.Workspace); os.IsNotExist(statErr) {
			return nil, errors.NotFound("workspace %s does not exist", cfg.Workspace).
				WithFix("run 'viking init' to create it")
		}
		fs, err = agfs.NewLocal(filepath.Join(cfg.Workspace, "agfs"))
	case "s3":
		fs, err = agfs.NewS3(ctx, cfg.AGFS.S3)
	case "remote":
		fs = agfs.NewRemote(cfg.AGFS.Remote)
	}
	if err != nil {
		return nil, errors.DependencyError(err, "open agfs backend %q", backendName(cfg.AGFS.Backend))
	}
	return timeoutFS{inner: fs, d: cfg.AGFSTimeout()}, nil
}

func openVectors(cfg *Config) (vector.Store, error) {
	var (
		store vector.Store
		err   error
	)
	switch cfg.Vector.Backend {
	case "", "sqlite":
		dir := filepath.Join(cfg.Workspace, "vectors")
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.DependencyError(err, "create vector directory")
		}
		store, err = vector.NewSQLite(filepath.Join(dir, "index.db"))
	case "remote":
		store = vector.NewRemote(cfg.Vector.Remote)
	}
	if err != nil {
		return nil, errors.DependencyError(err, "open vector backend %q", backendName(cfg.Vector.Backend))
	}
	return timeoutVectors{Store: store, d: cfg.VectorTimeout()}, nil
}

func openSummarizer(cfg *Config) (llm.Summarizer, error) {
	var (
		s   llm.Summarizer
		err error
	)
	if cfg.LLM.Summarizer.Type == "" {
		s, err = llm.DefaultSummarizer()
	} else {
		s, err = llm.NewSummarizer(cfg.LLM.Summarizer)
	}
	if err != nil {
		return nil, err
	}
	return timeoutSummarizer{Summarizer: s, d: cfg.SummarizerTimeout()}, nil
}

func openEmbedder(cfg *Config) (llm.Embedder, error) {
	var (
		e   llm.Embedder
		err error
	)
	if cfg.LLM.Embedder.Type == "" {
		e, err = llm.DefaultEmbedder()
	} else {
		e, err = llm.NewEmbedder(cfg.LLM.Embedder)
	}
	if err != nil {
		return nil, err
	}
	return timeoutEmbedder{Embedder: e, d: cfg.EmbedderTimeout()}, nil
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() *Config { return e.cfg }

// EnsureLayout creates the well-known scope roots and system
// directories. Idempotent; bootstrap calls it once per workspace.
func (e *Engine) EnsureLayout(ctx context.Context) error {
	roots := []uri.URI{
		uri.Resources,
		uri.UserMemories,
		uri.AgentSkills,
		uri.TempRoot,
		uri.SemanticQueueRoot,
		uri.EmbeddingQueueRoot,
		uri.SessionsRoot,
	}
	for _, root := range roots {
		if err := e.fs.Mkdir(ctx, root); err != nil {
			return fmt.Errorf("create %s: %w", root, err)
		}
	}
	return nil
}

// Start launches the background pipeline: the semantic worker, the
// embedding worker and the temp sweeper. It first re-runs any session
// commit that a previous process left mid-flight. Start is idempotent.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.InvalidArgument("engine is closed")
	}
	if e.started {
		return nil
	}

	if n, err := e.committer.Recover(ctx); err != nil {
		e.logger.Warn("engine.start.session_recovery_failed", "error", err)
	} else if n > 0 {
		e.logger.Info("engine.start.sessions_recovered", "count", n)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.runCancel = cancel
	e.started = true

	e.wg.Add(3)
	go func() {
		defer e.wg.Done()
		if err := e.semWorker.Run(runCtx); err != nil && !errors.HasCode(err, errors.CodeCancelled) && runCtx.Err() == nil {
			e.logger.Error("engine.semantic_worker.stopped", "error", err)
		}
	}()
	go func() {
		defer e.wg.Done()
		if err := e.embWorker.Run(runCtx); err != nil && !errors.HasCode(err, errors.CodeCancelled) && runCtx.Err() == nil {
			e.logger.Error("engine.embedding_worker.stopped", "error", err)
		}
	}()
	go func() {
		defer e.wg.Done()
		e.sweepTemp(runCtx)
	}()

	e.logger.Info("engine.start")
	return nil
}

// Close stops the workers and closes the vector store. Safe to call
// more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	cancel := e.runCancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	err := e.vectors.Close()
	e.logger.Info("engine.close")
	return err
}

// traceCtx binds a fresh collector into ctx when tracing is requested.
// The returned collector is nil otherwise, and every collector method
// tolerates nil.
func (e *Engine) traceCtx(ctx context.Context, operation string, enabled bool) (context.Context, *trace.Collector) {
	if !enabled {
		return ctx, nil
	}
	tc := trace.NewCollectorLimit(operation, e.cfg.Trace.MaxEvents)
	return trace.NewContext(ctx, tc), tc
}

// finishTrace closes out a collector against the operation outcome. On
// failure the result is logged rather than returned, since errored
// operations surface only the error envelope.
func (e *Engine) finishTrace(tc *trace.Collector, stage string, err error) *trace.Result {
	if tc == nil {
		return nil
	}
	if err != nil {
		tc.SetError(stage, string(errors.CodeOf(err)), err.Error())
		res := tc.Finish("error")
		e.logger.Debug("engine.trace.errored", "trace_id", res.Summary.TraceID, "operation", res.Summary.Operation)
		return nil
	}
	return tc.Finish("ok")
}
