// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/ingest"
	"github.com/kraklabs/openviking/pkg/llm"
	"github.com/kraklabs/openviking/pkg/uri"
)

// SemanticQueue schedules directory summarisation. Each job covers one
// directory; a tree promoted by the builder fans out into one job per
// directory so the worker can process leaves first.
type SemanticQueue struct {
	*Store
	wake chan struct{}
}

// NewSemanticQueue opens the semantic queue of a workspace.
func NewSemanticQueue(fs agfs.FS, logger *slog.Logger, opts StoreOptions) *SemanticQueue {
	return &SemanticQueue{
		Store: NewStore(fs, uri.SemanticQueueRoot, logger, opts),
		wake:  make(chan struct{}, 1),
	}
}

// Wake nudges the worker loop without waiting for the next poll tick.
func (q *SemanticQueue) Wake() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// WakeC is the channel the worker selects on.
func (q *SemanticQueue) WakeC() <-chan struct{} { return q.wake }

// EnqueueTree walks the subtree at root and enqueues one pending job per
// directory, including root itself. Directories that already carry a live
// job are skipped, so re-running on a half-enqueued tree is safe. Returns
// the number of jobs created.
//
// This is the single entry point by which promoted content reaches the
// semantic pipeline; the ingest builder calls it after every promotion.
func (q *SemanticQueue) EnqueueTree(ctx context.Context, root uri.URI, kind string) (int, error) {
	st, err := q.fs.Stat(ctx, root)
	if err != nil {
		return 0, err
	}
	if !st.Exists {
		return 0, errors.NotFound("uri %s does not exist", root)
	}
	if !st.IsDir {
		return 0, errors.InvalidArgument("uri %s is not a directory", root)
	}

	jobs, err := q.List(ctx)
	if err != nil {
		return 0, err
	}
	live := make(map[uri.URI]bool)
	for _, j := range jobs {
		if j.Status != StatusDone {
			live[j.URI] = true
		}
	}

	type frame struct {
		dir    uri.URI
		parent uri.URI
	}
	stack := []frame{{dir: root}}
	enqueued := 0
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !live[f.dir] {
			if err := q.Enqueue(ctx, NewSemanticJob(f.dir, kind, f.parent)); err != nil {
				return enqueued, err
			}
			enqueued++
		}
		entries, err := q.fs.List(ctx, f.dir, agfs.ListOptions{})
		if err != nil {
			return enqueued, err
		}
		for _, e := range entries {
			if e.IsDir {
				stack = append(stack, frame{dir: e.URI, parent: f.dir})
			}
		}
	}

	q.logger.Info("queue.semantic.enqueue_tree",
		"root", root.String(),
		"kind", kind,
		"jobs", enqueued,
	)
	if enqueued > 0 {
		q.Wake()
	}
	return enqueued, nil
}

// SemanticWorkerConfig tunes the summarisation worker.
type SemanticWorkerConfig struct {
	// MaxConcurrentJobs caps directories processed in parallel.
	MaxConcurrentJobs int

	// MaxConcurrentLLM caps summariser calls in flight within one directory.
	MaxConcurrentLLM int

	// MaxSectionsPerCall bounds how many file sections share one model call.
	MaxSectionsPerCall int

	// MaxImagesPerCall bounds how many images share one model call.
	MaxImagesPerCall int

	// MaxAttempts gives up on a job after this many claims. Normal operation
	// claims once; extra claims come from expired leases and releases.
	MaxAttempts int

	PollInterval  time.Duration
	SweepInterval time.Duration

	// Mode selects how code files are summarised; see ingest.SummaryMode.
	Mode ingest.SummaryMode

	Retry RetryPolicy
}

func (c SemanticWorkerConfig) withDefaults() SemanticWorkerConfig {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 10
	}
	if c.MaxConcurrentLLM <= 0 {
		c.MaxConcurrentLLM = 10
	}
	if c.MaxSectionsPerCall <= 0 {
		c.MaxSectionsPerCall = 20
	}
	if c.MaxImagesPerCall <= 0 {
		c.MaxImagesPerCall = 10
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.Mode == "" {
		c.Mode = ingest.ModeAST
	}
	return c
}

// SemanticWorker drains the semantic queue: it claims eligible directory
// jobs, summarises their contents, writes the .overview.md and .abstract.md
// artefacts, and fans out embedding jobs for everything it wrote.
type SemanticWorker struct {
	queue      *SemanticQueue
	embed      *EmbeddingQueue
	fs         agfs.FS
	summarizer llm.Summarizer
	skeletons  *ingest.SkeletonExtractor
	cfg        SemanticWorkerConfig
	logger     *slog.Logger

	mu        sync.Mutex
	inflight  map[string]bool
	lastSweep time.Time
}

// NewSemanticWorker wires a worker to its queues. embed may be nil, in which
// case artefacts are written but never embedded (useful in tests).
func NewSemanticWorker(q *SemanticQueue, embed *EmbeddingQueue, fs agfs.FS, summarizer llm.Summarizer, cfg SemanticWorkerConfig, logger *slog.Logger) *SemanticWorker {
	if logger == nil {
		logger = slog.Default()
	}
	qMetrics.init()
	return &SemanticWorker{
		queue:      q,
		embed:      embed,
		fs:         fs,
		summarizer: summarizer,
		skeletons:  ingest.NewSkeletonExtractor(logger),
		cfg:        cfg.withDefaults(),
		logger:     logger,
		inflight:   make(map[string]bool),
	}
}

// Run polls the queue until ctx is cancelled, then drains in-flight jobs and
// returns the context error. Completing a directory wakes the loop so parents
// start without waiting out a poll interval.
func (w *SemanticWorker) Run(ctx context.Context) error {
	w.logger.Info("queue.semantic.worker_start",
		"max_jobs", w.cfg.MaxConcurrentJobs,
		"max_llm", w.cfg.MaxConcurrentLLM,
		"mode", string(w.cfg.Mode),
	)
	g := new(errgroup.Group)
	g.SetLimit(w.cfg.MaxConcurrentJobs)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		w.tick(ctx, g)
		select {
		case <-ctx.Done():
			_ = g.Wait()
			w.logger.Info("queue.semantic.worker_stop")
			return ctx.Err()
		case <-ticker.C:
		case <-w.queue.WakeC():
		}
	}
}

// tick sweeps expired leases, lists the queue, and dispatches every eligible
// job the pool has room for.
func (w *SemanticWorker) tick(ctx context.Context, g *errgroup.Group) {
	if time.Since(w.lastSweep) >= w.cfg.SweepInterval {
		w.lastSweep = time.Now()
		if _, err := w.queue.Sweep(ctx); err != nil {
			w.logger.Warn("queue.semantic.sweep_failed", "err", err)
		}
	}

	jobs, err := w.queue.List(ctx)
	if err != nil {
		w.logger.Warn("queue.semantic.list_failed", "err", err)
		return
	}

	for _, job := range readyJobs(jobs) {
		if ctx.Err() != nil {
			return
		}
		if !w.track(job.ID) {
			continue
		}
		job := job
		if !g.TryGo(func() error {
			defer w.untrack(job.ID)
			w.process(ctx, job)
			return nil
		}) {
			w.untrack(job.ID)
			return
		}
	}
}

// readyJobs filters pending jobs whose child directories hold no unfinished
// work, preserving FIFO order. A child blocks its parent while its own job is
// pending, in progress, or failed; only done (or absent) children let the
// parent run, which is what makes traversal bottom-up.
func readyJobs(jobs []*Job) []*Job {
	blocked := make(map[uri.URI]int)
	for _, j := range jobs {
		if j.Status == StatusDone {
			continue
		}
		blocked[j.URI.Parent()]++
	}
	var ready []*Job
	for _, j := range jobs {
		if j.Status != StatusPending || blocked[j.URI] > 0 {
			continue
		}
		ready = append(ready, j)
	}
	return ready
}

func (w *SemanticWorker) track(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inflight[id] {
		return false
	}
	w.inflight[id] = true
	return true
}

func (w *SemanticWorker) untrack(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, id)
}

// process claims one job and runs it to a terminal state. Status writes use
// an uncancellable context: a directory that finished summarising should land
// as done even when the engine is shutting down.
func (w *SemanticWorker) process(ctx context.Context, job *Job) {
	claimed, err := w.queue.Claim(ctx, job)
	if err != nil {
		w.logger.Warn("queue.semantic.claim_failed", "job", job.ID, "err", err)
		return
	}
	if !claimed {
		return
	}
	qMetrics.semanticClaims.Inc()

	final := context.WithoutCancel(ctx)
	if job.Attempts > w.cfg.MaxAttempts {
		cause := errors.ResourceExhausted("job for %s gave up after %d claims", job.URI, job.Attempts)
		if ferr := w.queue.Fail(final, job, cause); ferr != nil {
			w.logger.Error("queue.semantic.fail_write_failed", "job", job.ID, "err", ferr)
		}
		qMetrics.semanticFailed.Inc()
		w.logger.Error("queue.semantic.gave_up", "uri", job.URI.String(), "attempts", job.Attempts)
		return
	}

	w.logger.Info("queue.semantic.claim",
		"uri", job.URI.String(),
		"kind", job.Kind,
		"attempt", job.Attempts,
	)
	start := time.Now()
	err = w.processDirectory(ctx, job)
	qMetrics.semanticDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		if cerr := w.queue.Complete(final, job); cerr != nil {
			w.logger.Error("queue.semantic.complete_write_failed", "job", job.ID, "err", cerr)
			return
		}
		qMetrics.semanticDone.Inc()
		w.logger.Info("queue.semantic.done",
			"uri", job.URI.String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if job.ParentURI != "" {
			w.queue.Wake()
		}
	case errors.CodeOf(err) == errors.CodeCancelled:
		if rerr := w.queue.Release(final, job, nil); rerr != nil {
			w.logger.Error("queue.semantic.release_write_failed", "job", job.ID, "err", rerr)
		}
		qMetrics.semanticReleased.Inc()
		w.logger.Warn("queue.semantic.cancelled", "uri", job.URI.String())
	case errors.CodeOf(err) == errors.CodeNotProcessed:
		// A child is not ready after all; hand the job back and let the
		// eligibility check hold it until the child completes.
		if rerr := w.queue.Release(final, job, err); rerr != nil {
			w.logger.Error("queue.semantic.release_write_failed", "job", job.ID, "err", rerr)
		}
		qMetrics.semanticReleased.Inc()
		w.logger.Warn("queue.semantic.requeued", "uri", job.URI.String(), "reason", err.Error())
	default:
		if ferr := w.queue.Fail(final, job, err); ferr != nil {
			w.logger.Error("queue.semantic.fail_write_failed", "job", job.ID, "err", ferr)
		}
		qMetrics.semanticFailed.Inc()
		w.logger.Error("queue.semantic.failed", "uri", job.URI.String(), "err", err)
	}
}
