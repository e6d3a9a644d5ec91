// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/ingest"
	"github.com/kraklabs/openviking/pkg/llm"
	"github.com/kraklabs/openviking/pkg/uri"
	"github.com/kraklabs/openviking/pkg/vector"
)

// EmbeddingQueue schedules vector index updates. Each job covers one point:
// a directory's abstract or overview, or a leaf file's raw content.
type EmbeddingQueue struct {
	*Store
	wake chan struct{}
}

// NewEmbeddingQueue opens the embedding queue of a workspace.
func NewEmbeddingQueue(fs agfs.FS, logger *slog.Logger, opts StoreOptions) *EmbeddingQueue {
	return &EmbeddingQueue{
		Store: NewStore(fs, uri.EmbeddingQueueRoot, logger, opts),
		wake:  make(chan struct{}, 1),
	}
}

// Wake nudges the worker loop without waiting for the next poll tick.
func (q *EmbeddingQueue) Wake() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// WakeC is the channel the worker selects on.
func (q *EmbeddingQueue) WakeC() <-chan struct{} { return q.wake }

// EnqueueBatch enqueues jobs, skipping any whose target and source already
// carry a live (non-done) job. Done jobs do not dedup: re-summarised content
// must re-embed. Returns the number actually enqueued.
func (q *EmbeddingQueue) EnqueueBatch(ctx context.Context, jobs []*Job) (int, error) {
	existing, err := q.List(ctx)
	if err != nil {
		return 0, err
	}
	live := make(map[string]bool, len(existing))
	for _, j := range existing {
		if j.Status != StatusDone {
			live[pointKey(j)] = true
		}
	}
	enqueued := 0
	for _, j := range jobs {
		key := pointKey(j)
		if live[key] {
			continue
		}
		if err := q.Enqueue(ctx, j); err != nil {
			return enqueued, err
		}
		live[key] = true
		enqueued++
	}
	if enqueued > 0 {
		q.logger.Debug("queue.embedding.enqueue_batch", "jobs", enqueued, "skipped", len(jobs)-enqueued)
		q.Wake()
	}
	return enqueued, nil
}

// pointKey is the dedup identity of an embedding job, matching the point
// identity in the vector index.
func pointKey(j *Job) string {
	return string(j.URI) + "\x00" + j.Source
}

// EmbeddingWorkerConfig tunes the embedding worker.
type EmbeddingWorkerConfig struct {
	// BatchSize caps how many same-modality points share one embed call.
	BatchSize int

	// MaxAttempts gives up on a job after this many claims.
	MaxAttempts int

	PollInterval  time.Duration
	SweepInterval time.Duration

	Retry RetryPolicy
}

func (c EmbeddingWorkerConfig) withDefaults() EmbeddingWorkerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 32
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
	return c
}

// EmbeddingWorker drains the embedding queue: it claims batches of pending
// jobs, reads the artefacts they point at, embeds them, and upserts the
// vectors into the index.
type EmbeddingWorker struct {
	queue    *EmbeddingQueue
	fs       agfs.FS
	embedder llm.Embedder
	store    vector.Store
	cfg      EmbeddingWorkerConfig
	logger   *slog.Logger

	lastSweep time.Time
}

// NewEmbeddingWorker wires an embedding worker.
func NewEmbeddingWorker(q *EmbeddingQueue, fs agfs.FS, embedder llm.Embedder, store vector.Store, cfg EmbeddingWorkerConfig, logger *slog.Logger) *EmbeddingWorker {
	if logger == nil {
		logger = slog.Default()
	}
	qMetrics.init()
	return &EmbeddingWorker{
		queue:    q,
		fs:       fs,
		embedder: embedder,
		store:    store,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Run polls the queue until ctx is cancelled and returns the context error.
func (w *EmbeddingWorker) Run(ctx context.Context) error {
	w.logger.Info("queue.embedding.worker_start",
		"batch_size", w.cfg.BatchSize,
		"embedder", w.embedder.Name(),
	)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		w.tick(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("queue.embedding.worker_stop")
			return ctx.Err()
		case <-ticker.C:
		case <-w.queue.WakeC():
		}
	}
}

// tick sweeps expired leases, then drains pending jobs batch by batch.
// Batches are sequential: one embed call saturates the provider already.
func (w *EmbeddingWorker) tick(ctx context.Context) {
	if time.Since(w.lastSweep) >= w.cfg.SweepInterval {
		w.lastSweep = time.Now()
		if _, err := w.queue.Sweep(ctx); err != nil {
			w.logger.Warn("queue.embedding.sweep_failed", "err", err)
		}
	}
	for ctx.Err() == nil {
		batch := w.claimBatch(ctx)
		if len(batch) == 0 {
			return
		}
		w.processBatch(ctx, batch)
	}
}

// claimBatch claims up to BatchSize pending jobs sharing the modality of the
// oldest pending job, so one embed call never mixes text and image inputs.
func (w *EmbeddingWorker) claimBatch(ctx context.Context) []*Job {
	jobs, err := w.queue.List(ctx)
	if err != nil {
		w.logger.Warn("queue.embedding.list_failed", "err", err)
		return nil
	}
	modality := ""
	var batch []*Job
	for _, job := range jobs {
		if job.Status != StatusPending {
			continue
		}
		if modality == "" {
			modality = job.Modality
		}
		if job.Modality != modality {
			continue
		}
		claimed, err := w.queue.Claim(ctx, job)
		if err != nil {
			w.logger.Warn("queue.embedding.claim_failed", "job", job.ID, "err", err)
			continue
		}
		if !claimed {
			continue
		}
		batch = append(batch, job)
		if len(batch) >= w.cfg.BatchSize {
			break
		}
	}
	return batch
}

// embedItem pairs a claimed job with its resolved input.
type embedItem struct {
	job   *Job
	text  string
	image []byte
}

// processBatch runs claimed jobs to terminal states: resolve inputs, embed,
// validate, upsert. Jobs whose artefact is gone or whose vector is malformed
// fail individually; provider and index errors fail the whole batch.
func (w *EmbeddingWorker) processBatch(ctx context.Context, batch []*Job) {
	final := context.WithoutCancel(ctx)
	start := time.Now()

	var items []embedItem
	for _, job := range batch {
		if job.Attempts > w.cfg.MaxAttempts {
			w.fail(final, job, errors.ResourceExhausted("job for %s gave up after %d claims", job.URI, job.Attempts))
			continue
		}
		text, image, err := w.resolveSource(ctx, job)
		if err != nil {
			if errors.CodeOf(err) == errors.CodeCancelled {
				w.release(final, job)
				continue
			}
			w.fail(final, job, err)
			continue
		}
		items = append(items, embedItem{job: job, text: text, image: image})
	}
	if len(items) == 0 {
		return
	}

	req := llm.EmbedRequest{}
	for _, it := range items {
		if it.image != nil {
			req.Images = append(req.Images, it.image)
		} else {
			req.Texts = append(req.Texts, it.text)
		}
	}

	var vectors [][]float32
	err := withRetry(ctx, w.cfg.Retry, w.logger, "embed.batch", func(ctx context.Context) error {
		var err error
		vectors, err = w.embedder.Embed(ctx, req)
		return err
	})
	if err != nil {
		w.failBatch(final, items, err)
		return
	}
	if len(vectors) != len(items) {
		w.failBatch(final, items, errors.DependencyError(nil,
			"embedder returned %d vectors for %d inputs", len(vectors), len(items)))
		return
	}

	dims := w.embedder.Dimensions()
	now := time.Now().UTC()
	var records []vector.Record
	var done []*Job
	for i, it := range items {
		vec := vectors[i]
		if len(vec) != dims || isZeroVector(vec) {
			w.fail(final, it.job, errors.DependencyError(nil,
				"embedder returned a %d-dim vector for %s, want %d non-zero dims", len(vec), it.job.URI, dims))
			continue
		}
		records = append(records, vector.Record{
			URI:      string(it.job.URI),
			Source:   it.job.Source,
			Modality: it.job.Modality,
			Vector:   vec,
			Payload: vector.Payload{
				Source:    it.job.Source,
				Kind:      ingest.KindForScope(string(it.job.URI.Scope())),
				Level:     levelForSource(it.job.Source),
				Abstract:  truncateWords(it.text, abstractWordLimit),
				CreatedAt: now,
			},
		})
		done = append(done, it.job)
	}
	if len(records) == 0 {
		return
	}

	err = withRetry(ctx, w.cfg.Retry, w.logger, "vector.upsert", func(ctx context.Context) error {
		return w.store.Upsert(ctx, records)
	})
	if err != nil {
		for _, job := range done {
			if errors.CodeOf(err) == errors.CodeCancelled {
				w.release(final, job)
			} else {
				w.fail(final, job, err)
			}
		}
		return
	}

	for _, job := range done {
		if cerr := w.queue.Complete(final, job); cerr != nil {
			w.logger.Error("queue.embedding.complete_write_failed", "job", job.ID, "err", cerr)
		}
	}
	qMetrics.embeddingBatches.Inc()
	qMetrics.embeddingPoints.Add(float64(len(records)))
	qMetrics.embeddingDuration.Observe(time.Since(start).Seconds())
	w.logger.Info("queue.embedding.batch",
		"points", len(records),
		"modality", items[0].job.Modality,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// resolveSource reads the content a job embeds. Abstract and overview jobs
// point at directories and read the artefact; raw jobs point at leaf files
// and read them whole, as image bytes when the modality says so.
func (w *EmbeddingWorker) resolveSource(ctx context.Context, job *Job) (text string, image []byte, err error) {
	switch job.Source {
	case SourceAbstract:
		text, err = agfs.Abstract(ctx, w.fs, job.URI)
		return text, nil, err
	case SourceOverview:
		text, err = agfs.Overview(ctx, w.fs, job.URI)
		return text, nil, err
	case SourceRaw:
		data, err := w.fs.Read(ctx, job.URI)
		if err != nil {
			return "", nil, err
		}
		if job.Modality == ModalityMultimodal {
			return "", data, nil
		}
		if len(data) > maxSummaryInputBytes {
			data = data[:maxSummaryInputBytes]
		}
		return string(data), nil, nil
	default:
		return "", nil, errors.InvalidArgument("unknown embedding source %q on job %s", job.Source, job.ID)
	}
}

func (w *EmbeddingWorker) fail(ctx context.Context, job *Job, cause error) {
	if err := w.queue.Fail(ctx, job, cause); err != nil {
		w.logger.Error("queue.embedding.fail_write_failed", "job", job.ID, "err", err)
	}
	qMetrics.embeddingFailed.Inc()
	w.logger.Error("queue.embedding.failed", "uri", job.URI.String(), "source", job.Source, "err", cause)
}

func (w *EmbeddingWorker) failBatch(ctx context.Context, items []embedItem, cause error) {
	cancelled := errors.CodeOf(cause) == errors.CodeCancelled
	for _, it := range items {
		if cancelled {
			w.release(ctx, it.job)
		} else {
			w.fail(ctx, it.job, cause)
		}
	}
}

func (w *EmbeddingWorker) release(ctx context.Context, job *Job) {
	if err := w.queue.Release(ctx, job, nil); err != nil {
		w.logger.Error("queue.embedding.release_write_failed", "job", job.ID, "err", err)
	}
}

// isZeroVector reports whether every component is zero, which scores 0
// against everything and marks a broken embedder.
func isZeroVector(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
