// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package viking

import (
	"context"
	"fmt"
	"time"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/queue"
	"github.com/kraklabs/openviking/pkg/uri"
)

// waitPoll is the interval at which Wait re-reads queue stats.
const waitPoll = 200 * time.Millisecond

// HealthResult reports process liveness.
type HealthResult struct {
	Status string `json:"status"`
}

// Health answers unconditionally: reaching the engine is the check.
func (e *Engine) Health() HealthResult {
	return HealthResult{Status: "ok"}
}

// ReadyResult reports per-dependency reachability.
type ReadyResult struct {
	// Status is "ok" when every check passed, "degraded" otherwise.
	Status string `json:"status"`

	// Checks maps component name to "ok" or "error: <detail>".
	Checks map[string]string `json:"checks"`
}

// Ready probes the engine's dependencies: an AGFS stat, a vector index
// count, and the summariser's presence. The model itself is not called;
// a misconfigured provider surfaces on first use, not here.
func (e *Engine) Ready(ctx context.Context) *ReadyResult {
	checks := map[string]string{
		"agfs":       "ok",
		"vectordb":   "ok",
		"summarizer": "ok",
	}
	degraded := false

	if _, err := e.fs.Stat(ctx, uri.Resources); err != nil {
		checks["agfs"] = "error: " + err.Error()
		degraded = true
	}
	if _, err := e.vectors.Count(ctx, ""); err != nil {
		checks["vectordb"] = "error: " + err.Error()
		degraded = true
	}
	if e.summarizer == nil {
		checks["summarizer"] = "error: no summarizer configured"
		degraded = true
	}

	status := "ok"
	if degraded {
		status = "degraded"
	}
	return &ReadyResult{Status: status, Checks: checks}
}

// WaitResult is the combined queue state when Wait returned.
type WaitResult struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Processed  int `json:"processed"`
	Errors     int `json:"errors"`
}

// Idle reports whether no work was outstanding.
func (r *WaitResult) Idle() bool {
	return r.Pending == 0 && r.InProgress == 0
}

// Wait blocks until both queues drain or timeout elapses, whichever is
// first, and returns the state seen last. Hitting the timeout is not an
// error: callers inspect Idle on the result.
func (e *Engine) Wait(ctx context.Context, timeout time.Duration) (*WaitResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	res, err := e.waitIdle(ctx)
	if err != nil && errors.HasCode(err, errors.CodeTimeout) {
		return res, nil
	}
	return res, err
}

// waitIdle polls until both queues are idle or ctx ends. The last
// observed state comes back even on error, so callers can report it.
func (e *Engine) waitIdle(ctx context.Context) (*WaitResult, error) {
	ticker := time.NewTicker(waitPoll)
	defer ticker.Stop()

	for {
		res, err := e.queueState(ctx)
		if err != nil {
			return res, err
		}
		if res.Idle() {
			return res, nil
		}
		select {
		case <-ctx.Done():
			return res, errors.New(errors.CodeOf(ctx.Err()), "wait interrupted: %v", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (e *Engine) queueState(ctx context.Context) (*WaitResult, error) {
	sem, err := e.semantic.Stats(ctx)
	if err != nil {
		return nil, err
	}
	emb, err := e.embedQ.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &WaitResult{
		Pending:    sem.Pending + emb.Pending,
		InProgress: sem.InProgress + emb.InProgress,
		Processed:  sem.Done + emb.Done,
		Errors:     sem.Failed + emb.Failed,
	}, nil
}

// StatusResult is the operator-facing snapshot the CLI renders.
type StatusResult struct {
	Workspace     string      `json:"workspace"`
	AGFSBackend   string      `json:"agfs_backend"`
	VectorBackend string      `json:"vector_backend"`
	Summarizer    string      `json:"summarizer"`
	Embedder      string      `json:"embedder"`
	Semantic      queue.Stats `json:"semantic"`
	Embedding     queue.Stats `json:"embedding"`
	Vectors       int         `json:"vectors"`
	Sessions      int         `json:"sessions"`
}

// Status assembles the snapshot: backends, queue depths, index size,
// session count.
func (e *Engine) Status(ctx context.Context) (*StatusResult, error) {
	sem, err := e.semantic.Stats(ctx)
	if err != nil {
		return nil, err
	}
	emb, err := e.embedQ.Stats(ctx)
	if err != nil {
		return nil, err
	}
	vectors, err := e.vectors.Count(ctx, "")
	if err != nil {
		return nil, err
	}
	sessions, err := e.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	return &StatusResult{
		Workspace:     e.cfg.Workspace,
		AGFSBackend:   backendName(e.cfg.AGFS.Backend),
		VectorBackend: backendName(e.cfg.Vector.Backend),
		Summarizer:    e.summarizer.Name(),
		Embedder:      e.embedder.Name(),
		Semantic:      sem,
		Embedding:     emb,
		Vectors:       vectors,
		Sessions:      len(sessions),
	}, nil
}

// queueByName resolves the operator-facing queue names.
func (e *Engine) queueByName(name string) (*queue.Store, error) {
	switch name {
	case "semantic":
		return e.semantic.Store, nil
	case "embedding":
		return e.embedQ.Store, nil
	}
	return nil, errors.InvalidArgument("unknown queue %q (want semantic or embedding)", name)
}

// QueueJobs lists the jobs of one queue.
func (e *Engine) QueueJobs(ctx context.Context, name string) ([]*queue.Job, error) {
	st, err := e.queueByName(name)
	if err != nil {
		return nil, err
	}
	return st.List(ctx)
}

// RequeueJob puts one failed job back to pending and wakes the worker.
func (e *Engine) RequeueJob(ctx context.Context, name, id string) error {
	st, err := e.queueByName(name)
	if err != nil {
		return err
	}
	if err := st.Requeue(ctx, id); err != nil {
		return err
	}
	switch name {
	case "semantic":
		e.semantic.Wake()
	case "embedding":
		e.embedQ.Wake()
	}
	e.logger.Info("engine.queue.requeue", "queue", name, "job", id)
	return nil
}

// RequeueFailed requeues every failed job in both queues, returning the
// number moved back to pending.
func (e *Engine) RequeueFailed(ctx context.Context) (int, error) {
	total := 0
	for _, name := range []string{"semantic", "embedding"} {
		st, _ := e.queueByName(name)
		jobs, err := st.List(ctx)
		if err != nil {
			return total, err
		}
		for _, j := range jobs {
			if j.Status != queue.StatusFailed {
				continue
			}
			if err := st.Requeue(ctx, j.ID); err != nil {
				return total, fmt.Errorf("requeue %s/%s: %w", name, j.ID, err)
			}
			total++
		}
	}
	if total > 0 {
		e.semantic.Wake()
		e.embedQ.Wake()
		e.logger.Info("engine.queue.requeue_failed", "count", total)
	}
	return total, nil
}

// PruneQueues drops done jobs older than the cutoff from both queues.
// Failed jobs stay visible until requeued or the workspace is reset.
func (e *Engine) PruneQueues(ctx context.Context, olderThan time.Duration) (int, error) {
	total := 0
	for _, name := range []string{"semantic", "embedding"} {
		st, _ := e.queueByName(name)
		n, err := st.Prune(ctx, olderThan)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
