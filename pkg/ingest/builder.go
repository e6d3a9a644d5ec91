// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/uri"
)

// SemanticEnqueuer accepts a promoted subtree for semantic processing.
// Implemented by the semantic queue; an interface here keeps the
// dependency direction pointing at ingest.
type SemanticEnqueuer interface {
	// EnqueueTree enqueues one job per directory under root (root
	// included) and returns how many jobs it created.
	EnqueueTree(ctx context.Context, root uri.URI, kind string) (int, error)
}

// KindForScope maps a promotion scope to the content kind recorded on
// jobs and vector payloads.
func KindForScope(scope string) string {
	switch scope {
	case "user":
		return "memory"
	case "agent":
		return "skill"
	default:
		return "resource"
	}
}

// Builder promotes finished scratch trees from the temp scope into
// content scopes and hands them to the semantic queue.
type Builder struct {
	fs     agfs.FS
	queue  SemanticEnqueuer
	logger *slog.Logger
}

// NewBuilder wires a Builder. A nil logger falls back to slog.Default().
func NewBuilder(fs agfs.FS, queue SemanticEnqueuer, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{fs: fs, queue: queue, logger: logger}
}

// PromoteResult reports where a scratch tree landed.
type PromoteResult struct {
	TargetURI uri.URI `json:"target_uri"`
	Enqueued  int     `json:"enqueued"`
}

// Promote moves the single document directory under scratchRoot into
// the scope's base, disambiguating name collisions with the smallest
// free numeric suffix, then deletes the scratch root and enqueues
// semantic processing for the new subtree.
//
// On a move failure Promote attempts a reverse move; if that also fails
// the destination is marked with a PendingCleanupName file and the
// returned error describes the partial state.
func (b *Builder) Promote(ctx context.Context, scratchRoot uri.URI, scope string) (*PromoteResult, error) {
	ingMetrics.init()

	entries, err := b.fs.List(ctx, scratchRoot, agfs.ListOptions{IncludeHidden: true})
	if err != nil {
		return nil, err
	}
	if len(entries) != 1 || !entries[0].IsDir {
		return nil, errors.InvariantViolation(
			"scratch root %s must contain exactly one document directory, found %d entries", scratchRoot, len(entries))
	}
	source := entries[0].URI

	base, err := uri.BaseForScope(scope)
	if err != nil {
		return nil, err
	}
	if err := b.fs.Mkdir(ctx, base); err != nil {
		return nil, err
	}
	target, err := b.uniqueTarget(ctx, base, source.Base())
	if err != nil {
		return nil, err
	}

	b.logger.Info("builder.promote.start", "source", source, "target", target)
	if err := b.fs.Move(ctx, source, target); err != nil {
		return nil, b.rollback(ctx, source, target, err)
	}

	// The scratch root is empty now; losing this delete only leaks an
	// empty temp directory, which the temp sweeper collects.
	if err := b.fs.Delete(ctx, scratchRoot, agfs.DeleteOptions{Recursive: true}); err != nil {
		b.logger.Warn("builder.promote.scratch_delete_failed", "scratch", scratchRoot, "error", err)
	}

	enqueued := 0
	if b.queue != nil {
		enqueued, err = b.queue.EnqueueTree(ctx, target, KindForScope(scope))
		if err != nil {
			return nil, err
		}
	}

	ingMetrics.promotes.Inc()
	b.logger.Info("builder.promote.done", "target", target, "enqueued", enqueued)
	return &PromoteResult{TargetURI: target, Enqueued: enqueued}, nil
}

// uniqueTarget returns base/<name>, or base/<name>-N for the smallest
// positive N that is free.
func (b *Builder) uniqueTarget(ctx context.Context, base uri.URI, name string) (uri.URI, error) {
	for n := 0; ; n++ {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s-%d", name, n)
		}
		target, err := base.Join(candidate)
		if err != nil {
			return "", err
		}
		exists, err := agfs.Exists(ctx, b.fs, target)
		if err != nil {
			return "", err
		}
		if !exists {
			return target, nil
		}
	}
}

// rollback recovers from a failed promote move. A destination that never
// materialised needs nothing; one that did is moved back, and when even
// that fails it gets a pending-cleanup marker so operators (and the
// sweeper) can find the partial state.
func (b *Builder) rollback(ctx context.Context, source, target uri.URI, moveErr error) error {
	landed, err := agfs.Exists(ctx, b.fs, target)
	if err != nil || !landed {
		return errors.DependencyError(moveErr, "promote %s to %s failed", source, target)
	}

	b.logger.Warn("builder.promote.rollback", "source", source, "target", target, "error", moveErr)
	ingMetrics.promoteRollbacks.Inc()

	if rbErr := b.fs.Move(ctx, target, source); rbErr != nil {
		b.markPendingCleanup(ctx, target, moveErr)
		return errors.DependencyError(moveErr,
			"partial move failure promoting %s to %s; destination marked for cleanup", source, target)
	}
	return errors.DependencyError(moveErr, "promote %s to %s failed; scratch tree restored", source, target)
}

func (b *Builder) markPendingCleanup(ctx context.Context, target uri.URI, cause error) {
	marker, err := target.Join(agfs.PendingCleanupName)
	if err != nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"reason": cause.Error(),
		"at":     time.Now().UTC().Format(time.RFC3339),
	})
	if err := b.fs.Write(ctx, marker, payload, agfs.WriteOptions{}); err != nil {
		b.logger.Error("builder.promote.cleanup_marker_failed", "target", target, "error", err)
	}
}
