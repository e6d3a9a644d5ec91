// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package viking

import (
	"context"
	"time"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/uri"
)

// tempSweepInterval is how often abandoned scratch roots are looked for.
const tempSweepInterval = time.Hour

// sweepTemp runs until ctx ends, deleting scratch roots under
// viking://temp whose last write is older than the grace period. Live
// ingests are protected by the grace period alone: a parse writes its
// scratch tree well inside 24 hours.
func (e *Engine) sweepTemp(ctx context.Context) {
	ticker := time.NewTicker(tempSweepInterval)
	defer ticker.Stop()

	for {
		if n, err := e.SweepTemp(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Warn("engine.temp_sweep.failed", "error", err)
		} else if n > 0 {
			e.logger.Info("engine.temp_sweep", "deleted", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepTemp deletes expired scratch roots once and reports how many
// went. Exposed so operators can force a sweep without waiting for the
// background tick.
func (e *Engine) SweepTemp(ctx context.Context) (int, error) {
	entries, err := e.fs.List(ctx, uri.TempRoot, agfs.ListOptions{IncludeHidden: true})
	if errors.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-e.cfg.TempGracePeriod())
	deleted := 0
	for _, entry := range entries {
		if !entry.IsDir || !entry.MTime.Before(cutoff) {
			continue
		}
		if err := e.fs.Delete(ctx, entry.URI, agfs.DeleteOptions{Recursive: true}); err != nil {
			e.logger.Warn("engine.temp_sweep.delete_failed", "uri", entry.URI, "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}
