// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package viking

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/kraklabs/openviking/internal/contract"
	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/ingest"
	"github.com/kraklabs/openviking/pkg/trace"
	"github.com/kraklabs/openviking/pkg/uri"
)

// AddResourceOptions tunes one ingestion.
type AddResourceOptions struct {
	// Reason is an optional note recorded in the resource's .meta.json,
	// explaining why the content was added.
	Reason string

	// Wait blocks until the semantic and embedding queues drain, so the
	// resource is fully processed when the call returns. Cancellation is
	// the caller's ctx.
	Wait bool

	// Trace attaches a request trace to the result.
	Trace bool
}

// AddResult reports a completed ingestion.
type AddResult struct {
	TargetURI uri.URI       `json:"target_uri"`
	Format    string        `json:"format"`
	Files     int           `json:"files"`
	Enqueued  int           `json:"enqueued"`
	Trace     *trace.Result `json:"trace,omitempty"`
}

// resourceMeta is the .meta.json document stored inside an ingested
// resource directory.
type resourceMeta struct {
	Origin  string    `json:"origin"`
	Reason  string    `json:"reason,omitempty"`
	Format  string    `json:"format"`
	AddedAt time.Time `json:"added_at"`
}

// AddResource ingests a local file, directory or URL: parse into a
// scratch tree, promote under viking://resources, enqueue semantic
// processing. Summaries and vectors appear asynchronously unless
// opts.Wait is set.
func (e *Engine) AddResource(ctx context.Context, pathOrURL string, opts AddResourceOptions) (*AddResult, error) {
	if strings.TrimSpace(pathOrURL) == "" {
		return nil, errors.InvalidArgument("path or URL must not be empty")
	}
	if v := contract.ValidateReason(opts.Reason); !v.OK {
		return nil, errors.InvalidArgument("%s", v.Message)
	}

	ctx, tc := e.traceCtx(ctx, "add_resource", opts.Trace)

	parsed, err := e.registry.ParseInput(ctx, pathOrURL)
	if err != nil {
		e.finishTrace(tc, "parse", err)
		return nil, err
	}
	tc.Event("parse", "parsed", map[string]any{"format": parsed.Format, "files": parsed.Files})

	promoted, err := e.builder.Promote(ctx, parsed.ScratchRoot, "resources")
	if err != nil {
		e.finishTrace(tc, "promote", err)
		return nil, err
	}
	tc.Set("semantic_nodes.total_nodes", promoted.Enqueued)
	tc.Set("semantic_nodes.pending_nodes", promoted.Enqueued)

	e.writeMeta(ctx, promoted.TargetURI, resourceMeta{
		Origin:  pathOrURL,
		Reason:  opts.Reason,
		Format:  parsed.Format,
		AddedAt: time.Now().UTC(),
	})

	if opts.Wait {
		if _, err := e.waitIdle(ctx); err != nil {
			e.finishTrace(tc, "wait", err)
			return nil, err
		}
		tc.Set("semantic_nodes.done_nodes", promoted.Enqueued)
		tc.Set("semantic_nodes.pending_nodes", 0)
	}

	e.logger.Info("engine.add_resource",
		"origin", pathOrURL,
		"target", promoted.TargetURI,
		"format", parsed.Format,
		"files", parsed.Files,
		"enqueued", promoted.Enqueued,
	)
	return &AddResult{
		TargetURI: promoted.TargetURI,
		Format:    parsed.Format,
		Files:     parsed.Files,
		Enqueued:  promoted.Enqueued,
		Trace:     e.finishTrace(tc, "", nil),
	}, nil
}

// AddSkill stores an agent skill document under viking://agent/skills
// and schedules it for summarisation and indexing.
func (e *Engine) AddSkill(ctx context.Context, name, content string) (*AddResult, error) {
	slug := ingest.Slugify(name)
	if slug == "" {
		return nil, errors.InvalidArgument("skill name %q has no usable characters", name)
	}
	if v := contract.ValidatePayload([]byte(content)); !v.OK {
		return nil, errors.ResourceExhausted("%s", v.Message)
	}

	scratch := uri.NewTemp()
	doc := scratch.MustJoin(slug)
	if err := e.fs.Mkdir(ctx, doc); err != nil {
		return nil, err
	}
	if err := e.fs.Write(ctx, doc.MustJoin(slug+".md"), []byte(content), agfs.WriteOptions{}); err != nil {
		return nil, err
	}

	promoted, err := e.builder.Promote(ctx, scratch, "agent")
	if err != nil {
		return nil, err
	}
	e.logger.Info("engine.add_skill", "name", name, "target", promoted.TargetURI)
	return &AddResult{
		TargetURI: promoted.TargetURI,
		Format:    "skill",
		Files:     1,
		Enqueued:  promoted.Enqueued,
	}, nil
}

// RemoveResult reports a completed removal.
type RemoveResult struct {
	URI            uri.URI `json:"uri"`
	VectorsDeleted int     `json:"vectors_deleted"`
}

// Remove deletes the node at target together with its index entries.
// Queue jobs already referencing the subtree fail on their next claim
// and age out via prune; they are not chased here.
func (e *Engine) Remove(ctx context.Context, target string, recursive bool) (*RemoveResult, error) {
	u, err := parseURI(target)
	if err != nil {
		return nil, err
	}
	if u.IsRoot() {
		return nil, errors.InvalidArgument("refusing to remove scope root %s", u)
	}
	if err := e.fs.Delete(ctx, u, agfs.DeleteOptions{Recursive: recursive}); err != nil {
		return nil, err
	}
	deleted, err := e.vectors.Delete(ctx, string(u))
	if err != nil {
		// The node is gone; stale points only cost index space and are
		// rewritten on re-ingest. Report and move on.
		e.logger.Warn("engine.remove.vector_cleanup_failed", "uri", u, "error", err)
		deleted = 0
	}
	e.logger.Info("engine.remove", "uri", u, "vectors_deleted", deleted)
	return &RemoveResult{URI: u, VectorsDeleted: deleted}, nil
}

// MoveResult reports a completed relocation.
type MoveResult struct {
	Source       uri.URI `json:"source"`
	Target       uri.URI `json:"target"`
	VectorsMoved int     `json:"vectors_moved"`
}

// MoveResource relocates a subtree and re-keys its index entries to the
// new URIs. Vectors move with their content, so no re-embedding runs.
func (e *Engine) MoveResource(ctx context.Context, src, dst string) (*MoveResult, error) {
	from, err := parseURI(src)
	if err != nil {
		return nil, err
	}
	to, err := parseURI(dst)
	if err != nil {
		return nil, err
	}
	if from.IsRoot() || to.IsRoot() {
		return nil, errors.InvalidArgument("cannot move a scope root")
	}
	if to.HasPrefix(from) {
		return nil, errors.InvalidArgument("cannot move %s inside itself", from)
	}

	if err := e.fs.Move(ctx, from, to); err != nil {
		return nil, err
	}
	moved, err := e.vectors.Rekey(ctx, string(from), string(to))
	if err != nil {
		e.logger.Warn("engine.move.rekey_failed", "src", from, "dst", to, "error", err)
		moved = 0
	}
	e.logger.Info("engine.move", "src", from, "dst", to, "vectors_moved", moved)
	return &MoveResult{Source: from, Target: to, VectorsMoved: moved}, nil
}

func (e *Engine) writeMeta(ctx context.Context, dir uri.URI, meta resourceMeta) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err == nil {
		err = e.fs.Write(ctx, dir.MustJoin(uri.MetaName), data, agfs.WriteOptions{})
	}
	if err != nil {
		e.logger.Warn("engine.add_resource.meta_failed", "uri", dir, "error", err)
	}
}
