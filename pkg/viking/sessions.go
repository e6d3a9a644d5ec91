// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package viking

import (
	"context"

	"github.com/kraklabs/openviking/pkg/session"
	"github.com/kraklabs/openviking/pkg/trace"
)

// Session surface. The stores live in pkg/session; this layer adds
// tracing and keeps the engine the single entry point for callers.

// CreateSession opens a fresh session and returns its id.
func (e *Engine) CreateSession(ctx context.Context) (string, error) {
	return e.sessions.Create(ctx)
}

// AddMessage appends one message to an open session.
func (e *Engine) AddMessage(ctx context.Context, id, role, content string) error {
	return e.sessions.Append(ctx, id, role, content)
}

// CommitSessionResult is a finished commit.
type CommitSessionResult struct {
	session.CommitResult
	Trace *trace.Result `json:"trace,omitempty"`
}

// CommitSession distils a session's transcript into memories and
// promotes them under viking://user/memories. Committing twice returns
// the recorded result of the first commit.
func (e *Engine) CommitSession(ctx context.Context, id string, withTrace bool) (*CommitSessionResult, error) {
	ctx, tc := e.traceCtx(ctx, "session_commit", withTrace)
	res, err := e.committer.Commit(ctx, id)
	if err != nil {
		e.finishTrace(tc, "commit", err)
		return nil, err
	}
	return &CommitSessionResult{CommitResult: *res, Trace: e.finishTrace(tc, "", nil)}, nil
}

// DeleteSession removes a session and its transcript. Memories already
// extracted from it stay.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	return e.sessions.Delete(ctx, id)
}

// ListSessions enumerates every session with its status and message
// count, ordered by creation time.
func (e *Engine) ListSessions(ctx context.Context) ([]*session.Info, error) {
	return e.sessions.List(ctx)
}
