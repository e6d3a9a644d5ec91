// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package viking

import (
	"context"

	"github.com/kraklabs/openviking/internal/contract"
	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/search"
	"github.com/kraklabs/openviking/pkg/trace"
	"github.com/kraklabs/openviking/pkg/uri"
)

// FindOptions narrows a semantic search.
type FindOptions struct {
	// Target scopes the search to a subtree; empty searches everything.
	Target string

	// Limit bounds the result count; zero means the configured default.
	Limit int

	// ScoreThreshold overrides the configured threshold. nil keeps the
	// default; point at zero to keep every candidate.
	ScoreThreshold *float64

	// Trace attaches a request trace to the result.
	Trace bool
}

// FindResult is a finished semantic search.
type FindResult struct {
	Results []search.Result `json:"results"`
	Trace   *trace.Result   `json:"trace,omitempty"`
}

// Find runs hierarchical semantic retrieval for query.
func (e *Engine) Find(ctx context.Context, query string, opts FindOptions) (*FindResult, error) {
	if v := contract.ValidateLimit(opts.Limit); !v.OK {
		return nil, errors.InvalidArgument("%s", v.Message)
	}
	if opts.ScoreThreshold != nil {
		if v := contract.ValidateScoreThreshold(*opts.ScoreThreshold); !v.OK {
			return nil, errors.InvalidArgument("%s", v.Message)
		}
	}
	target, err := scopeURI(opts.Target)
	if err != nil {
		return nil, err
	}

	ctx, tc := e.traceCtx(ctx, "find", opts.Trace)
	results, err := e.retriever.Find(ctx, query, search.FindOptions{
		Target:         target,
		Limit:          opts.Limit,
		ScoreThreshold: opts.ScoreThreshold,
	})
	if err != nil {
		e.finishTrace(tc, "search", err)
		return nil, err
	}
	return &FindResult{Results: results, Trace: e.finishTrace(tc, "", nil)}, nil
}

// GrepOptions controls a content search.
type GrepOptions struct {
	// Target roots the search; empty scans the whole namespace.
	Target string

	// CaseInsensitive folds case when matching.
	CaseInsensitive bool

	// MaxResults caps the match count; zero means the package default.
	MaxResults int
}

// Grep streams pattern over leaf contents. Nothing is consulted in the
// index; this is the literal complement to Find.
func (e *Engine) Grep(ctx context.Context, pattern string, opts GrepOptions) (*search.GrepResult, error) {
	if v := contract.ValidateLimit(opts.MaxResults); !v.OK {
		return nil, errors.InvalidArgument("%s", v.Message)
	}
	target, err := scopeURI(opts.Target)
	if err != nil {
		return nil, err
	}
	return search.Grep(ctx, e.fs, pattern, search.GrepOptions{
		Target:          target,
		CaseInsensitive: opts.CaseInsensitive,
		MaxResults:      opts.MaxResults,
	})
}

// Glob enumerates paths under target matching pattern. The target is
// required; glob has no whole-namespace mode.
func (e *Engine) Glob(ctx context.Context, pattern, target string) (*search.GlobResult, error) {
	if target == "" {
		return nil, errors.InvalidArgument("glob requires a target uri")
	}
	u, err := parseURI(target)
	if err != nil {
		return nil, err
	}
	return search.Glob(ctx, e.fs, pattern, u)
}

// scopeURI parses an optional target, mapping "" onto the zero URI that
// the search package reads as "whole namespace".
func scopeURI(target string) (uri.URI, error) {
	if target == "" {
		return "", nil
	}
	return parseURI(target)
}
