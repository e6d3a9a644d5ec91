// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package search

import (
	"context"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/uri"
)

// GlobResult is a finished path-pattern enumeration.
type GlobResult struct {
	Pattern string       `json:"pattern"`
	Target  uri.URI      `json:"target"`
	Matches []agfs.Entry `json:"matches"`
}

// Glob enumerates the nodes under target whose path relative to it matches
// pattern. Patterns use doublestar syntax, so ** crosses directory levels.
// The target is required and must be an existing directory; hidden nodes
// never match. Matches come back in listing order, lexicographic by URI.
func Glob(ctx context.Context, fs agfs.FS, pattern string, target uri.URI) (*GlobResult, error) {
	if pattern == "" {
		return nil, errors.InvalidArgument("glob pattern is empty")
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.InvalidArgument("glob pattern %q is malformed", pattern)
	}
	if target == "" {
		return nil, errors.InvalidArgument("glob target uri is required")
	}
	st, err := fs.Stat(ctx, target)
	if err != nil {
		return nil, err
	}
	if !st.Exists {
		return nil, errors.NotFound("uri %s does not exist", target)
	}
	if !st.IsDir {
		return nil, errors.InvalidArgument("uri %s is not a directory", target)
	}

	sMetrics.init()
	sMetrics.globs.Inc()

	entries, err := fs.List(ctx, target, agfs.ListOptions{Recursive: true})
	if err != nil {
		return nil, err
	}

	result := &GlobResult{Pattern: pattern, Target: target, Matches: []agfs.Entry{}}
	base := target.Path()
	for _, e := range entries {
		rel := e.URI.Path()
		if base != "" {
			rel = strings.TrimPrefix(rel, base+"/")
		}
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			result.Matches = append(result.Matches, e)
		}
	}
	return result, nil
}
