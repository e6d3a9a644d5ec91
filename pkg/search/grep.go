// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package search

import (
	"bufio"
	"bytes"
	"context"
	"regexp"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/uri"
)

// DefaultGrepLimit bounds matches when the caller does not.
const DefaultGrepLimit = 100

const (
	// grepSniffBytes is how much of a file is inspected for NUL bytes
	// before it is treated as binary and skipped.
	grepSniffBytes = 8192

	// grepMaxLineBytes caps the line scanner. A file with a longer line
	// stops scanning there; matches found before it stand.
	grepMaxLineBytes = 1 << 20
)

// GrepOptions controls a content search.
type GrepOptions struct {
	// Target roots the search; empty means the whole namespace. A file
	// target greps that single file.
	Target uri.URI

	// CaseInsensitive folds case when matching.
	CaseInsensitive bool

	// MaxResults caps the match count; zero means DefaultGrepLimit.
	MaxResults int
}

// GrepMatch is one matching line.
type GrepMatch struct {
	URI  uri.URI `json:"uri"`
	Line int     `json:"line"`
	Text string  `json:"text"`
}

// GrepResult is a finished content search.
type GrepResult struct {
	Pattern      string      `json:"pattern"`
	Matches      []GrepMatch `json:"matches"`
	FilesScanned int         `json:"files_scanned"`
	Truncated    bool        `json:"truncated"`
}

// Grep streams pattern over leaf contents under opts.Target. Nothing is
// indexed: every visible file is read and scanned line by line. Hidden
// files and binary files (NUL byte in the leading window) are skipped.
// The pattern is a Go regular expression; a plain substring is simply a
// regexp with no metacharacters.
func Grep(ctx context.Context, fs agfs.FS, pattern string, opts GrepOptions) (*GrepResult, error) {
	if pattern == "" {
		return nil, errors.InvalidArgument("grep pattern is empty")
	}
	expr := pattern
	if opts.CaseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.InvalidArgument("grep pattern %q does not compile: %v", pattern, err).
			WithFix("escape regexp metacharacters to match them literally")
	}
	limit := opts.MaxResults
	if limit <= 0 {
		limit = DefaultGrepLimit
	}
	target := opts.Target
	if target == "" {
		target = uri.Root
	}

	st, err := fs.Stat(ctx, target)
	if err != nil {
		return nil, err
	}
	if !st.Exists {
		return nil, errors.NotFound("uri %s does not exist", target)
	}

	sMetrics.init()
	sMetrics.greps.Inc()

	result := &GrepResult{Pattern: pattern, Matches: []GrepMatch{}}
	if !st.IsDir {
		if err := grepFile(ctx, fs, target, re, limit, result); err != nil {
			return nil, err
		}
		return result, nil
	}

	entries, err := fs.List(ctx, target, agfs.ListOptions{Recursive: true})
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := grepFile(ctx, fs, e.URI, re, limit, result); err != nil {
			return nil, err
		}
		if result.Truncated {
			break
		}
	}
	return result, nil
}

// grepFile scans one leaf into result. A file deleted since the listing
// is skipped, not an error.
func grepFile(ctx context.Context, fs agfs.FS, u uri.URI, re *regexp.Regexp, limit int, result *GrepResult) error {
	data, err := fs.Read(ctx, u)
	if errors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if isBinary(data) {
		return nil
	}
	result.FilesScanned++

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), grepMaxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if !re.MatchString(text) {
			continue
		}
		if len(result.Matches) >= limit {
			result.Truncated = true
			return nil
		}
		result.Matches = append(result.Matches, GrepMatch{URI: u, Line: line, Text: text})
	}
	// A scanner error means an oversized line; matches up to it stand.
	return nil
}

// isBinary sniffs for a NUL byte in the leading window.
func isBinary(data []byte) bool {
	n := min(len(data), grepSniffBytes)
	return bytes.IndexByte(data[:n], 0) >= 0
}
