// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package agfs

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/uri"
)

// Well-known marker names. MovePendingName flags an in-flight directory move
// at the destination root; PendingCleanupName flags a failed promotion
// rollback awaiting operator attention.
const (
	MovePendingName    = ".move_pending"
	PendingCleanupName = ".pending_cleanup"
)

// Stat describes a single node.
type Stat struct {
	Exists bool      `json:"exists"`
	IsDir  bool      `json:"is_dir"`
	Size   int64     `json:"size"`
	MTime  time.Time `json:"mtime"`
}

// Entry is one row of a listing.
type Entry struct {
	URI   uri.URI   `json:"uri"`
	IsDir bool      `json:"is_dir"`
	Size  int64     `json:"size"`
	MTime time.Time `json:"mtime"`

	// Abstract carries the directory's own .abstract.md content when it
	// exists, so a single ls call is enough to navigate semantically.
	Abstract string `json:"abstract,omitempty"`
}

// TreeNode is a nested listing.
type TreeNode struct {
	Entry
	Children []*TreeNode `json:"children,omitempty"`
}

// WriteOptions controls Write behaviour.
type WriteOptions struct {
	// CreateOnly fails with ALREADY_EXISTS when the target is present.
	CreateOnly bool
}

// ListOptions controls List behaviour.
type ListOptions struct {
	Recursive     bool
	IncludeHidden bool

	// NodeLimit truncates the listing after this many entries; zero means
	// unlimited. Truncation is silent and deterministic because listings are
	// sorted lexicographically by URI first.
	NodeLimit int
}

// TreeOptions controls Tree behaviour.
type TreeOptions struct {
	// Depth bounds recursion; zero means unlimited.
	Depth int

	// NodeLimit bounds the total node count; zero means unlimited.
	NodeLimit int

	IncludeHidden bool
}

// DeleteOptions controls Delete behaviour.
type DeleteOptions struct {
	// Recursive cascades into directories. Without it, deleting a non-empty
	// directory fails.
	Recursive bool
}

// FS is the uniform filesystem contract every backend implements.
//
// Operations observe context cancellation and map backend failures onto the
// public error taxonomy: missing nodes are NOT_FOUND, create-only conflicts
// are ALREADY_EXISTS, everything transport-level is DEPENDENCY_ERROR.
// Writes are atomic at node granularity: a concurrent reader sees either the
// old or the new content, never a prefix of the new one.
type FS interface {
	// Read returns the raw bytes of a file node.
	Read(ctx context.Context, u uri.URI) ([]byte, error)

	// Write stores data at u. The parent directory must already exist.
	Write(ctx context.Context, u uri.URI, data []byte, opts WriteOptions) error

	// Append appends data to the file at u, creating it when absent.
	// The parent directory must already exist. Local backends append in
	// place; object backends emulate with read-concat-write.
	Append(ctx context.Context, u uri.URI, data []byte) error

	// Mkdir creates the directory at u together with missing ancestors.
	// Creating an existing directory is not an error.
	Mkdir(ctx context.Context, u uri.URI) error

	// Stat reports on u. A missing node is Stat{Exists: false}, not an error.
	Stat(ctx context.Context, u uri.URI) (Stat, error)

	// List enumerates the children of the directory at u, sorted
	// lexicographically by URI. Hidden entries (dot-prefixed names) are
	// excluded unless opts.IncludeHidden is set.
	List(ctx context.Context, u uri.URI, opts ListOptions) ([]Entry, error)

	// Delete removes the node at u.
	Delete(ctx context.Context, u uri.URI, opts DeleteOptions) error

	// Move relocates src to dst. Single-file moves are atomic from the
	// reader's point of view. Directory moves on object backends are
	// copy-then-delete guarded by a MovePendingName marker at dst.
	Move(ctx context.Context, src, dst uri.URI) error
}

// Tree assembles a nested listing rooted at u. It is derived from List so
// every backend gets identical semantics.
func Tree(ctx context.Context, fs FS, u uri.URI, opts TreeOptions) (*TreeNode, error) {
	st, err := fs.Stat(ctx, u)
	if err != nil {
		return nil, err
	}
	if !st.Exists {
		return nil, errors.NotFound("uri %s does not exist", u)
	}

	root := &TreeNode{Entry: Entry{URI: u, IsDir: st.IsDir, Size: st.Size, MTime: st.MTime}}
	if !st.IsDir {
		return root, nil
	}

	budget := opts.NodeLimit
	err = fillTree(ctx, fs, root, 1, opts, &budget)
	return root, err
}

func fillTree(ctx context.Context, fs FS, node *TreeNode, depth int, opts TreeOptions, budget *int) error {
	if opts.Depth > 0 && depth > opts.Depth {
		return nil
	}
	entries, err := fs.List(ctx, node.URI, ListOptions{IncludeHidden: opts.IncludeHidden})
	if err != nil {
		return err
	}
	for _, e := range entries {
		if opts.NodeLimit > 0 {
			if *budget <= 0 {
				return nil
			}
			*budget--
		}
		child := &TreeNode{Entry: e}
		node.Children = append(node.Children, child)
		if e.IsDir {
			if err := fillTree(ctx, fs, child, depth+1, opts, budget); err != nil {
				return err
			}
		}
	}
	return nil
}

// Abstract reads <dir>/.abstract.md. A directory whose semantic job has not
// completed yields NOT_PROCESSED, which is how callers observe eventual
// consistency.
func Abstract(ctx context.Context, fs FS, dir uri.URI) (string, error) {
	return readSemanticFile(ctx, fs, dir, uri.AbstractName)
}

// Overview reads <dir>/.overview.md, with the same NOT_PROCESSED contract
// as Abstract.
func Overview(ctx context.Context, fs FS, dir uri.URI) (string, error) {
	return readSemanticFile(ctx, fs, dir, uri.OverviewName)
}

func readSemanticFile(ctx context.Context, fs FS, dir uri.URI, name string) (string, error) {
	st, err := fs.Stat(ctx, dir)
	if err != nil {
		return "", err
	}
	if !st.Exists {
		return "", errors.NotFound("uri %s does not exist", dir)
	}
	if !st.IsDir {
		return "", errors.InvalidArgument("uri %s is not a directory", dir)
	}

	data, err := fs.Read(ctx, dir.MustJoin(name))
	if errors.IsNotFound(err) {
		return "", errors.NotProcessed("%s not available yet for %s", name, dir).
			WithFix("run 'viking wait' to drain the semantic queue")
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Exists is a Stat convenience.
func Exists(ctx context.Context, fs FS, u uri.URI) (bool, error) {
	st, err := fs.Stat(ctx, u)
	if err != nil {
		return false, err
	}
	return st.Exists, nil
}

// CopyTree copies every node under src to the corresponding URI under dst.
// Used by object backends for directory moves and by the TreeBuilder for
// cross-backend promotion.
func CopyTree(ctx context.Context, fs FS, src, dst uri.URI) error {
	if err := fs.Mkdir(ctx, dst); err != nil {
		return err
	}
	entries, err := fs.List(ctx, src, ListOptions{Recursive: true, IncludeHidden: true})
	if err != nil {
		return err
	}
	for _, e := range entries {
		rel := strings.TrimPrefix(e.URI.Path(), src.Path()+"/")
		target, err := dst.Join(strings.Split(rel, "/")...)
		if err != nil {
			return err
		}
		if e.IsDir {
			if err := fs.Mkdir(ctx, target); err != nil {
				return err
			}
			continue
		}
		data, err := fs.Read(ctx, e.URI)
		if err != nil {
			return err
		}
		if err := fs.Write(ctx, target, data, WriteOptions{}); err != nil {
			return err
		}
	}
	return nil
}

// sortEntries orders a listing lexicographically by URI. Backends call this
// before applying node limits so truncation stays deterministic.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].URI < entries[j].URI
	})
}

// applyNodeLimit truncates a sorted listing.
func applyNodeLimit(entries []Entry, limit int) []Entry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}

// ctxErr translates a context failure at an operation boundary.
func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
