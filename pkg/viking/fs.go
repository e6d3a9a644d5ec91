// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package viking

import (
	"context"

	"github.com/kraklabs/openviking/internal/contract"
	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/uri"
)

// Filesystem surface. Targets arrive as strings because the HTTP
// collaborator and the CLI both speak raw URIs; parsing and contract
// checks happen here, once, so the inner layers can assume valid input.

func parseURI(target string) (uri.URI, error) {
	u, err := uri.Parse(target)
	if err != nil {
		return "", err
	}
	return u, nil
}

// Ls lists the children of the directory at target.
func (e *Engine) Ls(ctx context.Context, target string, opts agfs.ListOptions) ([]agfs.Entry, error) {
	u, err := parseURI(target)
	if err != nil {
		return nil, err
	}
	if v := contract.ValidateNodeLimit(opts.NodeLimit); !v.OK {
		return nil, errors.InvalidArgument("%s", v.Message)
	}
	st, err := e.fs.Stat(ctx, u)
	if err != nil {
		return nil, err
	}
	if !st.Exists {
		return nil, errors.NotFound("uri %s does not exist", u)
	}
	if !st.IsDir {
		return nil, errors.InvalidArgument("uri %s is not a directory", u)
	}
	return e.fs.List(ctx, u, opts)
}

// Tree returns a nested listing rooted at target.
func (e *Engine) Tree(ctx context.Context, target string, opts agfs.TreeOptions) (*agfs.TreeNode, error) {
	u, err := parseURI(target)
	if err != nil {
		return nil, err
	}
	if v := contract.ValidateNodeLimit(opts.NodeLimit); !v.OK {
		return nil, errors.InvalidArgument("%s", v.Message)
	}
	return agfs.Tree(ctx, e.fs, u, opts)
}

// Stat reports on the node at target. Missing nodes report
// Stat{Exists: false} rather than an error.
func (e *Engine) Stat(ctx context.Context, target string) (agfs.Stat, error) {
	u, err := parseURI(target)
	if err != nil {
		return agfs.Stat{}, err
	}
	return e.fs.Stat(ctx, u)
}

// Read returns up to limit bytes of the file at target starting at
// offset. A zero limit means "to the end"; an offset past the end
// yields empty content, not an error.
func (e *Engine) Read(ctx context.Context, target string, offset, limit int64) ([]byte, error) {
	u, err := parseURI(target)
	if err != nil {
		return nil, err
	}
	if v := contract.ValidateRange(offset, limit); !v.OK {
		return nil, errors.InvalidArgument("%s", v.Message)
	}
	data, err := e.fs.Read(ctx, u)
	if err != nil {
		return nil, err
	}
	if offset >= int64(len(data)) {
		return []byte{}, nil
	}
	data = data[offset:]
	if limit > 0 && limit < int64(len(data)) {
		data = data[:limit]
	}
	return data, nil
}

// Write stores data at target, creating missing parent directories.
func (e *Engine) Write(ctx context.Context, target string, data []byte) error {
	u, err := parseURI(target)
	if err != nil {
		return err
	}
	if v := contract.ValidatePayload(data); !v.OK {
		return errors.ResourceExhausted("%s", v.Message)
	}
	if parent := u.Parent(); parent != u {
		if err := e.fs.Mkdir(ctx, parent); err != nil {
			return err
		}
	}
	return e.fs.Write(ctx, u, data, agfs.WriteOptions{})
}

// Delete removes the node at target. This is the raw plumbing remove:
// vectors for the subtree are untouched. Remove is the resource-level
// operation that also drops the index entries.
func (e *Engine) Delete(ctx context.Context, target string, recursive bool) error {
	u, err := parseURI(target)
	if err != nil {
		return err
	}
	return e.fs.Delete(ctx, u, agfs.DeleteOptions{Recursive: recursive})
}

// Abstract returns the L1 summary of the directory at target.
func (e *Engine) Abstract(ctx context.Context, target string) (string, error) {
	u, err := parseURI(target)
	if err != nil {
		return "", err
	}
	return agfs.Abstract(ctx, e.fs, u)
}

// Overview returns the L0 navigation map of the directory at target.
func (e *Engine) Overview(ctx context.Context, target string) (string, error) {
	u, err := parseURI(target)
	if err != nil {
		return "", err
	}
	return agfs.Overview(ctx, e.fs, u)
}
