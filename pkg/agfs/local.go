// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package agfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/uri"
)

// Local is the disk backend. Every URI maps to a path under the workspace
// root that mirrors the URI path, so the on-disk layout is inspectable with
// ordinary tools.
type Local struct {
	root string
}

// NewLocal opens (creating if needed) a local backend rooted at dir.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve agfs root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create agfs root: %w", err)
	}
	return &Local{root: abs}, nil
}

// Root returns the backing directory.
func (l *Local) Root() string { return l.root }

func (l *Local) path(u uri.URI) string {
	p := u.Path()
	if p == "" {
		return l.root
	}
	return filepath.Join(l.root, filepath.FromSlash(p))
}

func (l *Local) Read(ctx context.Context, u uri.URI) ([]byte, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.path(u))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("uri %s does not exist", u)
		}
		if info, statErr := os.Stat(l.path(u)); statErr == nil && info.IsDir() {
			return nil, errors.InvalidArgument("uri %s is a directory", u)
		}
		return nil, errors.DependencyError(err, "read %s", u)
	}
	return data, nil
}

func (l *Local) Write(ctx context.Context, u uri.URI, data []byte, opts WriteOptions) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	target := l.path(u)

	parent := filepath.Dir(target)
	if info, err := os.Stat(parent); err != nil || !info.IsDir() {
		return errors.NotFound("parent of %s does not exist", u)
	}
	if info, err := os.Stat(target); err == nil {
		if info.IsDir() {
			return errors.InvalidArgument("uri %s is a directory", u)
		}
		if opts.CreateOnly {
			return errors.AlreadyExists("uri %s already exists", u)
		}
	}

	// Atomic at node granularity: readers see the old or the new content,
	// never a partial write.
	tmp, err := os.CreateTemp(parent, ".viking-write-*")
	if err != nil {
		return errors.DependencyError(err, "write %s", u)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.DependencyError(err, "write %s", u)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.DependencyError(err, "write %s", u)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return errors.DependencyError(err, "write %s", u)
	}
	return nil
}

func (l *Local) Append(ctx context.Context, u uri.URI, data []byte) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	target := l.path(u)
	if info, err := os.Stat(filepath.Dir(target)); err != nil || !info.IsDir() {
		return errors.NotFound("parent of %s does not exist", u)
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.DependencyError(err, "append %s", u)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return errors.DependencyError(err, "append %s", u)
	}
	return nil
}

func (l *Local) Mkdir(ctx context.Context, u uri.URI) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(l.path(u), 0o755); err != nil {
		return errors.DependencyError(err, "mkdir %s", u)
	}
	return nil
}

func (l *Local) Stat(ctx context.Context, u uri.URI) (Stat, error) {
	if err := ctxErr(ctx); err != nil {
		return Stat{}, err
	}
	info, err := os.Stat(l.path(u))
	if err != nil {
		if os.IsNotExist(err) {
			return Stat{}, nil
		}
		return Stat{}, errors.DependencyError(err, "stat %s", u)
	}
	return Stat{Exists: true, IsDir: info.IsDir(), Size: info.Size(), MTime: info.ModTime()}, nil
}

func (l *Local) List(ctx context.Context, u uri.URI, opts ListOptions) ([]Entry, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	info, err := os.Stat(l.path(u))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("uri %s does not exist", u)
		}
		return nil, errors.DependencyError(err, "list %s", u)
	}
	if !info.IsDir() {
		return nil, errors.InvalidArgument("uri %s is not a directory", u)
	}

	var entries []Entry
	if err := l.collect(ctx, u, opts, &entries); err != nil {
		return nil, err
	}
	sortEntries(entries)
	return applyNodeLimit(entries, opts.NodeLimit), nil
}

func (l *Local) collect(ctx context.Context, dir uri.URI, opts ListOptions, out *[]Entry) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	dirents, err := os.ReadDir(l.path(dir))
	if err != nil {
		return errors.DependencyError(err, "list %s", dir)
	}
	for _, de := range dirents {
		name := de.Name()
		if !opts.IncludeHidden && uri.IsHiddenName(name) {
			continue
		}
		child, err := dir.Join(name)
		if err != nil {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		e := Entry{URI: child, IsDir: de.IsDir(), Size: info.Size(), MTime: info.ModTime()}
		if de.IsDir() {
			e.Size = 0
			if data, err := os.ReadFile(filepath.Join(l.path(child), uri.AbstractName)); err == nil {
				e.Abstract = string(data)
			}
		}
		*out = append(*out, e)
		if de.IsDir() && opts.Recursive {
			if err := l.collect(ctx, child, opts, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Local) Delete(ctx context.Context, u uri.URI, opts DeleteOptions) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	target := l.path(u)
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound("uri %s does not exist", u)
		}
		return errors.DependencyError(err, "delete %s", u)
	}

	if info.IsDir() && !opts.Recursive {
		dirents, err := os.ReadDir(target)
		if err != nil {
			return errors.DependencyError(err, "delete %s", u)
		}
		if len(dirents) > 0 {
			return errors.InvalidArgument("directory %s is not empty (set recursive to cascade)", u)
		}
	}

	if opts.Recursive {
		err = os.RemoveAll(target)
	} else {
		err = os.Remove(target)
	}
	if err != nil {
		return errors.DependencyError(err, "delete %s", u)
	}
	return nil
}

// Move renames src to dst. Both paths live under the same root, so rename is
// atomic for files and directories alike; the copy-then-delete marker
// protocol is only needed on object backends.
func (l *Local) Move(ctx context.Context, src, dst uri.URI) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if _, err := os.Stat(l.path(src)); err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound("uri %s does not exist", src)
		}
		return errors.DependencyError(err, "move %s", src)
	}
	if _, err := os.Stat(l.path(dst)); err == nil {
		return errors.AlreadyExists("uri %s already exists", dst)
	}
	parent := filepath.Dir(l.path(dst))
	if info, err := os.Stat(parent); err != nil || !info.IsDir() {
		return errors.NotFound("parent of %s does not exist", dst)
	}
	if err := os.Rename(l.path(src), l.path(dst)); err != nil {
		return errors.DependencyError(err, "move %s to %s", src, dst)
	}
	return nil
}

var _ FS = (*Local)(nil)
