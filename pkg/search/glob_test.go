// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/uri"
)

func globTree(t *testing.T) agfs.FS {
	t.Helper()
	fs := newLocalFS(t)
	ctx := context.Background()
	require.NoError(t, fs.Mkdir(ctx, uri.MustParse("viking://resources/docs/sub")))
	for _, path := range []string{
		"viking://resources/docs/a.md",
		"viking://resources/docs/b.txt",
		"viking://resources/docs/sub/c.md",
		"viking://resources/readme.md",
	} {
		require.NoError(t, fs.Write(ctx, uri.MustParse(path), []byte("x"), agfs.WriteOptions{}))
	}
	return fs
}

func globbedURIs(result *GlobResult) []string {
	out := make([]string, len(result.Matches))
	for i, e := range result.Matches {
		out[i] = string(e.URI)
	}
	return out
}

func TestGlobDoublestarCrossesLevels(t *testing.T) {
	fs := globTree(t)

	result, err := Glob(context.Background(), fs, "**/*.md", uri.Root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"viking://resources/docs/a.md",
		"viking://resources/docs/sub/c.md",
		"viking://resources/readme.md",
	}, globbedURIs(result))
}

func TestGlobRelativeToTarget(t *testing.T) {
	fs := globTree(t)
	docs := uri.MustParse("viking://resources/docs")

	result, err := Glob(context.Background(), fs, "*.md", docs)
	require.NoError(t, err)
	assert.Equal(t, []string{"viking://resources/docs/a.md"}, globbedURIs(result))

	result, err = Glob(context.Background(), fs, "**/*.md", docs)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"viking://resources/docs/a.md",
		"viking://resources/docs/sub/c.md",
	}, globbedURIs(result))
}

func TestGlobMatchesDirectories(t *testing.T) {
	fs := globTree(t)

	result, err := Glob(context.Background(), fs, "docs/*", uri.MustParse("viking://resources"))
	require.NoError(t, err)
	require.Len(t, result.Matches, 3)
	assert.Equal(t, "viking://resources/docs/sub", string(result.Matches[2].URI))
	assert.True(t, result.Matches[2].IsDir)
}

func TestGlobExcludesHidden(t *testing.T) {
	fs := globTree(t)
	ctx := context.Background()
	docs := uri.MustParse("viking://resources/docs")
	require.NoError(t, fs.Write(ctx, docs.MustJoin(uri.AbstractName), []byte("a"), agfs.WriteOptions{}))

	result, err := Glob(ctx, fs, "**/*", docs)
	require.NoError(t, err)
	assert.NotContains(t, globbedURIs(result), string(docs.MustJoin(uri.AbstractName)))
}

func TestGlobValidation(t *testing.T) {
	fs := globTree(t)
	ctx := context.Background()

	_, err := Glob(ctx, fs, "", uri.Root)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidArgument))

	_, err = Glob(ctx, fs, "[", uri.Root)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidArgument), "malformed pattern")

	_, err = Glob(ctx, fs, "*.md", uri.URI(""))
	assert.True(t, errors.HasCode(err, errors.CodeInvalidArgument), "target is required")

	_, err = Glob(ctx, fs, "*.md", uri.MustParse("viking://resources/readme.md"))
	assert.True(t, errors.HasCode(err, errors.CodeInvalidArgument), "file target")

	_, err = Glob(ctx, fs, "*.md", uri.MustParse("viking://resources/nowhere"))
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}
