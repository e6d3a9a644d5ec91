// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package search

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/uri"
)

func grepTree(t *testing.T) agfs.FS {
	t.Helper()
	fs := newLocalFS(t)
	ctx := context.Background()
	files := map[string]string{
		"viking://resources/docs/a.md": "the needle is here\nplain line\nanother needle",
		"viking://resources/docs/b.md": "nothing to see",
		"viking://resources/src/c.txt": "Needle at start\nmore text",
	}
	require.NoError(t, fs.Mkdir(ctx, uri.MustParse("viking://resources/docs")))
	require.NoError(t, fs.Mkdir(ctx, uri.MustParse("viking://resources/src")))
	for path, content := range files {
		require.NoError(t, fs.Write(ctx, uri.MustParse(path), []byte(content), agfs.WriteOptions{}))
	}
	return fs
}

func TestGrepFindsMatchesAcrossTree(t *testing.T) {
	fs := grepTree(t)

	result, err := Grep(context.Background(), fs, "needle", GrepOptions{})
	require.NoError(t, err)
	require.Len(t, result.Matches, 2)
	assert.Equal(t, uri.MustParse("viking://resources/docs/a.md"), result.Matches[0].URI)
	assert.Equal(t, 1, result.Matches[0].Line)
	assert.Equal(t, "the needle is here", result.Matches[0].Text)
	assert.Equal(t, 3, result.Matches[1].Line)
	assert.Equal(t, 3, result.FilesScanned)
	assert.False(t, result.Truncated)
}

func TestGrepCaseInsensitive(t *testing.T) {
	fs := grepTree(t)

	result, err := Grep(context.Background(), fs, "needle", GrepOptions{CaseInsensitive: true})
	require.NoError(t, err)
	require.Len(t, result.Matches, 3)
	assert.Equal(t, uri.MustParse("viking://resources/src/c.txt"), result.Matches[2].URI)
	assert.Equal(t, "Needle at start", result.Matches[2].Text)
}

func TestGrepRegexPattern(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()
	require.NoError(t, fs.Mkdir(ctx, uri.MustParse("viking://resources")))
	require.NoError(t, fs.Write(ctx, uri.MustParse("viking://resources/x.md"),
		[]byte("neeedle\nndle\nneedle"), agfs.WriteOptions{}))

	result, err := Grep(ctx, fs, "ne+dle$", GrepOptions{})
	require.NoError(t, err)
	require.Len(t, result.Matches, 2)
	assert.Equal(t, 1, result.Matches[0].Line)
	assert.Equal(t, 3, result.Matches[1].Line)
}

func TestGrepInvalidPattern(t *testing.T) {
	fs := newLocalFS(t)
	_, err := Grep(context.Background(), fs, "(unclosed", GrepOptions{})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidArgument))

	_, err = Grep(context.Background(), fs, "", GrepOptions{})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidArgument))
}

func TestGrepSkipsBinaryFiles(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()
	require.NoError(t, fs.Mkdir(ctx, uri.MustParse("viking://resources")))
	require.NoError(t, fs.Write(ctx, uri.MustParse("viking://resources/blob.bin"),
		[]byte("needle\x00needle"), agfs.WriteOptions{}))
	require.NoError(t, fs.Write(ctx, uri.MustParse("viking://resources/text.md"),
		[]byte("needle"), agfs.WriteOptions{}))

	result, err := Grep(ctx, fs, "needle", GrepOptions{})
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, uri.MustParse("viking://resources/text.md"), result.Matches[0].URI)
	assert.Equal(t, 1, result.FilesScanned, "binary file does not count as scanned")
}

func TestGrepSkipsHiddenFiles(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()
	dir := uri.MustParse("viking://resources/docs")
	require.NoError(t, fs.Mkdir(ctx, dir))
	require.NoError(t, fs.Write(ctx, dir.MustJoin(uri.AbstractName),
		[]byte("needle in the abstract"), agfs.WriteOptions{}))
	require.NoError(t, fs.Write(ctx, dir.MustJoin("visible.md"),
		[]byte("needle in plain sight"), agfs.WriteOptions{}))

	result, err := Grep(ctx, fs, "needle", GrepOptions{})
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, dir.MustJoin("visible.md"), result.Matches[0].URI)
}

func TestGrepMaxResults(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()
	require.NoError(t, fs.Mkdir(ctx, uri.MustParse("viking://resources")))
	content := strings.Repeat("needle here\n", 5)
	require.NoError(t, fs.Write(ctx, uri.MustParse("viking://resources/many.md"),
		[]byte(content), agfs.WriteOptions{}))

	result, err := Grep(ctx, fs, "needle", GrepOptions{MaxResults: 3})
	require.NoError(t, err)
	assert.Len(t, result.Matches, 3)
	assert.True(t, result.Truncated)
}

func TestGrepSingleFileTarget(t *testing.T) {
	fs := grepTree(t)

	result, err := Grep(context.Background(), fs, "needle", GrepOptions{
		Target: uri.MustParse("viking://resources/docs/a.md"),
	})
	require.NoError(t, err)
	assert.Len(t, result.Matches, 2)
	assert.Equal(t, 1, result.FilesScanned)
}

func TestGrepScopedToDirectory(t *testing.T) {
	fs := grepTree(t)

	result, err := Grep(context.Background(), fs, "(?i)needle", GrepOptions{
		Target: uri.MustParse("viking://resources/src"),
	})
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, uri.MustParse("viking://resources/src/c.txt"), result.Matches[0].URI)
}

func TestGrepMissingTarget(t *testing.T) {
	fs := newLocalFS(t)
	_, err := Grep(context.Background(), fs, "needle", GrepOptions{
		Target: uri.MustParse("viking://resources/nowhere"),
	})
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}
