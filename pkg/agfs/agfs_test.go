// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package agfs

import (
	"context"
	"strings"
	"testing"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/uri"
)

func TestTree_DepthBound(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()
	mustMkdir(t, fs, uri.MustParse("viking://resources/proj/docs/deep"))
	mustWrite(t, fs, uri.MustParse("viking://resources/proj/readme.md"), "r")

	node, err := Tree(ctx, fs, uri.Resources, TreeOptions{Depth: 1})
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(node.Children) != 1 || node.Children[0].URI.String() != "viking://resources/proj" {
		t.Fatalf("children = %+v", node.Children)
	}
	if len(node.Children[0].Children) != 0 {
		t.Errorf("depth 1 tree descended into %v", node.Children[0].Children)
	}

	full, err := Tree(ctx, fs, uri.Resources, TreeOptions{})
	if err != nil {
		t.Fatalf("Tree unlimited: %v", err)
	}
	proj := full.Children[0]
	if len(proj.Children) != 2 {
		t.Fatalf("proj children = %+v", proj.Children)
	}
	if proj.Children[0].URI.String() != "viking://resources/proj/docs" {
		t.Errorf("first child = %s", proj.Children[0].URI)
	}
}

func TestTree_NodeLimit(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()
	mustMkdir(t, fs, uri.Resources)
	for _, name := range []string{"a.md", "b.md", "c.md", "d.md"} {
		mustWrite(t, fs, uri.Resources.MustJoin(name), "x")
	}

	node, err := Tree(ctx, fs, uri.Resources, TreeOptions{NodeLimit: 2})
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(node.Children) != 2 {
		t.Errorf("limited tree has %d children, want 2", len(node.Children))
	}
}

func TestTree_FileAndMissing(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()
	mustMkdir(t, fs, uri.Resources)
	mustWrite(t, fs, uri.MustParse("viking://resources/doc.md"), "x")

	node, err := Tree(ctx, fs, uri.MustParse("viking://resources/doc.md"), TreeOptions{})
	if err != nil {
		t.Fatalf("Tree of file: %v", err)
	}
	if node.IsDir || len(node.Children) != 0 {
		t.Errorf("file tree = %+v", node)
	}

	if _, err := Tree(ctx, fs, uri.MustParse("viking://resources/nope"), TreeOptions{}); !errors.IsNotFound(err) {
		t.Errorf("Tree missing = %v, want NOT_FOUND", err)
	}
}

func TestAbstractStates(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()
	mustMkdir(t, fs, uri.MustParse("viking://resources/done"))
	mustMkdir(t, fs, uri.MustParse("viking://resources/pending"))
	mustWrite(t, fs, uri.MustParse("viking://resources/done/.abstract.md"), "a concise abstract")
	mustWrite(t, fs, uri.MustParse("viking://resources/done/file.md"), "x")

	text, err := Abstract(ctx, fs, uri.MustParse("viking://resources/done"))
	if err != nil {
		t.Fatalf("Abstract: %v", err)
	}
	if text != "a concise abstract" {
		t.Errorf("Abstract = %q", text)
	}

	_, err = Abstract(ctx, fs, uri.MustParse("viking://resources/pending"))
	if !errors.HasCode(err, errors.CodeNotProcessed) {
		t.Fatalf("Abstract pending = %v, want NOT_PROCESSED", err)
	}
	if j := errors.AsJSON(err); !strings.Contains(j.Fix, "viking wait") {
		t.Errorf("NOT_PROCESSED fix = %+v", err)
	}

	if _, err := Abstract(ctx, fs, uri.MustParse("viking://resources/nope")); !errors.IsNotFound(err) {
		t.Errorf("Abstract missing dir = %v, want NOT_FOUND", err)
	}
	if _, err := Abstract(ctx, fs, uri.MustParse("viking://resources/done/file.md")); !errors.HasCode(err, errors.CodeInvalidArgument) {
		t.Errorf("Abstract on file = %v, want INVALID_ARGUMENT", err)
	}
}

func TestOverviewReadsHiddenSibling(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()
	mustMkdir(t, fs, uri.MustParse("viking://resources/proj"))
	mustWrite(t, fs, uri.MustParse("viking://resources/proj/.overview.md"), "## Structure\n\ndetails\n")

	text, err := Overview(ctx, fs, uri.MustParse("viking://resources/proj"))
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if !strings.HasPrefix(text, "## Structure") {
		t.Errorf("Overview = %q", text)
	}
}

func TestExists(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()
	mustMkdir(t, fs, uri.Resources)

	ok, err := Exists(ctx, fs, uri.Resources)
	if err != nil || !ok {
		t.Errorf("Exists(resources) = %v, %v", ok, err)
	}
	ok, err = Exists(ctx, fs, uri.MustParse("viking://resources/nope"))
	if err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v", ok, err)
	}
}

func TestCopyTree(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()
	mustMkdir(t, fs, uri.MustParse("viking://temp/t1/proj/docs"))
	mustMkdir(t, fs, uri.Resources)
	mustWrite(t, fs, uri.MustParse("viking://temp/t1/proj/readme.md"), "r")
	mustWrite(t, fs, uri.MustParse("viking://temp/t1/proj/.abstract.md"), "hidden too")
	mustWrite(t, fs, uri.MustParse("viking://temp/t1/proj/docs/guide.md"), "g")

	if err := CopyTree(ctx, fs, uri.MustParse("viking://temp/t1/proj"), uri.MustParse("viking://resources/proj")); err != nil {
		t.Fatalf("CopyTree: %v", err)
	}

	for path, want := range map[string]string{
		"viking://resources/proj/readme.md":     "r",
		"viking://resources/proj/.abstract.md":  "hidden too",
		"viking://resources/proj/docs/guide.md": "g",
	} {
		data, err := fs.Read(ctx, uri.MustParse(path))
		if err != nil || string(data) != want {
			t.Errorf("Read(%s) = %q, %v", path, data, err)
		}
	}
	// Source is untouched.
	if ok, _ := Exists(ctx, fs, uri.MustParse("viking://temp/t1/proj/readme.md")); !ok {
		t.Error("source tree modified by copy")
	}
}
