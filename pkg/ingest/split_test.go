// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package ingest

import (
	"bytes"
	"strings"
	"testing"
)

// wordTokens makes splitting decisions readable in tests.
func wordTokens(s string) int { return len(strings.Fields(s)) }

func TestDefaultTokenCounter(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("a", 4096), 1024},
		{strings.Repeat("a", 4097), 1025},
	}
	for _, c := range cases {
		if got := DefaultTokenCounter(c.in); got != c.want {
			t.Errorf("DefaultTokenCounter(len %d) = %d, want %d", len(c.in), got, c.want)
		}
	}
}

func TestSplitMarkdown_SmallDocSingleFile(t *testing.T) {
	source := []byte("# Hi\n\nA short note.\n")
	root := SplitMarkdown("guide", source, SplitOptions{})

	if !root.IsDir() || root.Name != "guide" {
		t.Fatalf("root = %+v, want directory named guide", root)
	}
	if len(root.Children) != 1 {
		t.Fatalf("children = %d, want 1", len(root.Children))
	}
	child := root.Children[0]
	if child.Name != "guide.md" || !bytes.Equal(child.Content, source) {
		t.Errorf("child = %q content %q", child.Name, child.Content)
	}
}

func TestSplitMarkdown_AtBudgetStaysWhole(t *testing.T) {
	// Exactly 1024 default tokens: the boundary is inclusive.
	source := bytes.Repeat([]byte("a"), 4096)
	root := SplitMarkdown("doc", source, SplitOptions{})
	if len(root.Children) != 1 || root.Children[0].Name != "doc.md" {
		t.Errorf("at-budget doc split: %+v", root.Children)
	}

	// Over budget but a single paragraph: no boundary to cut at.
	over := bytes.Repeat([]byte("a"), 8000)
	root = SplitMarkdown("doc", over, SplitOptions{})
	if len(root.Children) != 1 || root.Children[0].Name != "doc.md" {
		t.Errorf("unsplittable paragraph was cut: %+v", root.Children)
	}
}

func TestSplitMarkdown_HeadingSections(t *testing.T) {
	source := []byte("# Guide\n\nintro text\n\n" +
		"## Install\n\n" + strings.Repeat("setup step here. ", 8) + "\n\n" +
		"## Usage\n\n" + strings.Repeat("usage detail here. ", 8) + "\n")
	opts := SplitOptions{SplitTokens: 40, MergeTokens: 5, Tokens: wordTokens}

	root := SplitMarkdown("guide", source, opts)
	if !root.IsDir() {
		t.Fatal("root is not a directory")
	}
	names := childNames(root)
	want := []string{"intro", "install", "usage"}
	if len(names) != 3 || names[0] != "intro.md" || names[1] != "install.md" || names[2] != "usage.md" {
		t.Fatalf("children = %v, want %v as .md files", names, want)
	}

	// Sections are cut at line starts, so the children reassemble the
	// source byte for byte.
	var joined bytes.Buffer
	for _, c := range root.Children {
		joined.Write(c.Content)
	}
	if !bytes.Equal(joined.Bytes(), source) {
		t.Error("children do not reassemble the source")
	}

	if !bytes.HasPrefix(root.Children[1].Content, []byte("## Install")) {
		t.Errorf("install section starts with %q", firstLine(string(root.Children[1].Content)))
	}
	if root.Children[1].Title != "Install" {
		t.Errorf("install title = %q", root.Children[1].Title)
	}
}

func TestSplitMarkdown_MergesSmallAdjacentSections(t *testing.T) {
	source := []byte("## A\n\nalpha beta gamma\n\n" +
		"## B\n\nalpha beta gamma\n\n" +
		"## C\n\nalpha beta gamma\n\n" +
		"## D\n\nalpha beta gamma\n\n")
	// Each section is 5 words; pairs merge under the 12-word budget.
	opts := SplitOptions{SplitTokens: 10, MergeTokens: 12, Tokens: wordTokens}

	root := SplitMarkdown("doc", source, opts)
	names := childNames(root)
	if len(names) != 2 || names[0] != "a.md" || names[1] != "c.md" {
		t.Fatalf("children = %v, want [a.md c.md]", names)
	}
	if !bytes.Contains(root.Children[0].Content, []byte("## B")) {
		t.Error("section B did not merge into A")
	}
	if !bytes.Contains(root.Children[1].Content, []byte("## D")) {
		t.Error("section D did not merge into C")
	}
}

func TestSplitMarkdown_HeadinglessChunks(t *testing.T) {
	source := []byte("one two three four\n\nfive six seven eight\n\nnine ten eleven twelve\n")
	opts := SplitOptions{SplitTokens: 6, MergeTokens: 2, Tokens: wordTokens}

	root := SplitMarkdown("notes", source, opts)
	names := childNames(root)
	if len(names) != 3 {
		t.Fatalf("children = %v, want 3 parts", names)
	}
	for i, name := range names {
		if name != []string{"part-01.md", "part-02.md", "part-03.md"}[i] {
			t.Errorf("part %d = %q", i, name)
		}
	}
	if root.Children[0].Title != "notes (part 1)" {
		t.Errorf("part title = %q", root.Children[0].Title)
	}
	if string(root.Children[2].Content) != "nine ten eleven twelve" {
		t.Errorf("part 3 content = %q", root.Children[2].Content)
	}
}

func TestSplitMarkdown_FencedHeadingIsNotACut(t *testing.T) {
	source := []byte("## Real One\n\nalpha beta gamma\n\n" +
		"```\n## Not A Heading\n```\n\n" +
		"## Real Two\n\ndelta epsilon\n")
	opts := SplitOptions{SplitTokens: 15, MergeTokens: 2, Tokens: wordTokens}

	root := SplitMarkdown("doc", source, opts)
	names := childNames(root)
	if len(names) != 2 || names[0] != "real-one.md" || names[1] != "real-two.md" {
		t.Fatalf("children = %v, want the two real headings only", names)
	}
	if !bytes.Contains(root.Children[0].Content, []byte("## Not A Heading")) {
		t.Error("fenced pseudo-heading left its section")
	}
}

func TestUniquifyNames(t *testing.T) {
	nodes := []*DocNode{
		{Name: "api.md", Content: []byte("a")},
		{Name: "api.md", Content: []byte("b")},
		{Name: "api"},
		{Name: "API.md", Content: []byte("c")},
	}
	uniquifyNames(nodes)

	got := []string{nodes[0].Name, nodes[1].Name, nodes[2].Name, nodes[3].Name}
	want := []string{"api.md", "api-2.md", "api", "API-3.md"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("name %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func childNames(n *DocNode) []string {
	names := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		names = append(names, c.Name)
	}
	return names
}
