// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Splitting policy: a section at or under SplitTokens stays one file,
// adjacent sections whose combined size is under MergeTokens merge, and
// oversized sections recurse into subdirectories by deeper headings.
const (
	DefaultSplitTokens = 1024
	DefaultMergeTokens = 512
)

// SplitOptions tunes the splitting policy. The zero value uses the
// defaults above with DefaultTokenCounter.
type SplitOptions struct {
	SplitTokens int
	MergeTokens int
	Tokens      TokenCounter
}

func (o SplitOptions) withDefaults() SplitOptions {
	if o.SplitTokens <= 0 {
		o.SplitTokens = DefaultSplitTokens
	}
	if o.MergeTokens <= 0 {
		o.MergeTokens = DefaultMergeTokens
	}
	if o.Tokens == nil {
		o.Tokens = DefaultTokenCounter
	}
	return o
}

// SplitMarkdown renders one markdown document into its canonical tree:
// a directory named docName whose children are section files, recursed
// section directories, or paragraph chunks when the text has no usable
// headings. A document within the split budget becomes a single file.
func SplitMarkdown(docName string, source []byte, opts SplitOptions) *DocNode {
	o := opts.withDefaults()
	node := splitNode(docName, docName, source, 1, o)
	if node.IsDir() {
		return node
	}
	return &DocNode{Name: docName, Title: docName, Children: []*DocNode{node}}
}

func splitNode(name, title string, source []byte, minLevel int, o SplitOptions) *DocNode {
	if o.Tokens(string(source)) <= o.SplitTokens {
		return &DocNode{Name: name + ".md", Title: title, Content: source}
	}

	secs, level := sectionsAt(source, minLevel)
	if secs == nil {
		return chunkNode(name, title, source, o)
	}
	secs = mergeSmall(secs, o)

	dir := &DocNode{Name: name, Title: title}
	for _, sec := range secs {
		childName := Slugify(sec.title)
		if childName == "" {
			childName = "intro"
		}
		dir.Children = append(dir.Children, splitNode(childName, sec.title, sec.content, level+1, o))
	}
	uniquifyNames(dir.Children)
	return dir
}

type section struct {
	title   string
	content []byte
}

type headingMark struct {
	level     int
	lineStart int
	title     string
}

// The shared goldmark instance is read-only after construction; Parse
// allocates per-call state internally.
var markdown = goldmark.New()

func collectHeadings(source []byte) []headingMark {
	doc := markdown.Parser().Parse(text.NewReader(source))
	var heads []headingMark
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok {
			continue
		}
		lines := h.Lines()
		if lines.Len() == 0 {
			continue
		}
		var title bytes.Buffer
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			title.Write(seg.Value(source))
		}
		heads = append(heads, headingMark{
			level:     h.Level,
			lineStart: lineStartOf(source, lines.At(0).Start),
			title:     strings.TrimSpace(title.String()),
		})
	}
	return heads
}

func lineStartOf(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}

// sectionsAt cuts source at the highest heading level (from minLevel
// down) that carries at least two headings. Content before the first
// cut becomes an untitled leading section. Returns nil when no level
// qualifies.
func sectionsAt(source []byte, minLevel int) ([]section, int) {
	heads := collectHeadings(source)
	for level := minLevel; level <= 6; level++ {
		var cuts []headingMark
		for _, h := range heads {
			if h.level == level {
				cuts = append(cuts, h)
			}
		}
		if len(cuts) < 2 {
			continue
		}
		secs := make([]section, 0, len(cuts)+1)
		if lead := source[:cuts[0].lineStart]; len(bytes.TrimSpace(lead)) > 0 {
			secs = append(secs, section{content: lead})
		}
		for i, h := range cuts {
			end := len(source)
			if i+1 < len(cuts) {
				end = cuts[i+1].lineStart
			}
			secs = append(secs, section{title: h.title, content: source[h.lineStart:end]})
		}
		return secs, level
	}
	return nil, 0
}

// mergeSmall folds runs of small adjacent sections left to right: a
// neighbour joins the accumulating section while the combined size
// stays under the merge budget.
func mergeSmall(secs []section, o SplitOptions) []section {
	if len(secs) == 0 {
		return secs
	}
	out := []section{secs[0]}
	for _, next := range secs[1:] {
		last := &out[len(out)-1]
		if o.Tokens(string(last.content))+o.Tokens(string(next.content)) < o.MergeTokens {
			merged := make([]byte, 0, len(last.content)+len(next.content))
			merged = append(merged, last.content...)
			merged = append(merged, next.content...)
			last.content = merged
			if last.title == "" {
				last.title = next.title
			}
			continue
		}
		out = append(out, next)
	}
	return out
}

// chunkNode packs paragraphs of heading-less text into files within the
// split budget. A single paragraph larger than the budget stays whole;
// there is no boundary left to cut it at.
func chunkNode(name, title string, source []byte, o SplitOptions) *DocNode {
	paras := splitParagraphs(source)
	var chunks []string
	var current strings.Builder
	for _, p := range paras {
		joined := p
		if current.Len() > 0 {
			joined = current.String() + "\n\n" + p
		}
		if current.Len() > 0 && o.Tokens(joined) > o.SplitTokens {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(p)
			continue
		}
		current.Reset()
		current.WriteString(joined)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	if len(chunks) <= 1 {
		return &DocNode{Name: name + ".md", Title: title, Content: source}
	}
	dir := &DocNode{Name: name, Title: title}
	for i, c := range chunks {
		dir.Children = append(dir.Children, &DocNode{
			Name:    fmt.Sprintf("part-%02d.md", i+1),
			Title:   fmt.Sprintf("%s (part %d)", title, i+1),
			Content: []byte(c),
		})
	}
	return dir
}

func splitParagraphs(source []byte) []string {
	raw := strings.Split(strings.ReplaceAll(string(source), "\r\n", "\n"), "\n\n")
	paras := make([]string, 0, len(raw))
	for _, p := range raw {
		if strings.TrimSpace(p) == "" {
			continue
		}
		paras = append(paras, strings.Trim(p, "\n"))
	}
	return paras
}

// uniquifyNames renames case-insensitive duplicates with the smallest
// free numeric suffix, keeping file extensions in place.
func uniquifyNames(nodes []*DocNode) {
	seen := map[string]bool{}
	for _, n := range nodes {
		key := strings.ToLower(n.Name)
		if !seen[key] {
			seen[key] = true
			continue
		}
		ext := ""
		base := n.Name
		if !n.IsDir() {
			if i := strings.LastIndex(n.Name, "."); i > 0 {
				base, ext = n.Name[:i], n.Name[i:]
			}
		}
		for i := 2; ; i++ {
			candidate := fmt.Sprintf("%s-%d%s", base, i, ext)
			ck := strings.ToLower(candidate)
			if !seen[ck] {
				n.Name = candidate
				seen[ck] = true
				break
			}
		}
	}
}
