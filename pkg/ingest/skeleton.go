// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package ingest

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	tsc "github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/kraklabs/openviking/internal/errors"
)

// SummaryMode selects how code files are summarised: structural
// skeletons, the LLM, or skeletons passed to the LLM as context.
type SummaryMode string

const (
	ModeAST    SummaryMode = "ast"
	ModeLLM    SummaryMode = "llm"
	ModeASTLLM SummaryMode = "ast_llm"
)

// ParseSummaryMode validates a configured mode, defaulting to ModeAST
// for the empty string.
func ParseSummaryMode(s string) (SummaryMode, error) {
	switch SummaryMode(s) {
	case "":
		return ModeAST, nil
	case ModeAST, ModeLLM, ModeASTLLM:
		return SummaryMode(s), nil
	default:
		return "", errors.InvalidArgument("unknown code summary mode %q (want ast, llm or ast_llm)", s)
	}
}

// MinSkeletonLines gates skeleton extraction. Shorter files fit an LLM
// context whole and summarise better verbatim.
const MinSkeletonLines = 100

type languageID string

const (
	langGo         languageID = "go"
	langPython     languageID = "python"
	langJavaScript languageID = "javascript"
	langTypeScript languageID = "typescript"
	langRust       languageID = "rust"
	langJava       languageID = "java"
	langC          languageID = "c"
	langCPP        languageID = "cpp"
)

var extToLang = map[string]languageID{
	".go":   langGo,
	".py":   langPython,
	".js":   langJavaScript,
	".jsx":  langJavaScript,
	".mjs":  langJavaScript,
	".ts":   langTypeScript,
	".tsx":  langTypeScript,
	".rs":   langRust,
	".java": langJava,
	".c":    langC,
	".h":    langC,
	".cpp":  langCPP,
	".cc":   langCPP,
	".cxx":  langCPP,
	".hpp":  langCPP,
	".hh":   langCPP,
}

func languageForExt(ext string) (languageID, bool) {
	lang, ok := extToLang[strings.ToLower(ext)]
	return lang, ok
}

func grammarFor(lang languageID) *sitter.Language {
	switch lang {
	case langGo:
		return golang.GetLanguage()
	case langPython:
		return python.GetLanguage()
	case langJavaScript:
		return javascript.GetLanguage()
	case langTypeScript:
		return typescript.GetLanguage()
	case langRust:
		return rust.GetLanguage()
	case langJava:
		return java.GetLanguage()
	case langC:
		return tsc.GetLanguage()
	case langCPP:
		return cpp.GetLanguage()
	}
	return nil
}

// SkeletonExtractor derives structural outlines from source files:
// module doc first line, imports, type and class declarations with
// their bases, and method/function signatures with first-line docs.
// Parsers are pooled per language; extraction is goroutine-safe.
type SkeletonExtractor struct {
	logger *slog.Logger
	pools  map[languageID]*sync.Pool
}

// NewSkeletonExtractor builds an extractor for all supported grammars.
// A nil logger falls back to slog.Default().
func NewSkeletonExtractor(logger *slog.Logger) *SkeletonExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	pools := make(map[languageID]*sync.Pool, len(extToLang))
	for _, lang := range extToLang {
		if _, ok := pools[lang]; ok {
			continue
		}
		grammar := grammarFor(lang)
		pools[lang] = &sync.Pool{New: func() any {
			p := sitter.NewParser()
			p.SetLanguage(grammar)
			return p
		}}
	}
	return &SkeletonExtractor{logger: logger, pools: pools}
}

// Supports reports whether a grammar exists for the file's extension.
func (e *SkeletonExtractor) Supports(filename string) bool {
	_, ok := languageForExt(filepath.Ext(filename))
	return ok
}

// Eligible reports whether the file passes both the language and the
// minimum-length gates.
func (e *SkeletonExtractor) Eligible(filename string, content []byte) bool {
	return e.Supports(filename) && CountLines(content) >= MinSkeletonLines
}

// CountLines counts content lines, tolerating a missing trailing
// newline.
func CountLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte("\n"))
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

// Extract parses the file and renders its skeleton. An error means the
// caller should fall back to LLM summarisation: unsupported language,
// parse failure, or a file with nothing declarative to show.
func (e *SkeletonExtractor) Extract(ctx context.Context, filename string, content []byte) (string, error) {
	lang, ok := languageForExt(filepath.Ext(filename))
	if !ok {
		return "", errors.UnsupportedFormat("no skeleton grammar for %q", filename)
	}

	pool := e.pools[lang]
	parser := pool.Get().(*sitter.Parser)
	defer pool.Put(parser)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordSkeletonFallback()
		return "", errors.DependencyError(err, "parse %q", filename)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		total := CountLines(content)
		if bad := errorLines(root); bad*100 >= total {
			recordSkeletonFallback()
			e.logger.Debug("ingest.skeleton.syntax_errors",
				"file", filename, "language", string(lang), "error_lines", bad)
			return "", errors.NotProcessed("%q has syntax errors on %d of %d lines", filename, bad, total)
		}
	}
	lines := extractDecls(lang, root, content)
	if len(lines) == 0 {
		recordSkeletonFallback()
		e.logger.Debug("ingest.skeleton.empty", "file", filename, "language", string(lang))
		return "", errors.NotProcessed("%q yielded an empty skeleton", filename)
	}

	header := "# " + filepath.Base(filename)
	if doc := moduleDoc(lang, root, content); doc != "" {
		header += " - " + doc
	}
	recordSkeleton()
	return header + "\n\n" + strings.Join(lines, "\n") + "\n", nil
}

// errorLines sums the line spans of ERROR nodes. The grammars are
// error-tolerant, so a failed parse surfaces as ERROR nodes in an
// otherwise successful tree, not as an error from ParseCtx.
func errorLines(n *sitter.Node) int {
	if n.Type() == "ERROR" {
		return int(n.EndPoint().Row-n.StartPoint().Row) + 1
	}
	lines := 0
	for i := 0; i < int(n.NamedChildCount()); i++ {
		lines += errorLines(n.NamedChild(i))
	}
	return lines
}

func extractDecls(lang languageID, root *sitter.Node, src []byte) []string {
	var out []string
	for i := 0; i < int(root.NamedChildCount()); i++ {
		out = append(out, declLines(lang, root.NamedChild(i), src, "")...)
	}
	return out
}

// declLines renders one top-level (or container member) declaration.
// Node type names are disjoint across the supported grammars, so a
// single switch covers the union.
func declLines(lang languageID, n *sitter.Node, src []byte, indent string) []string {
	switch n.Type() {
	case "import_declaration", "import_statement", "import_from_statement",
		"future_import_statement", "use_declaration", "preproc_include",
		"package_clause", "package_declaration":
		return []string{indent + condense(n.Content(src))}

	case "class_definition", "class_declaration", "interface_declaration",
		"enum_declaration", "struct_item", "enum_item", "trait_item",
		"impl_item", "namespace_definition":
		lines := []string{indent + headerOf(n, src)}
		if body := n.ChildByFieldName("body"); body != nil {
			for i := 0; i < int(body.NamedChildCount()); i++ {
				lines = append(lines, declLines(lang, body.NamedChild(i), src, indent+"    ")...)
			}
		}
		return lines

	case "type_declaration": // go
		var lines []string
		for i := 0; i < int(n.NamedChildCount()); i++ {
			spec := n.NamedChild(i)
			if line := goTypeSpecLine(spec, src); line != "" {
				lines = append(lines, indent+line)
			}
		}
		return lines

	case "function_declaration", "function_definition", "function_item",
		"method_declaration", "method_definition", "method_signature",
		"constructor_declaration":
		return []string{indent + signatureOf(n, src) + docSuffix(lang, n, src)}

	case "export_statement": // js/ts
		if d := n.ChildByFieldName("declaration"); d != nil {
			return declLines(lang, d, src, indent)
		}
		return nil

	case "decorated_definition": // python
		if d := n.ChildByFieldName("definition"); d != nil {
			return declLines(lang, d, src, indent)
		}
		return nil

	case "declaration", "type_definition":
		// C/C++ prototypes, typedefs and variable declarations.
		if lang == langC || lang == langCPP {
			return []string{indent + condense(firstLine(n.Content(src)))}
		}
		return nil
	}
	return nil
}

// goTypeSpecLine renders a Go type_spec as "type Name struct" (or
// interface), falling back to the declaration's first line for aliases
// and derived types.
func goTypeSpecLine(spec *sitter.Node, src []byte) string {
	name := spec.ChildByFieldName("name")
	if name == nil {
		return ""
	}
	if kind := spec.ChildByFieldName("type"); kind != nil {
		switch kind.Type() {
		case "struct_type":
			return "type " + name.Content(src) + " struct"
		case "interface_type":
			return "type " + name.Content(src) + " interface"
		}
	}
	return "type " + condense(firstLine(spec.Content(src)))
}

// headerOf slices a container declaration up to its body.
func headerOf(n *sitter.Node, src []byte) string {
	if body := n.ChildByFieldName("body"); body != nil {
		return condense(string(src[n.StartByte():body.StartByte()]))
	}
	return condense(firstLine(n.Content(src)))
}

// signatureOf slices a callable up to its body; bodyless declarations
// (prototypes, interface methods) render as their first line.
func signatureOf(n *sitter.Node, src []byte) string {
	if body := n.ChildByFieldName("body"); body != nil {
		return condense(string(src[n.StartByte():body.StartByte()]))
	}
	return condense(firstLine(n.Content(src)))
}

// docSuffix appends the first line of the declaration's documentation:
// the docstring for Python, the directly preceding comment elsewhere.
func docSuffix(lang languageID, n *sitter.Node, src []byte) string {
	var doc string
	if lang == langPython {
		doc = docstringFirstLine(n, src)
	} else {
		doc = precedingCommentFirstLine(n, src)
	}
	if doc == "" {
		return ""
	}
	return "  # " + doc
}

// docstringFirstLine looks for a leading string expression in a Python
// definition body.
func docstringFirstLine(n *sitter.Node, src []byte) string {
	body := n.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	stmt := body.NamedChild(0)
	if stmt.Type() != "expression_statement" || stmt.NamedChildCount() == 0 {
		return ""
	}
	str := stmt.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	return cleanDocLine(firstLine(strings.Trim(str.Content(src), "\"'")))
}

func precedingCommentFirstLine(n *sitter.Node, src []byte) string {
	prev := n.PrevSibling()
	if prev == nil {
		return ""
	}
	switch prev.Type() {
	case "comment", "line_comment", "block_comment":
	default:
		return ""
	}
	// Only adopt a comment that ends on the line directly above.
	if prev.EndPoint().Row+1 != n.StartPoint().Row {
		return ""
	}
	return cleanDocLine(firstLine(prev.Content(src)))
}

// moduleDoc extracts the file-level doc first line: the module
// docstring for Python, the leading comment elsewhere.
func moduleDoc(lang languageID, root *sitter.Node, src []byte) string {
	if root.NamedChildCount() == 0 {
		return ""
	}
	first := root.NamedChild(0)
	if lang == langPython {
		if first.Type() == "expression_statement" && first.NamedChildCount() > 0 {
			if str := first.NamedChild(0); str.Type() == "string" {
				return cleanDocLine(firstLine(strings.Trim(str.Content(src), "\"'")))
			}
		}
		return ""
	}
	switch first.Type() {
	case "comment", "line_comment", "block_comment":
		return cleanDocLine(firstLine(first.Content(src)))
	}
	return ""
}

func cleanDocLine(line string) string {
	line = strings.TrimSpace(line)
	for _, prefix := range []string{"///", "//!", "//", "/*", "#"} {
		if strings.HasPrefix(line, prefix) {
			line = strings.TrimSpace(strings.TrimPrefix(line, prefix))
			break
		}
	}
	return strings.TrimSuffix(strings.TrimSpace(line), "*/")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// condense collapses whitespace runs so multi-line signatures render on
// one line.
func condense(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
