// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package ingest turns raw documents into canonical scratch trees under
// the temp scope and promotes them into content scopes. Parsers are
// pluggable: each one declares what it can handle and renders its input
// into a DocNode tree; the registry dispatches by extension, URL scheme
// and finally content sniffing. The TreeBuilder moves finished scratch
// trees into place and hands them to the semantic queue.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kraklabs/openviking/internal/contract"
	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/uri"
)

// DocNode is one node of a parsed document tree. A nil Content marks a
// directory; files carry their payload. Names include the extension.
type DocNode struct {
	Name     string
	Title    string
	Content  []byte
	Children []*DocNode
}

// IsDir reports whether the node is a directory.
func (n *DocNode) IsDir() bool { return n.Content == nil }

// FileCount returns the number of file nodes in the subtree.
func (n *DocNode) FileCount() int {
	if !n.IsDir() {
		return 1
	}
	total := 0
	for _, c := range n.Children {
		total += c.FileCount()
	}
	return total
}

// Input is a resolved document ready for parsing.
type Input struct {
	Name string // document name without extension
	Path string // original path or URL, for diagnostics
	Ext  string // lower-case extension including the dot, may be ""
	MIME string // media type without parameters, may be ""
	Data []byte
}

// Parser renders one input format into a document tree. Parse returns
// the document root: a directory node named after the document.
type Parser interface {
	Name() string
	CanHandle(in *Input) bool
	Parse(ctx context.Context, in *Input) (*DocNode, error)
}

// ParseResult describes a scratch tree written under the temp scope.
type ParseResult struct {
	ScratchRoot uri.URI // temp root holding exactly one document directory
	DocName     string
	Format      string // name of the parser that handled the input
	Files       int
	Duration    time.Duration
}

// RegistryOptions configures a Registry. The zero value is usable.
type RegistryOptions struct {
	Split      SplitOptions
	HTTPClient *http.Client
	// Extra parsers are consulted before the built-ins, so callers can
	// override a format or add new ones.
	Extra []Parser
}

// Registry resolves inputs, dispatches them to parsers and writes the
// resulting tree into a fresh temp scope.
type Registry struct {
	fs      agfs.FS
	logger  *slog.Logger
	client  *http.Client
	parsers []Parser
}

// NewRegistry builds a registry with the built-in markdown, code, image
// and plain-text parsers. A nil logger falls back to slog.Default().
func NewRegistry(fs agfs.FS, logger *slog.Logger, opts RegistryOptions) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	parsers := append([]Parser{}, opts.Extra...)
	parsers = append(parsers,
		&markdownParser{split: opts.Split},
		&codeParser{},
		&imageParser{},
		&textParser{split: opts.Split},
	)
	return &Registry{fs: fs, logger: logger, client: client, parsers: parsers}
}

// ParseInput resolves a local path or http(s) URL and parses it.
func (r *Registry) ParseInput(ctx context.Context, pathOrURL string) (*ParseResult, error) {
	in, err := r.resolve(ctx, pathOrURL)
	if err != nil {
		return nil, err
	}
	return r.parse(ctx, in)
}

// ParseBytes parses in-memory content under the given file name.
func (r *Registry) ParseBytes(ctx context.Context, filename string, data []byte) (*ParseResult, error) {
	if v := contract.ValidatePayload(data); !v.OK {
		return nil, errors.ResourceExhausted("%s", v.Message)
	}
	return r.parse(ctx, inputFromBytes(filename, filename, data))
}

func (r *Registry) parse(ctx context.Context, in *Input) (*ParseResult, error) {
	ingMetrics.init()
	started := time.Now()

	var parser Parser
	for _, p := range r.parsers {
		if p.CanHandle(in) {
			parser = p
			break
		}
	}
	if parser == nil {
		ingMetrics.unsupported.Inc()
		return nil, errors.UnsupportedFormat("no parser for %q (extension %q, media type %q)", in.Path, in.Ext, in.MIME).
			WithFix("supported formats: markdown, plain text, source code, images")
	}

	node, err := parser.Parse(ctx, in)
	if err != nil {
		return nil, err
	}

	scratch := uri.NewTemp()
	if err := r.fs.Mkdir(ctx, scratch); err != nil {
		return nil, err
	}
	files, err := writeTree(ctx, r.fs, scratch, node)
	if err != nil {
		// Leave the partial scratch tree for the temp sweeper.
		return nil, err
	}

	elapsed := time.Since(started)
	ingMetrics.documents.Inc()
	ingMetrics.sections.Add(float64(files))
	ingMetrics.parseDuration.Observe(elapsed.Seconds())
	r.logger.Info("ingest.parse.done",
		"input", in.Path,
		"parser", parser.Name(),
		"doc", node.Name,
		"files", files,
		"duration", elapsed)

	return &ParseResult{
		ScratchRoot: scratch,
		DocName:     node.Name,
		Format:      parser.Name(),
		Files:       files,
		Duration:    elapsed,
	}, nil
}

// resolve turns a path or URL into an Input, enforcing the payload soft
// limit on whatever it reads.
func (r *Registry) resolve(ctx context.Context, pathOrURL string) (*Input, error) {
	if u, err := url.Parse(pathOrURL); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return r.fetch(ctx, u)
	}

	info, err := os.Stat(pathOrURL)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("input %q does not exist", pathOrURL)
		}
		return nil, errors.DependencyError(err, "stat %q", pathOrURL)
	}
	if info.IsDir() {
		return nil, errors.InvalidArgument("input %q is a directory", pathOrURL)
	}
	if info.Size() > int64(contract.SoftLimitBytes()) {
		return nil, errors.ResourceExhausted("input %q is %d bytes, over the %d byte payload limit",
			pathOrURL, info.Size(), contract.SoftLimitBytes())
	}
	data, err := os.ReadFile(pathOrURL)
	if err != nil {
		return nil, errors.DependencyError(err, "read %q", pathOrURL)
	}
	return inputFromBytes(filepath.Base(pathOrURL), pathOrURL, data), nil
}

func (r *Registry) fetch(ctx context.Context, u *url.URL) (*Input, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.InvalidArgument("invalid URL %q: %v", u, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.DependencyError(err, "fetch %q", u)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.DependencyError(fmt.Errorf("status %s", resp.Status), "fetch %q", u)
	}

	limit := int64(contract.SoftLimitBytes())
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, errors.DependencyError(err, "fetch %q", u)
	}
	if int64(len(data)) > limit {
		return nil, errors.ResourceExhausted("response for %q exceeds the %d byte payload limit", u, limit)
	}

	in := inputFromBytes(path.Base(u.Path), u.String(), data)
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			in.MIME = mt
		}
	}
	if in.MIME == "" || in.MIME == "application/octet-stream" {
		in.MIME = sniffMIME(data)
	}
	return in, nil
}

// inputFromBytes derives name, extension and a sniffed media type. The
// document name falls back to a slug, then "document", so it is always
// a valid URI segment.
func inputFromBytes(filename, origin string, data []byte) *Input {
	base := strings.TrimSpace(filepath.Base(filename))
	ext := strings.ToLower(filepath.Ext(base))
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if !validSegment(name) {
		name = Slugify(name)
	}
	if name == "" {
		name = "document"
	}
	return &Input{
		Name: name,
		Path: origin,
		Ext:  ext,
		MIME: sniffMIME(data),
		Data: data,
	}
}

func validSegment(name string) bool {
	return !strings.HasPrefix(name, ".") && uri.ValidateSegment(name) == nil
}

// sniffMIME wraps http.DetectContentType and strips parameters, with a
// UTF-8 refinement: DetectContentType reports binary for many plain
// text files that simply lack an ASCII-friendly prefix.
func sniffMIME(data []byte) string {
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}
	mt, _, err := mime.ParseMediaType(http.DetectContentType(sample))
	if err != nil {
		mt = "application/octet-stream"
	}
	if mt == "application/octet-stream" && utf8.Valid(data) {
		return "text/plain"
	}
	return mt
}

// writeTree materialises a document tree under base and returns the
// number of files written.
func writeTree(ctx context.Context, fs agfs.FS, base uri.URI, node *DocNode) (int, error) {
	target, err := base.Join(node.Name)
	if err != nil {
		return 0, err
	}
	if !node.IsDir() {
		if err := fs.Write(ctx, target, node.Content, agfs.WriteOptions{}); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err := fs.Mkdir(ctx, target); err != nil {
		return 0, err
	}
	files := 0
	for _, child := range node.Children {
		n, err := writeTree(ctx, fs, target, child)
		if err != nil {
			return files, err
		}
		files += n
	}
	return files, nil
}

// --- Built-in parsers ---

var markdownExts = map[string]bool{".md": true, ".markdown": true, ".mdown": true}

type markdownParser struct {
	split SplitOptions
}

func (p *markdownParser) Name() string { return "markdown" }

func (p *markdownParser) CanHandle(in *Input) bool {
	return markdownExts[in.Ext] || strings.HasPrefix(in.MIME, "text/markdown")
}

func (p *markdownParser) Parse(ctx context.Context, in *Input) (*DocNode, error) {
	root := SplitMarkdown(in.Name, in.Data, p.split)
	if dir := localSourceDir(in.Path); dir != "" {
		attachAssets(root, dir)
	}
	return root, nil
}

// localSourceDir returns the directory of a local input, or "" for
// URLs and in-memory content.
func localSourceDir(origin string) string {
	if origin == "" || strings.Contains(origin, "://") {
		return ""
	}
	return filepath.Dir(origin)
}

var imageRefPattern = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)\)`)

// attachAssets copies locally referenced images in as sibling files and
// rewrites the references to their bare names. Unresolvable references
// are left untouched.
func attachAssets(dir *DocNode, srcDir string) {
	var added []*DocNode
	names := map[string]bool{}
	for _, c := range dir.Children {
		names[strings.ToLower(c.Name)] = true
	}
	attached := map[string]string{} // resolved path -> attached name

	for _, child := range dir.Children {
		if child.IsDir() {
			attachAssets(child, srcDir)
			continue
		}
		content := string(child.Content)
		rewritten := imageRefPattern.ReplaceAllStringFunc(content, func(refText string) string {
			m := imageRefPattern.FindStringSubmatch(refText)
			ref := m[1]
			if strings.Contains(ref, "://") || strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "#") {
				return refText
			}
			resolved := filepath.Join(srcDir, filepath.FromSlash(ref))
			name, ok := attached[resolved]
			if !ok {
				info, err := os.Stat(resolved)
				if err != nil || info.IsDir() || info.Size() > int64(contract.SoftLimitBytes()) {
					return refText
				}
				data, err := os.ReadFile(resolved)
				if err != nil {
					return refText
				}
				name = uniqueAssetName(filepath.Base(resolved), names)
				names[strings.ToLower(name)] = true
				attached[resolved] = name
				added = append(added, &DocNode{Name: name, Title: name, Content: data})
				ingMetrics.assets.Inc()
			}
			return strings.Replace(refText, "("+ref+")", "("+name+")", 1)
		})
		child.Content = []byte(rewritten)
	}
	dir.Children = append(dir.Children, added...)
}

func uniqueAssetName(base string, taken map[string]bool) string {
	if !taken[strings.ToLower(base)] {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if !taken[strings.ToLower(candidate)] {
			return candidate
		}
	}
}

type codeParser struct{}

func (p *codeParser) Name() string { return "code" }

func (p *codeParser) CanHandle(in *Input) bool {
	_, ok := languageForExt(in.Ext)
	return ok
}

// Parse keeps source files whole: the semantic stage summarises them
// via skeleton extraction rather than header splitting.
func (p *codeParser) Parse(ctx context.Context, in *Input) (*DocNode, error) {
	file := &DocNode{Name: in.Name + in.Ext, Title: in.Name + in.Ext, Content: in.Data}
	return &DocNode{Name: in.Name, Title: in.Name, Children: []*DocNode{file}}, nil
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// IsImageName reports whether a file name carries an image extension. The
// queue uses it to pick the embedding modality for raw leaves.
func IsImageName(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

type imageParser struct{}

func (p *imageParser) Name() string { return "image" }

func (p *imageParser) CanHandle(in *Input) bool {
	return imageExts[in.Ext] || strings.HasPrefix(in.MIME, "image/")
}

func (p *imageParser) Parse(ctx context.Context, in *Input) (*DocNode, error) {
	file := &DocNode{Name: in.Name + in.Ext, Title: in.Name + in.Ext, Content: in.Data}
	return &DocNode{Name: in.Name, Title: in.Name, Children: []*DocNode{file}}, nil
}

var textExts = map[string]bool{".txt": true, ".log": true, ".text": true}

type textParser struct {
	split SplitOptions
}

func (p *textParser) Name() string { return "text" }

func (p *textParser) CanHandle(in *Input) bool {
	if textExts[in.Ext] {
		return true
	}
	return in.Ext == "" && strings.HasPrefix(in.MIME, "text/") && utf8.Valid(in.Data)
}

// Parse treats plain text as headerless markdown, which routes it
// through the paragraph chunking path.
func (p *textParser) Parse(ctx context.Context, in *Input) (*DocNode, error) {
	if !utf8.Valid(in.Data) {
		return nil, errors.UnsupportedFormat("%q is not valid UTF-8 text", in.Path)
	}
	return SplitMarkdown(in.Name, in.Data, p.split), nil
}
