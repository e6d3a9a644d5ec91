// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/ingest"
	"github.com/kraklabs/openviking/pkg/llm"
	"github.com/kraklabs/openviking/pkg/uri"
)

// summaryCacheName is the per-directory sidecar caching file summaries.
// Hidden, so listings and embeddings never see it.
const summaryCacheName = ".summaries.json"

// maxSummaryInputBytes caps how much of a file rides into one model call.
const maxSummaryInputBytes = 32 * 1024

// abstractWordLimit bounds abstracts and the per-child lines of the
// assembled overview context.
const abstractWordLimit = 200

// cachedSummary is one sidecar entry. Size and MTime fingerprint the file;
// a changed file falls out of the cache on the next pass.
type cachedSummary struct {
	Abstract string    `json:"abstract"`
	Size     int64     `json:"size"`
	MTime    time.Time `json:"mtime"`
}

// processDirectory runs one semantic job end to end: summarise the files,
// collect child directory abstracts, build the overview from the assembled
// context, derive the abstract, write both artefacts, and fan out embedding
// jobs. Returns NOT_PROCESSED when a child directory is not done yet, which
// the caller translates into a release rather than a failure.
func (w *SemanticWorker) processDirectory(ctx context.Context, job *Job) error {
	entries, err := w.fs.List(ctx, job.URI, agfs.ListOptions{})
	if err != nil {
		return err
	}

	var files, dirs []agfs.Entry
	for _, e := range entries {
		if e.IsDir {
			dirs = append(dirs, e)
		} else {
			files = append(files, e)
		}
	}

	summaries, err := w.childSummaries(ctx, job, files)
	if err != nil {
		return err
	}

	dirAbstracts := make(map[uri.URI]string, len(dirs))
	for _, d := range dirs {
		abstract, err := agfs.Abstract(ctx, w.fs, d.URI)
		switch {
		case err == nil:
			dirAbstracts[d.URI] = abstract
		case errors.HasCode(err, errors.CodeNotProcessed):
			return w.resolveMissingChild(ctx, job, d.URI)
		default:
			return err
		}
	}

	prompt := w.assembleContext(ctx, job, entries, summaries, dirAbstracts)
	resp, err := w.summarize(ctx, "summarize.overview", llm.SummarizeRequest{
		Kind: "overview",
		Text: prompt,
	})
	if err != nil {
		return err
	}
	overview := resp.Text
	abstract := deriveAbstract(overview)

	// Overview lands first: a visible abstract promises the overview exists.
	if err := w.fs.Write(ctx, job.URI.MustJoin(uri.OverviewName), []byte(overview), agfs.WriteOptions{}); err != nil {
		return err
	}
	if err := w.fs.Write(ctx, job.URI.MustJoin(uri.AbstractName), []byte(abstract), agfs.WriteOptions{}); err != nil {
		return err
	}

	if w.embed != nil {
		batch := []*Job{
			NewEmbeddingJob(job.URI, SourceAbstract, ModalityText),
			NewEmbeddingJob(job.URI, SourceOverview, ModalityText),
		}
		for _, f := range files {
			modality := ModalityText
			if ingest.IsImageName(f.URI.Base()) {
				modality = ModalityMultimodal
			}
			batch = append(batch, NewEmbeddingJob(f.URI, SourceRaw, modality))
		}
		if _, err := w.embed.EnqueueBatch(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// resolveMissingChild decides what a missing child abstract means. A live
// job on the child is ordinary scheduling skew; a done job with no artefact
// is corruption; no job at all means the child was never enqueued (content
// written outside the builder, or a previous enqueue died mid-tree) and gets
// repaired with a fresh job.
func (w *SemanticWorker) resolveMissingChild(ctx context.Context, job *Job, child uri.URI) error {
	jobs, err := w.queue.List(ctx)
	if err != nil {
		return err
	}
	var childJob *Job
	for _, j := range jobs {
		if j.URI != child {
			continue
		}
		if childJob == nil || j.EnqueuedAt.After(childJob.EnqueuedAt) {
			childJob = j
		}
	}
	switch {
	case childJob == nil:
		repair := NewSemanticJob(child, job.Kind, job.URI)
		if err := w.queue.Enqueue(ctx, repair); err != nil {
			return err
		}
		w.logger.Warn("queue.semantic.repair_enqueued", "uri", child.String(), "parent", job.URI.String())
		w.queue.Wake()
		return errors.NotProcessed("child %s had no semantic job; repair enqueued", child)
	case childJob.Status == StatusDone:
		return errors.InvariantViolation("child %s is marked done but has no %s", child, uri.AbstractName)
	default:
		return errors.NotProcessed("child %s is still %s", child, childJob.Status)
	}
}

// pendingFile is a file whose summary must be produced this pass.
type pendingFile struct {
	name    string
	text    string
	image   []byte
	size    int64
	mtime   time.Time
	hasText bool
}

// childSummaries returns one summary per file child, serving from the
// sidecar cache where the file is unchanged and summarising the rest.
// Text files batch up to MaxSectionsPerCall per model call and images up
// to MaxImagesPerCall; batches run concurrently under MaxConcurrentLLM.
func (w *SemanticWorker) childSummaries(ctx context.Context, job *Job, files []agfs.Entry) (map[string]string, error) {
	cache := w.readSummaryCache(ctx, job.URI)
	out := make(map[string]string, len(files))

	var texts, images []pendingFile
	for _, f := range files {
		name := f.URI.Base()
		if c, ok := cache[name]; ok && c.Size == f.Size && c.MTime.Equal(f.MTime) {
			out[name] = c.Abstract
			continue
		}
		data, err := w.fs.Read(ctx, f.URI)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if ingest.IsImageName(name) {
			images = append(images, pendingFile{name: name, image: data, size: f.Size, mtime: f.MTime})
			continue
		}
		if len(data) > maxSummaryInputBytes {
			data = data[:maxSummaryInputBytes]
		}
		pf := pendingFile{name: name, text: string(data), size: f.Size, mtime: f.MTime, hasText: true}

		if w.cfg.Mode != ingest.ModeLLM && w.skeletons.Eligible(name, data) {
			skeleton, err := w.skeletons.Extract(ctx, name, data)
			if err == nil {
				if w.cfg.Mode == ingest.ModeAST {
					// The skeleton stands in for the model summary.
					out[name] = skeleton
					cache[name] = cachedSummary{Abstract: skeleton, Size: f.Size, MTime: f.MTime}
					continue
				}
				pf.text = skeleton
			}
		}
		texts = append(texts, pf)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.MaxConcurrentLLM)

	for _, batch := range chunk(texts, w.cfg.MaxSectionsPerCall) {
		batch := batch
		g.Go(func() error {
			results, err := w.summarizeTextBatch(gctx, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for i, pf := range batch {
				out[pf.name] = results[i]
				cache[pf.name] = cachedSummary{Abstract: results[i], Size: pf.size, MTime: pf.mtime}
			}
			return nil
		})
	}
	for _, batch := range chunk(images, w.cfg.MaxImagesPerCall) {
		batch := batch
		g.Go(func() error {
			results, err := w.summarizeImageBatch(gctx, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for i, pf := range batch {
				out[pf.name] = results[i]
				cache[pf.name] = cachedSummary{Abstract: results[i], Size: pf.size, MTime: pf.mtime}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	w.writeSummaryCache(ctx, job.URI, cache)
	return out, nil
}

func (w *SemanticWorker) readSummaryCache(ctx context.Context, dir uri.URI) map[string]cachedSummary {
	cache := make(map[string]cachedSummary)
	data, err := w.fs.Read(ctx, dir.MustJoin(summaryCacheName))
	if err != nil {
		return cache
	}
	if err := json.Unmarshal(data, &cache); err != nil {
		w.logger.Warn("queue.semantic.cache_corrupt", "dir", dir.String(), "err", err)
		return make(map[string]cachedSummary)
	}
	return cache
}

// writeSummaryCache persists the sidecar. Best effort: a lost cache only
// costs repeat summarisation.
func (w *SemanticWorker) writeSummaryCache(ctx context.Context, dir uri.URI, cache map[string]cachedSummary) {
	if len(cache) == 0 {
		return
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return
	}
	if err := w.fs.Write(ctx, dir.MustJoin(summaryCacheName), data, agfs.WriteOptions{}); err != nil {
		w.logger.Warn("queue.semantic.cache_write_failed", "dir", dir.String(), "err", err)
	}
}

// summarizeTextBatch produces one summary per file. Multi-file batches share
// a single model call that answers a JSON array; when the model breaks
// protocol the batch degrades to one call per file.
func (w *SemanticWorker) summarizeTextBatch(ctx context.Context, batch []pendingFile) ([]string, error) {
	if len(batch) == 1 {
		resp, err := w.summarize(ctx, "summarize.file", llm.SummarizeRequest{
			Kind: "abstract",
			Text: batch[0].text,
		})
		if err != nil {
			return nil, err
		}
		return []string{resp.Text}, nil
	}

	resp, err := w.summarize(ctx, "summarize.file_batch", llm.SummarizeRequest{
		Kind: "abstract",
		Text: batchFilePrompt(batch),
	})
	if err != nil {
		return nil, err
	}
	if results, err := parseJSONArray(resp.Text, len(batch)); err == nil {
		return results, nil
	}
	w.logger.Warn("queue.semantic.batch_fallback", "files", len(batch))

	results := make([]string, len(batch))
	for i, pf := range batch {
		resp, err := w.summarize(ctx, "summarize.file", llm.SummarizeRequest{
			Kind: "abstract",
			Text: pf.text,
		})
		if err != nil {
			return nil, err
		}
		results[i] = resp.Text
	}
	return results, nil
}

// summarizeImageBatch mirrors summarizeTextBatch for images. Providers
// without vision answer UNSUPPORTED_FORMAT, which is permanent and fails
// the job.
func (w *SemanticWorker) summarizeImageBatch(ctx context.Context, batch []pendingFile) ([]string, error) {
	if len(batch) == 1 {
		resp, err := w.summarize(ctx, "summarize.image", llm.SummarizeRequest{
			Kind:   "abstract",
			Text:   "Describe the image " + batch[0].name + " for retrieval: subject, any visible text, and what it would be useful for.",
			Images: [][]byte{batch[0].image},
		})
		if err != nil {
			return nil, err
		}
		return []string{resp.Text}, nil
	}

	imgs := make([][]byte, len(batch))
	for i, pf := range batch {
		imgs[i] = pf.image
	}
	resp, err := w.summarize(ctx, "summarize.image_batch", llm.SummarizeRequest{
		Kind:   "abstract",
		Text:   batchImagePrompt(batch),
		Images: imgs,
	})
	if err != nil {
		return nil, err
	}
	if results, err := parseJSONArray(resp.Text, len(batch)); err == nil {
		return results, nil
	}
	w.logger.Warn("queue.semantic.batch_fallback", "images", len(batch))

	results := make([]string, len(batch))
	for i := range batch {
		one, err := w.summarizeImageBatch(ctx, batch[i:i+1])
		if err != nil {
			return nil, err
		}
		results[i] = one[0]
	}
	return results, nil
}

// summarize wraps one model call in the retry policy.
func (w *SemanticWorker) summarize(ctx context.Context, op string, req llm.SummarizeRequest) (*llm.SummarizeResponse, error) {
	var resp *llm.SummarizeResponse
	err := withRetry(ctx, w.cfg.Retry, w.logger, op, func(ctx context.Context) error {
		var err error
		resp, err = w.summarizer.Summarize(ctx, req)
		return err
	})
	return resp, err
}

// batchFilePrompt lays the files out as numbered sections and demands a
// JSON array answer, one element per file in input order.
func batchFilePrompt(batch []pendingFile) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summarise each of the following %d files in one dense paragraph per file. Answer with a JSON array of exactly %d strings, in input order, and nothing else.\n", len(batch), len(batch))
	for i, pf := range batch {
		fmt.Fprintf(&sb, "\n### File %d: %s\n\n%s\n", i+1, pf.name, pf.text)
	}
	return sb.String()
}

// batchImagePrompt names the attached images in order.
func batchImagePrompt(batch []pendingFile) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Describe each of the %d attached images for retrieval: subject, any visible text, what it would be useful for. They appear in this order:\n", len(batch))
	for i, pf := range batch {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, pf.name)
	}
	fmt.Fprintf(&sb, "Answer with a JSON array of exactly %d strings, in input order, and nothing else.", len(batch))
	return sb.String()
}

// parseJSONArray decodes a model answer that should be a JSON array of
// exactly n strings, tolerating a markdown code fence around it.
func parseJSONArray(s string, n int) ([]string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, errors.InvalidArgument("batch answer is not a JSON string array: %v", err)
	}
	if len(out) != n {
		return nil, errors.InvalidArgument("batch answer has %d elements, want %d", len(out), n)
	}
	return out, nil
}

// assembleContext builds the overview prompt: the directory identity, its
// recorded purpose if any, and one line per child in listing order.
func (w *SemanticWorker) assembleContext(ctx context.Context, job *Job, entries []agfs.Entry, summaries map[string]string, dirAbstracts map[uri.URI]string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Directory: %s\n", job.URI)
	if job.Kind != "" {
		fmt.Fprintf(&sb, "Content kind: %s\n", job.Kind)
	}
	if reason := w.readReason(ctx, job.URI); reason != "" {
		fmt.Fprintf(&sb, "Stated purpose: %s\n", reason)
	}
	sb.WriteString("\nChildren:\n")
	if len(entries) == 0 {
		sb.WriteString("(empty directory)\n")
		return sb.String()
	}
	for _, e := range entries {
		name := e.URI.Base()
		if e.IsDir {
			fmt.Fprintf(&sb, "- %s (directory): %s\n", name, truncateWords(dirAbstracts[e.URI], abstractWordLimit))
		} else {
			fmt.Fprintf(&sb, "- %s (file): %s\n", name, truncateWords(summaries[name], abstractWordLimit))
		}
	}
	return sb.String()
}

// readReason pulls the "reason" recorded at add time from the directory's
// .meta.json, if any. Best effort.
func (w *SemanticWorker) readReason(ctx context.Context, dir uri.URI) string {
	data, err := w.fs.Read(ctx, dir.MustJoin(uri.MetaName))
	if err != nil {
		return ""
	}
	var meta struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return ""
	}
	return meta.Reason
}

// deriveAbstract takes the first prose paragraph of an overview, skipping
// heading-only blocks, and truncates it to the abstract word budget. A
// heading-only overview degrades to the whole text truncated.
func deriveAbstract(overview string) string {
	for _, para := range strings.Split(overview, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if isHeadingBlock(para) {
			continue
		}
		return truncateWords(strings.Join(strings.Fields(para), " "), abstractWordLimit)
	}
	return truncateWords(strings.Join(strings.Fields(overview), " "), abstractWordLimit)
}

// isHeadingBlock reports whether every line of the block is a markdown
// heading or horizontal rule.
func isHeadingBlock(block string) bool {
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "---") {
			return false
		}
	}
	return true
}

// truncateWords keeps the first n whitespace-separated words.
func truncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// chunk splits items into runs of at most size.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
