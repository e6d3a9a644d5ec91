// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/ingest"
	"github.com/kraklabs/openviking/pkg/llm"
	"github.com/kraklabs/openviking/pkg/uri"
)

// mkTree materialises a directory with files on the backend.
func mkTree(t *testing.T, fs agfs.FS, dir uri.URI, files map[string]string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, fs.Mkdir(ctx, dir))
	for name, content := range files {
		require.NoError(t, fs.Write(ctx, dir.MustJoin(name), []byte(content), agfs.WriteOptions{}))
	}
}

// recordingSummarizer counts calls and keeps the prompts it saw.
type recordingSummarizer struct {
	mu      sync.Mutex
	reqs    []llm.SummarizeRequest
	respond func(req llm.SummarizeRequest) (*llm.SummarizeResponse, error)
}

func (r *recordingSummarizer) Name() string { return "recording" }

func (r *recordingSummarizer) Summarize(ctx context.Context, req llm.SummarizeRequest) (*llm.SummarizeResponse, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	if r.respond != nil {
		return r.respond(req)
	}
	return &llm.SummarizeResponse{Text: "summary"}, nil
}

func (r *recordingSummarizer) calls(kind string) []llm.SummarizeRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []llm.SummarizeRequest
	for _, req := range r.reqs {
		if req.Kind == kind {
			out = append(out, req)
		}
	}
	return out
}

func TestEnqueueTreeFansOutPerDirectory(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()

	root := uri.MustParse("viking://resources/proj")
	mkTree(t, fs, root, map[string]string{"readme.md": "# proj\n"})
	docs := root.MustJoin("docs")
	mkTree(t, fs, docs, map[string]string{"guide.md": "guide\n"})
	src := root.MustJoin("src")
	mkTree(t, fs, src, map[string]string{"main.go": "package main\n"})
	api := src.MustJoin("api")
	mkTree(t, fs, api, map[string]string{"api.go": "package api\n"})

	q := NewSemanticQueue(fs, nil, StoreOptions{})
	n, err := q.EnqueueTree(ctx, root, KindResource)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	jobs, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 4)

	byURI := make(map[uri.URI]*Job)
	for _, j := range jobs {
		byURI[j.URI] = j
		assert.Equal(t, StatusPending, j.Status)
		assert.Equal(t, KindResource, j.Kind)
	}
	require.Contains(t, byURI, root)
	require.Contains(t, byURI, docs)
	require.Contains(t, byURI, src)
	require.Contains(t, byURI, api)
	assert.Equal(t, uri.URI(""), byURI[root].ParentURI)
	assert.Equal(t, root, byURI[docs].ParentURI)
	assert.Equal(t, root, byURI[src].ParentURI)
	assert.Equal(t, src, byURI[api].ParentURI)

	// Live jobs dedup a second pass.
	n, err = q.EnqueueTree(ctx, root, KindResource)
	require.NoError(t, err)
	assert.Zero(t, n)

	// A finished directory is fair game again: that is the re-index path.
	ok, err := q.Claim(ctx, byURI[api])
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, q.Complete(ctx, byURI[api]))
	n, err = q.EnqueueTree(ctx, root, KindResource)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEnqueueTreeValidation(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()
	q := NewSemanticQueue(fs, nil, StoreOptions{})

	_, err := q.EnqueueTree(ctx, uri.MustParse("viking://resources/ghost"), KindResource)
	assert.True(t, errors.IsNotFound(err), "got %v", err)

	mkTree(t, fs, uri.MustParse("viking://resources"), map[string]string{"plain.md": "x"})
	_, err = q.EnqueueTree(ctx, uri.MustParse("viking://resources/plain.md"), KindResource)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidArgument), "got %v", err)
}

func TestReadyJobs(t *testing.T) {
	parent := uri.MustParse("viking://resources/p")
	childA := parent.MustJoin("a")
	childB := parent.MustJoin("b")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	job := func(u uri.URI, status Status, offset time.Duration) *Job {
		j := NewSemanticJob(u, KindResource, "")
		j.Status = status
		j.EnqueuedAt = base.Add(offset)
		return j
	}

	t.Run("pending child blocks parent", func(t *testing.T) {
		jobs := []*Job{job(parent, StatusPending, 0), job(childA, StatusPending, time.Second)}
		ready := readyJobs(jobs)
		require.Len(t, ready, 1)
		assert.Equal(t, childA, ready[0].URI)
	})

	t.Run("failed child blocks parent", func(t *testing.T) {
		jobs := []*Job{job(parent, StatusPending, 0), job(childA, StatusFailed, time.Second)}
		assert.Empty(t, readyJobs(jobs))
	})

	t.Run("in_progress child blocks parent", func(t *testing.T) {
		jobs := []*Job{job(parent, StatusPending, 0), job(childA, StatusInProgress, time.Second)}
		assert.Empty(t, readyJobs(jobs))
	})

	t.Run("done children free the parent", func(t *testing.T) {
		jobs := []*Job{
			job(parent, StatusPending, 0),
			job(childA, StatusDone, time.Second),
			job(childB, StatusDone, 2*time.Second),
		}
		ready := readyJobs(jobs)
		require.Len(t, ready, 1)
		assert.Equal(t, parent, ready[0].URI)
	})

	t.Run("fifo order is preserved", func(t *testing.T) {
		other := uri.MustParse("viking://resources/q")
		jobs := []*Job{job(parent, StatusPending, 0), job(other, StatusPending, time.Second)}
		ready := readyJobs(jobs)
		require.Len(t, ready, 2)
		assert.Equal(t, parent, ready[0].URI)
		assert.Equal(t, other, ready[1].URI)
	})
}

func TestDeriveAbstract(t *testing.T) {
	t.Run("skips heading blocks", func(t *testing.T) {
		overview := "# Title\n\n## Section\n\nFirst real paragraph here.\n\nSecond paragraph."
		assert.Equal(t, "First real paragraph here.", deriveAbstract(overview))
	})

	t.Run("collapses internal newlines", func(t *testing.T) {
		overview := "Line one\ncontinues here.\n\nNext."
		assert.Equal(t, "Line one continues here.", deriveAbstract(overview))
	})

	t.Run("truncates to the word budget", func(t *testing.T) {
		long := strings.Repeat("word ", 300)
		got := deriveAbstract(long)
		assert.Len(t, strings.Fields(got), abstractWordLimit)
	})

	t.Run("heading-only overview degrades to the whole text", func(t *testing.T) {
		overview := "# Only\n\n## Headings"
		assert.Equal(t, "# Only ## Headings", deriveAbstract(overview))
	})

	t.Run("empty overview stays empty", func(t *testing.T) {
		assert.Equal(t, "", deriveAbstract(""))
	})
}

func TestParseJSONArray(t *testing.T) {
	got, err := parseJSONArray(`["a", "b"]`, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = parseJSONArray("```json\n[\"a\", \"b\"]\n```", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	_, err = parseJSONArray(`["a"]`, 2)
	assert.Error(t, err)

	_, err = parseJSONArray("Here are the summaries: a and b", 2)
	assert.Error(t, err)
}

func newTestWorker(t *testing.T, fs agfs.FS, s llm.Summarizer, cfg SemanticWorkerConfig) (*SemanticWorker, *SemanticQueue, *EmbeddingQueue) {
	t.Helper()
	q := NewSemanticQueue(fs, nil, StoreOptions{})
	embed := NewEmbeddingQueue(fs, nil, StoreOptions{})
	return NewSemanticWorker(q, embed, fs, s, cfg, nil), q, embed
}

func TestProcessDirectoryWritesArtefactsAndFansOut(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()

	dir := uri.MustParse("viking://resources/doc")
	mkTree(t, fs, dir, map[string]string{
		"alpha.md": "alpha is about apples",
		"beta.md":  "beta is about bees",
	})

	s := &recordingSummarizer{respond: func(req llm.SummarizeRequest) (*llm.SummarizeResponse, error) {
		if req.Kind == "overview" {
			return &llm.SummarizeResponse{Text: "# Doc\n\nTwo notes about fruit and insects.\n\n## Layout\n\nFlat."}, nil
		}
		return &llm.SummarizeResponse{Text: `["about apples", "about bees"]`}, nil
	}}
	w, q, embed := newTestWorker(t, fs, s, SemanticWorkerConfig{})

	job := NewSemanticJob(dir, KindResource, "")
	require.NoError(t, q.Enqueue(ctx, job))
	require.NoError(t, w.processDirectory(ctx, job))

	overview, err := agfs.Overview(ctx, fs, dir)
	require.NoError(t, err)
	assert.Contains(t, overview, "fruit and insects")

	abstract, err := agfs.Abstract(ctx, fs, dir)
	require.NoError(t, err)
	assert.Equal(t, "Two notes about fruit and insects.", abstract)

	// Two files fit one batch call, plus the overview call.
	assert.Len(t, s.calls("abstract"), 1)
	require.Len(t, s.calls("overview"), 1)
	prompt := s.calls("overview")[0].Text
	assert.Contains(t, prompt, "Directory: viking://resources/doc")
	assert.Contains(t, prompt, "- alpha.md (file): about apples")
	assert.Contains(t, prompt, "- beta.md (file): about bees")

	jobs, err := embed.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 4)
	sources := make(map[string]string)
	for _, j := range jobs {
		sources[string(j.URI)+"|"+j.Source] = j.Modality
	}
	assert.Equal(t, ModalityText, sources[string(dir)+"|"+SourceAbstract])
	assert.Equal(t, ModalityText, sources[string(dir)+"|"+SourceOverview])
	assert.Equal(t, ModalityText, sources[string(dir.MustJoin("alpha.md"))+"|"+SourceRaw])
	assert.Equal(t, ModalityText, sources[string(dir.MustJoin("beta.md"))+"|"+SourceRaw])
}

func TestProcessDirectoryBatchFallback(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()

	dir := uri.MustParse("viking://resources/doc")
	mkTree(t, fs, dir, map[string]string{
		"alpha.md": "alpha content",
		"beta.md":  "beta content",
	})

	// Refuses the JSON protocol, so the batch degrades to per-file calls.
	s := &recordingSummarizer{respond: func(req llm.SummarizeRequest) (*llm.SummarizeResponse, error) {
		if req.Kind == "overview" {
			return &llm.SummarizeResponse{Text: "Overview paragraph."}, nil
		}
		return &llm.SummarizeResponse{Text: "plain prose, not an array"}, nil
	}}
	w, q, _ := newTestWorker(t, fs, s, SemanticWorkerConfig{})

	job := NewSemanticJob(dir, KindResource, "")
	require.NoError(t, q.Enqueue(ctx, job))
	require.NoError(t, w.processDirectory(ctx, job))

	// One failed batch call, then one call per file.
	assert.Len(t, s.calls("abstract"), 3)
	abstract, err := agfs.Abstract(ctx, fs, dir)
	require.NoError(t, err)
	assert.Equal(t, "Overview paragraph.", abstract)
}

func TestProcessDirectorySkeletonMode(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()

	var src strings.Builder
	src.WriteString("// Package demo exercises skeletons.\npackage demo\n\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&src, "// F%d returns %d.\nfunc F%d() int {\n\treturn %d\n}\n\n", i, i, i, i)
	}
	require.GreaterOrEqual(t, ingest.CountLines([]byte(src.String())), ingest.MinSkeletonLines)

	dir := uri.MustParse("viking://resources/code")
	mkTree(t, fs, dir, map[string]string{"demo.go": src.String()})

	s := &recordingSummarizer{respond: func(req llm.SummarizeRequest) (*llm.SummarizeResponse, error) {
		if req.Kind != "overview" {
			t.Errorf("unexpected %s call in ast mode: %q", req.Kind, req.Text)
		}
		return &llm.SummarizeResponse{Text: "Overview of the code."}, nil
	}}
	w, q, _ := newTestWorker(t, fs, s, SemanticWorkerConfig{Mode: ingest.ModeAST})

	job := NewSemanticJob(dir, KindResource, "")
	require.NoError(t, q.Enqueue(ctx, job))
	require.NoError(t, w.processDirectory(ctx, job))

	assert.Empty(t, s.calls("abstract"), "ast mode must not summarise code through the model")
	prompt := s.calls("overview")[0].Text
	assert.Contains(t, prompt, "func F0() int")
}

func TestProcessDirectorySummaryCache(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()

	dir := uri.MustParse("viking://resources/doc")
	mkTree(t, fs, dir, map[string]string{"alpha.md": "alpha content"})

	s := &recordingSummarizer{}
	w, q, _ := newTestWorker(t, fs, s, SemanticWorkerConfig{})

	job := NewSemanticJob(dir, KindResource, "")
	require.NoError(t, q.Enqueue(ctx, job))
	require.NoError(t, w.processDirectory(ctx, job))
	require.Len(t, s.calls("abstract"), 1)

	cached, err := agfs.Exists(ctx, fs, dir.MustJoin(summaryCacheName))
	require.NoError(t, err)
	require.True(t, cached, "sidecar cache must be written")

	// Unchanged file: the second pass only redoes the overview.
	require.NoError(t, w.processDirectory(ctx, job))
	assert.Len(t, s.calls("abstract"), 1)
	assert.Len(t, s.calls("overview"), 2)

	// A rewritten file falls out of the cache.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, fs.Write(ctx, dir.MustJoin("alpha.md"), []byte("alpha content, revised"), agfs.WriteOptions{}))
	require.NoError(t, w.processDirectory(ctx, job))
	assert.Len(t, s.calls("abstract"), 2)
}

func TestProcessDirectoryImageChildren(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()

	dir := uri.MustParse("viking://resources/pics")
	mkTree(t, fs, dir, map[string]string{"chart.png": "\x89PNG fake bytes"})

	s := &recordingSummarizer{respond: func(req llm.SummarizeRequest) (*llm.SummarizeResponse, error) {
		if req.Kind == "overview" {
			return &llm.SummarizeResponse{Text: "A directory of charts."}, nil
		}
		if len(req.Images) != 1 {
			t.Errorf("image summary call carries %d images, want 1", len(req.Images))
		}
		return &llm.SummarizeResponse{Text: "a bar chart"}, nil
	}}
	w, q, embed := newTestWorker(t, fs, s, SemanticWorkerConfig{})

	job := NewSemanticJob(dir, KindResource, "")
	require.NoError(t, q.Enqueue(ctx, job))
	require.NoError(t, w.processDirectory(ctx, job))

	prompt := s.calls("overview")[0].Text
	assert.Contains(t, prompt, "- chart.png (file): a bar chart")

	jobs, err := embed.List(ctx)
	require.NoError(t, err)
	var raw *Job
	for _, j := range jobs {
		if j.Source == SourceRaw {
			raw = j
		}
	}
	require.NotNil(t, raw)
	assert.Equal(t, ModalityMultimodal, raw.Modality)
}

func TestProcessDirectoryUsesChildAbstracts(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()

	parent := uri.MustParse("viking://resources/p")
	mkTree(t, fs, parent, nil)
	child := parent.MustJoin("q")
	mkTree(t, fs, child, map[string]string{"x.md": "x"})
	require.NoError(t, fs.Write(ctx, child.MustJoin(uri.AbstractName), []byte("child abstract text"), agfs.WriteOptions{}))

	s := &recordingSummarizer{respond: func(req llm.SummarizeRequest) (*llm.SummarizeResponse, error) {
		return &llm.SummarizeResponse{Text: "Parent overview."}, nil
	}}
	w, q, _ := newTestWorker(t, fs, s, SemanticWorkerConfig{})

	job := NewSemanticJob(parent, KindResource, "")
	require.NoError(t, q.Enqueue(ctx, job))
	require.NoError(t, w.processDirectory(ctx, job))

	prompt := s.calls("overview")[0].Text
	assert.Contains(t, prompt, "- q (directory): child abstract text")
}

func TestProcessDirectoryRepairsUntrackedChild(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()

	parent := uri.MustParse("viking://resources/p")
	mkTree(t, fs, parent, nil)
	child := parent.MustJoin("q")
	mkTree(t, fs, child, map[string]string{"x.md": "x"})

	w, q, _ := newTestWorker(t, fs, &recordingSummarizer{}, SemanticWorkerConfig{})
	job := NewSemanticJob(parent, KindResource, "")
	require.NoError(t, q.Enqueue(ctx, job))

	err := w.processDirectory(ctx, job)
	assert.True(t, errors.HasCode(err, errors.CodeNotProcessed), "got %v", err)

	jobs, err := q.List(ctx)
	require.NoError(t, err)
	var repair *Job
	for _, j := range jobs {
		if j.URI == child {
			repair = j
		}
	}
	require.NotNil(t, repair, "a repair job for the child must be enqueued")
	assert.Equal(t, StatusPending, repair.Status)
	assert.Equal(t, parent, repair.ParentURI)
	assert.Equal(t, KindResource, repair.Kind)
}

func TestProcessDirectoryDoneChildWithoutArtefact(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()

	parent := uri.MustParse("viking://resources/p")
	mkTree(t, fs, parent, nil)
	child := parent.MustJoin("q")
	mkTree(t, fs, child, map[string]string{"x.md": "x"})

	w, q, _ := newTestWorker(t, fs, &recordingSummarizer{}, SemanticWorkerConfig{})
	childJob := NewSemanticJob(child, KindResource, parent)
	require.NoError(t, q.Enqueue(ctx, childJob))
	ok, err := q.Claim(ctx, childJob)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, q.Complete(ctx, childJob))

	parentJob := NewSemanticJob(parent, KindResource, "")
	require.NoError(t, q.Enqueue(ctx, parentJob))
	err = w.processDirectory(ctx, parentJob)
	assert.True(t, errors.HasCode(err, errors.CodeInvariantViolation), "got %v", err)
}

func TestProcessReleasesOnCancelledModelCall(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()

	dir := uri.MustParse("viking://resources/doc")
	mkTree(t, fs, dir, map[string]string{"a.md": "a"})

	s := &recordingSummarizer{respond: func(req llm.SummarizeRequest) (*llm.SummarizeResponse, error) {
		return nil, errors.Cancelled("interrupted")
	}}
	w, q, _ := newTestWorker(t, fs, s, SemanticWorkerConfig{})

	job := NewSemanticJob(dir, KindResource, "")
	require.NoError(t, q.Enqueue(ctx, job))
	w.process(ctx, job)

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func TestProcessGivesUpAfterMaxClaims(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()

	dir := uri.MustParse("viking://resources/doc")
	mkTree(t, fs, dir, map[string]string{"a.md": "a"})

	w, q, _ := newTestWorker(t, fs, &recordingSummarizer{}, SemanticWorkerConfig{MaxAttempts: 1})
	job := NewSemanticJob(dir, KindResource, "")
	require.NoError(t, q.Enqueue(ctx, job))
	ok, err := q.Claim(ctx, job)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, q.Release(ctx, job, nil))

	w.process(ctx, job)

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.LastError, "gave up after 2 claims")
}

func TestSemanticWorkerDrainsTreeBottomUp(t *testing.T) {
	defer goleak.VerifyNone(t)

	fs := newLocalFS(t)
	ctx := context.Background()

	root := uri.MustParse("viking://resources/proj")
	mkTree(t, fs, root, map[string]string{"readme.md": "project readme"})
	mkTree(t, fs, root.MustJoin("a"), map[string]string{"a.md": "alpha notes"})
	mkTree(t, fs, root.MustJoin("b"), map[string]string{"b.md": "beta notes"})

	q := NewSemanticQueue(fs, nil, StoreOptions{})
	embed := NewEmbeddingQueue(fs, nil, StoreOptions{})
	w := NewSemanticWorker(q, embed, fs, &llm.MockSummarizer{}, SemanticWorkerConfig{
		PollInterval: 10 * time.Millisecond,
	}, nil)

	n, err := q.EnqueueTree(ctx, root, KindResource)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	require.Eventually(t, func() bool {
		stats, err := q.Stats(ctx)
		return err == nil && stats.Done == 3 && stats.Idle()
	}, 10*time.Second, 20*time.Millisecond, "worker should drain the tree")

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	for _, dir := range []uri.URI{root, root.MustJoin("a"), root.MustJoin("b")} {
		abstract, err := agfs.Abstract(ctx, fs, dir)
		require.NoError(t, err)
		assert.NotEmpty(t, abstract, "abstract for %s", dir)
		overview, err := agfs.Overview(ctx, fs, dir)
		require.NoError(t, err)
		assert.NotEmpty(t, overview, "overview for %s", dir)
	}

	// The root overview saw both child abstracts, proving bottom-up order.
	rootOverview, err := agfs.Overview(ctx, fs, root)
	require.NoError(t, err)
	assert.Contains(t, rootOverview, "(directory):")

	jobs, err := embed.List(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 9, "2 artefact points per directory plus 3 raw leaves")
}
