// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package search

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/llm"
	"github.com/kraklabs/openviking/pkg/trace"
	"github.com/kraklabs/openviking/pkg/uri"
	"github.com/kraklabs/openviking/pkg/vector"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newLocalFS(t *testing.T) agfs.FS {
	t.Helper()
	fs, err := agfs.NewLocal(t.TempDir())
	require.NoError(t, err)
	return fs
}

// fakeStore serves canned matches with the real ranking contract: prefix
// filter, score descending, URI ascending on ties, limit. Entries in
// scoped only surface when a search uses exactly that prefix, which is
// how the tests make routing observable.
type fakeStore struct {
	mu          sync.Mutex
	matches     []vector.Match
	scoped      map[string][]vector.Match
	searches    []vector.SearchOptions
	incremented [][]string
	searchErr   error
}

func (s *fakeStore) Upsert(ctx context.Context, records []vector.Record) error { return nil }

func (s *fakeStore) Search(ctx context.Context, q []float32, opts vector.SearchOptions) ([]vector.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	s.searches = append(s.searches, opts)

	pool := append([]vector.Match{}, s.matches...)
	if extra, ok := s.scoped[opts.Prefix]; ok {
		pool = append(pool, extra...)
	}
	out := pool[:0]
	for _, m := range pool {
		if !vector.UnderPrefix(m.URI, opts.Prefix) {
			continue
		}
		if m.Score < opts.ScoreThreshold {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].URI < out[j].URI
	})
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) Delete(ctx context.Context, prefix string) (int, error) { return 0, nil }

func (s *fakeStore) Rekey(ctx context.Context, oldPrefix, newPrefix string) (int, error) {
	return 0, nil
}

func (s *fakeStore) Count(ctx context.Context, prefix string) (int, error) {
	return len(s.matches), nil
}

func (s *fakeStore) IncrementActive(ctx context.Context, uris []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incremented = append(s.incremented, uris)
	return len(uris), nil
}

func (s *fakeStore) Close() error { return nil }

func mkMatch(u, source string, score float64, payload vector.Payload) vector.Match {
	payload.Source = source
	return vector.Match{URI: u, Source: source, Score: score, Payload: payload}
}

func newTestRetriever(t *testing.T, fs agfs.FS, store vector.Store) *Retriever {
	t.Helper()
	return NewRetriever(fs, store, llm.NewMockEmbedder(8), Config{}, discardLogger())
}

func TestFindRanksAndTruncates(t *testing.T) {
	store := &fakeStore{matches: []vector.Match{
		mkMatch("viking://resources/b.md", vector.SourceRaw, 0.8, vector.Payload{Kind: vector.KindResource}),
		mkMatch("viking://resources/c.md", vector.SourceRaw, 0.9, vector.Payload{Kind: vector.KindResource}),
		mkMatch("viking://resources/a.md", vector.SourceRaw, 0.8, vector.Payload{Kind: vector.KindResource}),
	}}
	r := newTestRetriever(t, newLocalFS(t), store)

	results, err := r.Find(context.Background(), "anything", FindOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, uri.MustParse("viking://resources/c.md"), results[0].URI)
	assert.Equal(t, uri.MustParse("viking://resources/a.md"), results[1].URI)
}

func TestFindAppliesScoreThreshold(t *testing.T) {
	store := &fakeStore{matches: []vector.Match{
		mkMatch("viking://resources/a.md", vector.SourceRaw, 0.9, vector.Payload{Kind: vector.KindResource}),
		mkMatch("viking://resources/b.md", vector.SourceRaw, 0.31, vector.Payload{Kind: vector.KindResource}),
		mkMatch("viking://resources/c.md", vector.SourceRaw, 0.29, vector.Payload{Kind: vector.KindResource}),
		mkMatch("viking://resources/d.md", vector.SourceRaw, 0.1, vector.Payload{Kind: vector.KindResource}),
	}}
	r := newTestRetriever(t, newLocalFS(t), store)
	ctx := context.Background()

	results, err := r.Find(ctx, "q", FindOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 2, "default threshold 0.3 keeps two")

	zero := 0.0
	results, err = r.Find(ctx, "q", FindOptions{ScoreThreshold: &zero})
	require.NoError(t, err)
	assert.Len(t, results, 4, "explicit zero keeps everything")

	half := 0.5
	results, err = r.Find(ctx, "q", FindOptions{ScoreThreshold: &half})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uri.MustParse("viking://resources/a.md"), results[0].URI)
}

func TestFindCollapsesDuplicateURIs(t *testing.T) {
	// Abstract and raw points for the same node must come back as one
	// result carrying the better score.
	store := &fakeStore{matches: []vector.Match{
		mkMatch("viking://resources/doc", vector.SourceAbstract, 0.6, vector.Payload{Kind: vector.KindResource, Abstract: "doc"}),
		mkMatch("viking://resources/doc", vector.SourceOverview, 0.8, vector.Payload{Kind: vector.KindResource, Abstract: "doc"}),
	}}
	r := newTestRetriever(t, newLocalFS(t), store)

	results, err := r.Find(context.Background(), "q", FindOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.8, results[0].Score, 1e-9)
}

func TestFindScopesToTargetDirectory(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()
	docs := uri.MustParse("viking://resources/docs")
	require.NoError(t, fs.Mkdir(ctx, docs))
	require.NoError(t, fs.Write(ctx, docs.MustJoin("a.md"), []byte("a"), agfs.WriteOptions{}))
	require.NoError(t, fs.Write(ctx, uri.MustParse("viking://resources/other.md"), []byte("o"), agfs.WriteOptions{}))

	store := &fakeStore{matches: []vector.Match{
		mkMatch("viking://resources/docs/a.md", vector.SourceRaw, 0.8, vector.Payload{Kind: vector.KindResource}),
		mkMatch("viking://resources/other.md", vector.SourceRaw, 0.9, vector.Payload{Kind: vector.KindResource}),
	}}
	r := newTestRetriever(t, fs, store)

	results, err := r.Find(ctx, "q", FindOptions{Target: docs})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uri.MustParse("viking://resources/docs/a.md"), results[0].URI)
	require.NotEmpty(t, store.searches)
	assert.Equal(t, "viking://resources/docs", store.searches[0].Prefix)
}

func TestFindFileTargetWidensToNamespace(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()
	require.NoError(t, fs.Mkdir(ctx, uri.MustParse("viking://resources")))
	file := uri.MustParse("viking://resources/other.md")
	require.NoError(t, fs.Write(ctx, file, []byte("o"), agfs.WriteOptions{}))

	store := &fakeStore{matches: []vector.Match{
		mkMatch("viking://resources/other.md", vector.SourceRaw, 0.9, vector.Payload{Kind: vector.KindResource}),
		mkMatch("viking://resources/more.md", vector.SourceRaw, 0.8, vector.Payload{Kind: vector.KindResource}),
	}}
	r := newTestRetriever(t, fs, store)

	results, err := r.Find(ctx, "q", FindOptions{Target: file})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, "", store.searches[0].Prefix)

	// A target that never existed widens the same way.
	results, err = r.Find(ctx, "q", FindOptions{Target: uri.MustParse("viking://resources/gone")})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestFindRoutesIntoLargeDirectories(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()
	fill := func(dir string, files int) {
		d := uri.MustParse(dir)
		require.NoError(t, fs.Mkdir(ctx, d))
		for i := 0; i < files; i++ {
			name := fmt.Sprintf("f%d.md", i)
			require.NoError(t, fs.Write(ctx, d.MustJoin(name), []byte("x"), agfs.WriteOptions{}))
		}
	}
	fill("viking://resources/big", 9)
	fill("viking://resources/small", 3)
	fill("viking://resources/crowd", 9)

	store := &fakeStore{
		matches: []vector.Match{
			mkMatch("viking://resources/big", vector.SourceAbstract, 0.9, vector.Payload{Kind: vector.KindResource, Abstract: "big docs"}),
			mkMatch("viking://resources/small", vector.SourceAbstract, 0.8, vector.Payload{Kind: vector.KindResource, Abstract: "small docs"}),
			mkMatch("viking://resources/crowd/f0.md", vector.SourceRaw, 0.7, vector.Payload{Kind: vector.KindResource}),
		},
		scoped: map[string][]vector.Match{
			"viking://resources/big": {
				mkMatch("viking://resources/big/f3.md", vector.SourceRaw, 0.85, vector.Payload{Kind: vector.KindResource}),
			},
		},
	}
	r := newTestRetriever(t, fs, store)

	results, err := r.Find(ctx, "q", FindOptions{})
	require.NoError(t, err)

	// Only big routes: small has too few children, crowd never surfaced
	// through its own abstract.
	require.Len(t, store.searches, 2)
	assert.Equal(t, "", store.searches[0].Prefix)
	assert.Equal(t, "viking://resources/big", store.searches[1].Prefix)

	require.Len(t, results, 4)
	assert.Equal(t, uri.MustParse("viking://resources/big"), results[0].URI)
	assert.Equal(t, uri.MustParse("viking://resources/big/f3.md"), results[1].URI,
		"routed hit merges into the ranking")
}

func TestFindDoesNotRerouteIntoScope(t *testing.T) {
	fs := newLocalFS(t)
	ctx := context.Background()
	big := uri.MustParse("viking://resources/big")
	require.NoError(t, fs.Mkdir(ctx, big))
	for i := 0; i < 9; i++ {
		require.NoError(t, fs.Write(ctx, big.MustJoin(fmt.Sprintf("f%d.md", i)), []byte("x"), agfs.WriteOptions{}))
	}

	store := &fakeStore{matches: []vector.Match{
		mkMatch("viking://resources/big", vector.SourceAbstract, 0.9, vector.Payload{Kind: vector.KindResource, Abstract: "big"}),
		mkMatch("viking://resources/big/f1.md", vector.SourceRaw, 0.8, vector.Payload{Kind: vector.KindResource}),
	}}
	r := newTestRetriever(t, fs, store)

	_, err := r.Find(ctx, "q", FindOptions{Target: big})
	require.NoError(t, err)
	assert.Len(t, store.searches, 1, "scoped search must not reissue its own prefix")
}

func TestFindDedupsMemoryAbstracts(t *testing.T) {
	store := &fakeStore{matches: []vector.Match{
		mkMatch("viking://user/memories/facts/a.md", vector.SourceRaw, 0.9,
			vector.Payload{Kind: vector.KindMemory, Abstract: "User prefers tabs."}),
		mkMatch("viking://user/memories/preferences/b.md", vector.SourceRaw, 0.8,
			vector.Payload{Kind: vector.KindMemory, Abstract: "  user   prefers TABS."}),
		mkMatch("viking://user/memories/events/c.md", vector.SourceRaw, 0.7,
			vector.Payload{Kind: vector.KindMemory, Abstract: "Met Alice"}),
		mkMatch("viking://user/memories/events/d.md", vector.SourceRaw, 0.6,
			vector.Payload{Kind: vector.KindMemory, Abstract: "Met Alice"}),
		mkMatch("viking://resources/notes.md", vector.SourceRaw, 0.5,
			vector.Payload{Kind: vector.KindResource, Abstract: "User prefers tabs."}),
	}}
	r := newTestRetriever(t, newLocalFS(t), store)

	results, err := r.Find(context.Background(), "q", FindOptions{})
	require.NoError(t, err)

	uris := make([]string, len(results))
	for i, res := range results {
		uris[i] = string(res.URI)
	}
	assert.Equal(t, []string{
		"viking://user/memories/facts/a.md",
		"viking://user/memories/events/c.md",
		"viking://user/memories/events/d.md",
		"viking://resources/notes.md",
	}, uris, "same wording collapses for facts/preferences, never for events or resources")
}

func TestFindAnnotatesMemoryResults(t *testing.T) {
	updated := time.Now().Add(-time.Minute)
	store := &fakeStore{matches: []vector.Match{
		mkMatch("viking://user/memories/facts/a.md", vector.SourceRaw, 0.9,
			vector.Payload{Kind: vector.KindMemory, Abstract: "likes Go", ActiveCount: 5, UpdatedAt: updated}),
		mkMatch("viking://resources/notes.md", vector.SourceRaw, 0.8,
			vector.Payload{Kind: vector.KindResource, Abstract: "notes"}),
	}}
	r := newTestRetriever(t, newLocalFS(t), store)

	results, err := r.Find(context.Background(), "q", FindOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	memory := results[0]
	assert.Equal(t, "facts", memory.Category)
	assert.InDelta(t, Hotness(5, updated, time.Now()), memory.Hotness, 0.01)
	assert.Greater(t, memory.Hotness, 0.5)

	resource := results[1]
	assert.Empty(t, resource.Category)
	assert.Zero(t, resource.Hotness)
}

func TestFindIncrementsActiveOnHits(t *testing.T) {
	store := &fakeStore{matches: []vector.Match{
		mkMatch("viking://resources/a.md", vector.SourceRaw, 0.9, vector.Payload{Kind: vector.KindResource}),
		mkMatch("viking://resources/b.md", vector.SourceRaw, 0.8, vector.Payload{Kind: vector.KindResource}),
	}}
	r := newTestRetriever(t, newLocalFS(t), store)

	_, err := r.Find(context.Background(), "q", FindOptions{})
	require.NoError(t, err)
	require.Len(t, store.incremented, 1)
	assert.Equal(t, []string{"viking://resources/a.md", "viking://resources/b.md"}, store.incremented[0])
}

func TestFindRejectsEmptyQuery(t *testing.T) {
	r := newTestRetriever(t, newLocalFS(t), &fakeStore{})
	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := r.Find(context.Background(), q, FindOptions{})
		assert.True(t, errors.HasCode(err, errors.CodeInvalidArgument), "query %q", q)
	}
}

func TestFindPropagatesStoreError(t *testing.T) {
	store := &fakeStore{searchErr: errors.DependencyError(nil, "index offline")}
	r := newTestRetriever(t, newLocalFS(t), store)

	_, err := r.Find(context.Background(), "q", FindOptions{})
	assert.True(t, errors.HasCode(err, errors.CodeDependencyError))
}

func TestFindWrapsEmbedderError(t *testing.T) {
	embedder := llm.NewMockEmbedder(8)
	embedder.EmbedFunc = func(ctx context.Context, req llm.EmbedRequest) ([][]float32, error) {
		return nil, stderrors.New("connection refused")
	}
	r := NewRetriever(newLocalFS(t), &fakeStore{}, embedder, Config{}, discardLogger())

	_, err := r.Find(context.Background(), "q", FindOptions{})
	assert.True(t, errors.HasCode(err, errors.CodeDependencyError))

	embedder.EmbedFunc = func(ctx context.Context, req llm.EmbedRequest) ([][]float32, error) {
		return nil, context.Canceled
	}
	_, err = r.Find(context.Background(), "q", FindOptions{})
	assert.True(t, errors.HasCode(err, errors.CodeCancelled), "context errors pass through unwrapped")
}

func TestFindRecordsTraceCounters(t *testing.T) {
	store := &fakeStore{matches: []vector.Match{
		mkMatch("viking://resources/a.md", vector.SourceRaw, 0.9, vector.Payload{Kind: vector.KindResource}),
		mkMatch("viking://resources/b.md", vector.SourceRaw, 0.1, vector.Payload{Kind: vector.KindResource}),
	}}
	r := newTestRetriever(t, newLocalFS(t), store)

	collector := trace.NewCollector("find")
	ctx := trace.NewContext(context.Background(), collector)
	results, err := r.Find(ctx, "q", FindOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	doc := collector.Finish("ok")
	assert.Equal(t, 1, doc.Summary.Vector.SearchCalls)
	assert.Equal(t, 2, doc.Summary.Vector.CandidatesScored)
	assert.Equal(t, 1, doc.Summary.Vector.CandidatesAfterThreshold)
	assert.Equal(t, 1, doc.Summary.Vector.Returned)
	assert.NotEmpty(t, doc.Summary.Vector.ScanUnavailableReason)
}
