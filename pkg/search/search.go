// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package search answers queries over the indexed namespace.
//
// Find is the semantic entry point: it embeds the query once and works the
// abstract layer of the vector index, routing into directories whose own
// abstract surfaced so a deep subtree gets searched at its own resolution
// instead of competing with the whole namespace for shortlist slots. Grep
// and Glob are the non-semantic complements, streaming over raw leaves and
// listings with nothing indexed.
package search

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/llm"
	"github.com/kraklabs/openviking/pkg/trace"
	"github.com/kraklabs/openviking/pkg/uri"
	"github.com/kraklabs/openviking/pkg/vector"
)

// Defaults for Config fields left zero.
const (
	DefaultLimit          = 10
	DefaultScoreThreshold = 0.3
	DefaultRouteChildren  = 8
)

// minShortlist floors the widened candidate limit, so small requested
// limits still see enough of the index for routing to trigger.
const minShortlist = 40

// Config tunes the retriever.
type Config struct {
	// Limit is the result count when a query does not set one.
	Limit int

	// ScoreThreshold drops results scoring below it. Queries can override
	// it, including down to zero.
	ScoreThreshold float64

	// RouteChildren is the child count above which a shortlisted directory
	// is searched again under its own prefix. Smaller directories are
	// already fully represented in the global shortlist.
	RouteChildren int
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.ScoreThreshold <= 0 {
		c.ScoreThreshold = DefaultScoreThreshold
	}
	if c.RouteChildren <= 0 {
		c.RouteChildren = DefaultRouteChildren
	}
	return c
}

// FindOptions narrows one query.
type FindOptions struct {
	// Target scopes the search to a directory subtree. Empty, the scheme
	// root, or a target that does not denote a directory all search the
	// whole namespace.
	Target uri.URI

	// Limit bounds the result count; zero means the configured default.
	Limit int

	// ScoreThreshold overrides the configured threshold for this query.
	// nil keeps the default; point at zero to keep every candidate.
	ScoreThreshold *float64
}

// Result is one ranked hit. Category and Hotness are set for memory
// entries only; Hotness annotates without ever changing the ordering.
type Result struct {
	URI      uri.URI `json:"uri"`
	Score    float64 `json:"score"`
	Abstract string  `json:"abstract,omitempty"`
	Category string  `json:"category,omitempty"`
	Hotness  float64 `json:"hotness,omitempty"`
}

// Retriever performs hierarchical semantic retrieval over the vector
// index, consulting AGFS only to resolve scopes and child counts.
type Retriever struct {
	fs       agfs.FS
	store    vector.Store
	embedder llm.Embedder
	cfg      Config
	logger   *slog.Logger
}

// NewRetriever wires a retriever over the given adapters. A nil logger
// falls back to slog.Default().
func NewRetriever(fs agfs.FS, store vector.Store, embedder llm.Embedder, cfg Config, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	sMetrics.init()
	return &Retriever{
		fs:       fs,
		store:    store,
		embedder: embedder,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Find returns the ranked hits for query.
//
// The query is embedded once. A widened shortlist over the scoped subtree
// seeds the candidate set; content roots whose own abstract surfaced and
// whose child count exceeds the routing threshold are searched again under
// their prefix and merged in. Candidates are then threshold-filtered,
// ranked score-descending with URI as the tie break, memory duplicates
// collapsed by normalised abstract, and the list cut to the limit.
func (r *Retriever) Find(ctx context.Context, query string, opts FindOptions) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.InvalidArgument("find query is empty")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = r.cfg.Limit
	}
	threshold := r.cfg.ScoreThreshold
	if opts.ScoreThreshold != nil {
		threshold = *opts.ScoreThreshold
	}

	tc := trace.FromContext(ctx)
	start := time.Now()

	q, err := r.embedQuery(ctx, query)
	if err != nil {
		tc.SetError("embed", string(errors.CodeOf(err)), err.Error())
		return nil, err
	}
	tc.Event("search", "query_embedded", map[string]any{"dimensions": len(q)})

	scope, err := r.resolveScope(ctx, opts.Target)
	if err != nil {
		return nil, err
	}

	shortlist := max(limit*4, minShortlist)
	matches, err := r.searchIndex(ctx, tc, q, scope, shortlist)
	if err != nil {
		tc.SetError("search", string(errors.CodeOf(err)), err.Error())
		return nil, err
	}

	// Distinct URIs, best score wins. Routing needs to know which roots
	// surfaced through their own abstract, so that is tracked before the
	// collapse loses the per-source detail.
	best := make(map[string]vector.Match, len(matches))
	abstractHit := make(map[string]bool)
	merge := func(ms []vector.Match) {
		for _, m := range ms {
			if m.Source == vector.SourceAbstract {
				abstractHit[m.URI] = true
			}
			if cur, ok := best[m.URI]; !ok || m.Score > cur.Score {
				best[m.URI] = m
			}
		}
	}
	merge(matches)

	routed := 0
	for _, root := range routeRoots(matches) {
		if root == scope || !abstractHit[string(root)] {
			continue
		}
		n, err := r.childCount(ctx, root)
		if err != nil {
			r.logger.Warn("search.route_list_failed", "uri", root, "error", err)
			continue
		}
		if n <= r.cfg.RouteChildren {
			continue
		}
		sub, err := r.searchIndex(ctx, tc, q, root, shortlist)
		if err != nil {
			tc.SetError("route", string(errors.CodeOf(err)), err.Error())
			return nil, err
		}
		merge(sub)
		routed++
		sMetrics.routes.Inc()
		tc.Event("search", "routed", map[string]any{"uri": string(root), "children": n, "hits": len(sub)})
	}

	ranked := make([]vector.Match, 0, len(best))
	for _, m := range best {
		if m.Score >= threshold {
			ranked = append(ranked, m)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].URI < ranked[j].URI
	})
	tc.Count("vector.candidates_after_threshold", float64(len(ranked)))

	results := assemble(ranked, limit)
	tc.Set("vector.returned", len(results))
	tc.Set("vector.scan_unavailable_reason", "store does not report scan totals")

	if len(results) > 0 {
		uris := make([]string, len(results))
		for i, res := range results {
			uris[i] = string(res.URI)
		}
		if _, err := r.store.IncrementActive(ctx, uris); err != nil {
			r.logger.Warn("search.increment_active_failed", "error", err)
		}
	}

	sMetrics.finds.Inc()
	sMetrics.findDuration.Observe(time.Since(start).Seconds())
	r.logger.Info("search.find",
		"scope", scope,
		"limit", limit,
		"candidates", len(best),
		"routed", routed,
		"results", len(results),
		"duration_ms", time.Since(start).Milliseconds())
	return results, nil
}

// embedQuery turns the query text into a vector, mapping provider
// transport failures onto DEPENDENCY_ERROR.
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := r.embedder.Embed(ctx, llm.EmbedRequest{Texts: []string{query}})
	if err != nil {
		var classified *errors.Error
		if stderrors.As(err, &classified) ||
			stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, errors.DependencyError(err, "embedding find query")
	}
	if len(vecs) != 1 {
		return nil, errors.DependencyError(nil, "embedder %s returned %d vectors for one query", r.embedder.Name(), len(vecs))
	}
	if len(vecs[0]) == 0 {
		return nil, errors.DependencyError(nil, "embedder %s returned an empty query vector", r.embedder.Name())
	}
	return vecs[0], nil
}

// resolveScope maps the requested target onto a search prefix. Only an
// existing directory narrows the search; a file or missing target widens
// back to the whole namespace rather than erroring, so callers can keep a
// stale scope pinned across deletes.
func (r *Retriever) resolveScope(ctx context.Context, target uri.URI) (uri.URI, error) {
	if target == "" || target == uri.Root {
		return uri.Root, nil
	}
	st, err := r.fs.Stat(ctx, target)
	if err != nil {
		return "", err
	}
	if st.Exists && st.IsDir {
		return target, nil
	}
	return uri.Root, nil
}

func (r *Retriever) searchIndex(ctx context.Context, tc *trace.Collector, q []float32, scope uri.URI, limit int) ([]vector.Match, error) {
	prefix := ""
	if scope != uri.Root {
		prefix = string(scope)
	}
	matches, err := r.store.Search(ctx, q, vector.SearchOptions{Prefix: prefix, Limit: limit})
	if err != nil {
		return nil, err
	}
	tc.Count("vector.search_calls", 1)
	tc.Count("vector.candidates_scored", float64(len(matches)))
	return matches, nil
}

func (r *Retriever) childCount(ctx context.Context, dir uri.URI) (int, error) {
	entries, err := r.fs.List(ctx, dir, agfs.ListOptions{})
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// routeRoots extracts the distinct content roots of the shortlist, one
// directory level below each scope root. Sorted so routing order is
// deterministic.
func routeRoots(matches []vector.Match) []uri.URI {
	set := make(map[uri.URI]bool)
	for _, m := range matches {
		segs := uri.URI(m.URI).Segments()
		if len(segs) < 2 {
			continue
		}
		set[uri.URI(uri.Scheme+segs[0]+"/"+segs[1])] = true
	}
	roots := make([]uri.URI, 0, len(set))
	for root := range set {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	return roots
}

// assemble applies the dedup and truncation steps to the ranked candidate
// list and annotates memory entries with their category and hotness.
func assemble(ranked []vector.Match, limit int) []Result {
	now := time.Now()
	seen := make(map[string]bool)
	out := make([]Result, 0, min(limit, len(ranked)))
	for _, m := range ranked {
		if len(out) >= limit {
			break
		}
		u := uri.URI(m.URI)
		category := memoryCategory(u)
		isMemory := m.Payload.Kind == vector.KindMemory
		if isMemory && dedupableCategory(category) {
			if key := normalizeAbstract(m.Payload.Abstract); key != "" {
				if seen[key] {
					continue
				}
				seen[key] = true
			}
		}
		res := Result{
			URI:      u,
			Score:    m.Score,
			Abstract: m.Payload.Abstract,
			Category: category,
		}
		if isMemory {
			res.Hotness = Hotness(m.Payload.ActiveCount, m.Payload.UpdatedAt, now)
		}
		out = append(out, res)
	}
	return out
}
