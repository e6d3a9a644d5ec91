// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package viking

import (
	"context"
	"time"

	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/llm"
	"github.com/kraklabs/openviking/pkg/uri"
	"github.com/kraklabs/openviking/pkg/vector"
)

// The adapters are wrapped once at engine construction so every call
// site inherits the configured per-call deadline. An already-earlier
// parent deadline wins, per context semantics; expiry surfaces as
// TIMEOUT through the error taxonomy.

type timeoutFS struct {
	inner agfs.FS
	d     time.Duration
}

func (t timeoutFS) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.d)
}

func (t timeoutFS) Read(ctx context.Context, u uri.URI) ([]byte, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.inner.Read(ctx, u)
}

func (t timeoutFS) Write(ctx context.Context, u uri.URI, data []byte, opts agfs.WriteOptions) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.inner.Write(ctx, u, data, opts)
}

func (t timeoutFS) Append(ctx context.Context, u uri.URI, data []byte) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.inner.Append(ctx, u, data)
}

func (t timeoutFS) Mkdir(ctx context.Context, u uri.URI) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.inner.Mkdir(ctx, u)
}

func (t timeoutFS) Stat(ctx context.Context, u uri.URI) (agfs.Stat, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.inner.Stat(ctx, u)
}

func (t timeoutFS) List(ctx context.Context, u uri.URI, opts agfs.ListOptions) ([]agfs.Entry, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.inner.List(ctx, u, opts)
}

func (t timeoutFS) Delete(ctx context.Context, u uri.URI, opts agfs.DeleteOptions) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.inner.Delete(ctx, u, opts)
}

func (t timeoutFS) Move(ctx context.Context, src, dst uri.URI) error {
	// Moves copy whole subtrees, so they get a generous multiple of the
	// single-op budget rather than their own knob.
	ctx, cancel := context.WithTimeout(ctx, 10*t.d)
	defer cancel()
	return t.inner.Move(ctx, src, dst)
}

// timeoutVectors bounds searches. Writes ride the worker retry policy
// instead, so they pass through.
type timeoutVectors struct {
	vector.Store
	d time.Duration
}

func (t timeoutVectors) Search(ctx context.Context, query []float32, opts vector.SearchOptions) ([]vector.Match, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Store.Search(ctx, query, opts)
}

type timeoutSummarizer struct {
	llm.Summarizer
	d time.Duration
}

func (t timeoutSummarizer) Summarize(ctx context.Context, req llm.SummarizeRequest) (*llm.SummarizeResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Summarizer.Summarize(ctx, req)
}

type timeoutEmbedder struct {
	llm.Embedder
	d time.Duration
}

func (t timeoutEmbedder) Embed(ctx context.Context, req llm.EmbedRequest) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Embedder.Embed(ctx, req)
}
