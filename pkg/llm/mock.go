// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// MockSummarizer is a test summarizer with deterministic output. The default
// behaviour truncates the input to the word budget of the requested kind, so
// equal inputs always produce equal summaries.
type MockSummarizer struct {
	model         string
	SummarizeFunc func(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error)
}

func (p *MockSummarizer) Name() string { return "mock" }

func (p *MockSummarizer) Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error) {
	if p.SummarizeFunc != nil {
		return p.SummarizeFunc(ctx, req)
	}
	maxWords := req.MaxWords
	if maxWords == 0 {
		switch req.Kind {
		case "abstract":
			maxWords = 200
		case "memory":
			maxWords = 120
		default:
			maxWords = 400
		}
	}
	model := p.model
	if model == "" {
		model = "mock-model"
	}
	text := truncateWords(req.Text, maxWords)
	return &SummarizeResponse{
		Text:         text,
		Model:        model,
		PromptTokens: len(req.Text) / 4,
		OutputTokens: len(text) / 4,
		Duration:     time.Millisecond,
	}, nil
}

// truncateWords keeps the first n whitespace-separated words.
func truncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// MockEmbedder is a test embedder producing deterministic unit vectors. The
// vector is a pure function of the input bytes, so identical inputs land on
// the same point and cosine against themselves scores 1.
type MockEmbedder struct {
	dimensions int
	EmbedFunc  func(ctx context.Context, req EmbedRequest) ([][]float32, error)
}

// NewMockEmbedder creates a mock with the given vector width (default 384).
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

func (p *MockEmbedder) Name() string    { return "mock" }
func (p *MockEmbedder) Dimensions() int { return p.dimensions }

func (p *MockEmbedder) Embed(ctx context.Context, req EmbedRequest) ([][]float32, error) {
	if p.EmbedFunc != nil {
		return p.EmbedFunc(ctx, req)
	}
	vectors := make([][]float32, 0, len(req.Texts)+len(req.Images))
	for _, text := range req.Texts {
		vectors = append(vectors, hashVector(xxhash.Sum64String(text), p.dimensions))
	}
	for _, img := range req.Images {
		vectors = append(vectors, hashVector(xxhash.Sum64(img), p.dimensions))
	}
	return vectors, nil
}

// hashVector expands a 64-bit seed into an L2-normalised vector using a
// multiplicative congruential sequence.
func hashVector(seed uint64, dims int) []float32 {
	v := make([]float32, dims)
	x := seed | 1
	var norm float64
	for i := range v {
		x = x*6364136223846793005 + 1442695040888963407
		f := float64(int32(x>>32)) / float64(1<<31)
		v[i] = float32(f)
		norm += f * f
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}
