// Copyright 2026 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package llm provides the model providers behind the context pipeline.
// Supports multiple backends: Ollama, OpenAI-compatible APIs, and a mock.
package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kraklabs/openviking/internal/errors"
)

// Summarizer produces the L0 abstracts and L1 overviews of the semantic
// tree, and distils session transcripts into memories.
type Summarizer interface {
	// Summarize produces a summary of the given kind for the input.
	Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error)

	// Name returns the provider identifier.
	Name() string
}

// Embedder turns text (and optionally images) into vectors for the index.
type Embedder interface {
	// Embed returns one vector per input, texts first then images, in order.
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, error)

	// Dimensions reports the width of the vectors this embedder produces.
	Dimensions() int

	// Name returns the provider identifier.
	Name() string
}

// SummarizeRequest describes one summarisation call.
type SummarizeRequest struct {
	// Kind selects the prompt: "abstract", "overview" or "memory".
	Kind string `json:"kind"`

	Text string `json:"text"`

	// Images are raw bytes for multimodal nodes. Callers cap the count per
	// call; providers that cannot see images answer UNSUPPORTED_FORMAT.
	Images [][]byte `json:"images,omitempty"`

	// MaxWords bounds the summary length. Zero uses the kind's default.
	MaxWords int `json:"max_words,omitempty"`

	Model string `json:"model,omitempty"`
}

// SummarizeResponse contains the model output.
type SummarizeResponse struct {
	Text         string        `json:"text"`
	Model        string        `json:"model"`
	PromptTokens int           `json:"prompt_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
}

// EmbedRequest describes one embedding call. The embedding worker batches
// these; providers see at most one batch per request.
type EmbedRequest struct {
	Texts  []string `json:"texts"`
	Images [][]byte `json:"images,omitempty"`
	Model  string   `json:"model,omitempty"`
}

// ProviderConfig holds configuration for creating providers.
type ProviderConfig struct {
	// Provider type: "ollama", "openai", "mock"
	Type string `yaml:"type" json:"type"`

	// BaseURL for the API endpoint
	BaseURL string `yaml:"base_url" json:"base_url,omitempty"`

	// APIKey for authenticated providers
	APIKey string `yaml:"api_key" json:"api_key,omitempty"`

	// Model for summarisation if not specified in requests
	Model string `yaml:"model" json:"model,omitempty"`

	// EmbedModel for embedding calls
	EmbedModel string `yaml:"embed_model" json:"embed_model,omitempty"`

	// EmbedDimensions is the vector width; defaults per provider
	EmbedDimensions int `yaml:"embed_dimensions" json:"embed_dimensions,omitempty"`

	// Timeout for API requests
	Timeout time.Duration `yaml:"timeout" json:"timeout,omitempty"`

	// MaxRetries for transient failures; consumed by the queue workers
	MaxRetries int `yaml:"max_retries" json:"max_retries,omitempty"`
}

// NewSummarizer creates a Summarizer based on configuration.
// Supported types: "ollama", "openai", "mock"
//
// Environment variables:
//   - OLLAMA_HOST: Ollama server URL (default: http://localhost:11434)
//   - OLLAMA_MODEL: Default Ollama model
//   - OPENAI_API_KEY: OpenAI API key
//   - OPENAI_BASE_URL: OpenAI-compatible API URL
//   - OPENAI_MODEL: Default OpenAI model
func NewSummarizer(cfg ProviderConfig) (Summarizer, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 180 * time.Second
	}
	switch strings.ToLower(cfg.Type) {
	case "ollama", "local", "":
		return newOllamaProvider(cfg), nil
	case "openai", "openai-compatible":
		return newOpenAIProvider(cfg), nil
	case "mock", "test":
		return &MockSummarizer{model: cfg.Model}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider type: %s (supported: ollama, openai, mock)", cfg.Type)
	}
}

// NewEmbedder creates an Embedder based on configuration. The same types
// are supported as for NewSummarizer.
func NewEmbedder(cfg ProviderConfig) (Embedder, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 180 * time.Second
	}
	switch strings.ToLower(cfg.Type) {
	case "ollama", "local", "":
		return newOllamaProvider(cfg), nil
	case "openai", "openai-compatible":
		return newOpenAIProvider(cfg), nil
	case "mock", "test":
		return NewMockEmbedder(cfg.EmbedDimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider type: %s (supported: ollama, openai, mock)", cfg.Type)
	}
}

// =============================================================================
// OLLAMA PROVIDER
// =============================================================================

type ollamaProvider struct {
	baseURL    string
	model      string
	embedModel string
	dimensions int
	client     *http.Client
}

func newOllamaProvider(cfg ProviderConfig) *ollamaProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	model := cfg.Model
	if model == "" {
		model = os.Getenv("OLLAMA_MODEL")
	}
	if model == "" {
		model = "llama3.2"
	}

	embedModel := cfg.EmbedModel
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}

	dims := cfg.EmbedDimensions
	if dims == 0 {
		dims = 768
	}

	return &ollamaProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		embedModel: embedModel,
		dimensions: dims,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *ollamaProvider) Name() string    { return "ollama" }
func (p *ollamaProvider) Dimensions() int { return p.dimensions }

func (p *ollamaProvider) Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	payload := map[string]any{
		"model":  model,
		"prompt": buildSummaryPrompt(req.Kind, req.MaxWords, req.Text),
		"stream": false,
	}
	if len(req.Images) > 0 {
		images := make([]string, len(req.Images))
		for i, img := range req.Images {
			images[i] = base64.StdEncoding.EncodeToString(img)
		}
		payload["images"] = images
	}

	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/generate", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama summarize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama summarize error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result struct {
		Response        string `json:"response"`
		Model           string `json:"model"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &SummarizeResponse{
		Text:         strings.TrimSpace(result.Response),
		Model:        result.Model,
		PromptTokens: result.PromptEvalCount,
		OutputTokens: result.EvalCount,
		Duration:     time.Since(start),
	}, nil
}

func (p *ollamaProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, error) {
	if len(req.Images) > 0 {
		return nil, errors.UnsupportedFormat("ollama embedder does not accept images")
	}
	if len(req.Texts) == 0 {
		return nil, nil
	}
	model := req.Model
	if model == "" {
		model = p.embedModel
	}

	payload := map[string]any{
		"model": model,
		"input": req.Texts,
	}
	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/embed", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama embed error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Embeddings) != len(req.Texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs", len(result.Embeddings), len(req.Texts))
	}
	return result.Embeddings, nil
}

// =============================================================================
// OPENAI PROVIDER
// =============================================================================

type openaiProvider struct {
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	dimensions int
	client     *http.Client
}

func newOpenAIProvider(cfg ProviderConfig) *openaiProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	model := cfg.Model
	if model == "" {
		model = os.Getenv("OPENAI_MODEL")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	embedModel := cfg.EmbedModel
	if embedModel == "" {
		embedModel = "text-embedding-3-small"
	}

	dims := cfg.EmbedDimensions
	if dims == 0 {
		dims = 1536
	}

	return &openaiProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		embedModel: embedModel,
		dimensions: dims,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *openaiProvider) Name() string    { return "openai" }
func (p *openaiProvider) Dimensions() int { return p.dimensions }

func (p *openaiProvider) Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	// Vision-style content array when images ride along.
	var userContent any = req.Text
	if len(req.Images) > 0 {
		parts := []map[string]any{{"type": "text", "text": req.Text}}
		for _, img := range req.Images {
			parts = append(parts, map[string]any{
				"type": "image_url",
				"image_url": map[string]string{
					"url": "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
				},
			})
		}
		userContent = parts
	}

	payload := map[string]any{
		"model": model,
		"messages": []map[string]any{
			{"role": "system", "content": buildSummaryPrompt(req.Kind, req.MaxWords, "")},
			{"role": "user", "content": userContent},
		},
	}

	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai summarize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai summarize error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Model string `json:"model"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("openai summarize: empty choices")
	}

	return &SummarizeResponse{
		Text:         strings.TrimSpace(result.Choices[0].Message.Content),
		Model:        result.Model,
		PromptTokens: result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
		Duration:     time.Since(start),
	}, nil
}

func (p *openaiProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, error) {
	if len(req.Images) > 0 {
		return nil, errors.UnsupportedFormat("openai embedder does not accept images")
	}
	if len(req.Texts) == 0 {
		return nil, nil
	}
	model := req.Model
	if model == "" {
		model = p.embedModel
	}

	payload := map[string]any{
		"model": model,
		"input": req.Texts,
	}
	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/embeddings", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai embed error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Data) != len(req.Texts) {
		return nil, fmt.Errorf("openai embed: got %d embeddings for %d inputs", len(result.Data), len(req.Texts))
	}

	vectors := make([][]float32, len(req.Texts))
	for _, d := range result.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	return vectors, nil
}
