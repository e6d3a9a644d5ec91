// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm provides the model providers behind the context pipeline.
//
// Two capabilities are abstracted: Summarizer writes the abstracts and
// overviews of the semantic tree (and distils sessions into memories), and
// Embedder turns text and images into vectors for the similarity index.
//
// # Supported Providers
//
// The following providers are supported:
//   - Ollama: local models, no API key required (default)
//   - OpenAI: hosted and OpenAI-compatible APIs, including vision models
//   - Mock: deterministic output for testing without API calls
//
// # Quick Start
//
// Create providers explicitly:
//
//	summarizer, err := llm.NewSummarizer(llm.ProviderConfig{
//	    Type:   "openai",
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := summarizer.Summarize(ctx, llm.SummarizeRequest{
//	    Kind:     "abstract",
//	    Text:     overviewText,
//	    MaxWords: 200,
//	})
//
// Or use the environment cascade, which checks OLLAMA_HOST then
// OPENAI_API_KEY and falls back to the mock:
//
//	summarizer, err := llm.DefaultSummarizer()
//	embedder, err := llm.DefaultEmbedder()
//
// # Retries
//
// Providers make exactly one attempt per call. Classified retries with
// jittered backoff are the queue workers' responsibility, so interactive
// callers are never stuck behind a retry loop they did not ask for.
package llm
