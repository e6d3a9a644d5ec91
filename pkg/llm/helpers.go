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

package llm

import (
	"fmt"
	"os"
	"strings"
)

// DefaultSummarizer creates a summarizer from environment variables.
// Checks in order: OLLAMA_HOST, OPENAI_API_KEY.
// Falls back to mock if nothing is configured.
func DefaultSummarizer() (Summarizer, error) {
	if os.Getenv("OLLAMA_HOST") != "" || os.Getenv("OLLAMA_MODEL") != "" {
		return NewSummarizer(ProviderConfig{Type: "ollama"})
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return NewSummarizer(ProviderConfig{Type: "openai"})
	}
	return NewSummarizer(ProviderConfig{Type: "mock"})
}

// DefaultEmbedder creates an embedder with the same environment cascade as
// DefaultSummarizer.
func DefaultEmbedder() (Embedder, error) {
	if os.Getenv("OLLAMA_HOST") != "" || os.Getenv("OLLAMA_MODEL") != "" {
		return NewEmbedder(ProviderConfig{Type: "ollama"})
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return NewEmbedder(ProviderConfig{Type: "openai"})
	}
	return NewEmbedder(ProviderConfig{Type: "mock"})
}

// SummaryPrompts contains the instruction templates for the three summary
// kinds the pipeline produces.
var SummaryPrompts = struct {
	Abstract string
	Overview string
	Memory   string
}{
	Abstract: `You are summarising one node of a context tree for an AI agent.
Write a single dense paragraph capturing what this node contains and what it
is useful for. Plain prose, no headings, no lists, no preamble. Hard limit:
%d words.`,

	Overview: `You are describing one node of a context tree for an AI agent.
Write a structured markdown overview of the node's contents: what it covers,
how it is organised, and which parts answer which kinds of question. Use
short sections. Stay under %d words.`,

	Memory: `You are distilling an agent session transcript into durable memories.
Extract only facts worth keeping across sessions. Answer with a JSON array of
objects, each {"category": one of "preferences", "facts", "events", "cases",
"title": short slug-friendly title, "content": the memory in %d words or
fewer}. Answer with the JSON array only.`,
}

// buildSummaryPrompt expands the template for a kind. When text is empty the
// prompt stands alone as a system message; otherwise the input rides along
// after a separator.
func buildSummaryPrompt(kind string, maxWords int, text string) string {
	var template string
	switch kind {
	case "abstract":
		if maxWords == 0 {
			maxWords = 200
		}
		template = SummaryPrompts.Abstract
	case "memory":
		if maxWords == 0 {
			maxWords = 120
		}
		template = SummaryPrompts.Memory
	default:
		if maxWords == 0 {
			maxWords = 400
		}
		template = SummaryPrompts.Overview
	}
	prompt := fmt.Sprintf(template, maxWords)
	if text == "" {
		return prompt
	}
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\n---\n\n")
	sb.WriteString(text)
	return sb.String()
}
