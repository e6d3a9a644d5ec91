// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package ingest

import "unicode/utf8"

// TokenCounter estimates the token cost of a text fragment. Splitting
// decisions only need a stable approximation, not a model-exact count.
type TokenCounter func(s string) int

// DefaultTokenCounter approximates tokens as ceil(runes/4). The
// constant matches typical BPE density closely enough for section
// budgeting and keeps splits deterministic across providers.
func DefaultTokenCounter(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}
