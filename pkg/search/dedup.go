// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package search

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/kraklabs/openviking/pkg/uri"
)

// Memory categories produced by session distillation.
const (
	CategoryPreferences = "preferences"
	CategoryFacts       = "facts"
	CategoryEvents      = "events"
	CategoryCases       = "cases"
)

// memoryCategory extracts the category segment of a memory URI, the level
// directly under viking://user/memories. Everything else yields "".
func memoryCategory(u uri.URI) string {
	if !u.HasPrefix(uri.UserMemories) {
		return ""
	}
	segs := u.Segments()
	if len(segs) < 3 {
		return ""
	}
	return segs[2]
}

// dedupableCategory reports whether entries of this category collapse by
// normalised abstract. Events and cases are occurrence-shaped: the same
// wording twice is two facts, so they dedupe by URI alone.
func dedupableCategory(category string) bool {
	switch category {
	case "", CategoryEvents, CategoryCases:
		return false
	}
	return true
}

// normalizeAbstract canonicalises an abstract for duplicate detection:
// lower-cased, Unicode NFKC, whitespace runs collapsed to single spaces,
// trimmed. Two memories normalising identically assert the same fact.
func normalizeAbstract(s string) string {
	s = strings.ToLower(s)
	s = norm.NFKC.String(s)
	return strings.Join(strings.Fields(s), " ")
}
