// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Record is one point in the index. A node contributes up to two points per
// layer, one for its abstract and one per raw file, distinguished by Source.
type Record struct {
	URI      string    `json:"uri"`
	Source   string    `json:"source"`
	Modality string    `json:"modality"`
	Vector   []float32 `json:"vector"`
	Payload  Payload   `json:"payload"`
}

// Payload is the metadata carried alongside each vector. ActiveCount and
// UpdatedAt feed the hotness score for memories: the count grows on each
// retrieval hit, the timestamp resets the decay clock.
type Payload struct {
	Source      string    `json:"source"`
	Kind        string    `json:"kind"`
	Level       int       `json:"level"`
	Abstract    string    `json:"abstract,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ActiveCount int       `json:"active_count,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Payload source values: which artefact of a node the vector encodes.
// Abstract and overview points describe a directory, raw points one leaf.
const (
	SourceAbstract = "abstract"
	SourceOverview = "overview"
	SourceRaw      = "raw"
)

// Payload kind values, one per content root the tree entered under.
const (
	KindResource = "resource"
	KindMemory   = "memory"
	KindSkill    = "skill"
)

// Match is one search hit, already clamped and ranked.
type Match struct {
	URI     string  `json:"uri"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

// SearchOptions narrows a similarity query.
type SearchOptions struct {
	// Prefix restricts hits to the subtree rooted at this URI. Empty means
	// the whole index.
	Prefix string `json:"prefix,omitempty"`

	// Limit bounds the number of hits; zero means 10.
	Limit int `json:"limit,omitempty"`

	// ScoreThreshold drops hits scoring below it. Zero keeps everything,
	// which is how the retriever builds its shortlist before filtering.
	ScoreThreshold float64 `json:"score_threshold,omitempty"`

	// Sources keeps only hits whose payload source is in the set.
	Sources []string `json:"sources,omitempty"`

	// Levels keeps only hits whose payload level is in the set.
	Levels []int `json:"levels,omitempty"`
}

// Store is the vector index contract. Implementations must give identical
// ranking semantics: scores clamped to [0,1], ordered by score descending
// with URI ascending as the tie break.
type Store interface {
	// Upsert writes records, replacing points that share the same identity.
	Upsert(ctx context.Context, records []Record) error

	// Search returns the nearest points to query under opts.
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error)

	// Delete removes every point whose URI equals prefix or lives under it,
	// returning the number removed.
	Delete(ctx context.Context, prefix string) (int, error)

	// Rekey rewrites URIs under oldPrefix to the corresponding URIs under
	// newPrefix, recomputing point identities. Returns the number moved.
	Rekey(ctx context.Context, oldPrefix, newPrefix string) (int, error)

	// Count reports the number of points whose URI is at or under prefix.
	// An empty prefix counts the whole index.
	Count(ctx context.Context, prefix string) (int, error)

	// IncrementActive bumps the access counter and refreshes the update
	// timestamp on every point stored for the given URIs, returning the
	// number of points touched. URIs with no points are skipped.
	IncrementActive(ctx context.Context, uris []string) (int, error)

	Close() error
}

// PointID derives the deterministic identity of a point, so re-ingesting a
// node replaces its vectors instead of accumulating duplicates.
func PointID(uri, source string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(uri+"\x00"+source))
}

// UnderPrefix reports whether u equals prefix or is inside its subtree.
// Segment-aware, so "viking://resources/foo" does not cover "foobar".
func UnderPrefix(u, prefix string) bool {
	if prefix == "" {
		return true
	}
	return u == prefix || strings.HasPrefix(u, prefix+"/")
}

// Cosine computes cosine similarity clamped to [0,1]. Vectors of unequal
// dimension and zero vectors score 0 rather than erroring, so one malformed
// point cannot fail a whole query.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	score := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// rank applies the shared ordering contract: threshold filter, score
// descending, URI ascending on ties, then the limit.
func rank(matches []Match, opts SearchOptions) []Match {
	filtered := matches[:0]
	for _, m := range matches {
		if m.Score >= opts.ScoreThreshold {
			filtered = append(filtered, m)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Score != filtered[j].Score {
			return filtered[i].Score > filtered[j].Score
		}
		return filtered[i].URI < filtered[j].URI
	})
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

func matchesFilters(p Payload, opts SearchOptions) bool {
	if len(opts.Sources) > 0 {
		found := false
		for _, s := range opts.Sources {
			if p.Source == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(opts.Levels) > 0 {
		found := false
		for _, l := range opts.Levels {
			if p.Level == l {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// vecToBlob encodes a vector as little-endian float32 bytes for storage.
func vecToBlob(v []float32) []byte {
	blob := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(blob[4*i:], math.Float32bits(f))
	}
	return blob
}

func blobToVec(blob []byte) []float32 {
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return v
}
