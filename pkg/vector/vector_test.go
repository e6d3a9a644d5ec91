// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package vector

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite clamps to zero", []float32{1, 0}, []float32{-1, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"dimension mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineRange(t *testing.T) {
	a := []float32{0.3, -0.2, 0.9, 0.1}
	b := []float32{-0.5, 0.4, 0.2, 0.8}
	got := Cosine(a, b)
	if got < 0 || got > 1 {
		t.Errorf("Cosine = %v, want within [0,1]", got)
	}
}

func TestPointID(t *testing.T) {
	a := PointID("viking://resources/doc", "abstract")
	b := PointID("viking://resources/doc", "abstract")
	if a != b {
		t.Errorf("PointID not deterministic: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("PointID length = %d, want 16 hex chars", len(a))
	}
	if PointID("viking://resources/doc", "doc.md") == a {
		t.Error("different sources must give different identities")
	}
	if PointID("viking://resources/other", "abstract") == a {
		t.Error("different URIs must give different identities")
	}
}

func TestUnderPrefix(t *testing.T) {
	tests := []struct {
		u, prefix string
		want      bool
	}{
		{"viking://resources/a", "", true},
		{"viking://resources/a", "viking://resources/a", true},
		{"viking://resources/a/b", "viking://resources/a", true},
		{"viking://resources/ab", "viking://resources/a", false},
		{"viking://resources", "viking://resources/a", false},
	}
	for _, tt := range tests {
		if got := UnderPrefix(tt.u, tt.prefix); got != tt.want {
			t.Errorf("UnderPrefix(%q, %q) = %v, want %v", tt.u, tt.prefix, got, tt.want)
		}
	}
}

func TestBlobRoundTrip(t *testing.T) {
	v := []float32{0.1, -2.5, 3.75, 0}
	got := blobToVec(vecToBlob(v))
	if len(got) != len(v) {
		t.Fatalf("round trip length = %d, want %d", len(got), len(v))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("round trip [%d] = %v, want %v", i, got[i], v[i])
		}
	}
}

func TestRankLimitDefaults(t *testing.T) {
	var matches []Match
	for i := 0; i < 15; i++ {
		matches = append(matches, Match{URI: "viking://resources/x", Score: 0.5})
	}
	got := rank(matches, SearchOptions{})
	if len(got) != 10 {
		t.Errorf("default limit = %d, want 10", len(got))
	}
}
