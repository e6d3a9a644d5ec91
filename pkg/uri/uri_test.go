// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package uri

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNormalises(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "viking://resources/docs/guide.md", "viking://resources/docs/guide.md"},
		{"trailing slash stripped", "viking://resources/docs/", "viking://resources/docs"},
		{"double slash collapsed", "viking://resources//docs", "viking://resources/docs"},
		{"dot segment removed", "viking://resources/./docs", "viking://resources/docs"},
		{"scope root slash", "viking://resources/", "viking://resources"},
		{"scheme root", "viking://", "viking://"},
		{"system scope", "viking://.system/queues/semantic", "viking://.system/queues/semantic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, URI(tt.want), got)
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"wrong scheme", "file:///tmp/x"},
		{"no scheme", "resources/docs"},
		{"dotdot", "viking://resources/../user"},
		{"nul byte", "viking://resources/a\x00b"},
		{"oversized segment", "viking://resources/" + strings.Repeat("x", MaxSegmentBytes+1)},
		{"invalid utf8", "viking://resources/\xff\xfe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			assert.Error(t, err)
		})
	}
}

func TestParseTotalLengthLimit(t *testing.T) {
	seg := strings.Repeat("a", 200)
	long := "viking://resources"
	for len(long) <= MaxURIBytes {
		long += "/" + seg
	}
	_, err := Parse(long)
	assert.Error(t, err)
}

func TestParentAndBase(t *testing.T) {
	u := MustParse("viking://resources/docs/guide.md")
	assert.Equal(t, MustParse("viking://resources/docs"), u.Parent())
	assert.Equal(t, "guide.md", u.Base())

	assert.Equal(t, Root, Resources.Parent())
	assert.Equal(t, Root, Root.Parent())
	assert.Equal(t, "", Root.Base())
}

func TestScope(t *testing.T) {
	assert.Equal(t, ScopeResources, MustParse("viking://resources/x").Scope())
	assert.Equal(t, ScopeUser, UserMemories.Scope())
	assert.Equal(t, ScopeTemp, MustParse("viking://temp/abc").Scope())
	assert.Equal(t, ScopeSystem, SemanticQueueRoot.Scope())
	assert.Equal(t, Scope(""), Root.Scope())
	assert.Equal(t, Scope(""), MustParse("viking://elsewhere").Scope())
}

func TestIsRoot(t *testing.T) {
	assert.True(t, Root.IsRoot())
	assert.True(t, Resources.IsRoot())
	assert.True(t, TempRoot.IsRoot())
	assert.False(t, UserMemories.IsRoot())
	assert.False(t, MustParse("viking://resources/doc").IsRoot())
}

func TestHasPrefixIsSegmentAware(t *testing.T) {
	base := MustParse("viking://resources/foo")
	assert.True(t, MustParse("viking://resources/foo/bar").HasPrefix(base))
	assert.True(t, base.HasPrefix(base))
	assert.False(t, MustParse("viking://resources/foobar").HasPrefix(base))
	assert.True(t, base.HasPrefix(Root))
}

func TestJoinValidates(t *testing.T) {
	u, err := Resources.Join("docs", "guide.md")
	require.NoError(t, err)
	assert.Equal(t, MustParse("viking://resources/docs/guide.md"), u)

	_, err = Resources.Join("a/b")
	// Slash inside an element re-parses as two segments rather than failing.
	require.NoError(t, err)

	_, err = Resources.Join("..")
	assert.Error(t, err)
}

func TestHidden(t *testing.T) {
	assert.True(t, MustParse("viking://resources/doc/.abstract.md").IsHidden())
	assert.True(t, IsHiddenName(OverviewName))
	assert.False(t, MustParse("viking://resources/doc/readme.md").IsHidden())
}

func TestNewTempIsUniqueAndValid(t *testing.T) {
	a := NewTemp()
	b := NewTemp()
	assert.NotEqual(t, a, b)
	assert.Equal(t, ScopeTemp, a.Scope())
	_, err := Parse(a.String())
	assert.NoError(t, err)
}

func TestBaseForScope(t *testing.T) {
	for in, want := range map[string]URI{
		"resources": Resources,
		"user":      UserMemories,
		"agent":     AgentSkills,
	} {
		got, err := BaseForScope(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := BaseForScope("temp")
	assert.Error(t, err)
}

// URI round-trip law: parsing a URI's string form yields the same URI.
func TestRoundTrip(t *testing.T) {
	for _, u := range []URI{Root, Resources, UserMemories, AgentSkills, SemanticQueueRoot} {
		got, err := Parse(u.String())
		require.NoError(t, err)
		assert.Equal(t, u, got)
	}
}
