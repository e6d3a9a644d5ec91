// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package uri implements the viking:// namespace: parsing, normalisation,
// and scope mapping for every address the engine stores or serves.
//
// A URI has the form viking://<scope>(/<segment>)*. URIs are case-sensitive
// and slash-separated. Two URIs are equal iff their normalised forms are
// byte-identical; Parse always returns the normalised form, so URI values
// obtained from this package compare with ==.
package uri

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Scheme is the namespace prefix of every OpenViking URI.
const Scheme = "viking://"

// Grammar limits. Segments are UTF-8, no '/' or NUL, at most 255 bytes;
// the whole URI is at most 2048 bytes.
const (
	MaxURIBytes     = 2048
	MaxSegmentBytes = 255
)

// Scope is the top-level partition of the namespace.
type Scope string

const (
	ScopeResources Scope = "resources"
	ScopeUser      Scope = "user"
	ScopeAgent     Scope = "agent"
	ScopeTemp      Scope = "temp"
	ScopeSystem    Scope = ".system"
)

// Well-known roots. UserMemories and AgentSkills are the content roots the
// TreeBuilder promotes into; SystemRoot is reserved for engine state and is
// never listed to callers unless asked for explicitly.
var (
	Root         = URI(Scheme)
	Resources    = URI(Scheme + "resources")
	UserRoot     = URI(Scheme + "user")
	UserMemories = URI(Scheme + "user/memories")
	AgentRoot    = URI(Scheme + "agent")
	AgentSkills  = URI(Scheme + "agent/skills")
	TempRoot     = URI(Scheme + "temp")
	SystemRoot   = URI(Scheme + ".system")
)

// System sub-roots used by the engine's persistent state.
var (
	SemanticQueueRoot  = URI(Scheme + ".system/queues/semantic")
	EmbeddingQueueRoot = URI(Scheme + ".system/queues/embedding")
	SessionsRoot       = URI(Scheme + ".system/sessions")
)

// URI is a normalised viking:// address. The zero value is invalid; obtain
// values through Parse, MustParse, Join, or the well-known roots above.
type URI string

// Parse validates and normalises s into a URI.
//
// Normalisation removes "." segments, collapses repeated slashes, and strips
// any trailing slash (the bare scheme root "viking://" stays as-is). Parse
// rejects inputs without the viking:// scheme, with ".." segments, with
// segments over 255 bytes, with NUL bytes or invalid UTF-8, and URIs over
// 2048 bytes after normalisation.
func Parse(s string) (URI, error) {
	if !strings.HasPrefix(s, Scheme) {
		return "", fmt.Errorf("uri %q: missing %s scheme", s, Scheme)
	}
	rest := s[len(Scheme):]
	if rest == "" {
		return Root, nil
	}
	if strings.IndexByte(rest, 0) >= 0 {
		return "", fmt.Errorf("uri %q: NUL byte in path", s)
	}
	if !utf8.ValidString(rest) {
		return "", fmt.Errorf("uri %q: invalid UTF-8", s)
	}

	parts := strings.Split(rest, "/")
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		switch p {
		case "", ".":
			continue
		case "..":
			return "", fmt.Errorf("uri %q: %q segment not allowed", s, "..")
		}
		if len(p) > MaxSegmentBytes {
			return "", fmt.Errorf("uri %q: segment exceeds %d bytes", s, MaxSegmentBytes)
		}
		segs = append(segs, p)
	}
	if len(segs) == 0 {
		return Root, nil
	}

	u := URI(Scheme + strings.Join(segs, "/"))
	if len(u) > MaxURIBytes {
		return "", fmt.Errorf("uri exceeds %d bytes", MaxURIBytes)
	}
	return u, nil
}

// MustParse is Parse for trusted inputs; it panics on error.
func MustParse(s string) URI {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

func (u URI) String() string { return string(u) }

// Path returns everything after the scheme, without a leading slash.
// The scheme root returns "".
func (u URI) Path() string {
	return strings.TrimPrefix(string(u), Scheme)
}

// Segments splits the path into its slash-separated parts.
func (u URI) Segments() []string {
	p := u.Path()
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Scope returns the top-level partition the URI belongs to, or "" for the
// scheme root and for URIs outside the reserved roots.
func (u URI) Scope() Scope {
	segs := u.Segments()
	if len(segs) == 0 {
		return ""
	}
	switch Scope(segs[0]) {
	case ScopeResources, ScopeUser, ScopeAgent, ScopeTemp, ScopeSystem:
		return Scope(segs[0])
	}
	return ""
}

// IsRoot reports whether u is the scheme root or one of the reserved
// scope roots.
func (u URI) IsRoot() bool {
	if u == Root {
		return true
	}
	segs := u.Segments()
	return len(segs) == 1 && u.Scope() != ""
}

// Parent strips the trailing segment. The parent of the scheme root and of
// a scope root is the scheme root.
func (u URI) Parent() URI {
	segs := u.Segments()
	if len(segs) <= 1 {
		return Root
	}
	return URI(Scheme + strings.Join(segs[:len(segs)-1], "/"))
}

// Base returns the final segment, or "" for the scheme root.
func (u URI) Base() string {
	segs := u.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// Join appends path elements, validating each like Parse does.
func (u URI) Join(elems ...string) (URI, error) {
	if len(elems) == 0 {
		return u, nil
	}
	joined := string(u)
	for _, e := range elems {
		joined += "/" + e
	}
	return Parse(joined)
}

// MustJoin is Join for trusted inputs; it panics on error.
func (u URI) MustJoin(elems ...string) URI {
	j, err := u.Join(elems...)
	if err != nil {
		panic(err)
	}
	return j
}

// HasPrefix reports whether u equals prefix or sits beneath it. The check is
// segment-aware: viking://resources/foobar is not under viking://resources/foo.
func (u URI) HasPrefix(prefix URI) bool {
	if prefix == Root {
		return true
	}
	if u == prefix {
		return true
	}
	return strings.HasPrefix(string(u), string(prefix)+"/")
}

// IsHidden reports whether the final segment starts with a dot. Hidden nodes
// are excluded from listings by default and never count as semantic children.
func (u URI) IsHidden() bool {
	return IsHiddenName(u.Base())
}

// IsHiddenName reports whether a bare name denotes a hidden node.
func IsHiddenName(name string) bool {
	return strings.HasPrefix(name, ".")
}

// ValidateSegment checks a single path segment against the grammar.
func ValidateSegment(name string) error {
	if name == "" {
		return fmt.Errorf("empty segment")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("segment %q not allowed", name)
	}
	if strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("segment %q contains reserved characters", name)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("segment %q is not valid UTF-8", name)
	}
	if len(name) > MaxSegmentBytes {
		return fmt.Errorf("segment exceeds %d bytes", MaxSegmentBytes)
	}
	return nil
}

// NewTemp allocates a fresh scratch root viking://temp/<uuid>. The tree under
// it is visible only to the ingest that created it until promotion.
func NewTemp() URI {
	return URI(Scheme + "temp/" + uuid.NewString())
}

// BaseForScope maps an ingest scope name to the root content enters under:
// "resources", "user" (memories), or "agent" (skills).
func BaseForScope(scope string) (URI, error) {
	switch scope {
	case "resources":
		return Resources, nil
	case "user":
		return UserMemories, nil
	case "agent":
		return AgentSkills, nil
	}
	return "", fmt.Errorf("unknown scope %q (want resources, user, or agent)", scope)
}

// WellKnown abstracts and overviews live as hidden siblings inside the
// directory they describe; MetaName records the reason given at add time.
const (
	AbstractName = ".abstract.md"
	OverviewName = ".overview.md"
	MetaName     = ".meta.json"
)
