// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/openviking/internal/errors"
)

func TestParseSummaryMode(t *testing.T) {
	mode, err := ParseSummaryMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAST, mode)

	for _, s := range []string{"ast", "llm", "ast_llm"} {
		mode, err := ParseSummaryMode(s)
		require.NoError(t, err)
		assert.Equal(t, SummaryMode(s), mode)
	}

	_, err = ParseSummaryMode("fancy")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidArgument))
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, CountLines(nil))
	assert.Equal(t, 3, CountLines([]byte("a\nb\nc\n")))
	assert.Equal(t, 3, CountLines([]byte("a\nb\nc")))
	assert.Equal(t, 1, CountLines([]byte("x")))
}

func TestSkeletonEligibility(t *testing.T) {
	e := NewSkeletonExtractor(nil)

	short := []byte(strings.Repeat("// filler\n", MinSkeletonLines-1))
	long := []byte(strings.Repeat("// filler\n", MinSkeletonLines))

	assert.False(t, e.Eligible("main.go", short), "one line under the gate")
	assert.True(t, e.Eligible("main.go", long), "at the gate")
	assert.False(t, e.Eligible("main.xyz", long), "unsupported extension")
	assert.True(t, e.Supports("widget.tsx"))
	assert.False(t, e.Supports("notes.md"))
}

func TestSkeletonExtractGo(t *testing.T) {
	src := []byte(`// Package httpx provides request helpers.
package httpx

import (
	"fmt"
	"strings"
)

// Server handles requests.
type Server struct {
	Addr string
}

type Handler interface {
	Handle(req string) string
}

// NewServer builds a Server.
func NewServer(addr string) *Server {
	return &Server{Addr: addr}
}

func (s *Server) Route(path string) string {
	return fmt.Sprintf("%s%s", s.Addr, strings.TrimSpace(path))
}
`)

	e := NewSkeletonExtractor(nil)
	skeleton, err := e.Extract(context.Background(), "server.go", src)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(skeleton, "# server.go - Package httpx provides request helpers."), "header: %q", firstLine(skeleton))
	assert.Contains(t, skeleton, "package httpx")
	assert.Contains(t, skeleton, "type Server struct")
	assert.Contains(t, skeleton, "type Handler interface")
	assert.Contains(t, skeleton, "func NewServer(addr string) *Server  # NewServer builds a Server.")
	assert.Contains(t, skeleton, "func (s *Server) Route(path string) string")
	assert.NotContains(t, skeleton, "return", "bodies must not leak into the skeleton")
}

func TestSkeletonExtractPython(t *testing.T) {
	src := []byte(`"""HTTP helpers for the gateway."""

import json


class Greeter:
    """Greets users."""

    def greet(self, name):
        """Return a greeting."""
        return f"hi {name}"


def main():
    print(json.dumps({}))
`)

	e := NewSkeletonExtractor(nil)
	skeleton, err := e.Extract(context.Background(), "greeter.py", src)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(skeleton, "# greeter.py - HTTP helpers for the gateway."))
	assert.Contains(t, skeleton, "import json")
	assert.Contains(t, skeleton, "class Greeter:")
	assert.Contains(t, skeleton, "def greet(self, name):  # Return a greeting.")
	assert.Contains(t, skeleton, "def main():")
	assert.NotContains(t, skeleton, "json.dumps")

	// Methods sit indented under their class.
	for _, line := range strings.Split(skeleton, "\n") {
		if strings.Contains(line, "def greet") {
			assert.True(t, strings.HasPrefix(line, "    "), "method not indented: %q", line)
		}
	}
}

func TestSkeletonExtractTypeScript(t *testing.T) {
	src := []byte(`export class Widget {
  render(): void {
    console.log("render");
  }
}

export function makeWidget(): Widget {
  return new Widget();
}
`)

	e := NewSkeletonExtractor(nil)
	skeleton, err := e.Extract(context.Background(), "widget.ts", src)
	require.NoError(t, err)

	assert.Contains(t, skeleton, "class Widget")
	assert.Contains(t, skeleton, "render(): void")
	assert.Contains(t, skeleton, "function makeWidget(): Widget")
	assert.NotContains(t, skeleton, "console.log")
}

func TestSkeletonExtractFallbacks(t *testing.T) {
	e := NewSkeletonExtractor(nil)
	ctx := context.Background()

	_, err := e.Extract(ctx, "data.bin", []byte("x"))
	assert.True(t, errors.HasCode(err, errors.CodeUnsupportedFormat))

	// Nothing declarative: scripts of bare statements have no skeleton.
	_, err = e.Extract(ctx, "script.py", []byte("x = 1\nprint(x)\n"))
	assert.True(t, errors.HasCode(err, errors.CodeNotProcessed), "got %v", err)

	// Garbled source parses into ERROR nodes rather than failing; once
	// they cover enough lines the skeleton is refused.
	garbled := []byte("package broken\n\nfunc ((((( {\n" + strings.Repeat("}}}} ((((\n", 5))
	_, err = e.Extract(ctx, "broken.go", garbled)
	assert.True(t, errors.HasCode(err, errors.CodeNotProcessed), "got %v", err)
}
