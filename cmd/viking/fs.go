// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/internal/output"
	"github.com/kraklabs/openviking/internal/ui"
	"github.com/kraklabs/openviking/pkg/agfs"
)

// Filesystem surface commands: ls, tree, stat, cat, write, rm, mv,
// abstract, overview. Each is a thin shell around one Engine method;
// parsing and validation happen inside the engine.

// runLs executes the 'ls' command, listing the children of a directory.
//
// Flags:
//   - -a, --all: include hidden entries (.meta.json, .abstract.md, ...)
//   - --limit: truncate after this many entries
//
// Examples:
//
//	viking ls viking://resources
//	viking ls -a viking://resources/handbook
func runLs(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	all := fs.BoolP("all", "a", false, "Include hidden entries")
	limit := fs.Int("limit", 0, "Truncate after this many entries (0 = unlimited)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: viking ls [options] <uri>

Lists the children of a directory, sorted by URI. Hidden entries
(dot-prefixed artefacts like .abstract.md) are excluded unless -a.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	target := requireURIArg(fs, "ls")

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	entries, err := eng.Ls(ctx, target, agfs.ListOptions{
		IncludeHidden: *all,
		NodeLimit:     *limit,
	})
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(entries, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		name := e.URI.Base()
		if e.IsDir {
			name += "/"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", name, formatSize(e.Size, e.IsDir), e.MTime.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
	fmt.Printf("\n(%s)\n", ui.CountText(len(entries)))
}

// runTree executes the 'tree' command, printing a nested listing.
//
// Flags:
//   - --depth: bound recursion (0 = unlimited)
//   - --limit: bound total node count (0 = unlimited)
//   - -a, --all: include hidden entries
func runTree(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("tree", flag.ExitOnError)
	depth := fs.Int("depth", 0, "Recursion depth (0 = unlimited)")
	limit := fs.Int("limit", 0, "Total node bound (0 = unlimited)")
	all := fs.BoolP("all", "a", false, "Include hidden entries")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: viking tree [options] <uri>

Prints a nested listing of the subtree rooted at the URI.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	target := requireURIArg(fs, "tree")

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	root, err := eng.Tree(ctx, target, agfs.TreeOptions{
		Depth:         *depth,
		NodeLimit:     *limit,
		IncludeHidden: *all,
	})
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(root, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	fmt.Println(ui.URIText(root.URI))
	printTree(root, "")
}

// printTree renders children with box-drawing connectors.
func printTree(node *agfs.TreeNode, prefix string) {
	for i, child := range node.Children {
		connector, childPrefix := "├── ", prefix+"│   "
		if i == len(node.Children)-1 {
			connector, childPrefix = "└── ", prefix+"    "
		}
		name := child.URI.Base()
		if child.IsDir {
			name += "/"
		}
		fmt.Println(prefix + connector + name)
		printTree(child, childPrefix)
	}
}

// runStat executes the 'stat' command. A missing node is not an error;
// it reports exists: false so scripts can probe cheaply.
func runStat(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("stat", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: viking stat <uri>

Shows node metadata. A missing node reports exists: false instead of
failing, so scripts can probe cheaply.
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	target := requireURIArg(fs, "stat")

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	st, err := eng.Stat(ctx, target)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(st, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	fmt.Printf("URI:      %s\n", target)
	fmt.Printf("Exists:   %t\n", st.Exists)
	if st.Exists {
		fmt.Printf("Dir:      %t\n", st.IsDir)
		fmt.Printf("Size:     %d\n", st.Size)
		fmt.Printf("Modified: %s\n", st.MTime.Format(time.RFC3339))
	}
}

// runCat executes the 'cat' command, printing file content to stdout.
//
// Flags:
//   - --offset: start byte (default 0)
//   - --limit: maximum bytes (0 = to the end)
func runCat(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("cat", flag.ExitOnError)
	offset := fs.Int64("offset", 0, "Start byte")
	limit := fs.Int64("limit", 0, "Maximum bytes (0 = to the end)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: viking cat [options] <uri>

Prints file content to stdout. Raw bytes, no envelope, so output can
be piped; use --json for the envelope form.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	target := requireURIArg(fs, "cat")

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	data, err := eng.Read(ctx, target, *offset, *limit)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(string(data), time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	_, _ = os.Stdout.Write(data)
}

// runWrite executes the 'write' command, storing stdin or an inline
// argument at the target URI. Parent directories are created.
//
// Examples:
//
//	echo "remember this" | viking write viking://user/memories/notes/today.md
//	viking write viking://user/memories/notes/today.md --content "remember this"
func runWrite(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	content := fs.String("content", "", "Inline content (default: read stdin)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: viking write [options] <uri>

Writes file content from stdin (or --content) to the target URI,
creating missing parent directories.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	target := requireURIArg(fs, "write")

	data := []byte(*content)
	if *content == "" {
		var err error
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			errors.FatalError(errors.InvalidArgument("read stdin: %v", err), globals.JSON)
		}
	}

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	if err := eng.Write(ctx, target, data); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(map[string]any{"uri": target, "bytes": len(data)}, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}
	ui.Successf("Wrote %d bytes to %s", len(data), target)
}

// runRm executes the 'rm' command: the resource-level remove that also
// drops the subtree's vector index entries.
//
// Flags:
//   - -r, --recursive: recurse into directories
func runRm(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	recursive := fs.BoolP("recursive", "r", false, "Recurse into directories")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: viking rm [options] <uri>

Removes a resource and its vector index entries. Scope roots
(viking://resources itself, ...) are refused; use reset to clear a
workspace.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	target := requireURIArg(fs, "rm")

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	res, err := eng.Remove(ctx, target, *recursive)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(res, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}
	ui.Successf("Removed %s (%d vectors dropped)", res.URI, res.VectorsDeleted)
}

// runMv executes the 'mv' command, moving a subtree and re-keying its
// vectors. Content is not re-embedded.
func runMv(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("mv", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: viking mv <src-uri> <dst-uri>

Moves a subtree to a new URI. Vector index entries are re-keyed to the
new prefix; nothing is re-embedded.

Examples:
  viking mv viking://resources/draft viking://resources/handbook
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "Error: mv requires a source and a destination URI\n")
		fs.Usage()
		os.Exit(1)
	}
	src, dst := fs.Arg(0), fs.Arg(1)

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	res, err := eng.MoveResource(ctx, src, dst)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(res, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}
	ui.Successf("Moved %s -> %s (%d vectors re-keyed)", res.Source, res.Target, res.VectorsMoved)
}

// runAbstract executes the 'abstract' command, printing a directory's
// L1 summary.
func runAbstract(args []string, globals GlobalFlags) {
	runArtefact(args, globals, "abstract", `Usage: viking abstract <uri>

Prints the directory's L1 summary: a dense abstract of everything
beneath it, written by the semantic worker. Unprocessed directories
yield NOT_PROCESSED; run 'viking wait' first.
`)
}

// runOverview executes the 'overview' command, printing a directory's
// L0 navigation map.
func runOverview(args []string, globals GlobalFlags) {
	runArtefact(args, globals, "overview", `Usage: viking overview <uri>

Prints the directory's L0 navigation map: one line per child with its
abstract, the cheapest way for an agent to orient itself.
`)
}

// runArtefact is the shared body of abstract and overview.
func runArtefact(args []string, globals GlobalFlags, kind, usage string) {
	fs := flag.NewFlagSet(kind, flag.ExitOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	target := requireURIArg(fs, kind)

	ctx := context.Background()
	eng := openEngine(ctx, globals)
	defer closeEngine(eng)

	started := time.Now()
	var text string
	var err error
	if kind == "abstract" {
		text, err = eng.Abstract(ctx, target)
	} else {
		text, err = eng.Overview(ctx, target)
	}
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.Envelope(output.OK(text, time.Since(started))); err != nil {
			errors.FatalError(err, true)
		}
		return
	}
	fmt.Println(text)
}

// requireURIArg extracts the single positional URI argument or exits
// with usage.
func requireURIArg(fs *flag.FlagSet, command string) string {
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: %s requires exactly one URI argument\n", command)
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

// formatSize renders a byte count for listings; directories show "-".
func formatSize(size int64, isDir bool) string {
	if isDir {
		return "-"
	}
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.1fM", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1fK", float64(size)/(1<<10))
	}
	return fmt.Sprintf("%dB", size)
}
