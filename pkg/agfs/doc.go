// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package agfs provides the hierarchical object filesystem for OpenViking.
//
// Every node in a workspace is addressed by a viking:// URI and lives in a
// tree with literal directory semantics. Semantic artefacts, the short
// abstract and the full overview of a node, are stored as hidden sibling
// files so that plain filesystem operations and the retrieval layer read
// the same bytes.
//
// # Backends
//
// Three implementations of the FS interface are provided:
//
//   - Local: plain directories under a workspace root (default)
//   - S3: any S3-compatible object store, directories as marker objects
//   - Remote: a client for an AGFS server speaking the JSON envelope
//
// All backends share the same semantics: node-atomic writes, lexicographic
// listings, and the same error taxonomy for missing and conflicting nodes.
//
// # Quick Start
//
// Open a local workspace and walk it:
//
//	fs, err := agfs.NewLocal("/path/to/workspace/agfs")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	entries, err := fs.List(ctx, uri.Resources, agfs.ListOptions{})
//	for _, e := range entries {
//	    fmt.Println(e.URI, e.Abstract)
//	}
//
// # Semantic Artefacts
//
// Abstract and Overview read a node's generated summaries. A node whose
// pipeline has not finished yet answers NOT_PROCESSED rather than
// NOT_FOUND, so callers can distinguish "never existed" from "not yet
// summarised":
//
//	text, err := agfs.Abstract(ctx, fs, u)
//	if errors.HasCode(err, errors.CodeNotProcessed) {
//	    // ingestion still running, try viking wait
//	}
//
// # Listings
//
// Hidden entries (dot-prefixed names) are excluded by default and listings
// are always sorted by URI, byte-wise ascending. Directory entries carry
// their abstract inline when one exists, which lets the retriever expand a
// level of the tree with a single call.
package agfs
