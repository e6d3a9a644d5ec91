// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package vector provides the similarity index that parallels the AGFS tree.
//
// Every indexed node contributes points keyed by a deterministic identity,
// the xxhash of its URI and source, so re-ingesting a resource replaces its
// vectors in place. Two implementations are provided: SQLite for embedded
// workspaces and Remote for a shared vector service. Both obey the same
// ranking contract, scores clamped to [0,1] and ordered score descending
// with URI ascending on ties, so the retriever never needs to know which
// one it is talking to.
package vector
