// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package queue implements the persistent work queues behind the semantic
// pipeline: one for directory summarisation, one for embedding upserts.
//
// Jobs are small JSON files under viking://.system/queues/, so queue state
// survives restarts and rides on whatever AGFS backend the workspace uses.
// Workers claim jobs with a create-only marker file, which doubles as a
// cross-process compare-and-set: whoever creates <id>.claim first owns the
// job until its lease expires.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/openviking/pkg/uri"
	"github.com/kraklabs/openviking/pkg/vector"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Content kinds a semantic job can carry. They decide the payload kind of
// every vector derived from the subtree.
const (
	KindResource = vector.KindResource
	KindMemory   = vector.KindMemory
	KindSkill    = vector.KindSkill
)

// Embedding modalities.
const (
	ModalityText       = "text"
	ModalityMultimodal = "multimodal"
)

// Embedding sources: which artefact of a node the vector encodes.
const (
	SourceAbstract = vector.SourceAbstract
	SourceOverview = vector.SourceOverview
	SourceRaw      = vector.SourceRaw
)

// Job is one unit of queued work. Semantic jobs fill URI, Kind and ParentURI;
// embedding jobs fill URI, Modality and Source. Attempts counts claims, not
// internal retries, so it only grows past one when a lease expired or the job
// was released back to pending.
type Job struct {
	ID             string    `json:"id"`
	URI            uri.URI   `json:"uri"`
	Kind           string    `json:"kind,omitempty"`
	Modality       string    `json:"modality,omitempty"`
	Source         string    `json:"source,omitempty"`
	Status         Status    `json:"status"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"last_error,omitempty"`
	ParentURI      uri.URI   `json:"parent_uri,omitempty"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	LeaseExpiresAt time.Time `json:"lease_expires_at,omitzero"`
}

// NewSemanticJob builds a pending summarisation job for one directory.
// parent is the zero URI for the root of a promoted tree.
func NewSemanticJob(dir uri.URI, kind string, parent uri.URI) *Job {
	return &Job{
		ID:        uuid.NewString(),
		URI:       dir,
		Kind:      kind,
		Status:    StatusPending,
		ParentURI: parent,
	}
}

// NewEmbeddingJob builds a pending embedding job for one artefact of a node.
func NewEmbeddingJob(target uri.URI, source, modality string) *Job {
	return &Job{
		ID:       uuid.NewString(),
		URI:      target,
		Source:   source,
		Modality: modality,
		Status:   StatusPending,
	}
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusDone || j.Status == StatusFailed
}

// Stats is a point-in-time census of one queue.
type Stats struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
}

// Total sums every job regardless of state.
func (s Stats) Total() int {
	return s.Pending + s.InProgress + s.Done + s.Failed
}

// Idle reports whether no work is outstanding.
func (s Stats) Idle() bool {
	return s.Pending == 0 && s.InProgress == 0
}

// levelForSource maps an embedding source onto its semantic layer: abstracts
// are L0, overviews L1, raw leaf content L2.
func levelForSource(source string) int {
	switch source {
	case SourceAbstract:
		return 0
	case SourceOverview:
		return 1
	default:
		return 2
	}
}
