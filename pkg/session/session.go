// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package session persists agent conversations as append-only JSONL logs
// under viking://.system/sessions/ and distils committed sessions into
// memory trees under viking://user/memories/.
//
// A session moves open → committing → committed; committed sessions are
// immutable and commit is idempotent. The log is the source of truth, a
// state.json sidecar carries the lifecycle and the cached commit result.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/uri"
)

// Session lifecycle states.
const (
	StatusOpen       = "open"
	StatusCommitting = "committing"
	StatusCommitted  = "committed"
)

const (
	logName    = "log.jsonl"
	stateName  = "state.json"
	markerName = "committing"
)

// Message is one conversation turn.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	TS      time.Time `json:"ts"`
}

func validRole(role string) bool {
	switch role {
	case "user", "assistant", "system":
		return true
	}
	return false
}

// State is the persisted lifecycle record of a session. TargetURI and
// Extracted are set once the session commits and cache the result for
// idempotent re-commits.
type State struct {
	SessionID   string    `json:"session_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	TargetURI   uri.URI   `json:"target_uri,omitempty"`
	Extracted   int       `json:"extracted,omitempty"`
	CommittedAt time.Time `json:"committed_at,omitzero"`
}

// Info is one row of a session listing.
type Info struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	Messages  int       `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store reads and writes session logs on AGFS. It does not run commits;
// see Committer.
type Store struct {
	fs     agfs.FS
	logger *slog.Logger
}

// NewStore wires a session store. A nil logger falls back to
// slog.Default().
func NewStore(fs agfs.FS, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{fs: fs, logger: logger}
}

func sessionDir(id string) uri.URI {
	return uri.SessionsRoot.MustJoin(id)
}

// Create allocates a new open session and returns its id.
func (s *Store) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	dir := sessionDir(id)
	if err := s.fs.Mkdir(ctx, dir); err != nil {
		return "", err
	}
	now := time.Now().UTC()
	st := &State{SessionID: id, Status: StatusOpen, CreatedAt: now, UpdatedAt: now}
	if err := s.writeState(ctx, st); err != nil {
		return "", err
	}
	s.logger.Info("session.create", "session_id", id)
	return id, nil
}

// Append adds one message to an open session's log. Committed and
// committing sessions refuse writes.
func (s *Store) Append(ctx context.Context, id, role, content string) error {
	if !validRole(role) {
		return errors.InvalidArgument("role %q is not one of user, assistant, system", role)
	}
	st, err := s.State(ctx, id)
	if err != nil {
		return err
	}
	if st.Status != StatusOpen {
		return errors.InvalidArgument("session %s is %s; messages can only be appended while open", id, st.Status)
	}

	line, err := json.Marshal(Message{Role: role, Content: content, TS: time.Now().UTC()})
	if err != nil {
		return err
	}
	line = append(line, '\n')
	if err := s.fs.Append(ctx, sessionDir(id).MustJoin(logName), line); err != nil {
		return err
	}

	st.UpdatedAt = time.Now().UTC()
	if err := s.writeState(ctx, st); err != nil {
		return err
	}
	s.logger.Debug("session.append", "session_id", id, "role", role, "bytes", len(content))
	return nil
}

// Messages returns the session log in append order. Undecodable lines --
// the usual suspect is a torn trailing write from a crash -- are dropped
// with a warning rather than failing the read.
func (s *Store) Messages(ctx context.Context, id string) ([]Message, error) {
	if _, err := s.State(ctx, id); err != nil {
		return nil, err
	}
	data, err := s.fs.Read(ctx, sessionDir(id).MustJoin(logName))
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Message
	for i, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var m Message
		if err := json.Unmarshal(line, &m); err != nil {
			s.logger.Warn("session.log.corrupt_line", "session_id", id, "line", i+1, "error", err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// State loads the lifecycle record for a session.
func (s *Store) State(ctx context.Context, id string) (*State, error) {
	data, err := s.fs.Read(ctx, sessionDir(id).MustJoin(stateName))
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NotFound("session %s does not exist", id)
		}
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, errors.InvariantViolation("session %s state is unreadable: %v", id, err)
	}
	return &st, nil
}

// Delete removes a session and its log regardless of state.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.State(ctx, id); err != nil {
		return err
	}
	if err := s.fs.Delete(ctx, sessionDir(id), agfs.DeleteOptions{Recursive: true}); err != nil {
		return err
	}
	s.logger.Info("session.delete", "session_id", id)
	return nil
}

// List enumerates all sessions, oldest first.
func (s *Store) List(ctx context.Context) ([]*Info, error) {
	entries, err := s.fs.List(ctx, uri.SessionsRoot, agfs.ListOptions{IncludeHidden: true})
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []*Info
	for _, e := range entries {
		if !e.IsDir {
			continue
		}
		id := e.URI.Base()
		st, err := s.State(ctx, id)
		if err != nil {
			s.logger.Warn("session.list.skip", "session_id", id, "error", err)
			continue
		}
		msgs, err := s.Messages(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, &Info{
			SessionID: id,
			Status:    st.Status,
			Messages:  len(msgs),
			CreatedAt: st.CreatedAt,
			UpdatedAt: st.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out, nil
}

func (s *Store) writeState(ctx context.Context, st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return s.fs.Write(ctx, sessionDir(st.SessionID).MustJoin(stateName), data, agfs.WriteOptions{})
}
