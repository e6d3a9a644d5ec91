// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/ingest"
	"github.com/kraklabs/openviking/pkg/llm"
	"github.com/kraklabs/openviking/pkg/trace"
	"github.com/kraklabs/openviking/pkg/uri"
)

// memoryWordLimit caps each distilled memory's body.
const memoryWordLimit = 120

// CommitResult is what a commit (first or repeated) returns. TargetURI is
// empty when the distillation produced nothing.
type CommitResult struct {
	SessionID string  `json:"session_id"`
	TargetURI uri.URI `json:"target_uri"`
	Extracted int     `json:"extracted"`
}

// candidate is one distilled memory as the model proposes it. Text is an
// alias some models answer with instead of content.
type candidate struct {
	Category string `json:"category"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Text     string `json:"text"`
}

func (c candidate) body() string {
	if c.Content != "" {
		return c.Content
	}
	return c.Text
}

var memoryCategories = map[string]bool{
	"preferences": true,
	"facts":       true,
	"events":      true,
	"cases":       true,
}

// Committer turns committed sessions into memory trees: it distils the
// log through the summariser, writes one markdown file per memory into a
// scratch tree, and promotes that tree into viking://user/memories/.
//
// Commits are serialised per session with an in-process mutex; across
// processes the committing marker file written with CreateOnly plays the
// same role the queue claim markers do.
type Committer struct {
	fs         agfs.FS
	store      *Store
	summarizer llm.Summarizer
	builder    *ingest.Builder
	logger     *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCommitter wires a Committer. A nil logger falls back to
// slog.Default().
func NewCommitter(fs agfs.FS, store *Store, summarizer llm.Summarizer, builder *ingest.Builder, logger *slog.Logger) *Committer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Committer{
		fs:         fs,
		store:      store,
		summarizer: summarizer,
		builder:    builder,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (c *Committer) lock(id string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.locks[id]
	if m == nil {
		m = &sync.Mutex{}
		c.locks[id] = m
	}
	return m
}

// Commit distils a session into memories. Committing an already committed
// session returns the cached result unchanged; an interrupted earlier
// commit is picked up and re-run.
func (c *Committer) Commit(ctx context.Context, id string) (*CommitResult, error) {
	mu := c.lock(id)
	mu.Lock()
	defer mu.Unlock()

	tc := trace.FromContext(ctx)

	st, err := c.store.State(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Status == StatusCommitted {
		c.logger.Info("session.commit.cached", "session_id", id, "target", st.TargetURI)
		tc.Event("session", "commit_cached", map[string]any{"target_uri": string(st.TargetURI)})
		tc.Set("memory.memories_extracted", st.Extracted)
		return &CommitResult{SessionID: id, TargetURI: st.TargetURI, Extracted: st.Extracted}, nil
	}

	// The marker is the atomic open -> committing transition. A marker
	// that already exists is a crashed earlier attempt, which re-runs
	// here rather than being refused.
	marker := sessionDir(id).MustJoin(markerName)
	err = c.fs.Write(ctx, marker, []byte(time.Now().UTC().Format(time.RFC3339)), agfs.WriteOptions{CreateOnly: true})
	if err != nil && !errors.HasCode(err, errors.CodeAlreadyExists) {
		return nil, err
	}
	st.Status = StatusCommitting
	st.UpdatedAt = time.Now().UTC()
	if err := c.store.writeState(ctx, st); err != nil {
		return nil, err
	}
	c.logger.Info("session.commit.start", "session_id", id)
	tc.Event("session", "commit_started", nil)

	msgs, err := c.store.Messages(ctx, id)
	if err != nil {
		return nil, err
	}
	cands, err := c.distill(ctx, id, msgs)
	if err != nil {
		return nil, err
	}
	tc.Event("session", "distilled", map[string]any{"messages": len(msgs), "candidates": len(cands)})

	res := &CommitResult{SessionID: id}
	if len(cands) == 0 {
		c.logger.Info("session.commit.empty", "session_id", id)
	} else {
		scratch, written, err := c.writeScratch(ctx, id, cands)
		if err != nil {
			return nil, err
		}
		promoted, err := c.builder.Promote(ctx, scratch, "user")
		if err != nil {
			return nil, err
		}
		res.TargetURI = promoted.TargetURI
		res.Extracted = written
	}

	// Terminal writes survive caller cancellation, same as queue
	// completions: the work is done, losing the record would redo it.
	tctx := context.WithoutCancel(ctx)
	st.Status = StatusCommitted
	st.TargetURI = res.TargetURI
	st.Extracted = res.Extracted
	st.CommittedAt = time.Now().UTC()
	st.UpdatedAt = st.CommittedAt
	if err := c.store.writeState(tctx, st); err != nil {
		return nil, err
	}
	if err := c.fs.Delete(tctx, marker, agfs.DeleteOptions{}); err != nil && !errors.IsNotFound(err) {
		c.logger.Warn("session.commit.marker_delete_failed", "session_id", id, "error", err)
	}

	c.logger.Info("session.commit.done", "session_id", id, "target", res.TargetURI, "extracted", res.Extracted)
	tc.Set("memory.memories_extracted", res.Extracted)
	tc.Event("session", "committed", map[string]any{"target_uri": string(res.TargetURI), "extracted": res.Extracted})
	return res, nil
}

// Recover re-runs commits that were interrupted mid-flight: any session
// left in committing state picks up from the distillation step. Returns
// how many sessions were recovered.
func (c *Committer) Recover(ctx context.Context) (int, error) {
	infos, err := c.store.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, info := range infos {
		if info.Status != StatusCommitting {
			continue
		}
		c.logger.Info("session.recover", "session_id", info.SessionID)
		if _, err := c.Commit(ctx, info.SessionID); err != nil {
			c.logger.Error("session.recover.failed", "session_id", info.SessionID, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

// distill asks the summariser for memory candidates and keeps the valid
// ones. An empty transcript skips the model entirely; an answer that
// refuses the JSON protocol distils nothing rather than failing the
// commit.
func (c *Committer) distill(ctx context.Context, id string, msgs []Message) ([]candidate, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	resp, err := c.summarizer.Summarize(ctx, llm.SummarizeRequest{
		Kind:     "memory",
		Text:     buildTranscript(msgs),
		MaxWords: memoryWordLimit,
	})
	if err != nil {
		if errors.CodeOf(err) != "" {
			return nil, err
		}
		return nil, errors.DependencyError(err, "distil session %s", id)
	}
	trace.FromContext(ctx).AddTokenUsage(resp.PromptTokens, resp.OutputTokens)

	cands, err := parseCandidates(resp.Text)
	if err != nil {
		c.logger.Warn("session.distill.unparseable", "session_id", id, "error", err)
		return nil, nil
	}
	valid := cands[:0]
	for _, cand := range cands {
		if !memoryCategories[cand.Category] || strings.TrimSpace(cand.body()) == "" {
			c.logger.Warn("session.distill.skipped", "session_id", id, "category", cand.Category, "title", cand.Title)
			continue
		}
		valid = append(valid, cand)
	}
	return valid, nil
}

// writeScratch materialises candidates as
// <scratch>/session-<id>/<category>/<slug>.md and returns the scratch
// root plus how many files it wrote.
func (c *Committer) writeScratch(ctx context.Context, id string, cands []candidate) (uri.URI, int, error) {
	scratch := uri.NewTemp()
	doc := scratch.MustJoin("session-" + id)
	now := time.Now().UTC()
	used := make(map[string]int)
	written := 0
	for _, cand := range cands {
		dir := doc.MustJoin(cand.Category)
		if err := c.fs.Mkdir(ctx, dir); err != nil {
			return "", 0, err
		}
		body, err := renderMemory(id, now, cand)
		if err != nil {
			return "", 0, err
		}
		name := memoryFileName(cand, used)
		if err := c.fs.Write(ctx, dir.MustJoin(name), body, agfs.WriteOptions{}); err != nil {
			return "", 0, err
		}
		written++
	}
	return scratch, written, nil
}

// memoryFileName slugs the candidate title, falling back to the body's
// leading words, and disambiguates collisions inside one commit with a
// numeric suffix.
func memoryFileName(cand candidate, used map[string]int) string {
	slug := ingest.Slugify(cand.Title)
	if slug == "" {
		slug = ingest.SlugFromWords(cand.body(), 6)
	}
	if slug == "" {
		slug = "memory"
	}
	key := cand.Category + "/" + slug
	used[key]++
	if n := used[key]; n > 1 {
		return fmt.Sprintf("%s-%d.md", slug, n)
	}
	return slug + ".md"
}

type memoryFrontmatter struct {
	SessionID   string `yaml:"session_id"`
	ExtractedAt string `yaml:"extracted_at"`
	Category    string `yaml:"category"`
}

func renderMemory(id string, at time.Time, cand candidate) ([]byte, error) {
	head, err := yaml.Marshal(memoryFrontmatter{
		SessionID:   id,
		ExtractedAt: at.Format(time.RFC3339),
		Category:    cand.Category,
	})
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(head)
	b.WriteString("---\n\n")
	b.WriteString(strings.TrimSpace(cand.body()))
	b.WriteString("\n")
	return b.Bytes(), nil
}

func buildTranscript(msgs []Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// parseCandidates decodes the model's memory answer, tolerating a
// markdown code fence around the JSON array.
func parseCandidates(s string) ([]candidate, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	var out []candidate
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, errors.InvalidArgument("memory answer is not a JSON candidate array: %v", err)
	}
	return out, nil
}
