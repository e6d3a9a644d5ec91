// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/openviking/internal/errors"
	"github.com/kraklabs/openviking/pkg/agfs"
	"github.com/kraklabs/openviking/pkg/uri"
)

const (
	jobExt   = ".json"
	claimExt = ".claim"

	// DefaultLease bounds how long a claimed job may sit in_progress before
	// the sweeper hands it back to pending. Crashed workers therefore stall a
	// directory for at most this long.
	DefaultLease = 10 * time.Minute
)

// StoreOptions tunes a Store.
type StoreOptions struct {
	// Lease overrides DefaultLease. Negative values make every claim expire
	// immediately, which the tests use to drive the sweeper.
	Lease time.Duration
}

// Store persists jobs as JSON files in one AGFS directory. It is safe for
// concurrent use from multiple goroutines and multiple processes sharing the
// backend: the only mutation race that matters, pending -> in_progress, is
// serialised through a create-only claim marker.
type Store struct {
	fs     agfs.FS
	root   uri.URI
	lease  time.Duration
	logger *slog.Logger
}

// NewStore builds a job store rooted at the given queue directory.
func NewStore(fs agfs.FS, root uri.URI, logger *slog.Logger, opts StoreOptions) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	lease := opts.Lease
	if lease == 0 {
		lease = DefaultLease
	}
	return &Store{fs: fs, root: root, lease: lease, logger: logger}
}

// Root returns the queue directory.
func (s *Store) Root() uri.URI { return s.root }

func (s *Store) jobFile(id string) uri.URI   { return s.root.MustJoin(id + jobExt) }
func (s *Store) claimFile(id string) uri.URI { return s.root.MustJoin(id + claimExt) }

// Enqueue persists a new job. Missing fields get defaults: a fresh ID, status
// pending, and the current time. Enqueueing an ID twice is ALREADY_EXISTS.
func (s *Store) Enqueue(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = StatusPending
	}
	now := time.Now().UTC()
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = now
	}
	job.UpdatedAt = now

	if err := s.fs.Mkdir(ctx, s.root); err != nil {
		return err
	}
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return errors.InvariantViolation("encode job %s: %v", job.ID, err)
	}
	return s.fs.Write(ctx, s.jobFile(job.ID), data, agfs.WriteOptions{CreateOnly: true})
}

// Get reads one job by ID.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	data, err := s.fs.Read(ctx, s.jobFile(id))
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, errors.InvariantViolation("job %s is corrupt: %v", id, err)
	}
	return &job, nil
}

// List returns every job ordered FIFO: oldest enqueued_at first, ID as the
// tie break. Unreadable or corrupt job files are logged and skipped so one
// bad write cannot wedge the whole queue.
func (s *Store) List(ctx context.Context) ([]*Job, error) {
	entries, err := s.fs.List(ctx, s.root, agfs.ListOptions{})
	if errors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var jobs []*Job
	for _, e := range entries {
		if e.IsDir || !strings.HasSuffix(e.URI.Base(), jobExt) {
			continue
		}
		data, err := s.fs.Read(ctx, e.URI)
		if errors.IsNotFound(err) {
			continue // pruned between list and read
		}
		if err != nil {
			return nil, err
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			s.logger.Warn("queue.store.corrupt_job", "uri", e.URI.String(), "err", err)
			continue
		}
		jobs = append(jobs, &job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].EnqueuedAt.Equal(jobs[j].EnqueuedAt) {
			return jobs[i].EnqueuedAt.Before(jobs[j].EnqueuedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs, nil
}

// Claim attempts the pending -> in_progress transition. It returns false
// without error when another worker holds the job or it already moved on.
// On success the job is updated in place with the new status, incremented
// attempt count, and lease deadline.
func (s *Store) Claim(ctx context.Context, job *Job) (bool, error) {
	marker, _ := json.Marshal(struct {
		JobID     string    `json:"job_id"`
		ClaimedAt time.Time `json:"claimed_at"`
	}{job.ID, time.Now().UTC()})

	err := s.fs.Write(ctx, s.claimFile(job.ID), marker, agfs.WriteOptions{CreateOnly: true})
	if errors.HasCode(err, errors.CodeAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	// Marker won; re-read the job in case it changed since the caller listed.
	fresh, err := s.Get(ctx, job.ID)
	if errors.IsNotFound(err) {
		s.dropClaim(ctx, job.ID)
		return false, nil
	}
	if err != nil {
		s.dropClaim(ctx, job.ID)
		return false, err
	}
	if fresh.Status != StatusPending {
		s.dropClaim(ctx, job.ID)
		return false, nil
	}

	fresh.Status = StatusInProgress
	fresh.Attempts++
	fresh.LeaseExpiresAt = time.Now().UTC().Add(s.lease)
	if err := s.put(ctx, fresh); err != nil {
		s.dropClaim(ctx, job.ID)
		return false, err
	}
	*job = *fresh
	return true, nil
}

// Complete marks a claimed job done and drops its claim marker.
func (s *Store) Complete(ctx context.Context, job *Job) error {
	job.Status = StatusDone
	job.LastError = ""
	job.LeaseExpiresAt = time.Time{}
	if err := s.put(ctx, job); err != nil {
		return err
	}
	s.dropClaim(ctx, job.ID)
	return nil
}

// Fail marks a claimed job failed, recording the cause for operators.
func (s *Store) Fail(ctx context.Context, job *Job, cause error) error {
	job.Status = StatusFailed
	if cause != nil {
		job.LastError = cause.Error()
	}
	job.LeaseExpiresAt = time.Time{}
	if err := s.put(ctx, job); err != nil {
		return err
	}
	s.dropClaim(ctx, job.ID)
	return nil
}

// Release hands a claimed job back to pending, keeping its attempt count.
// Workers call it on cancellation and when a dependency is not ready yet;
// cause, when non-nil, is recorded so operators can see why the job bounced.
func (s *Store) Release(ctx context.Context, job *Job, cause error) error {
	job.Status = StatusPending
	if cause != nil {
		job.LastError = cause.Error()
	}
	job.LeaseExpiresAt = time.Time{}
	if err := s.put(ctx, job); err != nil {
		return err
	}
	s.dropClaim(ctx, job.ID)
	return nil
}

// Requeue is the manual failed -> pending transition.
func (s *Store) Requeue(ctx context.Context, id string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != StatusFailed {
		return errors.InvalidArgument("job %s is %s, only failed jobs can be requeued", id, job.Status)
	}
	job.Status = StatusPending
	job.LeaseExpiresAt = time.Time{}
	return s.put(ctx, job)
}

// put rewrites a job file, refreshing updated_at.
func (s *Store) put(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return errors.InvariantViolation("encode job %s: %v", job.ID, err)
	}
	return s.fs.Write(ctx, s.jobFile(job.ID), data, agfs.WriteOptions{})
}

// dropClaim removes a claim marker. Best effort: a leftover marker is
// reclaimed by the sweeper once it goes stale.
func (s *Store) dropClaim(ctx context.Context, id string) {
	err := s.fs.Delete(ctx, s.claimFile(id), agfs.DeleteOptions{})
	if err != nil && !errors.IsNotFound(err) {
		s.logger.Warn("queue.store.drop_claim_failed", "job", id, "err", err)
	}
}

// Sweep recovers from crashed workers: in_progress jobs whose lease expired
// go back to pending, and claim markers with no live owner are deleted once
// older than the lease. Returns the number of jobs reverted.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	entries, err := s.fs.List(ctx, s.root, agfs.ListOptions{})
	if errors.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	inProgress := make(map[string]bool)
	reverted := 0

	for _, e := range entries {
		name := e.URI.Base()
		if e.IsDir || !strings.HasSuffix(name, jobExt) {
			continue
		}
		data, err := s.fs.Read(ctx, e.URI)
		if err != nil {
			continue
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			continue
		}
		if job.Status != StatusInProgress {
			continue
		}
		if !job.LeaseExpiresAt.IsZero() && job.LeaseExpiresAt.Before(now) {
			job.Status = StatusPending
			job.LeaseExpiresAt = time.Time{}
			if err := s.put(ctx, &job); err != nil {
				return reverted, err
			}
			s.dropClaim(ctx, job.ID)
			reverted++
			recordLeaseRevert()
			s.logger.Warn("queue.sweep.lease_expired",
				"job", job.ID,
				"uri", job.URI.String(),
				"attempts", job.Attempts,
			)
			continue
		}
		inProgress[job.ID] = true
	}

	// Orphan markers: a worker that crashed between creating the marker and
	// writing the job leaves the job pending but unclaimable.
	for _, e := range entries {
		name := e.URI.Base()
		if e.IsDir || !strings.HasSuffix(name, claimExt) {
			continue
		}
		id := strings.TrimSuffix(name, claimExt)
		if inProgress[id] {
			continue
		}
		if now.Sub(e.MTime) <= s.lease {
			continue
		}
		s.dropClaim(ctx, id)
		s.logger.Warn("queue.sweep.stale_claim", "job", id)
	}

	return reverted, nil
}

// Stats counts jobs per status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	jobs, err := s.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	for _, job := range jobs {
		switch job.Status {
		case StatusPending:
			st.Pending++
		case StatusInProgress:
			st.InProgress++
		case StatusDone:
			st.Done++
		case StatusFailed:
			st.Failed++
		}
	}
	return st, nil
}

// Prune deletes done jobs whose last update is older than the given age,
// keeping the queue directory from growing without bound. Failed jobs are
// kept: they carry the error trail until an operator requeues or removes
// them. Returns the number of jobs deleted.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	jobs, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	removed := 0
	for _, job := range jobs {
		if job.Status != StatusDone || job.UpdatedAt.After(cutoff) {
			continue
		}
		err := s.fs.Delete(ctx, s.jobFile(job.ID), agfs.DeleteOptions{})
		if err != nil && !errors.IsNotFound(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
