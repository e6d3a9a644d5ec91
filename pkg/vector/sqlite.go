// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kraklabs/openviking/internal/errors"
)

// SQLite is the embedded index. Vectors live as little-endian float32 blobs
// and similarity is computed in process, which keeps the store dependency
// free of CGO and good for workspaces up to a few hundred thousand points.
type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (or creates) the index at dbPath and runs migrations.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}

	// Single writer; the queue workers serialise their upserts here.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("vector index pragma: %w", err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate vector index: %w", err)
	}
	return &SQLite{db: db, path: dbPath}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS points (
			id         TEXT PRIMARY KEY,
			uri        TEXT NOT NULL,
			source     TEXT NOT NULL,
			modality   TEXT NOT NULL,
			level      INTEGER NOT NULL,
			vector     BLOB NOT NULL,
			payload    TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_points_uri ON points(uri);
	`
	_, err := db.Exec(schema)
	return err
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if len(r.Vector) == 0 {
			return errors.InvalidArgument("zero-length vector for %s", r.URI)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.DependencyError(err, "vector upsert")
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO points (id, uri, source, modality, level, vector, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			uri        = excluded.uri,
			source     = excluded.source,
			modality   = excluded.modality,
			level      = excluded.level,
			vector     = excluded.vector,
			payload    = excluded.payload,
			created_at = excluded.created_at
	`
	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		return errors.DependencyError(err, "vector upsert")
	}
	defer stmt.Close()

	for _, r := range records {
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			return errors.DependencyError(err, "marshal payload for %s", r.URI)
		}
		created := r.Payload.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		_, err = stmt.ExecContext(ctx,
			PointID(r.URI, r.Source),
			r.URI,
			r.Source,
			r.Modality,
			r.Payload.Level,
			vecToBlob(r.Vector),
			string(payload),
			created.Format(time.RFC3339),
		)
		if err != nil {
			return errors.DependencyError(err, "upsert point %s", r.URI)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.DependencyError(err, "vector upsert")
	}
	return nil
}

func (s *SQLite) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) == 0 {
		return nil, errors.InvalidArgument("zero-length query vector")
	}

	where, args := prefixClause(opts.Prefix)
	rows, err := s.db.QueryContext(ctx, "SELECT uri, source, vector, payload FROM points"+where, args...)
	if err != nil {
		return nil, errors.DependencyError(err, "vector search")
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			u, source, payloadJSON string
			blob                   []byte
		)
		if err := rows.Scan(&u, &source, &blob, &payloadJSON); err != nil {
			return nil, errors.DependencyError(err, "vector search")
		}
		var payload Payload
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			continue // corrupt payload, skip the point rather than fail the query
		}
		if !matchesFilters(payload, opts) {
			continue
		}
		matches = append(matches, Match{
			URI:     u,
			Source:  source,
			Score:   Cosine(query, blobToVec(blob)),
			Payload: payload,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DependencyError(err, "vector search")
	}
	return rank(matches, opts), nil
}

func (s *SQLite) Delete(ctx context.Context, prefix string) (int, error) {
	where, args := prefixClause(prefix)
	res, err := s.db.ExecContext(ctx, "DELETE FROM points"+where, args...)
	if err != nil {
		return 0, errors.DependencyError(err, "vector delete %s", prefix)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLite) Rekey(ctx context.Context, oldPrefix, newPrefix string) (int, error) {
	where, args := prefixClause(oldPrefix)
	rows, err := s.db.QueryContext(ctx, "SELECT id, uri, source FROM points"+where, args...)
	if err != nil {
		return 0, errors.DependencyError(err, "vector rekey")
	}
	type move struct{ oldID, newID, newURI string }
	var moves []move
	for rows.Next() {
		var id, u, source string
		if err := rows.Scan(&id, &u, &source); err != nil {
			rows.Close()
			return 0, errors.DependencyError(err, "vector rekey")
		}
		rest := strings.TrimPrefix(u, oldPrefix)
		newURI := newPrefix + rest
		moves = append(moves, move{oldID: id, newID: PointID(newURI, source), newURI: newURI})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, errors.DependencyError(err, "vector rekey")
	}
	rows.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.DependencyError(err, "vector rekey")
	}
	defer tx.Rollback()
	for _, m := range moves {
		if _, err := tx.ExecContext(ctx, "UPDATE points SET id = ?, uri = ? WHERE id = ?", m.newID, m.newURI, m.oldID); err != nil {
			return 0, errors.DependencyError(err, "vector rekey")
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.DependencyError(err, "vector rekey")
	}
	return len(moves), nil
}

func (s *SQLite) Count(ctx context.Context, prefix string) (int, error) {
	clause, args := prefixClause(prefix)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM points"+clause, args...).Scan(&n); err != nil {
		return 0, errors.DependencyError(err, "vector count")
	}
	return n, nil
}

func (s *SQLite) IncrementActive(ctx context.Context, uris []string) (int, error) {
	if len(uris) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.DependencyError(err, "vector increment")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	touched := 0
	for _, u := range uris {
		rows, err := tx.QueryContext(ctx, "SELECT id, payload FROM points WHERE uri = ?", u)
		if err != nil {
			return 0, errors.DependencyError(err, "vector increment %s", u)
		}
		type patch struct{ id, payload string }
		var patches []patch
		for rows.Next() {
			var id, payloadJSON string
			if err := rows.Scan(&id, &payloadJSON); err != nil {
				rows.Close()
				return 0, errors.DependencyError(err, "vector increment %s", u)
			}
			var payload Payload
			if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
				continue
			}
			payload.ActiveCount++
			payload.UpdatedAt = now
			updated, err := json.Marshal(payload)
			if err != nil {
				continue
			}
			patches = append(patches, patch{id: id, payload: string(updated)})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return 0, errors.DependencyError(err, "vector increment %s", u)
		}
		rows.Close()

		for _, p := range patches {
			if _, err := tx.ExecContext(ctx, "UPDATE points SET payload = ? WHERE id = ?", p.payload, p.id); err != nil {
				return 0, errors.DependencyError(err, "vector increment %s", u)
			}
			touched++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.DependencyError(err, "vector increment")
	}
	return touched, nil
}

// prefixClause builds the WHERE fragment for subtree filtering. The LIKE
// pattern escapes % and _ so URIs containing them stay literal.
func prefixClause(prefix string) (string, []any) {
	if prefix == "" {
		return "", nil
	}
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return ` WHERE (uri = ? OR uri LIKE ? ESCAPE '\')`, []any{prefix, escaped + "/%"}
}

var _ Store = (*SQLite)(nil)
