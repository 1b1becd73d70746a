// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite schema:
//
//	series_totals(key PRIMARY KEY, total, samples, updated_at)
//	applied_commits(commit_id PRIMARY KEY, key, total, samples, applied_at)
//
// Per entry, inside one transaction per batch:
//
//	INSERT OR IGNORE INTO applied_commits ...
//	-- only when a row was inserted:
//	INSERT INTO series_totals ... ON CONFLICT(key) DO UPDATE SET total = total + excluded.total, ...
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS series_totals (
  key        TEXT PRIMARY KEY,
  total      REAL NOT NULL DEFAULT 0,
  samples    INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS applied_commits (
  commit_id  TEXT PRIMARY KEY,
  key        TEXT NOT NULL,
  total      REAL NOT NULL,
  samples    INTEGER NOT NULL,
  applied_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_applied_commits_key ON applied_commits(key);
`

// OpenSQLite opens dsn with the sqlite3 driver. SQLite serialises writers, so
// the pool is limited to one connection; this also keeps a ":memory:"
// database shared across calls.
func OpenSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// SQLPersister applies commits to a SQLite database.
type SQLPersister struct {
	db             *sql.DB
	defaultTimeout time.Duration
}

func NewSQLPersister(db *sql.DB) *SQLPersister {
	return &SQLPersister{db: db, defaultTimeout: 10 * time.Second}
}

// EnsureSchema creates the tables when missing.
func (p *SQLPersister) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// CommitBatch applies entries in one transaction. Entries whose CommitID is
// already recorded for the same key are skipped.
func (p *SQLPersister) CommitBatch(ctx context.Context, entries []CommitEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := validate(entries); err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok && p.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.defaultTimeout)
		defer cancel()
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UnixNano()
	for _, e := range entries {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO applied_commits(commit_id, key, total, samples, applied_at) VALUES (?, ?, ?, ?, ?)`,
			e.CommitID, e.Key, e.Sum, e.Count, now)
		if err != nil {
			return fmt.Errorf("insert applied_commits(%s): %w", e.CommitID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			var owner string
			err := tx.QueryRowContext(ctx, `SELECT key FROM applied_commits WHERE commit_id = ?`, e.CommitID).Scan(&owner)
			if err != nil {
				return fmt.Errorf("lookup applied_commits(%s): %w", e.CommitID, err)
			}
			if owner != e.Key {
				return fmt.Errorf("%w: %s is recorded for %q, not %q", ErrCommitConflict, e.CommitID, owner, e.Key)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO series_totals(key, total, samples, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET
			   total = total + excluded.total,
			   samples = samples + excluded.samples,
			   updated_at = excluded.updated_at`,
			e.Key, e.Sum, e.Count, now); err != nil {
			return fmt.Errorf("upsert series_totals(%s): %w", e.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Total returns the stored sum and sample count for key. Unknown keys report
// found=false.
func (p *SQLPersister) Total(ctx context.Context, key string) (sum float64, count int64, found bool, err error) {
	err = p.db.QueryRowContext(ctx, `SELECT total, samples FROM series_totals WHERE key = ?`, key).Scan(&sum, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("select series_totals(%s): %w", key, err)
	}
	return sum, count, true, nil
}

func (p *SQLPersister) Close() error { return p.db.Close() }
