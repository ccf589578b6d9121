// Copyright 2022 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history keeps a durable log of pipeline runs in SQLite, one record
// per domain per run.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/stockparfait/errors"

	_ "modernc.org/sqlite"
)

// Record of a single domain run.
type Record struct {
	RunID       string
	Domain      string
	Destination string // schema.table
	StartedAt   time.Time
	Duration    time.Duration
	Status      string
	Kind        string // error kind, if failed
	Rows        int
	Error       string
}

// Header of the table representation of records.
var Header = []string{
	"Run", "Domain", "Destination", "Started", "Duration", "Status", "Rows", "Error"}

// CSV implements table.Row.
func (r Record) CSV() []string {
	e := r.Error
	if r.Kind != "" {
		e = r.Kind + ": " + e
	}
	return []string{
		r.RunID,
		r.Domain,
		r.Destination,
		r.StartedAt.UTC().Format(time.RFC3339),
		r.Duration.Round(time.Millisecond).String(),
		r.Status,
		fmt.Sprintf("%d", r.Rows),
		e,
	}
}

// Store of run records.
type Store struct {
	db *sql.DB
}

// Open the store at the path, creating it if necessary.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Annotate(err, "failed to open run history %s", path)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, errors.Annotate(err, "failed to initialize run history %s", path)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT NOT NULL,
			domain TEXT NOT NULL,
			destination TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			status TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT '',
			row_count INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, domain)
		)`,
		`CREATE INDEX IF NOT EXISTS runs_domain_started ON runs (domain, started_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return errors.Annotate(err, "migration failed")
		}
	}
	return nil
}

// Close the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add a record.
func (s *Store) Add(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, domain, destination, started_at, duration_ns, status, kind, row_count, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Domain, r.Destination, r.StartedAt.UnixNano(), int64(r.Duration),
		r.Status, r.Kind, r.Rows, r.Error)
	if err != nil {
		return errors.Annotate(err, "failed to record run %s of %s", r.RunID, r.Domain)
	}
	return nil
}

// Filter for listing records. Zero fields match everything.
type Filter struct {
	RunID  string
	Domain string
	Status string
	Limit  int // 0 = no limit
}

// List records matching the filter, most recent first.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	var conds []string
	var args []interface{}
	add := func(col, v string) {
		if v != "" {
			conds = append(conds, col+" = ?")
			args = append(args, v)
		}
	}
	add("run_id", f.RunID)
	add("domain", f.Domain)
	add("status", f.Status)
	q := `SELECT run_id, domain, destination, started_at, duration_ns, status, kind, row_count, error FROM runs`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY started_at DESC, domain"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Annotate(err, "failed to list runs")
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		var r Record
		var started, duration int64
		if err := rows.Scan(&r.RunID, &r.Domain, &r.Destination, &started, &duration,
			&r.Status, &r.Kind, &r.Rows, &r.Error); err != nil {
			return nil, errors.Annotate(err, "failed to scan run record")
		}
		r.StartedAt = time.Unix(0, started)
		r.Duration = time.Duration(duration)
		res = append(res, r)
	}
	return res, rows.Err()
}
