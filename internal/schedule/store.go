// Copyright 2023 The Cockroach Authors
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
//
// SPDX-License-Identifier: Apache-2.0

// Package schedule is the durable single-writer store for tables,
// run-state, and run history (spec.E, spec.N). It is the single
// source of truth every other component reads and writes through.
package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// ErrTableNotFoundInDB is the scheduler-visible sentinel for a missing
// row, named in spec.§7.
var ErrTableNotFoundInDB = errors.New("TableNotFoundInDB")

// Store wraps the embedded schedule database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the schedule store at path and
// brings its schema up to date, following the WAL-mode pragma
// convention of hazyhaar-GoClode's internal/core/db.go.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrap(err, "opening schedule store")
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "pinging schedule store")
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Row is one table's full persisted state.
type Row struct {
	Name        string
	Query       string
	Interval    *int
	Config      string // JSON-encoded config.TableConfig
	LastCreated *int64
	Mean        *float64
	TimesRun    int
	Force       bool
	Started     *int64
	Deleted     *int64
	Waiting     *int64
}

// UpsertRecord is one table as seen by the current reschedule pass.
type UpsertRecord struct {
	Name     string
	Query    string
	Interval *int
	Config   string // JSON-encoded config.TableConfig
}

// UpsertTables reconciles the store against the current view tree, per
// spec.E: new tables are inserted with force=true; existing tables are
// updated (and force=true set) only when query/interval/config
// differ; tables no longer present are stamped deleted and cleared of
// started/waiting/force. If commit is non-empty, it is appended to the
// commit log.
func (s *Store) UpsertTables(ctx context.Context, records []UpsertRecord, commit string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin upsert_tables")
	}
	defer tx.Rollback() //nolint:errcheck

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.Name] = struct{}{}

		var existingQuery, existingConfig string
		var existingInterval *int
		row := tx.QueryRowContext(ctx, `SELECT query, interval, config FROM tables WHERE table_name = ?`, r.Name)
		err := row.Scan(&existingQuery, &existingInterval, &existingConfig)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO tables (table_name, query, interval, config, times_run, force)
				VALUES (?, ?, ?, ?, 0, 1)`,
				r.Name, r.Query, r.Interval, r.Config); err != nil {
				return errors.Wrapf(err, "inserting table %s", r.Name)
			}
		case err != nil:
			return errors.Wrapf(err, "reading table %s", r.Name)
		default:
			changed := existingQuery != r.Query || existingConfig != r.Config || !intPtrEqual(existingInterval, r.Interval)
			if changed {
				if _, err := tx.ExecContext(ctx, `
					UPDATE tables SET query = ?, interval = ?, config = ?, force = 1, deleted = NULL
					WHERE table_name = ?`,
					r.Query, r.Interval, r.Config, r.Name); err != nil {
					return errors.Wrapf(err, "updating table %s", r.Name)
				}
			} else {
				if _, err := tx.ExecContext(ctx, `UPDATE tables SET deleted = NULL WHERE table_name = ?`, r.Name); err != nil {
					return errors.Wrapf(err, "clearing deleted flag for table %s", r.Name)
				}
			}
		}
	}

	rows, err := tx.QueryContext(ctx, `SELECT table_name FROM tables WHERE deleted IS NULL`)
	if err != nil {
		return errors.Wrap(err, "listing live tables")
	}
	var toDelete []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		if _, ok := seen[name]; !ok {
			toDelete = append(toDelete, name)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	now := time.Now().Unix()
	for _, name := range toDelete {
		if _, err := tx.ExecContext(ctx, `
			UPDATE tables SET deleted = ?, started = NULL, waiting = NULL, force = 0
			WHERE table_name = ?`, now, name); err != nil {
			return errors.Wrapf(err, "marking table %s deleted", name)
		}
	}

	if commit != "" {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO commits (hash, processed_ts) VALUES (?, ?)`, commit, now); err != nil {
			return errors.Wrap(err, "appending commit log")
		}
	}

	return tx.Commit()
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// TablesToCreate returns the names of stale tables, per spec.E:
// deleted IS NULL AND (force OR last_created IS NULL OR interval IS
// NULL OR the elapsed-minutes-over-interval test), force-flagged rows
// first.
func (s *Store) TablesToCreate(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name FROM tables
		WHERE deleted IS NULL AND (
			force = 1
			OR last_created IS NULL
			OR interval IS NULL
			OR (CAST(strftime('%s', 'now') AS INTEGER) - last_created) / 60 - interval > 0
		)
		ORDER BY force DESC, table_name ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "tables_to_create")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ExistingQueries returns the (query, interval, config) tuple for
// every live table, keyed by name, letting a caller diff an
// about-to-be-applied UpsertTables batch into "new" vs. "changed"
// before running it.
func (s *Store) ExistingQueries(ctx context.Context) (map[string]UpsertRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT table_name, query, interval, config FROM tables WHERE deleted IS NULL`)
	if err != nil {
		return nil, errors.Wrap(err, "listing existing tables")
	}
	defer rows.Close()

	out := make(map[string]UpsertRecord)
	for rows.Next() {
		var r UpsertRecord
		if err := rows.Scan(&r.Name, &r.Query, &r.Interval, &r.Config); err != nil {
			return nil, err
		}
		out[r.Name] = r
	}
	return out, rows.Err()
}

// LastProcessedCommit returns the most recently appended commit hash,
// or "" if none has been recorded yet.
func (s *Store) LastProcessedCommit(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM commits ORDER BY processed_ts DESC LIMIT 1`).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// LoadTableDetails returns the full row for name, or
// ErrTableNotFoundInDB.
func (s *Store) LoadTableDetails(ctx context.Context, name string) (*Row, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT table_name, query, interval, config, last_created, mean, times_run, force, started, deleted, waiting
		FROM tables WHERE table_name = ?`, name)

	var r Row
	var force int
	err := row.Scan(&r.Name, &r.Query, &r.Interval, &r.Config, &r.LastCreated, &r.Mean, &r.TimesRun, &force, &r.Started, &r.Deleted, &r.Waiting)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrTableNotFoundInDB, "%q", name)
	}
	if err != nil {
		return nil, err
	}
	r.Force = force != 0
	return &r, nil
}

// LogStart sets started to now, beginning a run.
func (s *Store) LogStart(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tables SET started = ? WHERE table_name = ?`, time.Now().Unix(), name)
	return err
}

// ResetStart clears started, e.g. after a failed or timed-out run.
func (s *Store) ResetStart(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tables SET started = NULL WHERE table_name = ?`, name)
	return err
}

// ResetAllStarts clears started/force/waiting on every row that was
// mid-run, run once at engine boot to recover from a prior crash
// (spec.J, spec.§8 invariant).
func (s *Store) ResetAllStarts(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tables SET started = NULL, force = 0, waiting = NULL
		WHERE started IS NOT NULL`)
	return err
}

// MarkWaiting sets or clears the waiting flag for name.
func (s *Store) MarkWaiting(ctx context.Context, name string, waiting bool) error {
	if waiting {
		_, err := s.db.ExecContext(ctx, `UPDATE tables SET waiting = ? WHERE table_name = ?`, time.Now().Unix(), name)
		return err
	}
	_, err := s.db.ExecContext(ctx, `UPDATE tables SET waiting = NULL WHERE table_name = ?`, name)
	return err
}

// IsRunning reports whether name has an in-flight run.
func (s *Store) IsRunning(ctx context.Context, name string) (bool, error) {
	var started *int64
	err := s.db.QueryRowContext(ctx, `SELECT started FROM tables WHERE table_name = ?`, name).Scan(&started)
	if err != nil {
		return false, err
	}
	return started != nil, nil
}

// IsWaiting reports whether name is flagged waiting, and whether that
// flag has exceeded threshold (and so should be treated as stale),
// per spec.I.
func (s *Store) IsWaiting(ctx context.Context, name string, threshold time.Duration) (waiting, waitingTooLong bool, err error) {
	var ts *int64
	err = s.db.QueryRowContext(ctx, `SELECT waiting FROM tables WHERE table_name = ?`, name).Scan(&ts)
	if err != nil {
		return false, false, err
	}
	if ts == nil {
		return false, false, nil
	}
	elapsed := time.Since(time.Unix(*ts, 0))
	return true, elapsed > threshold, nil
}

// GetTimeRunning returns how long name has been running, or nil if it
// is not currently running.
func (s *Store) GetTimeRunning(ctx context.Context, name string) (*time.Duration, error) {
	var started *int64
	if err := s.db.QueryRowContext(ctx, `SELECT started FROM tables WHERE table_name = ?`, name).Scan(&started); err != nil {
		return nil, err
	}
	if started == nil {
		return nil, nil
	}
	d := time.Since(time.Unix(*started, 0))
	return &d, nil
}

// GetTimeWaiting returns how long name has been waiting, or nil.
func (s *Store) GetTimeWaiting(ctx context.Context, name string) (*time.Duration, error) {
	var waiting *int64
	if err := s.db.QueryRowContext(ctx, `SELECT waiting FROM tables WHERE table_name = ?`, name).Scan(&waiting); err != nil {
		return nil, err
	}
	if waiting == nil {
		return nil, nil
	}
	d := time.Since(time.Unix(*waiting, 0))
	return &d, nil
}

// UpdateLastCreated transactionally records a successful rebuild:
// last_created, the recomputed running mean, an incremented
// times_run, and clears started/force/waiting, per spec.E.
func (s *Store) UpdateLastCreated(ctx context.Context, name string, ts time.Time, duration time.Duration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var mean *float64
	var timesRun int
	if err := tx.QueryRowContext(ctx, `SELECT mean, times_run FROM tables WHERE table_name = ?`, name).Scan(&mean, &timesRun); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(ErrTableNotFoundInDB, "%q", name)
		}
		return err
	}

	newDurationS := duration.Seconds()
	var newMean float64
	if mean == nil || timesRun == 0 {
		newMean = newDurationS
	} else {
		newMean = (*mean*float64(timesRun) + newDurationS) / float64(timesRun+1)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tables SET last_created = ?, mean = ?, times_run = ?, started = NULL, force = 0, waiting = NULL
		WHERE table_name = ?`, ts.Unix(), newMean, timesRun+1, name); err != nil {
		return err
	}
	return tx.Commit()
}

// GetAverageCompletionTime returns the running mean duration, in
// seconds, or nil if no successful run has completed yet.
func (s *Store) GetAverageCompletionTime(ctx context.Context, name string) (*float64, error) {
	var mean *float64
	err := s.db.QueryRowContext(ctx, `SELECT mean FROM tables WHERE table_name = ?`, name).Scan(&mean)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrTableNotFoundInDB, "%q", name)
	}
	return mean, err
}

// phaseColumn maps a spec.F phase name onto its (keyword-safe) column
// name; "select" and "insert" collide with SQL keywords.
func phaseColumn(phase string) string {
	switch phase {
	case "select":
		return "select_ts"
	case "insert":
		return "insert_ts"
	default:
		return phase
	}
}

// LogTimestamps appends one history row for name, creating the
// timestamps table lazily (it is always present after migrate, so
// this simply inserts).
func (s *Store) LogTimestamps(ctx context.Context, name string, phases map[string]int64) error {
	cols := []string{"table_name"}
	vals := []any{name}
	for phase, ts := range phases {
		cols = append(cols, phaseColumn(phase))
		vals = append(vals, ts)
	}

	query := "INSERT INTO timestamps (" + joinIdents(cols) + ") VALUES (" + placeholders(len(cols)) + ")"
	_, err := s.db.ExecContext(ctx, query, vals...)
	return err
}

func joinIdents(cols []string) string {
	out := cols[0]
	for _, c := range cols[1:] {
		out += ", " + c
	}
	return out
}

func placeholders(n int) string {
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}
