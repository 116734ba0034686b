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

package schedule

import (
	"context"

	"github.com/pkg/errors"
)

// schemaVersionMajor and schemaVersionMinor are the schema version this build of duro expects.
// migrations must be extended, never edited, when the schema changes.
const (
	schemaVersionMajor = 1
	schemaVersionMinor = 0
)

// migration is one forward DDL step. Migrations run in order starting
// just after the store's current (major, minor) until it reaches
// schemaVersionMajor/Minor.
type migration struct {
	major, minor int
	stmt         string
}

var migrations = []migration{
	{1, 0, `CREATE TABLE IF NOT EXISTS tables (
		table_name   TEXT PRIMARY KEY,
		query        TEXT NOT NULL,
		interval     INTEGER,
		config       TEXT NOT NULL DEFAULT '{}',
		last_created INTEGER,
		mean         REAL,
		times_run    INTEGER NOT NULL DEFAULT 0,
		force        INTEGER NOT NULL DEFAULT 0,
		started      INTEGER,
		deleted      INTEGER,
		waiting      INTEGER
	)`},
	{1, 0, `CREATE TABLE IF NOT EXISTS timestamps (
		table_name   TEXT NOT NULL,
		start        INTEGER,
		connect      INTEGER,
		select_ts    INTEGER,
		create_temp  INTEGER,
		process      INTEGER,
		csv          INTEGER,
		s3           INTEGER,
		insert_ts    INTEGER,
		clean_csv    INTEGER,
		tests        INTEGER,
		replace_old  INTEGER,
		drop_old     INTEGER,
		make_snapshot INTEGER,
		finish       INTEGER
	)`},
	{1, 0, `CREATE TABLE IF NOT EXISTS commits (
		hash         TEXT PRIMARY KEY,
		processed_ts INTEGER NOT NULL
	)`},
	{1, 0, `CREATE INDEX IF NOT EXISTS idx_timestamps_table_name ON timestamps (table_name)`},
}

// migrate brings the store's schema up to schemaVersionMajor/Minor,
// applying each pending migration statement in order and advancing
// the singleton version row as it goes.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS version (major INTEGER NOT NULL, minor INTEGER NOT NULL)`); err != nil {
		return errors.Wrap(err, "creating version table")
	}

	var major, minor int
	err := s.db.QueryRowContext(ctx, `SELECT major, minor FROM version LIMIT 1`).Scan(&major, &minor)
	switch {
	case err == nil:
		// fall through with major/minor from the existing row.
	default:
		major, minor = 0, 0
		if _, err := s.db.ExecContext(ctx, `INSERT INTO version (major, minor) VALUES (0, 0)`); err != nil {
			return errors.Wrap(err, "seeding version row")
		}
	}

	for _, m := range migrations {
		if versionAtLeast(major, minor, m.major, m.minor) {
			continue
		}
		if _, err := s.db.ExecContext(ctx, m.stmt); err != nil {
			return errors.Wrapf(err, "applying migration %d.%d", m.major, m.minor)
		}
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE version SET major = ?, minor = ?`, schemaVersionMajor, schemaVersionMinor); err != nil {
		return errors.Wrap(err, "advancing version row")
	}
	return nil
}

// versionAtLeast reports whether (curMajor, curMinor) already covers
// the work done by a migration declared at (major, minor).
func versionAtLeast(curMajor, curMinor, major, minor int) bool {
	if curMajor != major {
		return curMajor > major
	}
	return curMinor >= minor
}
