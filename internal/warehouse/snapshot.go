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

package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/duro-sh/duro/internal/ident"
)

// HistoryTableCreationError is raised when the lazy `_history` table
// cannot be created, per spec.§7.
type HistoryTableCreationError struct {
	Table string
	Err   error
}

func (e *HistoryTableCreationError) Error() string {
	return fmt.Sprintf("creating history table for %s: %v", e.Table, e.Err)
}
func (e *HistoryTableCreationError) Unwrap() error { return e.Err }

// MakeSnapshot applies spec.G.5's append/prune retention policy
// against table's `_history` companion, returning whether a new
// snapshot generation was appended.
func MakeSnapshot(ctx context.Context, db *sql.DB, table ident.Table, intervalMins, storedForMins int) (bool, error) {
	history := table.Suffixed("_history")

	var maxTS, minTS sql.NullTime
	q := fmt.Sprintf(`SELECT max(snapshot_timestamp), min(snapshot_timestamp) FROM %s`, history)
	err := db.QueryRowContext(ctx, q).Scan(&maxTS, &minTS)
	if err != nil && !isMissingRelation(err) {
		return false, &HistoryTableCreationError{Table: table.String(), Err: err}
	}

	if err != nil || !maxTS.Valid {
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE %s AS (SELECT *, current_timestamp AS snapshot_timestamp FROM %s LIMIT 1)`, history, table),
			fmt.Sprintf(`TRUNCATE %s`, history),
			fmt.Sprintf(`INSERT INTO %s SELECT *, current_timestamp FROM %s`, history, table),
		}
		for _, s := range stmts {
			if _, err := db.ExecContext(ctx, s); err != nil {
				return false, &HistoryTableCreationError{Table: table.String(), Err: err}
			}
		}
		return true, nil
	}

	if time.Since(maxTS.Time) > time.Duration(intervalMins)*time.Minute {
		insert := fmt.Sprintf(`INSERT INTO %s SELECT *, current_timestamp FROM %s`, history, table)
		if _, err := db.ExecContext(ctx, insert); err != nil {
			return false, &HistoryTableCreationError{Table: table.String(), Err: err}
		}
		return true, nil
	}

	if minTS.Valid && time.Since(minTS.Time) > time.Duration(storedForMins)*time.Minute {
		del := fmt.Sprintf(`DELETE FROM %s WHERE snapshot_timestamp < $1`, history)
		cutoff := time.Now().Add(-time.Duration(storedForMins) * time.Minute)
		if _, err := db.ExecContext(ctx, del, cutoff); err != nil {
			return false, &HistoryTableCreationError{Table: table.String(), Err: err}
		}
		return false, nil
	}

	return false, nil
}

// isMissingRelation reports whether err is the warehouse's
// "relation/column does not exist" class, treated as an absent
// max/min per spec.G.5.
func isMissingRelation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not exist") || errors.Is(err, sql.ErrNoRows)
}
