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

	"github.com/pkg/errors"
)

// TestsFailedError carries the table and the list of boolean columns
// that did not come back true, per spec.G.2 / spec.§7.
type TestsFailedError struct {
	Table      string
	FailedCols []string
}

func (e *TestsFailedError) Error() string {
	return fmt.Sprintf("table %s: tests failed: %s", e.Table, strings.Join(e.FailedCols, ", "))
}

// RunTests runs each of queries (already split on semicolons by the
// view loader) and reads a boolean from the first column of its
// result. An empty test set passes trivially.
func RunTests(ctx context.Context, db *sql.DB, table string, queries []string) error {
	if len(queries) == 0 {
		return nil
	}

	var failed []string
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}

		rows, err := db.QueryContext(ctx, q)
		if err != nil {
			return errors.Wrapf(err, "running test query for %s", table)
		}
		cols, err := rows.Columns()
		if err != nil {
			rows.Close()
			return err
		}
		if len(cols) == 0 {
			rows.Close()
			return errors.Errorf("test query for %s returned no columns", table)
		}
		colName := cols[0]

		var passed bool
		if !rows.Next() {
			rows.Close()
			failed = append(failed, colName)
			continue
		}
		if err := rows.Scan(&passed); err != nil {
			rows.Close()
			return errors.Wrapf(err, "scanning test result for %s", table)
		}
		rows.Close()

		if !passed {
			failed = append(failed, colName)
		}
	}

	if len(failed) > 0 {
		return &TestsFailedError{Table: table, FailedCols: failed}
	}
	return nil
}
