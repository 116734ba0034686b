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

	"github.com/duro-sh/duro/internal/config"
	"github.com/duro-sh/duro/internal/ident"
)

// DropOldTableError wraps a failure to drop the previous generation
// of a table, named in spec.§7.
type DropOldTableError struct {
	Table string
	Err   error
}

func (e *DropOldTableError) Error() string {
	return fmt.Sprintf("dropping old table %s: %v", e.Table, e.Err)
}
func (e *DropOldTableError) Unwrap() error { return e.Err }

// CreateTempTable builds the `_duro_temp` replacement for table from
// selectQuery, applying distkey/sortkey/diststyle and grant_select
// from cfg, per spec.G.1.
func CreateTempTable(ctx context.Context, db *sql.DB, table ident.Table, cfg config.TableConfig, selectQuery string) error {
	temp := table.Suffixed("_duro_temp")

	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, temp)); err != nil {
		return &TableCreationError{Table: table.String(), Err: err}
	}

	clauses := KeyClauses(cfg)
	create := fmt.Sprintf(`CREATE TABLE %s %s AS (%s)`, temp, strings.Join(clauses, " "), selectQuery)
	if _, err := db.ExecContext(ctx, create); err != nil {
		return &TableCreationError{Table: table.String(), Err: err}
	}

	if grant := GrantStatement(temp, cfg); grant != "" {
		if _, err := db.ExecContext(ctx, grant); err != nil {
			return &TableCreationError{Table: table.String(), Err: err}
		}
	}

	return nil
}

// keyClause pairs a CREATE TABLE attribute's SQL text with the bare
// keyword used to detect whether author-written DDL already declares
// it.
type keyClause struct {
	keyword string
	sql     string
}

func keyClauses(cfg config.TableConfig) []keyClause {
	var clauses []keyClause
	if cfg.DistKey != nil {
		clauses = append(clauses, keyClause{"distkey", fmt.Sprintf(`distkey(%q)`, *cfg.DistKey)})
	}
	if cfg.SortKey != nil {
		clauses = append(clauses, keyClause{"sortkey", fmt.Sprintf(`sortkey(%q)`, *cfg.SortKey)})
	}
	if cfg.DistStyle != nil {
		clauses = append(clauses, keyClause{"diststyle", fmt.Sprintf(`diststyle %s`, *cfg.DistStyle)})
	}
	return clauses
}

// KeyClauses returns the distkey/sortkey/diststyle CREATE TABLE
// attribute clauses cfg specifies, in attribute order, for a CREATE
// TABLE built from scratch (CreateTempTable's case, where nothing in
// the statement could already declare them).
func KeyClauses(cfg config.TableConfig) []string {
	clauses := keyClauses(cfg)
	out := make([]string, len(clauses))
	for i, c := range clauses {
		out[i] = c.sql
	}
	return out
}

// AppendMissingKeyClauses appends any of cfg's distkey/sortkey/
// diststyle clauses that ddl doesn't already declare for itself,
// mirroring original_source's build_drop_and_create_query:
// author-written DDL wins over config when both specify the same
// attribute. Used for processor-backed tables, whose DDL is
// hand-authored and may already carry these attributes.
func AppendMissingKeyClauses(ddl string, cfg config.TableConfig) string {
	trimmed := strings.TrimRight(strings.TrimSpace(ddl), "; \t\n")
	lower := strings.ToLower(trimmed)

	var add []string
	for _, c := range keyClauses(cfg) {
		if !strings.Contains(lower, c.keyword) {
			add = append(add, c.sql)
		}
	}
	if len(add) == 0 {
		return trimmed
	}
	return trimmed + " " + strings.Join(add, " ")
}

// GrantStatement returns the GRANT SELECT statement table needs per
// cfg.GrantSelect, or "" if cfg grants no one.
func GrantStatement(table ident.Table, cfg config.TableConfig) string {
	if len(cfg.GrantSelect) == 0 {
		return ""
	}
	return fmt.Sprintf(`GRANT SELECT ON %s TO %s`, table, strings.Join(cfg.GrantSelect, ", "))
}

// dependentViewsQuery discovers views that reference table, via the
// standard pg_class/pg_namespace/pg_depend/pg_rewrite catalog join
// spec.G.3 names.
const dependentViewsQuery = `
SELECT DISTINCT v.relname, vn.nspname
FROM pg_class t
JOIN pg_namespace nt ON nt.oid = t.relnamespace
JOIN pg_depend d ON d.refobjid = t.oid
JOIN pg_rewrite r ON r.oid = d.objid
JOIN pg_class v ON v.oid = r.ev_class
JOIN pg_namespace vn ON vn.oid = v.relnamespace
WHERE t.relname = $1 AND nt.nspname = $2 AND v.relkind = 'v'`

// ReplaceOldTable performs the atomic two-phase rename that publishes
// the `_duro_temp` generation as table, rewriting any dependent view
// definitions in place, per spec.G.3.
func ReplaceOldTable(ctx context.Context, db *sql.DB, table ident.Table) error {
	old := table.Suffixed("_duro_old")
	temp := table.Suffixed("_duro_temp")

	// Drop any view occupying table's name; ignore "wrong object type"
	// (the table may already be a table, not a view).
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP VIEW IF EXISTS %s`, table)); err != nil && !isWrongObjectType(err) {
		return &TableCreationError{Table: table.String(), Err: err}
	}

	rows, err := db.QueryContext(ctx, dependentViewsQuery, table.Name, table.Schema)
	if err != nil {
		return &TableCreationError{Table: table.String(), Err: errors.Wrap(err, "discovering dependent views")}
	}
	type dependent struct{ name, schema string }
	var deps []dependent
	for rows.Next() {
		var d dependent
		if err := rows.Scan(&d.name, &d.schema); err != nil {
			rows.Close()
			return &TableCreationError{Table: table.String(), Err: err}
		}
		deps = append(deps, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return &TableCreationError{Table: table.String(), Err: err}
	}

	for _, d := range deps {
		view := ident.Table{Schema: d.schema, Name: d.name}
		var def string
		if err := db.QueryRowContext(ctx, `SELECT pg_get_viewdef($1::regclass, true)`, view.String()).Scan(&def); err != nil {
			return &TableCreationError{Table: table.String(), Err: errors.Wrapf(err, "reading definition of dependent view %s", view)}
		}
		rewritten := strings.ReplaceAll(def, table.String(), temp.String())
		stmt := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS %s`, view, rewritten)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return &TableCreationError{Table: table.String(), Err: errors.Wrapf(err, "rewriting dependent view %s", view)}
		}
	}

	stmts := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, old),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id int)`, table),
		fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, table, shortName(old)),
		fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, temp, shortName(table)),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return &TableCreationError{Table: table.String(), Err: err}
		}
	}
	return nil
}

// shortName renders just the unqualified table-name part, since
// RENAME TO takes an unqualified identifier.
func shortName(t ident.Table) string {
	return t.Name
}

// isWrongObjectType reports whether err is the warehouse's "wrong
// object type" class of error, which ReplaceOldTable treats as a
// no-op rather than a failure.
func isWrongObjectType(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "is not a view")
}

// DropOldTable removes the previous generation, per spec.G.4.
func DropOldTable(ctx context.Context, db *sql.DB, table ident.Table) error {
	old := table.Suffixed("_duro_old")
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, old)); err != nil {
		return &DropOldTableError{Table: table.String(), Err: err}
	}
	return nil
}
