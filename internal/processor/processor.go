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

// Package processor drives the extract -> external-transform ->
// upload -> bulk-load path for views backed by an external processor
// program (spec.H). The processor program itself, and the Python
// virtual environment it runs in, are external collaborators per
// spec.§1; this package only shells out to them.
package processor

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/duro-sh/duro/internal/config"
	"github.com/duro-sh/duro/internal/ident"
	"github.com/duro-sh/duro/internal/objectstore"
	"github.com/duro-sh/duro/internal/timestamps"
	"github.com/duro-sh/duro/internal/warehouse"
)

// ErrProcessorNotFound is raised when a table's sibling .py program
// is missing at run time (it was present during reschedule but has
// since been removed), per spec.§7.
var ErrProcessorNotFound = errors.New("ProcessorNotFound")

// ProcessorRunError carries the combined stderr/stdout of a
// non-zero-exit processor invocation, per spec.H/spec.§7.
type ProcessorRunError struct {
	Table  string
	Output string
}

func (e *ProcessorRunError) Error() string {
	return fmt.Sprintf("processor for %s failed: %s", e.Table, e.Output)
}

// RedshiftCopyError wraps a failure in the final COPY load, per
// spec.§7.
type RedshiftCopyError struct {
	Table string
	Err   error
}

func (e *RedshiftCopyError) Error() string {
	return fmt.Sprintf("copying into %s: %v", e.Table, e.Err)
}
func (e *RedshiftCopyError) Unwrap() error { return e.Err }

// Sandbox is a per-table scratch directory for the CSV round trip,
// created on demand under sandboxRoot and never shared across tables.
type Sandbox struct {
	root string
}

// NewSandbox creates (or reuses) the sandbox directory for table
// under sandboxRoot.
func NewSandbox(sandboxRoot string, table ident.Table) (*Sandbox, error) {
	dir := filepath.Join(sandboxRoot, table.Schema, table.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating sandbox for %s", table)
	}
	return &Sandbox{root: dir}, nil
}

func (s *Sandbox) inputPath() string  { return filepath.Join(s.root, "input.csv") }
func (s *Sandbox) outputPath() string { return filepath.Join(s.root, "output.csv") }

// Run executes the full processor path for table: extract rows from
// srcDB via selectQuery, write them as a semicolon-delimited,
// backslash-escaped CSV, invoke the processor program, upload its
// output, and COPY it into the `_duro_temp` table built from ddl,
// applying cfg's distkey/sortkey/diststyle/grant_select exactly as
// the non-processor path does, per spec.H.5.
//
// requirements.txt handling (Open Question): if reqPath is non-empty
// and the sandbox fails to install it, Run aborts with the install
// error rather than proceeding against a possibly-incompatible
// environment — silently running against stale or missing
// dependencies is a worse failure mode than a loud one.
func Run(ctx context.Context, deps Deps, table ident.Table, selectQuery, ddl, processorPath, reqPath string, cfg config.TableConfig, rec *timestamps.Recorder) error {
	logPhase := func(phase timestamps.Phase) {
		if rec != nil {
			rec.Log(phase, time.Now())
		}
	}

	sandbox, err := NewSandbox(deps.SandboxRoot, table)
	if err != nil {
		return err
	}

	if _, err := os.Stat(processorPath); err != nil {
		return errors.Wrapf(ErrProcessorNotFound, "%s", table)
	}

	if reqPath != "" {
		if err := installRequirements(ctx, sandbox.root, reqPath); err != nil {
			return errors.Wrapf(err, "installing requirements for %s", table)
		}
	}

	if err := extractToCSV(ctx, deps.SourceDB, selectQuery, sandbox.inputPath()); err != nil {
		return errors.Wrapf(err, "extracting rows for %s", table)
	}
	logPhase(timestamps.PhaseCSV)

	if err := runProcessor(ctx, processorPath, sandbox.inputPath(), sandbox.outputPath(), table.String(), sandbox.root); err != nil {
		return err
	}
	logPhase(timestamps.PhaseProcess)

	runTime := time.Now()
	key := objectstore.Path(deps.ObjectFolder, table, runTime, false)
	f, err := os.Open(sandbox.outputPath())
	if err != nil {
		return errors.Wrapf(err, "opening processor output for %s", table)
	}
	url, err := deps.Store.Put(ctx, key, f)
	f.Close()
	if err != nil {
		return errors.Wrapf(err, "uploading processor output for %s", table)
	}
	logPhase(timestamps.PhaseS3)

	if err := loadFromObjectStore(ctx, deps.TargetDB, table, ddl, cfg, url); err != nil {
		return &RedshiftCopyError{Table: table.String(), Err: err}
	}
	logPhase(timestamps.PhaseInsert)

	os.Remove(sandbox.inputPath())
	os.Remove(sandbox.outputPath())
	logPhase(timestamps.PhaseCleanCSV)
	return nil
}

// Deps bundles the external collaborators Run needs: the source and
// target warehouse connections, the sandbox root, the object store
// client, and the folder object keys are written under.
type Deps struct {
	SourceDB     *sql.DB
	TargetDB     *sql.DB
	SandboxRoot  string
	ObjectFolder string
	Store        *objectstore.Store
}

// installRequirements builds a clean dependency sandbox from
// reqPath, mirroring the source's per-table virtual environment.
func installRequirements(ctx context.Context, sandboxDir, reqPath string) error {
	cmd := exec.CommandContext(ctx, "pip", "install", "--target", sandboxDir, "-r", reqPath)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "pip install failed: %s", out.String())
	}
	return nil
}

// extractToCSV streams selectQuery's result set to path as a
// semicolon-delimited, backslash-escaped CSV with a header row.
func extractToCSV(ctx context.Context, db *sql.DB, selectQuery, path string) error {
	rows, err := db.QueryContext(ctx, selectQuery)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := w.Write(cols); err != nil {
		return err
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	record := make([]string, len(cols))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		for i, v := range vals {
			record[i] = escapeBackslash(stringifyValue(v))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func stringifyValue(v any) string {
	if v == nil {
		return ""
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

// escapeBackslash doubles literal backslashes, matching the "backslash
// escape" CSV dialect spec.H requires (as opposed to doubled quotes).
func escapeBackslash(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			out = append(out, '\\', '\\')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

// runProcessor invokes the external processor program, passing
// (inputPath, outputPath), with the packages installed into sandboxDir
// on its PYTHONPATH, and surfaces a non-zero exit as a
// ProcessorRunError carrying the combined stderr/stdout.
func runProcessor(ctx context.Context, processorPath, inputPath, outputPath, table, sandboxDir string) error {
	cmd := exec.CommandContext(ctx, "python3", processorPath, inputPath, outputPath)
	cmd.Env = append(os.Environ(), "PYTHONPATH="+sandboxDir)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return &ProcessorRunError{Table: table, Output: out.String()}
	}
	return nil
}

// loadFromObjectStore drops and recreates `_duro_temp` from ddl,
// applying cfg's distkey/sortkey/diststyle attributes and grant_select
// the same way warehouse.CreateTempTable does for the non-processor
// path, then COPYs rows from the uploaded CSV at sourceURL, per
// spec.H.5-6.
func loadFromObjectStore(ctx context.Context, db *sql.DB, table ident.Table, ddl string, cfg config.TableConfig, sourceURL string) error {
	temp := table.Suffixed("_duro_temp")
	rewrittenDDL := warehouse.AppendMissingKeyClauses(rewriteForTemp(ddl, table, temp), cfg)

	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, temp)); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, rewrittenDDL); err != nil {
		return err
	}

	if grant := warehouse.GrantStatement(temp, cfg); grant != "" {
		if _, err := db.ExecContext(ctx, grant); err != nil {
			return err
		}
	}

	copyStmt := fmt.Sprintf(`COPY %s FROM '%s' CREDENTIALS '' CSV DELIMITER ';' ESCAPE`, temp, sourceURL)
	_, err := db.ExecContext(ctx, copyStmt)
	return err
}

// rewriteForTemp substitutes table's name for temp's inside ddl, so a
// DDL statement authored against the final table name targets
// `_duro_temp` instead.
func rewriteForTemp(ddl string, table, temp ident.Table) string {
	return strings.ReplaceAll(ddl, table.String(), temp.String())
}
