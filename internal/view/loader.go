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

// Package view walks a view-tree directory and classifies its files
// into the records the rest of duro operates on (spec.B).
package view

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/duro-sh/duro/internal/ident"
)

// Record is one discovered table: its materializing query (or, for
// processor-backed tables, its DDL text) and optional interval.
type Record struct {
	Name        ident.Table
	Query       string // select query, or DDL text for processor-backed tables
	IntervalRaw *string

	// Processor-backed tables carry these in addition to Query/DDL.
	ProcessorPath    string // path to the sibling .py program, "" if none
	ProcessorSelect  string // the select query text from the _select.sql sibling
	RequirementsPath string // path to a sibling requirements.txt, "" if none

	TestQueries []string // contents of *_test.sql siblings, split on ';'
}

// Diagnostics reports view-tree files Load could not attach to any
// Record, for the pre-flight checks in spec.L.
type Diagnostics struct {
	OrphanTestFiles      []string // _test.sql with no matching materializing query
	OrphanProcessorFiles []string // .py with no matching materializing query (DDL)
}

// ErrMissingSchema is returned when a materializing query's filename
// cannot be resolved to a schema.table identifier.
var ErrMissingSchema = errors.New("view file has no resolvable schema")

// intervalSuffix matches a trailing "<sep><int><unit>" where sep is
// any run of whitespace, hyphen, en dash, or em dash, per spec.B.
var intervalSuffix = regexp.MustCompile(`(?i)[\s\x{2014}\x{2013}-]+([0-9]+[mhdw])$`)

type rawFile struct {
	dir  string
	stem string // filename without extension, interval suffix NOT yet stripped
	path string
}

// Load walks root and returns one Record per materializing query file
// found, fully classified and cross-referenced with its test/processor
// siblings, plus Diagnostics covering files that could not be
// attached to any Record.
func Load(root string) ([]Record, Diagnostics, error) {
	var (
		ddlFiles       []rawFile
		testFiles      []rawFile
		processorFiles []rawFile
		selectFiles    []rawFile // candidate *_select.sql, disambiguated below
	)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		dir := filepath.Dir(rel)
		if dir == "." {
			dir = ""
		}
		name := filepath.Base(rel)

		switch {
		case name == "requirements.txt":
			// associated lazily, below.
		case strings.HasSuffix(name, ".conf"):
			// handled by internal/config directly from disk.
		case strings.HasSuffix(name, "_test.sql"):
			stem := strings.TrimSuffix(name, "_test.sql")
			testFiles = append(testFiles, rawFile{dir, stem, path})
		case strings.HasSuffix(name, "_select.sql"):
			stem := strings.TrimSuffix(name, "_select.sql")
			selectFiles = append(selectFiles, rawFile{dir, stem, path})
		case strings.HasSuffix(name, ".py"):
			stem := strings.TrimSuffix(name, ".py")
			processorFiles = append(processorFiles, rawFile{dir, stem, path})
		case strings.HasSuffix(name, ".sql"):
			stem := strings.TrimSuffix(name, ".sql")
			ddlFiles = append(ddlFiles, rawFile{dir, stem, path})
		}
		return nil
	})
	if err != nil {
		return nil, Diagnostics{}, err
	}

	processorByKey := map[string]rawFile{}
	for _, p := range processorFiles {
		processorByKey[p.dir+"/"+p.stem] = p
	}
	selectByKey := map[string]rawFile{}
	for _, s := range selectFiles {
		if _, ok := processorByKey[s.dir+"/"+s.stem]; ok {
			selectByKey[s.dir+"/"+s.stem] = s
		}
		// A *_select.sql with no matching .py is not classified here;
		// checks.go (spec.L) flags orphaned processors, not orphaned
		// select files, so we simply drop it from consideration.
	}
	testsByKey := map[string][]rawFile{}
	for _, tf := range testFiles {
		testsByKey[tf.dir+"/"+tf.stem] = append(testsByKey[tf.dir+"/"+tf.stem], tf)
	}

	ddlKeys := make(map[string]struct{}, len(ddlFiles))
	for _, ddl := range ddlFiles {
		base, _ := splitInterval(ddl.stem)
		ddlKeys[ddl.dir+"/"+base] = struct{}{}
	}

	var diag Diagnostics
	for key, tfs := range testsByKey {
		if _, ok := ddlKeys[key]; !ok {
			for _, tf := range tfs {
				diag.OrphanTestFiles = append(diag.OrphanTestFiles, tf.path)
			}
		}
	}
	for key, p := range processorByKey {
		if _, ok := ddlKeys[key]; !ok {
			diag.OrphanProcessorFiles = append(diag.OrphanProcessorFiles, p.path)
		}
	}

	var records []Record
	for _, ddl := range ddlFiles {
		base, rawInterval := splitInterval(ddl.stem)
		key := ddl.dir + "/" + base

		name, err := resolveName(ddl.dir, base)
		if err != nil {
			return nil, Diagnostics{}, errors.Wrapf(err, "file %s", ddl.path)
		}

		contents, err := os.ReadFile(ddl.path)
		if err != nil {
			return nil, Diagnostics{}, err
		}

		rec := Record{
			Name:        name,
			Query:       string(contents),
			IntervalRaw: rawInterval,
		}

		if proc, ok := processorByKey[key]; ok {
			rec.ProcessorPath = proc.path
			if sel, ok := selectByKey[key]; ok {
				selContents, err := os.ReadFile(sel.path)
				if err != nil {
					return nil, Diagnostics{}, err
				}
				rec.ProcessorSelect = string(selContents)
			}
			reqPath := filepath.Join(root, ddl.dir, "requirements.txt")
			if _, err := os.Stat(reqPath); err == nil {
				rec.RequirementsPath = reqPath
			}
		}

		for _, tf := range testsByKey[key] {
			contents, err := os.ReadFile(tf.path)
			if err != nil {
				return nil, Diagnostics{}, err
			}
			rec.TestQueries = append(rec.TestQueries, splitStatements(string(contents))...)
		}

		records = append(records, rec)
	}

	return records, diag, nil
}

// splitInterval strips a trailing "<sep><int><unit>" suffix from stem,
// returning the base name and the raw interval string, if any.
func splitInterval(stem string) (base string, raw *string) {
	m := intervalSuffix.FindStringSubmatchIndex(stem)
	if m == nil {
		return stem, nil
	}
	interval := stem[m[2]:m[3]]
	return stem[:m[0]], &interval
}

// resolveName derives a schema.table identifier from a materializing
// query's directory and (interval-stripped) filename stem, per
// spec.B's three accepted forms.
func resolveName(dir, base string) (ident.Table, error) {
	if strings.Contains(base, ".") {
		// schema.table.sql (flat) or schema/schema.table.sql (nested).
		return ident.Parse(base)
	}
	if dir == "" {
		return ident.Table{}, errors.Wrapf(ErrMissingSchema, "%q", base)
	}
	schema := filepath.Base(dir)
	return ident.Table{Schema: schema, Name: base}, nil
}

// splitStatements splits a semicolon-terminated SQL file into its
// component statements, discarding blank trailing fragments.
func splitStatements(contents string) []string {
	parts := strings.Split(contents, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
