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

// Package config merges the five layered, flat key=value .conf files
// that apply to a single view (spec.C) and loads the top-level engine
// config.conf (spec.§6).
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/magiconair/properties"

	"github.com/duro-sh/duro/internal/ident"
)

// TableConfig is the merged, typed view of a table's five config
// layers. Keys not present anywhere resolve to a nil field, per
// spec.C's "empty becomes absent" rule.
type TableConfig struct {
	DistKey               *string
	SortKey               *string
	DistStyle             *string
	GrantSelect           []string // sorted
	SnapshotsIntervalMin  *int
	SnapshotsStoredForMin *int
}

// recognized config keys, spec.§3.
const (
	keyDistKey       = "distkey"
	keySortKey       = "sortkey"
	keyDistStyle     = "diststyle"
	keyGrantSelect   = "grant_select"
	keySnapInterval  = "snapshots_interval"
	keySnapStoredFor = "snapshots_stored_for"
)

// layerPaths returns the five config file paths in increasing
// precedence order, per spec.C.
func layerPaths(viewsRoot string, table ident.Table) []string {
	schema, name := table.Schema, table.Name
	return []string{
		filepath.Join(viewsRoot, "global.conf"),
		filepath.Join(viewsRoot, schema+".conf"),
		filepath.Join(viewsRoot, schema, schema+".conf"),
		filepath.Join(viewsRoot, schema+"."+name+".conf"),
		filepath.Join(viewsRoot, schema, name+".conf"),
	}
}

// isAbsent normalizes the source values that mean "no value", per
// spec.C/§3: the literals "null", "None", and the empty string.
func isAbsent(v string) bool {
	switch v {
	case "", "null", "None":
		return true
	default:
		return false
	}
}

// MergeTableConfig reads and folds the five layers for table, in
// increasing precedence order. Missing files are silently skipped;
// a present-but-unparseable file is an error the caller should treat
// as a scheduler-level ConfigFieldError candidate.
func MergeTableConfig(viewsRoot string, table ident.Table) (TableConfig, error) {
	var cfg TableConfig
	grants := map[string]struct{}{}
	grantsTouched := false

	for _, path := range layerPaths(viewsRoot, table) {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		props, err := properties.LoadFile(path, properties.UTF8)
		if err != nil {
			return TableConfig{}, err
		}

		for _, key := range props.Keys() {
			val := props.GetString(key, "")
			switch strings.ToLower(key) {
			case keyDistKey:
				cfg.DistKey = strOrNil(val)
			case keySortKey:
				cfg.SortKey = strOrNil(val)
			case keyDistStyle:
				cfg.DistStyle = strOrNil(val)
			case keyGrantSelect:
				if isAbsent(val) {
					continue
				}
				grantsTouched = true
				foldGrantSelect(grants, val)
			case keySnapInterval:
				cfg.SnapshotsIntervalMin = intOrNil(val)
			case keySnapStoredFor:
				cfg.SnapshotsStoredForMin = intOrNil(val)
			}
		}
	}

	if grantsTouched {
		cfg.GrantSelect = sortedKeys(grants)
	}

	return cfg, nil
}

// GrantSelectString renders the merged grantee set the way spec.C
// requires: sorted, comma-joined.
func (c TableConfig) GrantSelectString() string {
	return strings.Join(c.GrantSelect, ", ")
}

// foldGrantSelect applies one layer's grant_select value to the
// running accumulator, per spec.C:
//
//   - if no entry in the layer is prefixed with + or -, the layer
//     REPLACES the accumulator with its own entries.
//   - otherwise (every entry prefixed, or a mix of bare and prefixed
//     entries) the layer is a delta: "+x"/bare adds x, "-x" removes x.
func foldGrantSelect(acc map[string]struct{}, raw string) {
	entries := splitList(raw)

	anyPrefixed := false
	for _, e := range entries {
		if strings.HasPrefix(e, "+") || strings.HasPrefix(e, "-") {
			anyPrefixed = true
			break
		}
	}

	if !anyPrefixed {
		for k := range acc {
			delete(acc, k)
		}
		for _, e := range entries {
			acc[e] = struct{}{}
		}
		return
	}

	for _, e := range entries {
		switch {
		case strings.HasPrefix(e, "+"):
			acc[strings.TrimSpace(e[1:])] = struct{}{}
		case strings.HasPrefix(e, "-"):
			delete(acc, strings.TrimSpace(e[1:]))
		default:
			acc[e] = struct{}{}
		}
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
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

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func strOrNil(v string) *string {
	if isAbsent(v) {
		return nil
	}
	return &v
}

func intOrNil(v string) *int {
	if isAbsent(v) {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return nil
	}
	return &n
}
