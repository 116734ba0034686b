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

package engine

import (
	"fmt"
	"strings"
)

// NotADAGError is raised when the dependency graph built from the
// view tree contains a cycle; the cycle's member names are reported
// in encounter order.
type NotADAGError struct {
	Cycle []string
}

func (e *NotADAGError) Error() string {
	return fmt.Sprintf("dependency graph is not a DAG: cycle through %s", strings.Join(e.Cycle, " -> "))
}

// RootsWithoutIntervalError is raised when a root table (no incoming
// edge) has no declared interval to inherit from.
type RootsWithoutIntervalError struct {
	Tables []string
}

func (e *RootsWithoutIntervalError) Error() string {
	return fmt.Sprintf("root tables without an interval: %s", strings.Join(e.Tables, ", "))
}

// TablesWithoutRequiredFilesError aggregates the pre-flight check
// failures from spec.L: orphaned tests, processors missing a select
// sibling, and processors missing a DDL sibling.
type TablesWithoutRequiredFilesError struct {
	Violations []string
}

func (e *TablesWithoutRequiredFilesError) Error() string {
	return fmt.Sprintf("tables with missing required files:\n%s", strings.Join(e.Violations, "\n"))
}

// GitError wraps a failure reading the view tree's current commit.
type GitError struct {
	Err error
}

func (e *GitError) Error() string { return fmt.Sprintf("git: %v", e.Err) }
func (e *GitError) Unwrap() error { return e.Err }

// ConfigFieldError is raised when a declared distkey/sortkey does not
// textually appear anywhere in its table's query or DDL.
type ConfigFieldError struct {
	Table string
	Field string
	Value string
}

func (e *ConfigFieldError) Error() string {
	return fmt.Sprintf("%s: %s %q does not appear in the materializing query", e.Table, e.Field, e.Value)
}
