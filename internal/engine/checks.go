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

	"github.com/duro-sh/duro/internal/view"
)

// runChecks implements spec.L: three invariants over the loaded view
// tree, aggregated into one TablesWithoutRequiredFilesError rather
// than failing on the first violation, so an operator sees every
// problem in one pass.
func runChecks(records []view.Record, diag view.Diagnostics) error {
	var violations []string

	for _, path := range diag.OrphanTestFiles {
		violations = append(violations, fmt.Sprintf("%s: has no table with a materializing query", path))
	}
	for _, path := range diag.OrphanProcessorFiles {
		violations = append(violations, fmt.Sprintf("%s: processor has no sibling DDL", path))
	}
	for _, r := range records {
		if r.ProcessorPath != "" && r.ProcessorSelect == "" {
			violations = append(violations, fmt.Sprintf("%s: processor has no sibling select query", r.Name))
		}
	}

	if len(violations) > 0 {
		return &TablesWithoutRequiredFilesError{Violations: violations}
	}
	return nil
}
