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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/duro-sh/duro/internal/config"
	"github.com/duro-sh/duro/internal/ident"
)

func strPtr(s string) *string { return &s }

func TestKeyClausesOrdersDistSortStyle(t *testing.T) {
	cfg := config.TableConfig{
		DistKey:   strPtr("id"),
		SortKey:   strPtr("created_at"),
		DistStyle: strPtr("even"),
	}
	assert.Equal(t, []string{`distkey("id")`, `sortkey("created_at")`, `diststyle even`}, KeyClauses(cfg))
}

func TestKeyClausesOmitsUnsetFields(t *testing.T) {
	assert.Empty(t, KeyClauses(config.TableConfig{}))
}

func TestGrantStatementEmptyWhenNoGrants(t *testing.T) {
	assert.Equal(t, "", GrantStatement(ident.MustParse("a.b"), config.TableConfig{}))
}

func TestGrantStatementListsAllGrantees(t *testing.T) {
	cfg := config.TableConfig{GrantSelect: []string{"analyst", "bi_tool"}}
	got := GrantStatement(ident.MustParse("a.b"), cfg)
	assert.Equal(t, `GRANT SELECT ON a.b TO analyst, bi_tool`, got)
}

func TestAppendMissingKeyClausesAddsAllWhenDDLIsBare(t *testing.T) {
	cfg := config.TableConfig{DistKey: strPtr("id"), DistStyle: strPtr("even")}
	out := AppendMissingKeyClauses(`CREATE TABLE a.b (id int)`, cfg)
	assert.Equal(t, `CREATE TABLE a.b (id int) distkey("id") diststyle even`, out)
}

func TestAppendMissingKeyClausesSkipsAttributeDDLAlreadyDeclares(t *testing.T) {
	cfg := config.TableConfig{DistKey: strPtr("id"), SortKey: strPtr("ts")}
	out := AppendMissingKeyClauses(`CREATE TABLE a.b (id int) distkey(id)`, cfg)
	assert.Equal(t, `CREATE TABLE a.b (id int) distkey(id) sortkey("ts")`, out)
}

func TestAppendMissingKeyClausesStripsTrailingSemicolon(t *testing.T) {
	out := AppendMissingKeyClauses("CREATE TABLE a.b (id int);\n", config.TableConfig{})
	assert.Equal(t, `CREATE TABLE a.b (id int)`, out)
}
