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

// Package ident holds the two-part schema.table identifier used
// throughout duro to name a managed view.
package ident

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Table is a parsed schema.table identifier. The zero value is not a
// valid Table.
type Table struct {
	Schema string
	Name   string
}

// ErrInvalidIdent is returned when a string cannot be parsed as a
// schema.table identifier.
var ErrInvalidIdent = errors.New("invalid identifier")

// Parse splits "schema.table" into a Table. Exactly one dot is
// required; the schema is mandatory, matching spec.B's rule that a
// view's schema is never optional.
func Parse(raw string) (Table, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Table{}, errors.Wrapf(ErrInvalidIdent, "%q", raw)
	}
	return Table{Schema: parts[0], Name: parts[1]}, nil
}

// MustParse is Parse, panicking on error. Reserved for constants and
// tests.
func MustParse(raw string) Table {
	t, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// String renders the canonical "schema.table" form.
func (t Table) String() string {
	return fmt.Sprintf("%s.%s", t.Schema, t.Name)
}

// IsZero reports whether t is the zero Table.
func (t Table) IsZero() bool {
	return t.Schema == "" && t.Name == ""
}

// Suffixed returns the identifier with a literal suffix appended to
// the table name, used to derive the _duro_temp / _duro_old / _history
// companion tables from warehouse.G.
func (t Table) Suffixed(suffix string) Table {
	return Table{Schema: t.Schema, Name: t.Name + suffix}
}
