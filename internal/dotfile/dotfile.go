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

// Package dotfile renders the dependency graph to Graphviz DOT for
// the operator-facing observability artifact spec.K names.
package dotfile

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/duro-sh/duro/internal/graph"
)

// Render writes g as a DOT digraph, with edges drawn parent -> child
// matching graph.Graph's own adjacency direction.
func Render(g *graph.Graph) string {
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("digraph duro {\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %q;\n", name)
	}
	for _, parent := range names {
		children, _ := g.Children(parent)
		sort.Strings(children)
		for _, child := range children {
			fmt.Fprintf(&b, "  %q -> %q;\n", parent, child)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// WriteFile renders g and writes it to path, overwriting any existing
// file.
func WriteFile(g *graph.Graph, path string) error {
	if err := os.WriteFile(path, []byte(Render(g)), 0o644); err != nil {
		return errors.Wrapf(err, "writing dependency graph to %s", path)
	}
	return nil
}
