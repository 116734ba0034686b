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

// Package graph builds the directed parent->child dependency graph
// between views by textual reference detection (spec.D).
package graph

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/pkg/errors"

	"github.com/duro-sh/duro/internal/ident"
	"github.com/duro-sh/duro/internal/view"
)

// NodeData is the payload carried by a graph node: the materializing
// query's text and its refresh interval, if any.
type NodeData struct {
	Contents string
	Interval *string
}

// Graph is an explicit adjacency-map dependency graph: no arbitrary
// node attributes, no external graph library, just the two fields
// duro's algorithms actually need.
type Graph struct {
	Nodes map[string]NodeData
	Edges map[string]map[string]struct{} // parent -> set of children
}

// ErrCycle is returned by DetectCycles when the graph is not a DAG.
var ErrCycle = errors.New("dependency cycle detected")

// New builds a Graph from the loaded view records.
func New(records []view.Record) *Graph {
	g := &Graph{
		Nodes: make(map[string]NodeData, len(records)),
		Edges: make(map[string]map[string]struct{}, len(records)),
	}
	for _, r := range records {
		name := r.Name.String()
		g.Nodes[name] = NodeData{Contents: r.Query, Interval: r.IntervalRaw}
		g.Edges[name] = map[string]struct{}{}
	}
	for _, r := range records {
		parent := r.Name.String()
		stripped := stripLineComments(r.Query)
		for _, r2 := range records {
			child := r2.Name.String()
			if child == parent {
				continue
			}
			if referencesTable(stripped, r2.Name) {
				g.Edges[parent][child] = struct{}{}
			}
		}
	}
	return g
}

// Children returns the sorted list of direct children of name.
func (g *Graph) Children(name string) ([]string, error) {
	set, ok := g.Edges[name]
	if !ok {
		return nil, errors.Wrapf(ErrTableNotFoundInGraph, "%q", name)
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

// ErrTableNotFoundInGraph is the creation-error counterpart named in
// spec.§7.
var ErrTableNotFoundInGraph = errors.New("TableNotFoundInGraph")

// Roots returns the names with in-degree zero.
func (g *Graph) Roots() []string {
	hasParent := map[string]bool{}
	for _, children := range g.Edges {
		for c := range children {
			hasParent[c] = true
		}
	}
	var roots []string
	for n := range g.Nodes {
		if !hasParent[n] {
			roots = append(roots, n)
		}
	}
	sort.Strings(roots)
	return roots
}

// DetectCycles reports whether the graph contains a cycle reachable
// from any node, returning the first cycle found as a slice of names.
func (g *Graph) DetectCycles() ([]string, error) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Nodes))
	var stack []string

	var visit func(n string) []string
	visit = func(n string) []string {
		color[n] = gray
		stack = append(stack, n)
		children := make([]string, 0, len(g.Edges[n]))
		for c := range g.Edges[n] {
			children = append(children, c)
		}
		sort.Strings(children)
		for _, c := range children {
			switch color[c] {
			case white:
				if cyc := visit(c); cyc != nil {
					return cyc
				}
			case gray:
				// Found the back-edge; slice the stack from c's position.
				for i, s := range stack {
					if s == c {
						cyc := append([]string{}, stack[i:]...)
						return append(cyc, c)
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return nil
	}

	names := make([]string, 0, len(g.Nodes))
	for n := range g.Nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if color[n] == white {
			if cyc := visit(n); cyc != nil {
				return cyc, ErrCycle
			}
		}
	}
	return nil, nil
}

var lineComment = regexp.MustCompile(`--[^\n]*`)

func stripLineComments(query string) string {
	return lineComment.ReplaceAllString(query, "")
}

// referencesTable reports whether stripped textually references table
// as a word-bounded, optionally double-quoted schema.table name.
func referencesTable(stripped string, table ident.Table) bool {
	schema, name := regexp.QuoteMeta(table.Schema), regexp.QuoteMeta(table.Name)
	pattern := fmt.Sprintf(
		`(?i)\b"?%s"?\s*\.\s*"?%s"?\b`,
		schema, name,
	)
	re := regexp.MustCompile(pattern)
	return re.MatchString(stripped)
}
