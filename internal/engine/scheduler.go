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

// Package engine wires the loaded components together into the
// scheduler entry (spec.K) and the top-level serve loop (spec.J).
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/duro-sh/duro/internal/config"
	"github.com/duro-sh/duro/internal/dotfile"
	"github.com/duro-sh/duro/internal/gitlog"
	"github.com/duro-sh/duro/internal/graph"
	"github.com/duro-sh/duro/internal/interval"
	"github.com/duro-sh/duro/internal/schedule"
	"github.com/duro-sh/duro/internal/view"
)

// RescheduleSummary names the tables a reschedule pass changed, for
// the user-facing summary spec.K requires.
type RescheduleSummary struct {
	Inserted []string
	Changed  []string
	Skipped  bool // true when a git-driven pass found no new commit
}

// RescheduleOptions controls a single call to Reschedule.
type RescheduleOptions struct {
	ViewsRoot string
	GraphPath string
	StrictDAG bool // if true, a cycle aborts instead of merely warning
}

// Reschedule implements spec.K: pre-flight checks, load the view
// tree, build and persist the dependency graph, validate roots and
// config fields, then upsert the schedule store.
func Reschedule(ctx context.Context, store *schedule.Store, logger *log.Logger, opts RescheduleOptions) (RescheduleSummary, error) {
	records, diag, err := view.Load(opts.ViewsRoot)
	if err != nil {
		return RescheduleSummary{}, err
	}
	if err := runChecks(records, diag); err != nil {
		return RescheduleSummary{}, err
	}

	g := graph.New(records)
	if err := dotfile.WriteFile(g, opts.GraphPath); err != nil {
		return RescheduleSummary{}, err
	}

	if cycle, err := g.DetectCycles(); err != nil {
		if opts.StrictDAG {
			return RescheduleSummary{}, &NotADAGError{Cycle: cycle}
		}
		if logger != nil {
			logger.WithField("cycle", strings.Join(cycle, " -> ")).Warn("dependency graph is not a DAG")
		}
	}

	if missing := rootsWithoutInterval(g, records); len(missing) > 0 {
		return RescheduleSummary{}, &RootsWithoutIntervalError{Tables: missing}
	}

	commit, err := gitlog.Head(ctx, opts.ViewsRoot)
	switch {
	case err == nil:
		last, lastErr := store.LastProcessedCommit(ctx)
		if lastErr != nil {
			return RescheduleSummary{}, &GitError{Err: lastErr}
		}
		if commit != "" && commit == last {
			if logger != nil {
				logger.WithField("commit", commit).WithField("log", "skip").Info("reschedule skipped: head commit already processed")
			}
			return RescheduleSummary{Skipped: true}, nil
		}
	case errors.Is(err, gitlog.ErrNotAGitRepo):
		commit = ""
	default:
		return RescheduleSummary{}, &GitError{Err: err}
	}

	before, err := store.ExistingQueries(ctx)
	if err != nil {
		return RescheduleSummary{}, err
	}

	upserts := make([]schedule.UpsertRecord, 0, len(records))
	for _, r := range records {
		mins, err := interval.Parse(r.IntervalRaw)
		if err != nil {
			return RescheduleSummary{}, err
		}

		cfg, err := config.MergeTableConfig(opts.ViewsRoot, r.Name)
		if err != nil {
			return RescheduleSummary{}, err
		}
		if err := validateConfigFields(r, cfg); err != nil {
			return RescheduleSummary{}, err
		}

		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return RescheduleSummary{}, err
		}

		upserts = append(upserts, schedule.UpsertRecord{
			Name:     r.Name.String(),
			Query:    r.Query,
			Interval: mins,
			Config:   string(cfgJSON),
		})
	}

	summary := diffSummary(before, upserts)

	if err := store.UpsertTables(ctx, upserts, commit); err != nil {
		return RescheduleSummary{}, err
	}
	return summary, nil
}

// rootsWithoutInterval returns the names of every in-degree-0 node
// whose record carries no interval.
func rootsWithoutInterval(g *graph.Graph, records []view.Record) []string {
	byName := make(map[string]view.Record, len(records))
	for _, r := range records {
		byName[r.Name.String()] = r
	}

	var missing []string
	for _, root := range g.Roots() {
		if byName[root].IntervalRaw == nil {
			missing = append(missing, root)
		}
	}
	return missing
}

// validateConfigFields implements the ConfigFieldError check: a
// declared distkey/sortkey must textually appear in its table's
// materializing query.
func validateConfigFields(r view.Record, cfg config.TableConfig) error {
	if cfg.DistKey != nil && !strings.Contains(r.Query, *cfg.DistKey) {
		return &ConfigFieldError{Table: r.Name.String(), Field: "distkey", Value: *cfg.DistKey}
	}
	if cfg.SortKey != nil && !strings.Contains(r.Query, *cfg.SortKey) {
		return &ConfigFieldError{Table: r.Name.String(), Field: "sortkey", Value: *cfg.SortKey}
	}
	return nil
}

// diffSummary classifies each upsert against the store's prior state:
// absent -> inserted, present-but-different -> changed.
func diffSummary(before map[string]schedule.UpsertRecord, upserts []schedule.UpsertRecord) RescheduleSummary {
	var s RescheduleSummary
	for _, u := range upserts {
		prior, ok := before[u.Name]
		switch {
		case !ok:
			s.Inserted = append(s.Inserted, u.Name)
		case prior.Query != u.Query || prior.Config != u.Config || !intPtrEqual(prior.Interval, u.Interval):
			s.Changed = append(s.Changed, u.Name)
		}
	}
	return s
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// String renders s the way an operator reading engine logs expects
// to see it.
func (s RescheduleSummary) String() string {
	if s.Skipped {
		return "reschedule skipped: head commit already processed"
	}
	if len(s.Inserted) == 0 && len(s.Changed) == 0 {
		return "reschedule: no changes"
	}
	return fmt.Sprintf("reschedule: %d inserted (%s), %d changed (%s)",
		len(s.Inserted), strings.Join(s.Inserted, ", "),
		len(s.Changed), strings.Join(s.Changed, ", "))
}
