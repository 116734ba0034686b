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

// Package walker is the recursive, waiting-aware, mean-timeout-bounded
// rematerialization driver (spec.I) — the heart of the engine.
package walker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/duro-sh/duro/internal/config"
	"github.com/duro-sh/duro/internal/graph"
	"github.com/duro-sh/duro/internal/ident"
	"github.com/duro-sh/duro/internal/logging"
	"github.com/duro-sh/duro/internal/metrics"
	"github.com/duro-sh/duro/internal/notifier"
	"github.com/duro-sh/duro/internal/processor"
	"github.com/duro-sh/duro/internal/schedule"
	"github.com/duro-sh/duro/internal/timestamps"
	"github.com/duro-sh/duro/internal/view"
	"github.com/duro-sh/duro/internal/warehouse"
)

// waitingStaleThreshold bounds how long a "waiting" flag may stand
// before a second caller treats it as abandoned, per spec.§5.
const waitingStaleThreshold = 2 * time.Hour

// waitPollInterval is how often wait_till_finished re-checks a
// running table, per spec.I.
const waitPollInterval = 10 * time.Second

// QueryTimeoutError is raised when a rebuild exceeds its
// mean-derived deadline, per spec.I/spec.§7.
type QueryTimeoutError struct {
	Table    string
	Deadline time.Duration
}

func (e *QueryTimeoutError) Error() string {
	return fmt.Sprintf("table %s: exceeded deadline %s", e.Table, e.Deadline)
}

// MaterializationError wraps a per-table creation error with the
// table's name. createTable does not construct it: its errors reach
// handleCreationError unwrapped.
type MaterializationError struct {
	Table string
	Err   error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("materializing %s: %v", e.Table, e.Err)
}
func (e *MaterializationError) Unwrap() error { return e.Err }

// Deps bundles the collaborators the walker drives.
type Deps struct {
	Store         *schedule.Store
	Graph         *graph.Graph
	Records       map[string]view.Record // table name -> freshly loaded view record
	ViewsRoot     string
	Notify        notifier.Notifier
	Logs          *logging.Factory
	ConnectTarget func(ctx context.Context) (*sql.DB, error)
	ProcessorDeps processor.Deps
}

// Walker drives create_tree/create_table over a dependency graph.
type Walker struct {
	deps Deps
}

// New returns a Walker over deps.
func New(deps Deps) *Walker {
	return &Walker{deps: deps}
}

// CreateSingleTable runs create_table (spec.I.2) once for name,
// bypassing the freshness/waiting/recursion machinery of CreateTree —
// the `duro create-single-table` operator verb always rebuilds,
// regardless of schedule state. Unlike CreateTree it does not swallow
// the resulting error: there are no siblings whose progress a caught
// error would otherwise protect.
func (w *Walker) CreateSingleTable(ctx context.Context, name string) error {
	row, err := w.deps.Store.LoadTableDetails(ctx, name)
	if err != nil {
		return err
	}
	return w.createTable(ctx, row, uuid.NewString())
}

// CreateTree is the recursive driver named in spec.I. Creation-class
// errors are caught here: reset_start is called, the notifier fires,
// and recursion continues with siblings. Only context cancellation
// and schedule-store failures while setting the waiting flag propagate
// to the caller.
func (w *Walker) CreateTree(ctx context.Context, root string, intervalHint *int, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	runID := uuid.NewString()

	row, err := w.deps.Store.LoadTableDetails(ctx, root)
	if err != nil {
		return w.handleCreationError(ctx, root, runID, err)
	}

	effectiveInterval := row.Interval
	if effectiveInterval == nil {
		effectiveInterval = intervalHint
	}

	should, err := w.shouldBeCreated(ctx, row)
	if err != nil {
		return w.handleCreationError(ctx, root, runID, err)
	}
	if !should {
		return nil
	}

	children, err := w.deps.Graph.Children(root)
	if err != nil {
		return w.handleCreationError(ctx, root, runID, err)
	}

	if err := w.deps.Store.MarkWaiting(ctx, root, true); err != nil {
		return err
	}
	for _, child := range children {
		if err := w.CreateTree(ctx, child, effectiveInterval, depth+1); err != nil {
			w.deps.Store.MarkWaiting(ctx, root, false) //nolint:errcheck
			return err
		}
	}
	if err := w.deps.Store.MarkWaiting(ctx, root, false); err != nil {
		return err
	}

	if err := w.createTable(ctx, row, runID); err != nil {
		return w.handleCreationError(ctx, root, runID, err)
	}
	return nil
}

// handleCreationError implements spec.§7's propagation policy for
// creation-class errors: reset_start, log, notify, and swallow so
// recursion continues. Context cancellation is the one thing that
// still propagates. runID ties this failure line to the same rebuild
// the "starting" line in createTable (if reached) carries.
func (w *Walker) handleCreationError(ctx context.Context, table, runID string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var logger *log.Logger
	if w.deps.Logs != nil {
		logger = w.deps.Logs.Logger(table)
	}

	if resetErr := w.deps.Store.ResetStart(ctx, table); resetErr != nil && logger != nil {
		logger.WithError(resetErr).Warn("reset_start failed")
	}

	kind := fmt.Sprintf("%T", err)
	metrics.WalkerRunErrors.WithLabelValues(table, kind).Inc()

	if logger != nil {
		logger.WithError(err).WithField("run_id", runID).WithField("action", "create_table").Warn("failed")
	}

	title := table
	var connErr *warehouse.ConnectionError
	if asConnectionError(err, &connErr) {
		title = connErr.Error()
	}

	if w.deps.Notify != nil {
		if notifyErr := w.deps.Notify.Notify(ctx, err.Error(), title, notifier.ClassFailure); notifyErr != nil && logger != nil {
			logger.WithError(notifyErr).Warn("notifier delivery failed")
		}
	}
	return nil
}

func asConnectionError(err error, target **warehouse.ConnectionError) bool {
	for err != nil {
		if ce, ok := err.(*warehouse.ConnectionError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// shouldBeCreated implements spec.I.2.
func (w *Walker) shouldBeCreated(ctx context.Context, row *schedule.Row) (bool, error) {
	waiting, waitingTooLong, err := w.deps.Store.IsWaiting(ctx, row.Name, waitingStaleThreshold)
	if err != nil {
		return false, err
	}
	if waiting && !waitingTooLong {
		return false, nil
	}
	if waitingTooLong {
		if err := w.deps.Store.MarkWaiting(ctx, row.Name, false); err != nil {
			return false, err
		}
	}

	running, err := w.deps.Store.IsRunning(ctx, row.Name)
	if err != nil {
		return false, err
	}
	if running {
		finished, err := w.waitTillFinished(ctx, row.Name)
		if err != nil {
			return false, err
		}
		if finished {
			return false, nil
		}
		// Else: timed out and reset; continue as if not running.
	}

	if row.Force {
		return true, nil
	}
	if row.LastCreated == nil || row.Interval == nil {
		return true, nil
	}

	fresh := float64(time.Now().Unix()-*row.LastCreated)/60 <= float64(*row.Interval)
	return !fresh, nil
}

// waitTillFinished implements spec.I's wait_till_finished: polling
// every 10s for a running table to clear, bounded by 5x its mean
// duration.
func (w *Walker) waitTillFinished(ctx context.Context, name string) (bool, error) {
	mean, err := w.deps.Store.GetAverageCompletionTime(ctx, name)
	if err != nil {
		return false, err
	}
	if mean == nil {
		return false, w.deps.Store.ResetStart(ctx, name)
	}

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(waitPollInterval):
		}

		running, err := w.deps.Store.GetTimeRunning(ctx, name)
		if err != nil {
			return false, err
		}
		if running == nil {
			return true, nil
		}
		if running.Seconds() > 5**mean {
			return false, w.deps.Store.ResetStart(ctx, name)
		}
	}
}

// createTable implements spec.I's create_table: open a connection,
// materialize (directly or via the processor), test, swap, snapshot,
// and record.
func (w *Walker) createTable(ctx context.Context, row *schedule.Row, runID string) error {
	rec := timestamps.New()
	start := time.Now()
	rec.Log(timestamps.PhaseStart, start)

	var logger *log.Logger
	if w.deps.Logs != nil {
		logger = w.deps.Logs.Logger(row.Name)
		logging.Action(logger.WithField("table", row.Name).WithField("run_id", runID), "create_table", "starting")
	}

	if err := w.deps.Store.LogStart(ctx, row.Name); err != nil {
		return err
	}

	deadline := ctx
	var cancel context.CancelFunc
	var limit time.Duration
	if row.Mean != nil {
		limit = time.Duration(*row.Mean*5) * time.Second
		deadline, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	table, err := ident.Parse(row.Name)
	if err != nil {
		return err
	}

	db, err := w.deps.ConnectTarget(deadline)
	if err != nil {
		return err
	}
	defer db.Close()
	rec.Log(timestamps.PhaseConnect, time.Now())

	cfg, err := config.MergeTableConfig(w.deps.ViewsRoot, table)
	if err != nil {
		return err
	}

	rv := w.deps.Records[row.Name]

	if deadline.Err() != nil {
		return &QueryTimeoutError{Table: row.Name, Deadline: limit}
	}

	if rv.ProcessorPath != "" {
		deps := w.deps.ProcessorDeps
		deps.SourceDB = db
		deps.TargetDB = db
		if err := processor.Run(deadline, deps, table, rv.ProcessorSelect, row.Query, rv.ProcessorPath, rv.RequirementsPath, cfg, rec); err != nil {
			return err
		}
	} else {
		rec.Log(timestamps.PhaseSelect, time.Now())
		if err := warehouse.CreateTempTable(deadline, db, table, cfg, row.Query); err != nil {
			return err
		}
		rec.Log(timestamps.PhaseCreateTemp, time.Now())
	}

	if deadline.Err() != nil {
		return &QueryTimeoutError{Table: row.Name, Deadline: limit}
	}

	if err := warehouse.RunTests(deadline, db, row.Name, rv.TestQueries); err != nil {
		dropTemp := table.Suffixed("_duro_temp")
		db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, dropTemp)) //nolint:errcheck
		return err
	}
	rec.Log(timestamps.PhaseTests, time.Now())

	if err := warehouse.ReplaceOldTable(deadline, db, table); err != nil {
		return err
	}
	metrics.WarehouseSwaps.WithLabelValues(row.Name).Inc()
	rec.Log(timestamps.PhaseReplaceOld, time.Now())

	if err := warehouse.DropOldTable(deadline, db, table); err != nil {
		return err
	}
	rec.Log(timestamps.PhaseDropOld, time.Now())

	if cfg.SnapshotsIntervalMin != nil {
		storedFor := 0
		if cfg.SnapshotsStoredForMin != nil {
			storedFor = *cfg.SnapshotsStoredForMin
		}
		took, err := warehouse.MakeSnapshot(deadline, db, table, *cfg.SnapshotsIntervalMin, storedFor)
		if err != nil {
			return err
		}
		if took {
			metrics.SnapshotsTaken.WithLabelValues(row.Name).Inc()
		}
		rec.Log(timestamps.PhaseMakeSnapshot, time.Now())
	}

	duration, ok := rec.Duration()
	if !ok {
		duration = time.Since(start)
	}
	if err := w.deps.Store.UpdateLastCreated(ctx, row.Name, time.Now(), duration); err != nil {
		return err
	}
	metrics.WalkerRunDurations.WithLabelValues(row.Name).Observe(duration.Seconds())

	if logger != nil {
		logging.Action(logger.WithField("table", row.Name).WithField("run_id", runID), "create_table", "succeeded")
	}

	return w.deps.Store.LogTimestamps(ctx, row.Name, rec.AsEpochMap())
}
