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
	"context"
	"database/sql"
	"path/filepath"

	"github.com/google/wire"
	log "github.com/sirupsen/logrus"

	"github.com/duro-sh/duro/internal/config"
	"github.com/duro-sh/duro/internal/graph"
	"github.com/duro-sh/duro/internal/lock"
	"github.com/duro-sh/duro/internal/logging"
	"github.com/duro-sh/duro/internal/notifier"
	"github.com/duro-sh/duro/internal/objectstore"
	"github.com/duro-sh/duro/internal/processor"
	"github.com/duro-sh/duro/internal/schedule"
	"github.com/duro-sh/duro/internal/view"
	"github.com/duro-sh/duro/internal/walker"
	"github.com/duro-sh/duro/internal/warehouse"
)

// Set is used by Wire.
var Set = wire.NewSet(
	ProvideStore,
	ProvideLock,
	ProvideLogging,
	ProvideNotifier,
	ProvideObjectStore,
	ProvideConnectTarget,
	ProvideGraphState,
	ProvideWalker,
	ProvideLoop,
)

// ProvideStore opens the schedule store named by cfg.Main.DB.
func ProvideStore(ctx context.Context, cfg *config.Engine) (*schedule.Store, func(), error) {
	s, err := schedule.Open(ctx, cfg.Main.DB)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

// ProvideLock builds the single-writer lock guarding cfg.Main.DB.
func ProvideLock(cfg *config.Engine) *lock.SingleWriter {
	return lock.New(cfg.Main.DB)
}

// ProvideLogging builds the per-table logger factory rooted at
// cfg.Main.Logs. This backs the unattended serve daemon, so loggers
// write rotating files rather than stderr — see logging.NewFactory's
// doc comment.
func ProvideLogging(cfg *config.Engine) *logging.Factory {
	return logging.NewFactory(cfg.Main.Logs, false)
}

// ProvideNotifier builds the webhook notifier from the [notifier]
// config section.
func ProvideNotifier(cfg *config.Engine) notifier.Notifier {
	return notifier.New(cfg.Notifier.URL, cfg.Notifier.Channels)
}

// ProvideObjectStore builds the object-store client from the [store]
// config section.
func ProvideObjectStore(cfg *config.Engine) *objectstore.Store {
	return objectstore.New(cfg.Store)
}

// ProvideConnectTarget returns the closure Walker uses to open a fresh
// warehouse connection per table run.
func ProvideConnectTarget(cfg *config.Engine) func(context.Context) (*sql.DB, error) {
	return func(ctx context.Context) (*sql.DB, error) {
		return warehouse.Open(ctx, cfg.Warehouse)
	}
}

// graphState is the boot-time view-tree snapshot the Walker recurses
// over. It is built once, by ProvideGraphState, when the serve loop or
// create-single-table is assembled; a view edited mid-serve only takes effect
// in the walker's in-memory graph after the process restarts (see
// DESIGN.md's Open Question on this).
type graphState struct {
	Graph   *graph.Graph
	Records map[string]view.Record
}

// ProvideGraphState loads the view tree and runs the spec.L pre-flight
// checks before handing the graph to the walker.
func ProvideGraphState(cfg *config.Engine) (*graphState, error) {
	records, diag, err := view.Load(cfg.Main.Views)
	if err != nil {
		return nil, err
	}
	if err := runChecks(records, diag); err != nil {
		return nil, err
	}

	byName := make(map[string]view.Record, len(records))
	for _, r := range records {
		byName[r.Name.String()] = r
	}
	return &graphState{Graph: graph.New(records), Records: byName}, nil
}

// ProvideWalker assembles the walker.Deps bundle from the already
// provided collaborators.
func ProvideWalker(
	store *schedule.Store,
	gs *graphState,
	cfg *config.Engine,
	notify notifier.Notifier,
	logs *logging.Factory,
	connectTarget func(context.Context) (*sql.DB, error),
	objStore *objectstore.Store,
) *walker.Walker {
	return walker.New(walker.Deps{
		Store:         store,
		Graph:         gs.Graph,
		Records:       gs.Records,
		ViewsRoot:     cfg.Main.Views,
		Notify:        notify,
		Logs:          logs,
		ConnectTarget: connectTarget,
		ProcessorDeps: processor.Deps{
			SandboxRoot:  filepath.Join(filepath.Dir(cfg.Main.DB), "sandbox"),
			ObjectFolder: cfg.Store.Folder,
			Store:        objStore,
		},
	})
}

// ProvideLoop assembles the top-level serve loop, including its
// file-watcher-driven reschedule trigger.
func ProvideLoop(store *schedule.Store, w *walker.Walker, notify notifier.Notifier, logs *logging.Factory, cfg *config.Engine) *Loop {
	var logger *log.Logger
	if logs != nil {
		logger = logs.Logger("engine")
	}

	opts := RescheduleOptions{ViewsRoot: cfg.Main.Views, GraphPath: cfg.Main.Graph}
	return &Loop{
		Store:   store,
		Walker:  w,
		Notify:  notify,
		Logs:    logger,
		Watcher: NewViewWatcher(cfg.Main.Views, store, logger, opts),
	}
}
