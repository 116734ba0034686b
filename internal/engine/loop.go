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
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/duro-sh/duro/internal/notifier"
	"github.com/duro-sh/duro/internal/schedule"
	"github.com/duro-sh/duro/internal/stopper"
	"github.com/duro-sh/duro/internal/walker"
)

// pollInterval is the sleep between tables_to_create sweeps, spec.J.
const pollInterval = 30 * time.Second

// Loop is the top-level serve loop (spec.J): on boot it clears any
// started-but-never-finished runs from a prior crash, then forever
// lists stale tables and walks each one's tree.
type Loop struct {
	Store   *schedule.Store
	Walker  *walker.Walker
	Notify  notifier.Notifier
	Logs    *log.Logger
	Watcher *ViewWatcher // non-nil to reschedule on view-tree edits
}

// Run blocks until ctx is done, sweeping for stale tables every
// pollInterval. It does not watch a stopper.Context's Stopping signal;
// it returns once Stop has cancelled the context.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Store.ResetAllStarts(ctx); err != nil {
		return err
	}

	if l.Watcher != nil {
		sc, ok := ctx.(*stopper.Context)
		if ok {
			sc.Go(func() error { return l.Watcher.Run(sc) })
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if err := l.sweep(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// sweep runs one tables_to_create pass. Creation-class errors are
// already caught and notified inside Walker.CreateTree; what reaches
// here is either a context cancellation (propagated so Run can exit)
// or an unexpected failure of the store/walker plumbing itself, which
// gets a generic notification per spec.J and does not abort the loop.
func (l *Loop) sweep(ctx context.Context) error {
	roots, err := l.Store.TablesToCreate(ctx)
	if err != nil {
		l.notifyGeneric(ctx, err)
		return nil
	}

	for _, root := range roots {
		if err := l.Walker.CreateTree(ctx, root, nil, 1); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			l.notifyGeneric(ctx, fmt.Errorf("table %s: %w", root, err))
		}
	}
	return nil
}

func (l *Loop) notifyGeneric(ctx context.Context, err error) {
	if l.Logs != nil {
		l.Logs.WithError(err).Error("top-level loop encountered an unexpected error")
	}
	if l.Notify != nil {
		l.Notify.Notify(ctx, err.Error(), "duro: unexpected error", notifier.ClassFailure) //nolint:errcheck
	}
}

// ViewWatcher triggers a Reschedule whenever the view tree changes on
// disk, debounced so a burst of saves produces one pass.
type ViewWatcher struct {
	ViewsRoot string
	Store     *schedule.Store
	Logs      *log.Logger
	Options   RescheduleOptions
	debounce  time.Duration
}

// NewViewWatcher returns a watcher debounced by 2s, matching the
// teacher pack's own watch-mode debounce convention.
func NewViewWatcher(viewsRoot string, store *schedule.Store, logs *log.Logger, opts RescheduleOptions) *ViewWatcher {
	return &ViewWatcher{ViewsRoot: viewsRoot, Store: store, Logs: logs, Options: opts, debounce: 2 * time.Second}
}

// Run watches ViewsRoot recursively and reschedules on any write,
// until sc is stopping.
func (w *ViewWatcher) Run(sc *stopper.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addRecursive(watcher, w.ViewsRoot); err != nil {
		return err
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-sc.Stopping():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if w.Logs != nil {
				w.Logs.WithError(err).Warn("view tree watcher error")
			}
		case <-fire:
			if _, err := Reschedule(sc, w.Store, w.Logs, w.Options); err != nil && w.Logs != nil {
				w.Logs.WithError(err).Warn("reschedule triggered by file watcher failed")
			}
		}
	}
}

// addRecursive registers every directory under root with watcher,
// since fsnotify does not watch subtrees on its own.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
