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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duro-sh/duro/internal/graph"
	"github.com/duro-sh/duro/internal/notifier"
	"github.com/duro-sh/duro/internal/schedule"
	"github.com/duro-sh/duro/internal/walker"
)

type stubNotifier struct{ titles []string }

func (n *stubNotifier) Notify(_ context.Context, _, title string, _ notifier.Class) error {
	n.titles = append(n.titles, title)
	return nil
}

func TestRunClearsCrashedStartsAndExitsOnCancel(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertTables(context.Background(), []schedule.UpsertRecord{
		{Name: "a.x", Query: "select 1", Config: "{}"},
	}, ""))
	require.NoError(t, s.LogStart(context.Background(), "a.x"))

	loop := &Loop{Store: s, Walker: walker.New(walker.Deps{Store: s, Graph: graph.New(nil)})}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(runCtx) }()

	require.Eventually(t, func() bool {
		row, err := s.LoadTableDetails(context.Background(), "a.x")
		return err == nil && row.Started == nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}
}

func TestSweepNotifiesGenericallyOnStoreFailure(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	n := &stubNotifier{}
	loop := &Loop{Store: s, Walker: walker.New(walker.Deps{Store: s, Graph: graph.New(nil)}), Notify: n}

	err := loop.sweep(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, n.titles)
}

func TestNewViewWatcherDefaultsDebounce(t *testing.T) {
	s := openTestStore(t)
	w := NewViewWatcher(t.TempDir(), s, nil, RescheduleOptions{})
	assert.Equal(t, 2*time.Second, w.debounce)
}

func TestAddRecursiveWatchesSubdirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, addRecursive(watcher, root))
	assert.Contains(t, watcher.WatchList(), root)
	assert.Contains(t, watcher.WatchList(), filepath.Join(root, "a", "b"))
}
