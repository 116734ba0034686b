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

// Package metrics declares the prometheus collectors shared across
// duro's components. Serving /metrics over HTTP is the dashboard's
// job (out of scope, spec.§1); this package only registers the
// collectors so an external scraper can be wired up later.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LatencyBuckets covers sub-second rebuilds through multi-hour backfills.
var LatencyBuckets = []float64{.1, .5, 1, 5, 15, 60, 300, 900, 3600, 14400}

// TableLabels is the common label set for per-table collectors.
var TableLabels = []string{"table"}

var (
	// WalkerRunDurations observes the wall-clock time of a single
	// create_table invocation (walker.I).
	WalkerRunDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "duro_walker_run_duration_seconds",
		Help:    "time spent materializing a single table",
		Buckets: LatencyBuckets,
	}, TableLabels)

	// WalkerRunErrors counts the creation errors the walker catches, per
	// table and error type.
	WalkerRunErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duro_walker_run_errors_total",
		Help: "number of failed table materializations",
	}, append(TableLabels, "kind"))

	// WarehouseSwaps counts successful replace_old_table invocations.
	WarehouseSwaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duro_warehouse_swaps_total",
		Help: "number of atomic table swaps performed",
	}, TableLabels)

	// SnapshotsTaken counts make_snapshot calls that actually inserted
	// a new generation.
	SnapshotsTaken = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duro_snapshots_taken_total",
		Help: "number of snapshot generations appended",
	}, TableLabels)

	// NotifierSuppressed counts notifications suppressed by the
	// dedup window (spec.§6 Notifier).
	NotifierSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duro_notifier_suppressed_total",
		Help: "number of notifications suppressed as duplicates",
	}, []string{"class"})
)
