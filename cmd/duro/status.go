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

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/duro-sh/duro/internal/config"
	"github.com/duro-sh/duro/internal/engine"
)

// statusCmd is a read-only operator verb: it reports what the
// schedule store knows about one table without touching the
// warehouse or the view tree.
var statusCmd = &cobra.Command{
	Use:   "status <table>",
	Short: "print a table's schedule-store state",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	table := args[0]

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	store, cleanup, err := engine.InitializeStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	row, err := store.LoadTableDetails(cmd.Context(), table)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "table:        %s\n", row.Name)
	fmt.Fprintf(out, "times run:    %d\n", row.TimesRun)
	fmt.Fprintf(out, "force:        %t\n", row.Force)
	fmt.Fprintf(out, "last created: %s\n", formatUnix(row.LastCreated))
	fmt.Fprintf(out, "started:      %s\n", formatUnix(row.Started))
	fmt.Fprintf(out, "waiting:      %s\n", formatUnix(row.Waiting))
	fmt.Fprintf(out, "deleted:      %s\n", formatUnix(row.Deleted))

	mean, err := store.GetAverageCompletionTime(cmd.Context(), table)
	if err != nil {
		return err
	}
	if mean == nil {
		fmt.Fprintf(out, "mean runtime: n/a (no completed run yet)\n")
	} else {
		fmt.Fprintf(out, "mean runtime: %s\n", time.Duration(*mean*float64(time.Second)))
	}

	return nil
}

func formatUnix(ts *int64) string {
	if ts == nil {
		return "-"
	}
	return time.Unix(*ts, 0).Format(time.RFC3339)
}
