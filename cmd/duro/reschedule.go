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

	"github.com/spf13/cobra"

	"github.com/duro-sh/duro/internal/config"
	"github.com/duro-sh/duro/internal/engine"
	"github.com/duro-sh/duro/internal/logging"
)

var rescheduleStrict bool

var rescheduleCmd = &cobra.Command{
	Use:   "reschedule",
	Short: "reload the view tree and update the schedule store (spec.K)",
	RunE:  runReschedule,
}

func init() {
	rescheduleCmd.Flags().BoolVar(&rescheduleStrict, "strict", false,
		"fail the pass instead of warning when the dependency graph has a cycle")
}

func runReschedule(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	store, cleanup, err := engine.InitializeStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	logger := logging.NewFactory(cfg.Main.Logs, false).Logger("reschedule")
	summary, err := engine.Reschedule(cmd.Context(), store, logger, engine.RescheduleOptions{
		ViewsRoot: cfg.Main.Views,
		GraphPath: cfg.Main.Graph,
		StrictDAG: rescheduleStrict,
	})
	if err != nil {
		return err
	}

	fmt.Println(summary.String())
	return nil
}
