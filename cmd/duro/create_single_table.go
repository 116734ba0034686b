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

var (
	createSingleTableViews   string
	createSingleTableVerbose bool
)

// createSingleTableCmd is the operator verb from original_source's
// create_single_table.py, carried forward with its --views/-p and
// --verbose/-v flags (spec.I.2 run once, outside the schedule).
var createSingleTableCmd = &cobra.Command{
	Use:   "create-single-table <table>",
	Short: "rebuild one table once, bypassing the schedule (spec.I.2)",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreateSingleTable,
}

func init() {
	createSingleTableCmd.Flags().StringVarP(&createSingleTableViews, "views", "p", "",
		"override the [main] views path from config.conf")
	createSingleTableCmd.Flags().BoolVarP(&createSingleTableVerbose, "verbose", "v", false, "verbose logging")
}

func runCreateSingleTable(cmd *cobra.Command, args []string) error {
	table := args[0]

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if createSingleTableViews != "" {
		cfg.Main.Views = createSingleTableViews
	}
	if createSingleTableVerbose {
		fmt.Fprintf(cmd.OutOrStdout(), "using views path: %s\n", cfg.Main.Views)
	}

	store, cleanup, err := engine.InitializeStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	gs, err := engine.ProvideGraphState(cfg)
	if err != nil {
		return err
	}
	if createSingleTableVerbose {
		if rec, ok := gs.Records[table]; ok {
			fmt.Fprintf(cmd.OutOrStdout(), "loaded record for %s (processor=%t)\n", table, rec.ProcessorPath != "")
		}
	}

	logs := logging.NewFactory(cfg.Main.Logs, createSingleTableVerbose)
	notify := engine.ProvideNotifier(cfg)
	objStore := engine.ProvideObjectStore(cfg)
	connectTarget := engine.ProvideConnectTarget(cfg)

	w := engine.ProvideWalker(store, gs, cfg, notify, logs, connectTarget, objStore)

	return w.CreateSingleTable(cmd.Context(), table)
}
