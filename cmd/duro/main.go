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

// Command duro materializes a dependency tree of warehouse views on a
// schedule: reschedule reloads the view tree once, serve runs the
// poll loop forever, and create-single-table rebuilds one table for
// an operator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/duro-sh/duro/internal/config"
)

var configPath *string

var rootCmd = &cobra.Command{
	Use:           "duro",
	Short:         "materialize a tree of warehouse views on a schedule",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "duro: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	configPath = config.Bind(rootCmd.PersistentFlags())

	rootCmd.AddCommand(rescheduleCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(createSingleTableCmd)
	rootCmd.AddCommand(statusCmd)
}
