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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/duro-sh/duro/internal/config"
	"github.com/duro-sh/duro/internal/engine"
	"github.com/duro-sh/duro/internal/stopper"
)

const shutdownGrace = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the poll loop forever, rebuilding stale tables (spec.J)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	loop, cleanup, err := engine.InitializeLoop(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	sc := stopper.WithContext(cmd.Context())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		sc.Stop(shutdownGrace)
	}()

	return loop.Run(sc)
}
