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

// Package logging mints structured, per-action loggers. Each logger
// writes to its own rotating file under a configured logs directory,
// replacing the original duro's logzero-per-module convention.
package logging

import (
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Factory mints named *logrus.Logger instances that all share the same
// logs directory and rotation policy.
type Factory struct {
	dir    string
	stdout bool
}

// NewFactory returns a Factory rooted at dir. If stdout is true,
// loggers write to stderr instead of a file, for the `create-single-table`
// operator verb (spec.SUPPLEMENTED §1) which runs attended.
func NewFactory(dir string, stdout bool) *Factory {
	return &Factory{dir: dir, stdout: stdout}
}

// Logger returns a logger named after an action, e.g. the table
// being rebuilt, writing to "<dir>/<name>.log" with 1MB rotation,
// 5 backups retained — the Go-idiomatic equivalent of the original's
// `logzero.setup_logger(name, logfile, maxBytes=1_000_000)`.
func (f *Factory) Logger(name string) *log.Logger {
	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	logger.SetLevel(log.InfoLevel)

	if f.stdout {
		return logger
	}

	logger.SetOutput(&lumberjack.Logger{
		Filename:   filepath.Join(f.dir, name+".log"),
		MaxSize:    1, // megabytes
		MaxBackups: 5,
		Compress:   true,
	})
	return logger
}

// Action logs the starting/succeeded/failed triplet described in
// spec.O: "<table>: <action>: starting|succeeded|failed".
func Action(logger *log.Entry, action, phase string) {
	logger.WithField("action", action).Info(phase)
}
