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

// Package lock enforces the single-writer guarantee spec.§5 requires
// across a long-running engine instance: at most one process may hold
// the schedule store open for writing at a time.
package lock

import (
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// ErrHeld is returned by Acquire when another process already holds
// the lock.
var ErrHeld = errors.New("schedule store is locked by another duro process")

// SingleWriter wraps a flock.Flock on a sidecar ".lock" file next to
// the schedule store database file.
type SingleWriter struct {
	fl *flock.Flock
}

// New returns a SingleWriter for the store at dbPath, locking
// "<dbPath>.lock".
func New(dbPath string) *SingleWriter {
	return &SingleWriter{fl: flock.New(dbPath + ".lock")}
}

// Acquire takes an exclusive, non-blocking lock. It returns ErrHeld if
// another process is already running against this store, matching the
// Non-goal that rules out multi-writer horizontal scaling.
func (s *SingleWriter) Acquire() error {
	ok, err := s.fl.TryLock()
	if err != nil {
		return errors.Wrap(err, "acquiring schedule store lock")
	}
	if !ok {
		return ErrHeld
	}
	return nil
}

// Release gives up the lock.
func (s *SingleWriter) Release() error {
	return s.fl.Unlock()
}
