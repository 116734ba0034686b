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

// Package gitlog reads the current commit hash of a view tree, when
// it is backed by a git checkout, so the scheduler entry (spec.K) can
// skip a reschedule pass whose head commit was already processed.
package gitlog

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotAGitRepo is returned by Head when root has no .git directory.
var ErrNotAGitRepo = errors.New("view tree is not a git checkout")

// Head returns the current commit hash of the git checkout rooted at
// root, or ErrNotAGitRepo if root has no .git directory (the engine
// treats that as "not driven by git", not an error).
func Head(ctx context.Context, root string) (string, error) {
	if _, err := os.Stat(filepath.Join(root, ".git")); err != nil {
		return "", ErrNotAGitRepo
	}

	cmd := exec.CommandContext(ctx, "git", "-C", root, "rev-parse", "HEAD")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", errors.Wrap(err, "reading git HEAD")
	}
	return strings.TrimSpace(out.String()), nil
}
