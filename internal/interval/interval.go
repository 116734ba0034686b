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

// Package interval parses the "<int><unit>" recomputation-interval
// strings that appear in view filenames, e.g. "24h" or "1w".
package interval

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidInterval is returned for any string that is not
// "<int><unit>" with unit in {m,h,d,w}.
var ErrInvalidInterval = errors.New("invalid interval")

// unitMinutes maps a case-insensitive unit letter to its length in
// minutes.
var unitMinutes = map[byte]int{
	'm': 1,
	'h': 60,
	'd': 1440,
	'w': 10080,
}

// Parse converts a string like "1h" into a number of minutes. A nil
// input returns a nil output: absence propagates rather than erroring,
// matching spec.A's "absent input -> absent output" rule.
func Parse(raw *string) (*int, error) {
	if raw == nil {
		return nil, nil
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return nil, nil
	}

	unit := s[len(s)-1] | 0x20 // lowercase the ASCII letter
	mins, ok := unitMinutes[unit]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidInterval, "%q", *raw)
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidInterval, "%q", *raw)
	}

	total := n * mins
	return &total, nil
}

// MustParse is Parse, panicking on error. Reserved for tests and
// constants.
func MustParse(raw string) int {
	v, err := Parse(&raw)
	if err != nil {
		panic(err)
	}
	return *v
}
