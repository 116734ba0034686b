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

// Package objectstore is the narrow capability interface the
// processor runner (spec.H) uses to publish one staged file per run.
// The HTTP dashboard, bucket lifecycle policy, and credential
// provisioning are external collaborators per spec.§1; this package
// only issues the single-shot PUT.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/duro-sh/duro/internal/config"
	"github.com/duro-sh/duro/internal/ident"
)

// Store uploads processor output files via a single HTTPS PUT.
type Store struct {
	cfg    config.Store
	client *http.Client
}

// New returns a Store configured from the [store] section of
// config.conf.
func New(cfg config.Store) *Store {
	return &Store{cfg: cfg, client: &http.Client{Timeout: 5 * time.Minute}}
}

// Path renders the object key for table at runTime, per spec.§6:
// "<folder>/<table>-<YYYY-MM-DD-HH-MM>.csv[.gzip]".
func Path(folder string, table ident.Table, runTime time.Time, gzip bool) string {
	ext := ".csv"
	if gzip {
		ext = ".csv.gzip"
	}
	return fmt.Sprintf("%s/%s-%s%s", folder, table.String(), runTime.Format("2006-01-02-15-04"), ext)
}

// Put uploads the contents of body to key, returning the object's
// fully qualified URL on success.
func (s *Store) Put(ctx context.Context, key string, body io.Reader) (string, error) {
	url := fmt.Sprintf("%s/%s/%s", s.cfg.Endpoint, s.cfg.Bucket, key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return "", errors.Wrapf(err, "building PUT request for %s", key)
	}
	if s.cfg.Key != "" {
		req.SetBasicAuth(s.cfg.Key, s.cfg.Secret)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "uploading %s", key)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", errors.Errorf("uploading %s: unexpected status %s", key, resp.Status)
	}
	return url, nil
}
