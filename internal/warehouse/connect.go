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

// Package warehouse emits the SQL that drives the atomic table-swap
// protocol, snapshot retention, and dependent-view rewrite against a
// Redshift-like analytical warehouse (spec.G). It emits SQL, not
// code: the exported functions that take a *sql.DB issue statements over
// it and return the warehouse's own errors, most of them wrapped into
// the creation-error taxonomy from spec.§7; KeyClauses,
// AppendMissingKeyClauses and GrantStatement only build SQL text.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/duro-sh/duro/internal/config"
)

// TableCreationError wraps a warehouse programming error encountered
// while materializing a table, carrying the table name per spec.§7.
type TableCreationError struct {
	Table string
	Err   error
}

func (e *TableCreationError) Error() string {
	return fmt.Sprintf("creating table %s: %v", e.Table, e.Err)
}

func (e *TableCreationError) Unwrap() error { return e.Err }

// ConnectionError is raised when the warehouse cannot be reached at
// all; its message doubles as the notifier title per spec.§7.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return e.Err.Error() }
func (e *ConnectionError) Unwrap() error { return e.Err }

// Open connects to the warehouse, retrying transient failures with a
// bounded exponential backoff in place of the teacher's goto-based
// retry loop (internal/util/stdpool/my.go), answering the "Needs
// retry." TODOs left on every warehouse call in the teacher's own
// resolved_table.go.
func Open(ctx context.Context, cfg config.Warehouse) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=require",
		cfg.Host, cfg.Port, cfg.DB, cfg.User, cfg.Password)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &ConnectionError{Err: errors.Wrap(err, "opening warehouse connection")}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	pingErr := backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, policy)
	if pingErr != nil {
		db.Close()
		return nil, &ConnectionError{Err: errors.Wrap(pingErr, "pinging warehouse")}
	}

	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}
