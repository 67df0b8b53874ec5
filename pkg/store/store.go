/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package store is the durable, single-file SQLite store shared by every
// gateway loop. All writes go through Update, which runs one IMMEDIATE
// transaction; reads go through View for a consistent snapshot.
package store

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/carverauto/edgesync/pkg/logger"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Store owns every persisted row. Components reach it only through Tx methods.
type Store struct {
	pool       *pool
	path       string
	logger     logger.Logger
	now        func() time.Time
	maxRetries int
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for row timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens (creating if needed) the database file and migrates the schema.
func Open(ctx context.Context, cfg Config, log logger.Logger, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p, err := openPool(cfg.Path, cfg.PoolSize, time.Duration(cfg.BusyTimeout), log)
	if err != nil {
		return nil, err
	}

	s := &Store{
		pool:       p,
		path:       cfg.Path,
		logger:     log,
		now:        time.Now,
		maxRetries: cfg.MaxBusyRetries,
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(ctx); err != nil {
		_ = p.close()

		return nil, err
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Dir returns the directory holding the database file.
func (s *Store) Dir() string {
	return filepath.Dir(s.path)
}

// Close closes the pool, waiting for borrowed connections to be returned.
func (s *Store) Close() error {
	return s.pool.close()
}

func (s *Store) migrate(ctx context.Context) error {
	return s.Update(ctx, func(tx *Tx) error {
		if err := sqlitex.ExecuteScript(tx.conn, schema, nil); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}

		current := 0

		err := sqlitex.Execute(tx.conn, "SELECT COALESCE(MAX(version), 0) FROM schema_version", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				current = stmt.ColumnInt(0)
				return nil
			},
		})
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}

		if current >= schemaVersion {
			return nil
		}

		for v := max(current+1, 2); v <= schemaVersion; v++ {
			if err := sqlitex.ExecuteScript(tx.conn, migrations[v], nil); err != nil {
				return fmt.Errorf("migrate schema to version %d: %w", v, err)
			}
		}

		if err := tx.exec("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
			int64(schemaVersion), toMillis(tx.now)); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}

		s.logger.Info().Int("from", current).Int("to", schemaVersion).Msg("Database schema migrated")

		return nil
	})
}

// Update runs fn in a single IMMEDIATE transaction. Any error returned by fn
// (or a panic) rolls back every statement it issued. Transactions that fail
// with SQLITE_BUSY are retried, so fn must not have effects outside tx.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	return s.withBusyRetry(ctx, func() error {
		return s.update(ctx, fn)
	})
}

func (s *Store) update(ctx context.Context, fn func(tx *Tx) error) (err error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer endTransaction(&err)

	return fn(&Tx{conn: conn, now: s.now().UTC()})
}

// View runs fn in a read transaction, giving it a point-in-time snapshot.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) (err error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	endTransaction := sqlitex.Transaction(conn)
	defer endTransaction(&err)

	return fn(&Tx{conn: conn, now: s.now().UTC()})
}

// Tx is an open transaction. It must not be used after the Update or View
// callback that received it returns.
type Tx struct {
	conn *sqlite.Conn
	now  time.Time
}

// Now is the timestamp fixed at the start of the transaction.
func (tx *Tx) Now() time.Time {
	return tx.now
}

func (tx *Tx) exec(query string, args ...any) error {
	return sqlitex.Execute(tx.conn, query, &sqlitex.ExecOptions{Args: args})
}

func (tx *Tx) query(query string, fn func(stmt *sqlite.Stmt) error, args ...any) error {
	return sqlitex.Execute(tx.conn, query, &sqlitex.ExecOptions{Args: args, ResultFunc: fn})
}

func (tx *Tx) changes() int {
	return tx.conn.Changes()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms).UTC()
}

func nullableMillis(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}

	return t.UTC().UnixMilli()
}

func columnTimePtr(stmt *sqlite.Stmt, col int) *time.Time {
	if stmt.ColumnIsNull(col) {
		return nil
	}

	t := fromMillis(stmt.ColumnInt64(col))

	return &t
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}

	return 0
}
