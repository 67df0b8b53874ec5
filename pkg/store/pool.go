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

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/carverauto/edgesync/pkg/logger"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// pool is a fixed-size pool of SQLite connections that all carry the same
// pragmas. Individual connections are not safe for concurrent use: each
// goroutine takes its own and puts it back.
type pool struct {
	inner  *sqlitex.Pool
	logger logger.Logger
	path   string
}

func openPool(path string, size int, busyTimeout time.Duration, log logger.Logger) (*pool, error) {
	inner, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: size,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn, busyTimeout)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	log.Info().Str("path", path).Int("pool_size", size).Msg("SQLite pool opened")

	return &pool{inner: inner, logger: log, path: path}, nil
}

func (p *pool) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("take connection: %w", err)
	}

	return conn, nil
}

func (p *pool) put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

func (p *pool) close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error().Err(err).Str("path", p.path).Msg("SQLite pool close error")

		return fmt.Errorf("closing %s: %w", p.path, err)
	}

	p.logger.Info().Str("path", p.path).Msg("SQLite pool closed")

	return nil
}

// prepareConnection runs once per pooled connection on first use.
// WAL gives one writer with readers that are never blocked by its commit.
func prepareConnection(conn *sqlite.Conn, busyTimeout time.Duration) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-8192",
		"PRAGMA temp_store=MEMORY",
	}

	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}

	return nil
}
