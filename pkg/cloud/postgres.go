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

package cloud

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig configures the Postgres publisher.
type PostgresConfig struct {
	DSN      string `json:"dsn"`
	Table    string `json:"table"`
	MaxConns int32  `json:"max_conns"`
}

const createMessagesTable = `CREATE TABLE IF NOT EXISTS %s (
	message_id  TEXT PRIMARY KEY,
	topic       TEXT NOT NULL,
	payload     JSONB NOT NULL,
	priority    INTEGER NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresPublisher inserts messages into a table, ignoring ids it has seen.
type PostgresPublisher struct {
	pool   *pgxpool.Pool
	db     pgExecer
	insert string
}

// NewPostgresPublisher opens a pool and creates the table if needed.
func NewPostgresPublisher(ctx context.Context, cfg *PostgresConfig) (*PostgresPublisher, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn: %w", ErrMissingConfig)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	p, err := newPostgresPublisher(ctx, pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}

	p.pool = pool

	return p, nil
}

func newPostgresPublisher(ctx context.Context, db pgExecer, table string) (*PostgresPublisher, error) {
	if table == "" {
		table = "edge_messages"
	}

	ident := pgx.Identifier{table}.Sanitize()

	if _, err := db.Exec(ctx, fmt.Sprintf(createMessagesTable, ident)); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}

	return &PostgresPublisher{
		db: db,
		insert: fmt.Sprintf(`INSERT INTO %s (message_id, topic, payload, priority)
			VALUES ($1, $2, $3, $4) ON CONFLICT (message_id) DO NOTHING`, ident),
	}, nil
}

func (p *PostgresPublisher) Publish(ctx context.Context, msg Message) error {
	if _, err := p.db.Exec(ctx, p.insert, msg.ID, msg.Topic, string(msg.Payload), msg.Priority); err != nil {
		return fmt.Errorf("failed to insert message %s: %w", msg.ID, err)
	}

	return nil
}

func (p *PostgresPublisher) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}

	return nil
}
