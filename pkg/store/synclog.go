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
	"fmt"

	"github.com/carverauto/edgesync/pkg/models"
	"zombiezen.com/go/sqlite"
)

const syncRunColumns = `id, sync_type, records_synced, status, duration_ms, error_message, timestamp`

func scanSyncRun(stmt *sqlite.Stmt) models.SyncRun {
	return models.SyncRun{
		ID:            stmt.ColumnInt64(0),
		SyncType:      stmt.ColumnText(1),
		RecordsSynced: stmt.ColumnInt(2),
		Status:        models.SyncStatus(stmt.ColumnText(3)),
		DurationMS:    stmt.ColumnInt64(4),
		ErrorMessage:  stmt.ColumnText(5),
		Timestamp:     fromMillis(stmt.ColumnInt64(6)),
	}
}

// AppendSyncRun appends to the sync log and sets run.ID. A zero Timestamp
// is filled from the transaction clock.
func (tx *Tx) AppendSyncRun(run *models.SyncRun) error {
	if run.Timestamp.IsZero() {
		run.Timestamp = tx.now
	}

	err := tx.exec(`INSERT INTO sync_log (sync_type, records_synced, status, duration_ms, error_message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.SyncType, int64(run.RecordsSynced), string(run.Status), run.DurationMS, run.ErrorMessage,
		toMillis(run.Timestamp))
	if err != nil {
		return fmt.Errorf("append sync run: %w", err)
	}

	run.ID = tx.conn.LastInsertRowID()

	return nil
}

// LastSyncRun returns the newest run of the given type.
func (tx *Tx) LastSyncRun(syncType string) (*models.SyncRun, error) {
	return tx.oneSyncRun(`SELECT `+syncRunColumns+` FROM sync_log
		WHERE sync_type = ? ORDER BY id DESC LIMIT 1`, syncType)
}

// LastSuccessfulSyncRun returns the newest run of the given type that did not error.
func (tx *Tx) LastSuccessfulSyncRun(syncType string) (*models.SyncRun, error) {
	return tx.oneSyncRun(`SELECT `+syncRunColumns+` FROM sync_log
		WHERE sync_type = ? AND status <> 'error' ORDER BY id DESC LIMIT 1`, syncType)
}

// SyncRuns lists the newest runs of a type, newest first.
func (tx *Tx) SyncRuns(syncType string, limit int) ([]models.SyncRun, error) {
	var runs []models.SyncRun

	err := tx.query(`SELECT `+syncRunColumns+` FROM sync_log WHERE sync_type = ? ORDER BY id DESC LIMIT ?`,
		func(stmt *sqlite.Stmt) error {
			runs = append(runs, scanSyncRun(stmt))
			return nil
		}, syncType, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}

	return runs, nil
}

func (tx *Tx) oneSyncRun(query string, args ...any) (*models.SyncRun, error) {
	var run *models.SyncRun

	err := tx.query(query, func(stmt *sqlite.Stmt) error {
		r := scanSyncRun(stmt)
		run = &r

		return nil
	}, args...)
	if err != nil {
		return nil, fmt.Errorf("read sync run: %w", err)
	}

	if run == nil {
		return nil, ErrNotFound
	}

	return run, nil
}
