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
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"zombiezen.com/go/sqlite"
)

// HealthReport is an advisory snapshot of store state. It never gates writes.
type HealthReport struct {
	Healthy         bool   `json:"healthy"`
	IntegrityCheck  string `json:"integrity_check"`
	Devices         int    `json:"devices"`
	Incidents       int    `json:"incidents"`
	PendingMessages int    `json:"pending_messages"`
	FailedMessages  int    `json:"failed_messages"`
	DatabaseBytes   int64  `json:"database_bytes"`
	DiskFreeBytes   uint64 `json:"disk_free_bytes,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Health runs PRAGMA integrity_check and gathers row counts.
func (s *Store) Health(ctx context.Context) (*HealthReport, error) {
	report := &HealthReport{}

	err := s.View(ctx, func(tx *Tx) error {
		var results []string

		err := tx.query(`PRAGMA integrity_check`, func(stmt *sqlite.Stmt) error {
			results = append(results, stmt.ColumnText(0))
			return nil
		})
		if err != nil {
			return fmt.Errorf("integrity check: %w", err)
		}

		report.IntegrityCheck = strings.Join(results, "; ")
		report.Healthy = len(results) == 1 && results[0] == "ok"

		if report.Devices, err = tx.CountDevices(); err != nil {
			return err
		}

		if report.Incidents, err = tx.CountIncidents(); err != nil {
			return err
		}

		stats, err := tx.QueueStats()
		if err != nil {
			return err
		}

		report.PendingMessages = stats.Pending
		report.FailedMessages = stats.Failed

		return tx.query(`SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`,
			func(stmt *sqlite.Stmt) error {
				report.DatabaseBytes = stmt.ColumnInt64(0)
				return nil
			})
	})
	if err != nil {
		report.Healthy = false
		report.Error = err.Error()

		return report, err
	}

	if !report.Healthy {
		report.Error = ErrIntegrityCheckFailed.Error()
	}

	usage, err := disk.UsageWithContext(ctx, s.Dir())
	if err != nil {
		s.logger.Debug().Err(err).Str("dir", s.Dir()).Msg("Disk usage unavailable")
	} else {
		report.DiskFreeBytes = usage.Free
	}

	return report, nil
}
