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

package models

import "time"

// SyncStatus is the outcome of one sync run.
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusError   SyncStatus = "error"
)

// SyncTypeHostRegistry is the sync_type recorded for inventory runs.
const SyncTypeHostRegistry = "host_registry"

// SyncRun is one entry in the append-only sync log.
type SyncRun struct {
	ID            int64      `json:"id"`
	SyncType      string     `json:"sync_type"`
	RecordsSynced int        `json:"records_synced"`
	Status        SyncStatus `json:"status"`
	DurationMS    int64      `json:"duration_ms"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}

// Configuration keys persisted by the inventory sync.
const (
	ConfigKeyLastSyncUnix      = "last_sync_unix"
	ConfigKeyLastSyncTimestamp = "last_sync_timestamp"
	ConfigKeyTotalDevices      = "total_devices"
	ConfigKeyTotalHostGroups   = "total_host_groups"
	ConfigKeySiteID            = "site_id"
)
