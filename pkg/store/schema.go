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

// schemaVersion is bumped whenever schema changes. Changes must stay readable
// for queue rows written by older versions.
const schemaVersion = 2

// migrations upgrades databases created by an older schema. Key n holds the
// statements that bring version n-1 up to n. The base schema is version 1.
var migrations = map[int]string{
	2: `ALTER TABLE incidents ADD COLUMN sync_abandoned_at INTEGER;`,
}

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS devices (
    device_id             TEXT PRIMARY KEY,
    external_host_id      TEXT UNIQUE,
    ip_address            TEXT NOT NULL DEFAULT '',
    host_name             TEXT NOT NULL DEFAULT '',
    device_type           TEXT NOT NULL DEFAULT 'unknown',
    status                TEXT NOT NULL DEFAULT 'unknown',
    host_group_ids        TEXT NOT NULL DEFAULT '[]',
    last_change_watermark INTEGER NOT NULL DEFAULT 0,
    last_seen             INTEGER NOT NULL DEFAULT 0,
    site_id               TEXT NOT NULL DEFAULT '',
    created_at            INTEGER NOT NULL,
    updated_at            INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_devices_ip ON devices(ip_address);
CREATE INDEX IF NOT EXISTS idx_devices_status ON devices(status);
CREATE INDEX IF NOT EXISTS idx_devices_updated ON devices(updated_at);

CREATE TABLE IF NOT EXISTS host_groups (
    group_id   TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    internal   INTEGER NOT NULL DEFAULT 0,
    flags      INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
);

-- device_id is a best-effort reference: an incident is kept even when its
-- device could not be resolved, so there is no foreign key.
CREATE TABLE IF NOT EXISTS incidents (
    incident_id       TEXT PRIMARY KEY,
    device_id         TEXT NOT NULL,
    external_event_id TEXT NOT NULL,
    incident_type     TEXT NOT NULL,
    severity          TEXT NOT NULL,
    description       TEXT NOT NULL DEFAULT '',
    detected_at       INTEGER NOT NULL,
    resolved_at       INTEGER,
    duration_seconds  INTEGER,
    synced_to_cloud   INTEGER NOT NULL DEFAULT 0,
    retry_count       INTEGER NOT NULL DEFAULT 0,
    last_retry_at     INTEGER,
    error_message     TEXT NOT NULL DEFAULT '',
    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL,
    CHECK (resolved_at IS NULL OR resolved_at >= detected_at)
);

CREATE INDEX IF NOT EXISTS idx_incidents_event ON incidents(external_event_id, resolved_at);
CREATE INDEX IF NOT EXISTS idx_incidents_sync ON incidents(synced_to_cloud, severity);
CREATE INDEX IF NOT EXISTS idx_incidents_detected ON incidents(detected_at);
CREATE INDEX IF NOT EXISTS idx_incidents_device ON incidents(device_id);

CREATE TABLE IF NOT EXISTS message_queue (
    message_id      TEXT PRIMARY KEY,
    topic           TEXT NOT NULL,
    payload         BLOB NOT NULL,
    priority        INTEGER NOT NULL DEFAULT 3,
    status          TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'sent', 'failed')),
    attempts        INTEGER NOT NULL DEFAULT 0,
    max_attempts    INTEGER NOT NULL DEFAULT 3,
    last_error      TEXT NOT NULL DEFAULT '',
    last_attempt_at INTEGER,
    scheduled_at    INTEGER NOT NULL,
    created_at      INTEGER NOT NULL,
    sent_at         INTEGER,
    ref_kind        TEXT NOT NULL DEFAULT '',
    ref_id          TEXT NOT NULL DEFAULT '',
    CHECK (status <> 'pending' OR attempts < max_attempts)
);

CREATE INDEX IF NOT EXISTS idx_queue_pending ON message_queue(status, priority, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_queue_ref ON message_queue(ref_kind, ref_id, status);

CREATE TABLE IF NOT EXISTS sync_log (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    sync_type      TEXT NOT NULL,
    records_synced INTEGER NOT NULL DEFAULT 0,
    status         TEXT NOT NULL,
    duration_ms    INTEGER NOT NULL DEFAULT 0,
    error_message  TEXT NOT NULL DEFAULT '',
    timestamp      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_log_type ON sync_log(sync_type, timestamp);

CREATE TABLE IF NOT EXISTS configuration (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`
