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
	"encoding/json"
	"fmt"
	"time"

	"github.com/carverauto/edgesync/pkg/models"
	"zombiezen.com/go/sqlite"
)

const incidentColumns = `incident_id, device_id, external_event_id, incident_type, severity, description,
	detected_at, resolved_at, duration_seconds, synced_to_cloud, retry_count, last_retry_at,
	error_message, created_at, updated_at`

// severityOrder sorts critical first; it must agree with models.Severity.Rank.
const severityOrder = `CASE severity
	WHEN 'critical' THEN 1
	WHEN 'high' THEN 2
	WHEN 'medium' THEN 3
	WHEN 'low' THEN 4
	WHEN 'info' THEN 5
	ELSE 6 END`

func scanIncident(stmt *sqlite.Stmt) models.Incident {
	inc := models.Incident{
		IncidentID:      stmt.ColumnText(0),
		DeviceID:        stmt.ColumnText(1),
		ExternalEventID: stmt.ColumnText(2),
		IncidentType:    models.IncidentType(stmt.ColumnText(3)),
		Severity:        models.Severity(stmt.ColumnText(4)),
		Description:     stmt.ColumnText(5),
		DetectedAt:      fromMillis(stmt.ColumnInt64(6)),
		ResolvedAt:      columnTimePtr(stmt, 7),
		SyncedToCloud:   stmt.ColumnInt(9) != 0,
		RetryCount:      stmt.ColumnInt(10),
		LastRetryAt:     columnTimePtr(stmt, 11),
		ErrorMessage:    stmt.ColumnText(12),
		CreatedAt:       fromMillis(stmt.ColumnInt64(13)),
		UpdatedAt:       fromMillis(stmt.ColumnInt64(14)),
	}

	if !stmt.ColumnIsNull(8) {
		d := stmt.ColumnInt64(8)
		inc.DurationSeconds = &d
	}

	return inc
}

// durationSeconds is always derived from the two timestamps.
func durationSeconds(detected, resolved time.Time) int64 {
	d := resolved.Sub(detected)
	if d < 0 {
		return 0
	}

	return int64(d / time.Second)
}

// InsertIncident inserts an incident. When ResolvedAt is set it is clamped to
// DetectedAt and DurationSeconds is recomputed; a supplied duration is ignored.
func (tx *Tx) InsertIncident(inc *models.Incident) error {
	if inc.ResolvedAt != nil {
		resolved := *inc.ResolvedAt
		if resolved.Before(inc.DetectedAt) {
			resolved = inc.DetectedAt
		}

		d := durationSeconds(inc.DetectedAt, resolved)
		inc.ResolvedAt = &resolved
		inc.DurationSeconds = &d
	} else {
		inc.DurationSeconds = nil
	}

	inc.CreatedAt = tx.now
	inc.UpdatedAt = tx.now

	var duration any
	if inc.DurationSeconds != nil {
		duration = *inc.DurationSeconds
	}

	err := tx.exec(`INSERT INTO incidents (`+incidentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.IncidentID, inc.DeviceID, inc.ExternalEventID, string(inc.IncidentType), string(inc.Severity),
		inc.Description, toMillis(inc.DetectedAt), nullableMillis(inc.ResolvedAt), duration,
		boolToInt(inc.SyncedToCloud), int64(inc.RetryCount), nullableMillis(inc.LastRetryAt),
		inc.ErrorMessage, toMillis(inc.CreatedAt), toMillis(inc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert incident %s: %w", inc.IncidentID, err)
	}

	return nil
}

func (tx *Tx) oneIncident(query string, args ...any) (*models.Incident, error) {
	var found *models.Incident

	err := tx.query(query, func(stmt *sqlite.Stmt) error {
		inc := scanIncident(stmt)
		found = &inc

		return nil
	}, args...)
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, ErrNotFound
	}

	return found, nil
}

func (tx *Tx) listIncidents(query string, args ...any) ([]models.Incident, error) {
	var incidents []models.Incident

	err := tx.query(query, func(stmt *sqlite.Stmt) error {
		incidents = append(incidents, scanIncident(stmt))
		return nil
	}, args...)
	if err != nil {
		return nil, err
	}

	return incidents, nil
}

// Incident returns an incident by id.
func (tx *Tx) Incident(incidentID string) (*models.Incident, error) {
	inc, err := tx.oneIncident(`SELECT `+incidentColumns+` FROM incidents WHERE incident_id = ?`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("incident %s: %w", incidentID, err)
	}

	return inc, nil
}

// OpenIncidentByExternalEvent returns the newest unresolved incident for an external event id.
func (tx *Tx) OpenIncidentByExternalEvent(externalEventID string) (*models.Incident, error) {
	inc, err := tx.oneIncident(`SELECT `+incidentColumns+` FROM incidents
		WHERE external_event_id = ? AND resolved_at IS NULL
		ORDER BY detected_at DESC LIMIT 1`, externalEventID)
	if err != nil {
		return nil, fmt.Errorf("open incident for event %s: %w", externalEventID, err)
	}

	return inc, nil
}

// LatestIncidentByExternalEvent returns the newest incident for an external event id in any state.
func (tx *Tx) LatestIncidentByExternalEvent(externalEventID string) (*models.Incident, error) {
	inc, err := tx.oneIncident(`SELECT `+incidentColumns+` FROM incidents
		WHERE external_event_id = ?
		ORDER BY detected_at DESC, created_at DESC LIMIT 1`, externalEventID)
	if err != nil {
		return nil, fmt.Errorf("incident for event %s: %w", externalEventID, err)
	}

	return inc, nil
}

// ResolveIncident sets resolved_at on an open incident and recomputes its
// duration. A resolution time before detection is clamped to detection.
// The incident is flagged unsynced so the resolution is delivered.
func (tx *Tx) ResolveIncident(incidentID string, resolvedAt time.Time) (*models.Incident, error) {
	inc, err := tx.Incident(incidentID)
	if err != nil {
		return nil, err
	}

	if inc.ResolvedAt != nil {
		return inc, fmt.Errorf("resolve incident %s: %w", incidentID, ErrAlreadyResolved)
	}

	resolved := resolvedAt.UTC()
	if resolved.Before(inc.DetectedAt) {
		resolved = inc.DetectedAt
	}

	duration := durationSeconds(inc.DetectedAt, resolved)

	err = tx.exec(`UPDATE incidents SET resolved_at = ?, duration_seconds = ?, synced_to_cloud = 0, updated_at = ?
		WHERE incident_id = ? AND resolved_at IS NULL`,
		toMillis(resolved), duration, toMillis(tx.now), incidentID)
	if err != nil {
		return nil, fmt.Errorf("resolve incident %s: %w", incidentID, err)
	}

	inc.ResolvedAt = &resolved
	inc.DurationSeconds = &duration
	inc.SyncedToCloud = false
	inc.UpdatedAt = tx.now

	return inc, nil
}

// MarkIncidentSynced records successful cloud delivery.
func (tx *Tx) MarkIncidentSynced(incidentID string) error {
	err := tx.exec(`UPDATE incidents SET synced_to_cloud = 1, error_message = '', updated_at = ? WHERE incident_id = ?`,
		toMillis(tx.now), incidentID)
	if err != nil {
		return fmt.Errorf("mark incident %s synced: %w", incidentID, err)
	}

	if tx.changes() == 0 {
		return fmt.Errorf("mark incident %s synced: %w", incidentID, ErrNotFound)
	}

	return nil
}

// RecordIncidentSyncFailure bumps the retry bookkeeping of an incident.
func (tx *Tx) RecordIncidentSyncFailure(incidentID, errMsg string) error {
	err := tx.exec(`UPDATE incidents SET
			retry_count = retry_count + 1,
			last_retry_at = ?,
			error_message = ?,
			updated_at = ?
		WHERE incident_id = ?`,
		toMillis(tx.now), errMsg, toMillis(tx.now), incidentID)
	if err != nil {
		return fmt.Errorf("record incident %s sync failure: %w", incidentID, err)
	}

	if tx.changes() == 0 {
		return fmt.Errorf("record incident %s sync failure: %w", incidentID, ErrNotFound)
	}

	return nil
}

// resyncable matches unsynced incidents that have not been given up and have
// no pending queue message.
const resyncable = `synced_to_cloud = 0 AND sync_abandoned_at IS NULL
		AND NOT EXISTS (SELECT 1 FROM message_queue m
			WHERE m.ref_kind = 'incident' AND m.ref_id = incidents.incident_id AND m.status = 'pending')`

// ResyncCandidates lists unsynced incidents with no pending message and fewer
// than maxRetries failed deliveries, most severe first, then oldest first.
func (tx *Tx) ResyncCandidates(maxRetries, limit int) ([]models.Incident, error) {
	incidents, err := tx.listIncidents(`SELECT `+incidentColumns+` FROM incidents
		WHERE `+resyncable+` AND retry_count < ?
		ORDER BY `+severityOrder+`, detected_at ASC
		LIMIT ?`, int64(maxRetries), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("resync candidates: %w", err)
	}

	return incidents, nil
}

// AbandonExhaustedIncidents marks unsynced incidents that reached maxRetries
// failed deliveries as given up and returns them. Each incident is returned
// at most once.
func (tx *Tx) AbandonExhaustedIncidents(maxRetries int) ([]models.Incident, error) {
	incidents, err := tx.listIncidents(`SELECT `+incidentColumns+` FROM incidents
		WHERE `+resyncable+` AND retry_count >= ?
		ORDER BY detected_at ASC`, int64(maxRetries))
	if err != nil {
		return nil, fmt.Errorf("exhausted incidents: %w", err)
	}

	for i := range incidents {
		err := tx.exec(`UPDATE incidents SET sync_abandoned_at = ?, updated_at = ? WHERE incident_id = ?`,
			toMillis(tx.now), toMillis(tx.now), incidents[i].IncidentID)
		if err != nil {
			return nil, fmt.Errorf("abandon incident %s: %w", incidents[i].IncidentID, err)
		}
	}

	return incidents, nil
}

// IncidentsBetween lists incidents detected in [from, to) joined with their
// device attributes. Incidents whose device is missing get unknown type.
func (tx *Tx) IncidentsBetween(from, to time.Time) ([]models.IncidentWithDevice, error) {
	var out []models.IncidentWithDevice

	err := tx.query(`SELECT i.incident_id, i.device_id, i.external_event_id, i.incident_type, i.severity,
			i.description, i.detected_at, i.resolved_at, i.duration_seconds, i.synced_to_cloud,
			i.retry_count, i.last_retry_at, i.error_message, i.created_at, i.updated_at,
			COALESCE(d.device_type, 'unknown'), COALESCE(d.host_name, ''), COALESCE(d.host_group_ids, '[]')
		FROM incidents i
		LEFT JOIN devices d ON d.device_id = i.device_id
		WHERE i.detected_at >= ? AND i.detected_at < ?
		ORDER BY i.detected_at ASC`,
		func(stmt *sqlite.Stmt) error {
			row := models.IncidentWithDevice{
				Incident:   scanIncident(stmt),
				DeviceType: models.DeviceType(stmt.ColumnText(15)),
				HostName:   stmt.ColumnText(16),
			}

			if err := json.Unmarshal([]byte(stmt.ColumnText(17)), &row.HostGroupIDs); err != nil {
				return fmt.Errorf("decode host groups for %s: %w", row.DeviceID, err)
			}

			out = append(out, row)

			return nil
		}, toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("incidents between %s and %s: %w", from, to, err)
	}

	return out, nil
}

// CountIncidents counts every incident row.
func (tx *Tx) CountIncidents() (int, error) {
	return tx.count(`SELECT COUNT(*) FROM incidents`)
}
