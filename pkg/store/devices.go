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
	"strings"
	"time"

	"github.com/carverauto/edgesync/pkg/models"
	"zombiezen.com/go/sqlite"
)

const deviceColumns = `device_id, external_host_id, ip_address, host_name, device_type, status,
	host_group_ids, last_change_watermark, last_seen, site_id, created_at, updated_at`

// DeviceUpdate carries fields observed for an existing device. Empty strings
// and zero values leave the stored column unchanged.
type DeviceUpdate struct {
	HostName  string
	IPAddress string
	Status    models.DeviceStatus
	Watermark int64
}

func scanDevice(stmt *sqlite.Stmt) (*models.Device, error) {
	d := &models.Device{
		DeviceID:            stmt.ColumnText(0),
		IPAddress:           stmt.ColumnText(2),
		HostName:            stmt.ColumnText(3),
		DeviceType:          models.DeviceType(stmt.ColumnText(4)),
		Status:              models.DeviceStatus(stmt.ColumnText(5)),
		LastChangeWatermark: stmt.ColumnInt64(7),
		LastSeen:            fromMillis(stmt.ColumnInt64(8)),
		SiteID:              stmt.ColumnText(9),
		CreatedAt:           fromMillis(stmt.ColumnInt64(10)),
		UpdatedAt:           fromMillis(stmt.ColumnInt64(11)),
	}

	if !stmt.ColumnIsNull(1) {
		d.ExternalHostID = stmt.ColumnText(1)
	}

	if raw := stmt.ColumnText(6); raw != "" {
		if err := json.Unmarshal([]byte(raw), &d.HostGroupIDs); err != nil {
			return nil, fmt.Errorf("decode host_group_ids for %s: %w", d.DeviceID, err)
		}
	}

	return d, nil
}

func encodeGroupIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}

	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode host_group_ids: %w", err)
	}

	return string(b), nil
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func (tx *Tx) queryDevice(query string, args ...any) (*models.Device, error) {
	var (
		found   *models.Device
		scanErr error
	)

	err := tx.query(query, func(stmt *sqlite.Stmt) error {
		found, scanErr = scanDevice(stmt)
		return scanErr
	}, args...)
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, ErrNotFound
	}

	return found, nil
}

// Device returns the device with the given primary key.
func (tx *Tx) Device(deviceID string) (*models.Device, error) {
	d, err := tx.queryDevice(`SELECT `+deviceColumns+` FROM devices WHERE device_id = ?`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", deviceID, err)
	}

	return d, nil
}

// DeviceByExternalID returns the device currently mapped to an external host id.
func (tx *Tx) DeviceByExternalID(externalHostID string) (*models.Device, error) {
	d, err := tx.queryDevice(`SELECT `+deviceColumns+` FROM devices WHERE external_host_id = ?`, externalHostID)
	if err != nil {
		return nil, fmt.Errorf("device with external id %s: %w", externalHostID, err)
	}

	return d, nil
}

// DeviceByIP returns a device with the given IP, preferring live rows and
// the most recently updated one when several share the address.
func (tx *Tx) DeviceByIP(ip string) (*models.Device, error) {
	d, err := tx.queryDevice(`SELECT `+deviceColumns+` FROM devices
		WHERE ip_address = ?
		ORDER BY (status = 'deleted') ASC, updated_at DESC
		LIMIT 1`, ip)
	if err != nil {
		return nil, fmt.Errorf("device with ip %s: %w", ip, err)
	}

	return d, nil
}

// InsertDevice inserts a new device row. CreatedAt, UpdatedAt and a zero
// LastSeen are filled from the transaction clock.
func (tx *Tx) InsertDevice(d *models.Device) error {
	groups, err := encodeGroupIDs(d.HostGroupIDs)
	if err != nil {
		return err
	}

	if d.DeviceType == "" {
		d.DeviceType = models.DeviceTypeUnknown
	}

	if d.Status == "" {
		d.Status = models.DeviceStatusUnknown
	}

	if d.LastSeen.IsZero() {
		d.LastSeen = tx.now
	}

	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now

	err = tx.exec(`INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DeviceID, nullableText(d.ExternalHostID), d.IPAddress, d.HostName,
		string(d.DeviceType), string(d.Status), groups, d.LastChangeWatermark,
		toMillis(d.LastSeen), d.SiteID, toMillis(d.CreatedAt), toMillis(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert device %s: %w", d.DeviceID, err)
	}

	return nil
}

// TouchDevice records an observation of an existing device: last_seen moves
// to now, the watermark only moves forward and empty fields are kept.
func (tx *Tx) TouchDevice(deviceID string, u DeviceUpdate) error {
	err := tx.exec(`UPDATE devices SET
			host_name = COALESCE(NULLIF(?, ''), host_name),
			ip_address = COALESCE(NULLIF(?, ''), ip_address),
			status = COALESCE(NULLIF(?, ''), status),
			last_change_watermark = MAX(last_change_watermark, ?),
			last_seen = ?,
			updated_at = ?
		WHERE device_id = ?`,
		u.HostName, u.IPAddress, string(u.Status), u.Watermark,
		toMillis(tx.now), toMillis(tx.now), deviceID)
	if err != nil {
		return fmt.Errorf("touch device %s: %w", deviceID, err)
	}

	if tx.changes() == 0 {
		return fmt.Errorf("touch device %s: %w", deviceID, ErrNotFound)
	}

	return nil
}

// RepointExternalID moves a device to a new external host id.
func (tx *Tx) RepointExternalID(deviceID, externalHostID string) error {
	err := tx.exec(`UPDATE devices SET external_host_id = ?, updated_at = ? WHERE device_id = ?`,
		nullableText(externalHostID), toMillis(tx.now), deviceID)
	if err != nil {
		return fmt.Errorf("repoint device %s to %s: %w", deviceID, externalHostID, err)
	}

	if tx.changes() == 0 {
		return fmt.Errorf("repoint device %s: %w", deviceID, ErrNotFound)
	}

	return nil
}

// SetDeviceStatus updates status and last_seen.
func (tx *Tx) SetDeviceStatus(deviceID string, status models.DeviceStatus) error {
	err := tx.exec(`UPDATE devices SET status = ?, last_seen = ?, updated_at = ? WHERE device_id = ?`,
		string(status), toMillis(tx.now), toMillis(tx.now), deviceID)
	if err != nil {
		return fmt.Errorf("set device %s status: %w", deviceID, err)
	}

	if tx.changes() == 0 {
		return fmt.Errorf("set device %s status: %w", deviceID, ErrNotFound)
	}

	return nil
}

// MarkDeviceDeleted soft-deletes a device.
func (tx *Tx) MarkDeviceDeleted(deviceID string) error {
	return tx.SetDeviceStatus(deviceID, models.DeviceStatusDeleted)
}

// UpsertDevicesByExternalID writes devices keyed by external_host_id. An
// existing row keeps its device_id. A row whose device_id is already taken
// by a device mapped elsewhere is repointed to the incoming external id.
// Repoints are applied before the other records, so the result does not
// depend on batch order.
func (tx *Tx) UpsertDevicesByExternalID(devices []models.Device) (int, error) {
	repoints := make([]*models.Device, 0, len(devices))
	others := make([]*models.Device, 0, len(devices))

	for i := range devices {
		d := &devices[i]
		if d.ExternalHostID == "" {
			return 0, fmt.Errorf("upsert device %s: external host id required", d.DeviceID)
		}

		taken, err := tx.count(`SELECT COUNT(*) FROM devices WHERE device_id = ? AND external_host_id <> ?`,
			d.DeviceID, d.ExternalHostID)
		if err != nil {
			return 0, fmt.Errorf("upsert device %s: %w", d.ExternalHostID, err)
		}

		if taken > 0 {
			repoints = append(repoints, d)
		} else {
			others = append(others, d)
		}
	}

	written := 0

	for _, d := range append(repoints, others...) {
		if err := tx.upsertDeviceByExternalID(d); err != nil {
			return written, err
		}

		written++
	}

	return written, nil
}

func (tx *Tx) upsertDeviceByExternalID(d *models.Device) error {
	groups, err := encodeGroupIDs(d.HostGroupIDs)
	if err != nil {
		return err
	}

	if d.DeviceType == "" {
		d.DeviceType = models.DeviceTypeUnknown
	}

	if d.Status == "" {
		d.Status = models.DeviceStatusUnknown
	}

	now := toMillis(tx.now)

	err = tx.exec(`INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_host_id) DO UPDATE SET
			ip_address = excluded.ip_address,
			host_name = excluded.host_name,
			device_type = excluded.device_type,
			status = excluded.status,
			host_group_ids = excluded.host_group_ids,
			last_change_watermark = MAX(devices.last_change_watermark, excluded.last_change_watermark),
			last_seen = excluded.last_seen,
			site_id = excluded.site_id,
			updated_at = excluded.updated_at
		ON CONFLICT(device_id) DO UPDATE SET
			external_host_id = excluded.external_host_id,
			ip_address = excluded.ip_address,
			host_name = excluded.host_name,
			device_type = excluded.device_type,
			status = excluded.status,
			host_group_ids = excluded.host_group_ids,
			last_change_watermark = MAX(devices.last_change_watermark, excluded.last_change_watermark),
			last_seen = excluded.last_seen,
			site_id = excluded.site_id,
			updated_at = excluded.updated_at`,
		d.DeviceID, d.ExternalHostID, d.IPAddress, d.HostName,
		string(d.DeviceType), string(d.Status), groups, d.LastChangeWatermark,
		now, d.SiteID, now, now)
	if err != nil {
		return fmt.Errorf("upsert device %s: %w", d.ExternalHostID, err)
	}

	return nil
}

// DevicesModifiedSince lists devices updated at or after since.
func (tx *Tx) DevicesModifiedSince(since time.Time) ([]models.Device, error) {
	return tx.listDevices(`SELECT `+deviceColumns+` FROM devices WHERE updated_at >= ? ORDER BY updated_at ASC`,
		toMillis(since))
}

// ListDevices returns devices matching filter, ordered by most recent update.
func (tx *Tx) ListDevices(filter models.DeviceFilter) ([]models.Device, error) {
	var (
		where []string
		args  []any
	)

	if filter.DeviceType != "" {
		where = append(where, "device_type = ?")
		args = append(args, string(filter.DeviceType))
	}

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	if filter.SiteID != "" {
		where = append(where, "site_id = ?")
		args = append(args, filter.SiteID)
	}

	query := `SELECT ` + deviceColumns + ` FROM devices`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY updated_at DESC, device_id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, int64(filter.Limit), int64(filter.Offset))
	}

	return tx.listDevices(query, args...)
}

func (tx *Tx) listDevices(query string, args ...any) ([]models.Device, error) {
	var devices []models.Device

	err := tx.query(query, func(stmt *sqlite.Stmt) error {
		d, err := scanDevice(stmt)
		if err != nil {
			return err
		}

		devices = append(devices, *d)

		return nil
	}, args...)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	return devices, nil
}

// CountDevices counts devices that are not soft-deleted.
func (tx *Tx) CountDevices() (int, error) {
	return tx.count(`SELECT COUNT(*) FROM devices WHERE status <> 'deleted'`)
}

func (tx *Tx) count(query string, args ...any) (int, error) {
	n := 0

	err := tx.query(query, func(stmt *sqlite.Stmt) error {
		n = stmt.ColumnInt(0)
		return nil
	}, args...)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}

	return n, nil
}
