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

package registry

import (
	"github.com/carverauto/edgesync/pkg/models"
	"github.com/carverauto/edgesync/pkg/store"
)

// BulkResult counts what a bulk upsert did.
type BulkResult struct {
	Devices    int
	HostGroups int
	Skipped    int
}

// UpsertInventoryTx writes host groups and inventory records inside tx.
// Records resolve only by external host id; the source is authoritative
// for identity so there is no IP fallback.
func (r *Registry) UpsertInventoryTx(tx *store.Tx, records []models.InventoryRecord, groups []models.HostGroup) (BulkResult, error) {
	var res BulkResult

	n, err := tx.UpsertHostGroups(groups)
	if err != nil {
		return res, err
	}

	res.HostGroups = n

	groupNames := make(map[string]string, len(groups))
	for _, g := range groups {
		groupNames[g.GroupID] = g.Name
	}

	devices := make([]models.Device, 0, len(records))

	for i := range records {
		rec := &records[i]
		if rec.ExternalHostID == "" {
			r.logger.Warn().
				Str("host_name", rec.HostName).
				Str("ip_address", rec.IPAddress).
				Msg("Skipping inventory record without external host id")

			res.Skipped++

			continue
		}

		devices = append(devices, r.inventoryDevice(rec, groupNames))
	}

	if res.Devices, err = tx.UpsertDevicesByExternalID(devices); err != nil {
		return res, err
	}

	return res, nil
}

func (r *Registry) inventoryDevice(rec *models.InventoryRecord, groupNames map[string]string) models.Device {
	names := rec.GroupNames
	if len(names) == 0 {
		for _, id := range rec.GroupIDs {
			if name, ok := groupNames[id]; ok {
				names = append(names, name)
			}
		}
	}

	hostName := rec.HostName
	if hostName == "" {
		hostName = rec.DisplayName
	}

	return models.Device{
		DeviceID:            SynthesizeDeviceID(&Observation{ExternalHostID: rec.ExternalHostID}),
		ExternalHostID:      rec.ExternalHostID,
		IPAddress:           rec.IPAddress,
		HostName:            hostName,
		DeviceType:          Classify(names),
		Status:              MapHostStatus(rec.StatusCode),
		HostGroupIDs:        rec.GroupIDs,
		LastChangeWatermark: rec.LastChange,
		SiteID:              r.config.SiteID,
	}
}
