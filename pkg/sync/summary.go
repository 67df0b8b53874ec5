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

package sync

import (
	"github.com/carverauto/edgesync/pkg/models"
	"github.com/carverauto/edgesync/pkg/store"
)

// inventorySummary counts the live registry, not just the records of
// this run, so incremental runs still publish site-wide totals.
func inventorySummary(tx *store.Tx, groups []models.HostGroup, siteID, mode string, synced int) (*models.InventorySummary, error) {
	devices, err := tx.ListDevices(models.DeviceFilter{})
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(groups))
	for _, g := range groups {
		names[g.GroupID] = g.Name
	}

	summary := &models.InventorySummary{
		SiteID:        siteID,
		ByType:        make(map[string]int),
		ByStatus:      make(map[string]int),
		ByHostGroup:   make(map[string]int),
		RecordsSynced: synced,
		SyncMode:      mode,
		Timestamp:     tx.Now().UTC(),
	}

	for i := range devices {
		d := &devices[i]
		if d.Status == models.DeviceStatusDeleted {
			continue
		}

		summary.TotalDevices++
		summary.ByType[string(d.DeviceType)]++
		summary.ByStatus[string(d.Status)]++

		for _, id := range d.HostGroupIDs {
			if name, ok := names[id]; ok {
				summary.ByHostGroup[name]++
			}
		}
	}

	return summary, nil
}
