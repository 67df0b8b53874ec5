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

// AffectedDevice is one row of the most-affected-devices ranking.
type AffectedDevice struct {
	DeviceID      string `json:"device_id"`
	HostName      string `json:"host_name,omitempty"`
	IncidentCount int    `json:"incident_count"`
}

// AnalyticsSummary is the periodic incident rollup published to the cloud.
type AnalyticsSummary struct {
	SiteID                string           `json:"site_id"`
	WindowStart           time.Time        `json:"window_start"`
	WindowEnd             time.Time        `json:"window_end"`
	TotalIncidents        int              `json:"total_incidents"`
	OpenIncidents         int              `json:"open_incidents"`
	ResolvedIncidents     int              `json:"resolved_incidents"`
	MeanTimeToResolveSecs float64          `json:"mean_time_to_resolve_seconds"`
	BySeverity            map[string]int   `json:"by_severity"`
	ByType                map[string]int   `json:"by_type"`
	ByDeviceType          map[string]int   `json:"by_device_type"`
	ByHostGroup           map[string]int   `json:"by_host_group"`
	TopAffectedDevices    []AffectedDevice `json:"top_affected_devices"`
	GeneratedAt           time.Time        `json:"generated_at"`
}

// InventorySummary is published after every successful inventory sync.
type InventorySummary struct {
	SiteID        string         `json:"site_id"`
	TotalDevices  int            `json:"total_devices"`
	ByType        map[string]int `json:"by_type"`
	ByStatus      map[string]int `json:"by_status"`
	ByHostGroup   map[string]int `json:"by_host_group"`
	RecordsSynced int            `json:"records_synced"`
	SyncMode      string         `json:"sync_mode"`
	Timestamp     time.Time      `json:"timestamp"`
}
