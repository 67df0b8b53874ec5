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

// Severity is the ordered five-level incident severity.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank orders severities with critical first. Unknown values sort after info.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 1
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 4
	case SeverityInfo:
		return 5
	default:
		return 6
	}
}

// Severities lists every severity from most to least urgent.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}
}

// IncidentType describes what an incident reports about its device.
type IncidentType string

const (
	IncidentTypeOffline IncidentType = "device_offline"
	IncidentTypeOnline  IncidentType = "device_online"
)

// DeviceStatus is the device status implied by an incident of this type.
func (t IncidentType) DeviceStatus() DeviceStatus {
	if t == IncidentTypeOffline {
		return DeviceStatusOffline
	}

	return DeviceStatusOnline
}

// IncidentState is the lifecycle state of an incident.
type IncidentState string

const (
	IncidentStateOpen     IncidentState = "open"
	IncidentStateResolved IncidentState = "resolved"
)

// Incident is a fault event tracked from problem to recovery.
type Incident struct {
	IncidentID      string       `json:"incident_id"`
	DeviceID        string       `json:"device_id"`
	ExternalEventID string       `json:"external_event_id"`
	IncidentType    IncidentType `json:"incident_type"`
	Severity        Severity     `json:"severity"`
	Description     string       `json:"description,omitempty"`
	DetectedAt      time.Time    `json:"detected_at"`
	ResolvedAt      *time.Time   `json:"resolved_at,omitempty"`
	DurationSeconds *int64       `json:"duration_seconds,omitempty"`
	SyncedToCloud   bool         `json:"synced_to_cloud"`
	RetryCount      int          `json:"retry_count"`
	LastRetryAt     *time.Time   `json:"last_retry_at,omitempty"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// State reports whether the incident is still open.
func (i *Incident) State() IncidentState {
	if i.ResolvedAt != nil {
		return IncidentStateResolved
	}

	return IncidentStateOpen
}

// IncidentWithDevice joins an incident with the device attributes used for rollups.
type IncidentWithDevice struct {
	Incident
	DeviceType   DeviceType `json:"device_type"`
	HostName     string     `json:"host_name"`
	HostGroupIDs []string   `json:"host_group_ids"`
}
