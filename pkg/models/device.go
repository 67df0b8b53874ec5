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

// DeviceType classifies a monitored host.
type DeviceType string

const (
	DeviceTypeCamera  DeviceType = "camera"
	DeviceTypeServer  DeviceType = "server"
	DeviceTypeNetwork DeviceType = "network"
	DeviceTypeUnknown DeviceType = "unknown"
)

// DeviceStatus is the last known reachability of a device.
type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
	DeviceStatusUnknown DeviceStatus = "unknown"
	DeviceStatusDeleted DeviceStatus = "deleted"
)

// Device is a host observed through the telemetry source.
type Device struct {
	DeviceID            string       `json:"device_id"`
	ExternalHostID      string       `json:"external_host_id,omitempty"`
	IPAddress           string       `json:"ip_address,omitempty"`
	HostName            string       `json:"host_name,omitempty"`
	DeviceType          DeviceType   `json:"device_type"`
	Status              DeviceStatus `json:"status"`
	HostGroupIDs        []string     `json:"host_group_ids,omitempty"`
	LastChangeWatermark int64        `json:"last_change_watermark"`
	LastSeen            time.Time    `json:"last_seen"`
	SiteID              string       `json:"site_id,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// HostGroup is a named grouping of hosts in the telemetry source.
type HostGroup struct {
	GroupID   string    `json:"group_id"`
	Name      string    `json:"name"`
	Internal  bool      `json:"internal"`
	Flags     int       `json:"flags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InventoryRecord is one host as returned by a bulk inventory fetch.
type InventoryRecord struct {
	ExternalHostID string            `json:"external_host_id"`
	HostName       string            `json:"host_name"`
	DisplayName    string            `json:"display_name,omitempty"`
	IPAddress      string            `json:"ip_address,omitempty"`
	Port           int               `json:"port,omitempty"`
	StatusCode     string            `json:"status_code"`
	GroupIDs       []string          `json:"group_ids,omitempty"`
	GroupNames     []string          `json:"group_names,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	LastChange     int64             `json:"last_change"`
}

// DeviceFilter narrows device listings. Zero values match everything.
type DeviceFilter struct {
	DeviceType DeviceType
	Status     DeviceStatus
	SiteID     string
	Limit      int
	Offset     int
}
