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

package payload

import (
	"time"

	"github.com/carverauto/edgesync/pkg/models"
)

// CoreContext is the NGSI-LD core @context.
const CoreContext = "https://uri.etsi.org/ngsi-ld/v1/ngsi-ld-core-context.jsonld"

func property(value any, observedAt time.Time) map[string]any {
	p := map[string]any{"type": "Property", "value": value}
	if !observedAt.IsZero() {
		p["observedAt"] = observedAt.UTC().Format(time.RFC3339)
	}

	return p
}

func relationship(object string) map[string]any {
	return map[string]any{"type": "Relationship", "object": object}
}

func DeviceURN(deviceID string) string { return "urn:ngsi-ld:Device:" + deviceID }
func SiteURN(siteID string) string     { return "urn:ngsi-ld:Site:" + siteID }
func IncidentURN(id string) string     { return "urn:ngsi-ld:DeviceIncident:" + id }

// DeviceEntity renders a device as an NGSI-LD entity.
func DeviceEntity(d *models.Device, siteID string, observedAt time.Time) map[string]any {
	e := map[string]any{
		"@context":      CoreContext,
		"id":            DeviceURN(d.DeviceID),
		"type":          "Device",
		"deviceType":    property(string(d.DeviceType), observedAt),
		"status":        property(string(d.Status), observedAt),
		"belongsToSite": relationship(SiteURN(siteID)),
	}

	if d.IPAddress != "" {
		e["ipAddress"] = property(d.IPAddress, observedAt)
	}

	if d.HostName != "" {
		e["hostname"] = property(d.HostName, observedAt)
	}

	if d.ExternalHostID != "" {
		e["externalHostId"] = property(d.ExternalHostID, time.Time{})
	}

	if len(d.HostGroupIDs) > 0 {
		e["hostGroups"] = property(d.HostGroupIDs, time.Time{})
	}

	return e
}

// IncidentEntity renders an incident as an NGSI-LD entity.
func IncidentEntity(inc *models.Incident, siteID string) map[string]any {
	status := "active"
	if inc.State() == models.IncidentStateResolved {
		status = "resolved"
	}

	e := map[string]any{
		"@context":       CoreContext,
		"id":             IncidentURN(inc.IncidentID),
		"type":           "DeviceIncident",
		"incidentType":   property(string(inc.IncidentType), inc.DetectedAt),
		"severity":       property(string(inc.Severity), inc.DetectedAt),
		"detectedAt":     property(inc.DetectedAt.UTC().Format(time.RFC3339), time.Time{}),
		"status":         property(status, inc.DetectedAt),
		"affectedDevice": relationship(DeviceURN(inc.DeviceID)),
		"reportedBySite": relationship(SiteURN(siteID)),
	}

	if inc.ExternalEventID != "" {
		e["externalEventId"] = property(inc.ExternalEventID, time.Time{})
	}

	if inc.Description != "" {
		e["description"] = property(inc.Description, time.Time{})
	}

	if inc.ResolvedAt != nil {
		e["resolvedAt"] = property(inc.ResolvedAt.UTC().Format(time.RFC3339), time.Time{})
	}

	if inc.DurationSeconds != nil {
		e["durationSeconds"] = property(*inc.DurationSeconds, time.Time{})
	}

	return e
}
