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

// Package payload encodes outbound queue payloads. Every payload is a JSON
// envelope whose top-level ids let the relay route shadow updates without
// knowing the message kind.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/edgesync/pkg/models"
)

// Format selects how entity bodies are rendered inside the envelope.
type Format string

const (
	FormatJSON   Format = "json"
	FormatNGSILD Format = "ngsi-ld"
)

var errUnknownFormat = errors.New("unknown payload format")

// Validate rejects unknown formats; empty means json.
func (f *Format) Validate() error {
	switch *f {
	case "":
		*f = FormatJSON
		return nil
	case FormatJSON, FormatNGSILD:
		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownFormat, string(*f))
	}
}

// Envelope is the outer JSON object of every queued payload.
type Envelope struct {
	Kind         string          `json:"kind"`
	SiteID       string          `json:"site_id"`
	DeviceID     string          `json:"device_id,omitempty"`
	IncidentID   string          `json:"incident_id,omitempty"`
	Status       string          `json:"status,omitempty"`
	DeviceStatus string          `json:"device_status,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data"`
	NGSILD       map[string]any  `json:"ngsi_ld,omitempty"`
}

// Incident encodes an incident envelope.
func Incident(inc *models.Incident, siteID string, format Format, now time.Time) ([]byte, error) {
	data, err := json.Marshal(inc)
	if err != nil {
		return nil, fmt.Errorf("encode incident %s: %w", inc.IncidentID, err)
	}

	env := Envelope{
		Kind:         models.RefKindIncident,
		SiteID:       siteID,
		DeviceID:     inc.DeviceID,
		IncidentID:   inc.IncidentID,
		Status:       string(inc.State()),
		DeviceStatus: string(inc.IncidentType.DeviceStatus()),
		Timestamp:    now.UTC(),
		Data:         data,
	}

	if format == FormatNGSILD {
		env.NGSILD = IncidentEntity(inc, siteID)
	}

	return json.Marshal(env)
}

// Device encodes a device envelope.
func Device(d *models.Device, siteID string, format Format, now time.Time) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode device %s: %w", d.DeviceID, err)
	}

	env := Envelope{
		Kind:         models.RefKindDevice,
		SiteID:       siteID,
		DeviceID:     d.DeviceID,
		Status:       string(d.Status),
		DeviceStatus: string(d.Status),
		Timestamp:    now.UTC(),
		Data:         data,
	}

	if format == FormatNGSILD {
		env.NGSILD = DeviceEntity(d, siteID, now)
	}

	return json.Marshal(env)
}

// Summary encodes a site-level rollup such as an inventory or analytics summary.
func Summary(kind, siteID string, body any, now time.Time) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s summary: %w", kind, err)
	}

	return json.Marshal(Envelope{Kind: kind, SiteID: siteID, Timestamp: now.UTC(), Data: data})
}

// Ref is the routing information the relay reads back out of a payload.
type Ref struct {
	DeviceID     string
	IncidentID   string
	Status       string
	DeviceStatus string
}

// ParseRef extracts the top-level ids. ok is false when the payload is not
// a JSON object or names no device.
func ParseRef(b []byte) (ref Ref, ok bool) {
	var env struct {
		DeviceID     string `json:"device_id"`
		IncidentID   string `json:"incident_id"`
		Status       string `json:"status"`
		DeviceStatus string `json:"device_status"`
	}

	if err := json.Unmarshal(b, &env); err != nil || env.DeviceID == "" {
		return Ref{}, false
	}

	return Ref(env), true
}
