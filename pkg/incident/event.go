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

package incident

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/edgesync/pkg/models"
)

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}

		*f = flexString(s)

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}

	*f = flexString(n.String())

	return nil
}

// WebhookPayload is the body posted by the telemetry source's media type.
type WebhookPayload struct {
	EventID            flexString `json:"event_id"`
	EventStatus        flexString `json:"event_status"`
	EventSeverity      flexString `json:"event_severity"`
	EventName          string     `json:"event_name"`
	HostID             flexString `json:"host_id"`
	HostName           string     `json:"host_name"`
	HostIP             string     `json:"host_ip"`
	TriggerDescription string     `json:"trigger_description"`
	Timestamp          string     `json:"timestamp"`
}

// Event is a normalized problem or recovery notification.
type Event struct {
	ExternalEventID string
	Recovery        bool
	Severity        models.Severity
	HostID          string
	HostName        string
	HostIP          string
	Description     string
	Timestamp       time.Time
}

// IncidentType is device_online for recoveries and device_offline otherwise.
func (e *Event) IncidentType() models.IncidentType {
	if e.Recovery {
		return models.IncidentTypeOnline
	}

	return models.IncidentTypeOffline
}

// ParseWebhook decodes and normalizes a webhook body.
func ParseWebhook(body []byte) (*Event, error) {
	var p WebhookPayload

	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	return Normalize(&p)
}

// Normalize validates a payload and converts it into an Event.
func Normalize(p *WebhookPayload) (*Event, error) {
	required := []struct {
		name  string
		value string
	}{
		{"event_id", string(p.EventID)},
		{"host_id", string(p.HostID)},
		{"timestamp", p.Timestamp},
	}

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, fmt.Errorf("%w: %w: %s", ErrMalformedPayload, errMissingField, r.name)
		}
	}

	ts, err := ParseTimestamp(p.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	ev := &Event{
		ExternalEventID: strings.TrimSpace(string(p.EventID)),
		Recovery:        IsRecoveryStatus(string(p.EventStatus)),
		Severity:        ParseSeverity(string(p.EventSeverity)),
		HostID:          strings.TrimSpace(string(p.HostID)),
		HostName:        strings.TrimSpace(p.HostName),
		HostIP:          strings.TrimSpace(p.HostIP),
		Description:     p.TriggerDescription,
		Timestamp:       ts,
	}

	if strings.EqualFold(ev.HostIP, "unknown") {
		ev.HostIP = ""
	}

	if ev.Description == "" {
		ev.Description = p.EventName
	}

	return ev, nil
}

// IsRecoveryStatus reports whether an event status means the problem cleared.
func IsRecoveryStatus(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "0", "OK", "RESOLVED":
		return true
	default:
		return false
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts RFC3339 and the source's dotted date form
// (2026.01.02T22:15:31Z). The first two dots become dashes. Times without
// a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	normalized := strings.Replace(strings.TrimSpace(s), ".", "-", 2)

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, normalized); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", errBadTimestamp, s)
}

// MapSeverity maps the source's 0-5 severity scale.
func MapSeverity(code int) models.Severity {
	switch code {
	case 0, 1:
		return models.SeverityInfo
	case 2:
		return models.SeverityLow
	case 3:
		return models.SeverityMedium
	case 4:
		return models.SeverityHigh
	case 5:
		return models.SeverityCritical
	default:
		return models.SeverityMedium
	}
}

var severityNames = map[string]models.Severity{
	"not classified": models.SeverityInfo,
	"information":    models.SeverityInfo,
	"warning":        models.SeverityLow,
	"average":        models.SeverityMedium,
	"high":           models.SeverityHigh,
	"disaster":       models.SeverityCritical,
}

// ParseSeverity accepts a numeric code or a severity name. Anything else is medium.
func ParseSeverity(s string) models.Severity {
	s = strings.TrimSpace(s)

	if code, err := strconv.Atoi(s); err == nil {
		return MapSeverity(code)
	}

	if sev, ok := severityNames[strings.ToLower(s)]; ok {
		return sev
	}

	for _, sev := range models.Severities() {
		if strings.EqualFold(s, string(sev)) {
			return sev
		}
	}

	return models.SeverityMedium
}
