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

// Package cloud delivers queued messages and device shadows upstream.
//
// Every backend is at-least-once: the relay may hand the same Message to
// Publish more than once, so receivers dedupe on Message.ID.
package cloud

//go:generate mockgen -destination=mock_cloud.go -package=cloud github.com/carverauto/edgesync/pkg/cloud Publisher,ShadowSink

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Message is one delivery attempt of a queued message.
type Message struct {
	ID       string
	Topic    string
	Payload  []byte
	Priority int
}

// Publisher delivers messages to the cloud.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// ShadowState is the last known state pushed for a device.
type ShadowState struct {
	LastIncident string    `json:"last_incident,omitempty"`
	LastUpdate   time.Time `json:"last_update"`
	Status       string    `json:"status"`
}

// ShadowSink receives best-effort device state updates.
type ShadowSink interface {
	UpdateShadow(ctx context.Context, deviceID string, state ShadowState) error
	Close() error
}

// ReportedDocument wraps a state the way device shadow services expect it.
func ReportedDocument(state ShadowState) ([]byte, error) {
	return json.Marshal(map[string]any{
		"state": map[string]any{"reported": state},
	})
}

// SubjectFor maps a slash separated topic to a dot separated subject or
// routing key.
func SubjectFor(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}
