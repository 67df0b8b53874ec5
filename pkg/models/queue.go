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

// MessageStatus is the delivery state of a queued message.
type MessageStatus string

const (
	MessageStatusPending MessageStatus = "pending"
	MessageStatusSent    MessageStatus = "sent"
	MessageStatusFailed  MessageStatus = "failed"
)

// Reference kinds tie a queued message back to the row it carries.
const (
	RefKindIncident  = "incident"
	RefKindDevice    = "device"
	RefKindInventory = "inventory"
	RefKindAnalytics = "analytics"
)

const (
	DefaultMessagePriority = 3
	DefaultMaxAttempts     = 3
)

// QueuedMessage is an outbound message awaiting cloud delivery.
type QueuedMessage struct {
	MessageID     string        `json:"message_id"`
	Topic         string        `json:"topic"`
	Payload       []byte        `json:"payload"`
	Priority      int           `json:"priority"`
	Status        MessageStatus `json:"status"`
	Attempts      int           `json:"attempts"`
	MaxAttempts   int           `json:"max_attempts"`
	LastError     string        `json:"last_error,omitempty"`
	LastAttemptAt *time.Time    `json:"last_attempt_at,omitempty"`
	ScheduledAt   time.Time     `json:"scheduled_at"`
	CreatedAt     time.Time     `json:"created_at"`
	SentAt        *time.Time    `json:"sent_at,omitempty"`
	RefKind       string        `json:"ref_kind,omitempty"`
	RefID         string        `json:"ref_id,omitempty"`
}

// QueueStats counts queued messages by status.
type QueueStats struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}
