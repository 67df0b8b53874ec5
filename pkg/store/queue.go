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

package store

import (
	"fmt"
	"time"

	"github.com/carverauto/edgesync/pkg/models"
	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
)

const messageColumns = `message_id, topic, payload, priority, status, attempts, max_attempts, last_error,
	last_attempt_at, scheduled_at, created_at, sent_at, ref_kind, ref_id`

func scanMessage(stmt *sqlite.Stmt) models.QueuedMessage {
	payload := make([]byte, stmt.ColumnLen(2))
	stmt.ColumnBytes(2, payload)

	return models.QueuedMessage{
		MessageID:     stmt.ColumnText(0),
		Topic:         stmt.ColumnText(1),
		Payload:       payload,
		Priority:      stmt.ColumnInt(3),
		Status:        models.MessageStatus(stmt.ColumnText(4)),
		Attempts:      stmt.ColumnInt(5),
		MaxAttempts:   stmt.ColumnInt(6),
		LastError:     stmt.ColumnText(7),
		LastAttemptAt: columnTimePtr(stmt, 8),
		ScheduledAt:   fromMillis(stmt.ColumnInt64(9)),
		CreatedAt:     fromMillis(stmt.ColumnInt64(10)),
		SentAt:        columnTimePtr(stmt, 11),
		RefKind:       stmt.ColumnText(12),
		RefID:         stmt.ColumnText(13),
	}
}

// Enqueue inserts a pending message. Missing fields get defaults: a random
// message id, priority 3 when Priority is 0, three attempts, and the
// transaction time for ScheduledAt.
func (tx *Tx) Enqueue(msg *models.QueuedMessage) error {
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}

	if msg.Priority == 0 {
		msg.Priority = models.DefaultMessagePriority
	}

	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = models.DefaultMaxAttempts
	}

	if msg.ScheduledAt.IsZero() {
		msg.ScheduledAt = tx.now
	}

	if msg.Payload == nil {
		msg.Payload = []byte{}
	}

	msg.Status = models.MessageStatusPending
	msg.Attempts = 0
	msg.CreatedAt = tx.now

	err := tx.exec(`INSERT INTO message_queue (
			message_id, topic, payload, priority, status, attempts, max_attempts,
			scheduled_at, created_at, ref_kind, ref_id)
		VALUES (?, ?, ?, ?, 'pending', 0, ?, ?, ?, ?, ?)`,
		msg.MessageID, msg.Topic, msg.Payload, int64(msg.Priority), int64(msg.MaxAttempts),
		toMillis(msg.ScheduledAt), toMillis(msg.CreatedAt), msg.RefKind, msg.RefID)
	if err != nil {
		return fmt.Errorf("enqueue message for %s: %w", msg.Topic, err)
	}

	return nil
}

// PendingMessages returns up to limit deliverable messages: lowest priority
// number first, then earliest scheduled, then insertion order.
func (tx *Tx) PendingMessages(limit int) ([]models.QueuedMessage, error) {
	var msgs []models.QueuedMessage

	err := tx.query(`SELECT `+messageColumns+` FROM message_queue
		WHERE status = 'pending' AND attempts < max_attempts
		ORDER BY priority ASC, scheduled_at ASC, rowid ASC
		LIMIT ?`,
		func(stmt *sqlite.Stmt) error {
			msgs = append(msgs, scanMessage(stmt))
			return nil
		}, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("pending messages: %w", err)
	}

	return msgs, nil
}

// Message returns a queued message by id.
func (tx *Tx) Message(messageID string) (*models.QueuedMessage, error) {
	var found *models.QueuedMessage

	err := tx.query(`SELECT `+messageColumns+` FROM message_queue WHERE message_id = ?`,
		func(stmt *sqlite.Stmt) error {
			m := scanMessage(stmt)
			found = &m

			return nil
		}, messageID)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", messageID, err)
	}

	if found == nil {
		return nil, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}

	return found, nil
}

// MarkMessageSent moves a pending message to sent. Terminal messages are
// never moved back, so a second call fails with ErrMessageNotPending.
func (tx *Tx) MarkMessageSent(messageID string) error {
	err := tx.exec(`UPDATE message_queue SET status = 'sent', sent_at = ?
		WHERE message_id = ? AND status = 'pending'`,
		toMillis(tx.now), messageID)
	if err != nil {
		return fmt.Errorf("mark message %s sent: %w", messageID, err)
	}

	if tx.changes() == 0 {
		return fmt.Errorf("mark message %s sent: %w", messageID, ErrMessageNotPending)
	}

	return nil
}

// IncrementAttempt records a failed delivery attempt. The counter increment
// and the dead-letter transition are one UPDATE, so no reader can observe a
// pending message with attempts >= max_attempts.
func (tx *Tx) IncrementAttempt(messageID, errMsg string) (models.MessageStatus, int, error) {
	var (
		status   models.MessageStatus
		attempts int
		matched  bool
	)

	err := tx.query(`UPDATE message_queue SET
			attempts = attempts + 1,
			last_attempt_at = ?,
			last_error = ?,
			status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END
		WHERE message_id = ? AND status = 'pending'
		RETURNING status, attempts`,
		func(stmt *sqlite.Stmt) error {
			status = models.MessageStatus(stmt.ColumnText(0))
			attempts = stmt.ColumnInt(1)
			matched = true

			return nil
		}, toMillis(tx.now), errMsg, messageID)
	if err != nil {
		return "", 0, fmt.Errorf("increment attempt for %s: %w", messageID, err)
	}

	if !matched {
		return "", 0, fmt.Errorf("increment attempt for %s: %w", messageID, ErrMessageNotPending)
	}

	return status, attempts, nil
}

// PurgeMessages deletes sent and failed messages created before cutoff.
// Pending rows are never removed.
func (tx *Tx) PurgeMessages(before time.Time) (int, error) {
	err := tx.exec(`DELETE FROM message_queue WHERE status IN ('sent', 'failed') AND created_at < ?`,
		toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}

	return tx.changes(), nil
}

// HasPendingMessageFor reports whether a pending message references the given row.
func (tx *Tx) HasPendingMessageFor(refKind, refID string) (bool, error) {
	n, err := tx.count(`SELECT COUNT(*) FROM message_queue
		WHERE ref_kind = ? AND ref_id = ? AND status = 'pending'`, refKind, refID)
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// QueueStats counts messages by status.
func (tx *Tx) QueueStats() (models.QueueStats, error) {
	var stats models.QueueStats

	err := tx.query(`SELECT status, COUNT(*) FROM message_queue GROUP BY status`, func(stmt *sqlite.Stmt) error {
		n := stmt.ColumnInt(1)

		switch models.MessageStatus(stmt.ColumnText(0)) {
		case models.MessageStatusPending:
			stats.Pending = n
		case models.MessageStatusSent:
			stats.Sent = n
		case models.MessageStatusFailed:
			stats.Failed = n
		}

		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("queue stats: %w", err)
	}

	return stats, nil
}
