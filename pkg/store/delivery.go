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
	"context"
	"errors"
	"time"

	"github.com/carverauto/edgesync/pkg/models"
)

// PendingMessages reads up to limit deliverable messages.
func (s *Store) PendingMessages(ctx context.Context, limit int) ([]models.QueuedMessage, error) {
	var msgs []models.QueuedMessage

	err := s.View(ctx, func(tx *Tx) error {
		var err error

		msgs, err = tx.PendingMessages(limit)

		return err
	})

	return msgs, err
}

// CompleteDelivery marks msg sent and, when it carries an incident, flags
// that incident as synced. Both changes commit together.
func (s *Store) CompleteDelivery(ctx context.Context, msg *models.QueuedMessage) error {
	return s.Update(ctx, func(tx *Tx) error {
		if err := tx.MarkMessageSent(msg.MessageID); err != nil {
			return err
		}

		if msg.RefKind != models.RefKindIncident || msg.RefID == "" {
			return nil
		}

		err := tx.MarkIncidentSynced(msg.RefID)
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn().
				Str("message_id", msg.MessageID).
				Str("incident_id", msg.RefID).
				Msg("Delivered message references a missing incident")

			return nil
		}

		return err
	})
}

// FailDelivery records a failed attempt for msg and returns its new status
// and attempt count. Incident retry bookkeeping is updated in the same transaction.
func (s *Store) FailDelivery(ctx context.Context, msg *models.QueuedMessage, cause error) (models.MessageStatus, int, error) {
	var (
		status   models.MessageStatus
		attempts int
	)

	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}

	err := s.Update(ctx, func(tx *Tx) error {
		var err error

		status, attempts, err = tx.IncrementAttempt(msg.MessageID, errMsg)
		if err != nil {
			return err
		}

		if msg.RefKind != models.RefKindIncident || msg.RefID == "" {
			return nil
		}

		if err := tx.RecordIncidentSyncFailure(msg.RefID, errMsg); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		return nil
	})
	if err != nil {
		return "", 0, err
	}

	return status, attempts, nil
}

// PurgeMessages deletes terminal messages created before cutoff.
func (s *Store) PurgeMessages(ctx context.Context, before time.Time) (int, error) {
	var n int

	err := s.Update(ctx, func(tx *Tx) error {
		var err error

		n, err = tx.PurgeMessages(before)

		return err
	})

	return n, err
}
