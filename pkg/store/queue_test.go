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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/carverauto/edgesync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enqueue(t *testing.T, s *Store, msgs ...*models.QueuedMessage) {
	t.Helper()

	require.NoError(t, s.Update(context.Background(), func(tx *Tx) error {
		for _, m := range msgs {
			if err := tx.Enqueue(m); err != nil {
				return err
			}
		}

		return nil
	}))
}

func TestEnqueueDefaults(t *testing.T) {
	s, clock := newTestStore(t)

	msg := &models.QueuedMessage{Topic: "edgesync/site-001/incidents", Payload: []byte(`{"a":1}`)}
	enqueue(t, s, msg)

	assert.NotEmpty(t, msg.MessageID)
	assert.Equal(t, models.DefaultMessagePriority, msg.Priority)
	assert.Equal(t, models.DefaultMaxAttempts, msg.MaxAttempts)
	assert.Equal(t, clock.Now(), msg.ScheduledAt)

	require.NoError(t, s.View(context.Background(), func(tx *Tx) error {
		got, err := tx.Message(msg.MessageID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusPending, got.Status)
		assert.JSONEq(t, `{"a":1}`, string(got.Payload))

		return nil
	}))
}

func TestPendingMessagesOrdering(t *testing.T) {
	s, clock := newTestStore(t)

	for _, p := range []int{3, 1, 2} {
		enqueue(t, s, &models.QueuedMessage{MessageID: fmt.Sprintf("p%d", p), Topic: "t", Priority: p})
		clock.Advance(time.Second)
	}

	// Same priority and same schedule time drain in insertion order.
	enqueue(t, s,
		&models.QueuedMessage{MessageID: "fifo-a", Topic: "t", Priority: 4},
		&models.QueuedMessage{MessageID: "fifo-b", Topic: "t", Priority: 4},
	)

	msgs, err := s.PendingMessages(context.Background(), 10)
	require.NoError(t, err)

	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.MessageID)
	}

	assert.Equal(t, []string{"p1", "p2", "p3", "fifo-a", "fifo-b"}, ids)

	limited, err := s.PendingMessages(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestIncrementAttemptDeadLettersAtomically(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	msg := &models.QueuedMessage{Topic: "t", MaxAttempts: 3}
	enqueue(t, s, msg)

	prevAttempts := 0

	for i := 1; i <= 3; i++ {
		status, attempts, err := s.FailDelivery(ctx, msg, errors.New("timeout"))
		require.NoError(t, err)
		assert.Equal(t, i, attempts)
		assert.GreaterOrEqual(t, attempts, prevAttempts)
		prevAttempts = attempts

		if attempts >= 3 {
			assert.Equal(t, models.MessageStatusFailed, status)
		} else {
			assert.Equal(t, models.MessageStatusPending, status)
		}
	}

	_, _, err := s.FailDelivery(ctx, msg, errors.New("again"))
	require.ErrorIs(t, err, ErrMessageNotPending)

	pending, err := s.PendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.ErrorIs(t, s.CompleteDelivery(ctx, msg), ErrMessageNotPending)

	require.NoError(t, s.View(ctx, func(tx *Tx) error {
		got, err := tx.Message(msg.MessageID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusFailed, got.Status)
		assert.Equal(t, 3, got.Attempts)
		assert.Equal(t, "timeout", got.LastError)
		assert.NotNil(t, got.LastAttemptAt)

		return nil
	}))
}

func TestConcurrentFailDeliveryStopsAtMaxAttempts(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	msg := &models.QueuedMessage{Topic: "t", MaxAttempts: 3}
	enqueue(t, s, msg)

	const workers = 20

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		notPending int
		attempts   []int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, n, err := s.FailDelivery(ctx, msg, errors.New("timeout"))

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				succeeded++
				attempts = append(attempts, n)
			case errors.Is(err, ErrMessageNotPending):
				notPending++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, workers-3, notPending)
	assert.ElementsMatch(t, []int{1, 2, 3}, attempts)

	require.NoError(t, s.View(ctx, func(tx *Tx) error {
		got, err := tx.Message(msg.MessageID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusFailed, got.Status)
		assert.Equal(t, 3, got.Attempts)

		return nil
	}))
}

func TestSentIsTerminal(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	msg := &models.QueuedMessage{Topic: "t"}
	enqueue(t, s, msg)

	require.NoError(t, s.CompleteDelivery(ctx, msg))
	require.ErrorIs(t, s.CompleteDelivery(ctx, msg), ErrMessageNotPending)

	_, _, err := s.FailDelivery(ctx, msg, errors.New("late"))
	require.ErrorIs(t, err, ErrMessageNotPending)

	require.NoError(t, s.View(ctx, func(tx *Tx) error {
		got, err := tx.Message(msg.MessageID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusSent, got.Status)
		assert.Zero(t, got.Attempts)
		assert.NotNil(t, got.SentAt)

		return nil
	}))
}

func TestDeliveryUpdatesIncidentBookkeeping(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	inc := &models.Incident{
		IncidentID:      "INC-1",
		DeviceID:        "DEV-1",
		ExternalEventID: "E1",
		IncidentType:    models.IncidentTypeOffline,
		Severity:        models.SeverityCritical,
		DetectedAt:      newFakeClock().Now(),
	}

	first := &models.QueuedMessage{Topic: "t", RefKind: models.RefKindIncident, RefID: "INC-1"}
	second := &models.QueuedMessage{Topic: "t", RefKind: models.RefKindIncident, RefID: "INC-1"}

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		if err := tx.InsertIncident(inc); err != nil {
			return err
		}

		if err := tx.Enqueue(first); err != nil {
			return err
		}

		return tx.Enqueue(second)
	}))

	_, _, err := s.FailDelivery(ctx, first, errors.New("broker down"))
	require.NoError(t, err)

	require.NoError(t, s.CompleteDelivery(ctx, second))

	require.NoError(t, s.View(ctx, func(tx *Tx) error {
		got, err := tx.Incident("INC-1")
		require.NoError(t, err)
		assert.True(t, got.SyncedToCloud)
		assert.Equal(t, 1, got.RetryCount)
		assert.NotNil(t, got.LastRetryAt)
		assert.Empty(t, got.ErrorMessage)

		return nil
	}))
}

func TestPurgeMessagesKeepsPending(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	sent := &models.QueuedMessage{Topic: "t"}
	failed := &models.QueuedMessage{Topic: "t", MaxAttempts: 1}
	pending := &models.QueuedMessage{Topic: "t"}
	enqueue(t, s, sent, failed, pending)

	require.NoError(t, s.CompleteDelivery(ctx, sent))
	_, _, err := s.FailDelivery(ctx, failed, errors.New("x"))
	require.NoError(t, err)

	clock.Advance(8 * 24 * time.Hour)

	fresh := &models.QueuedMessage{Topic: "t"}
	enqueue(t, s, fresh)
	require.NoError(t, s.CompleteDelivery(ctx, fresh))

	n, err := s.PurgeMessages(ctx, clock.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.View(ctx, func(tx *Tx) error {
		stats, err := tx.QueueStats()
		require.NoError(t, err)
		assert.Equal(t, models.QueueStats{Pending: 1, Sent: 1}, stats)

		has, err := tx.HasPendingMessageFor("", "")
		require.NoError(t, err)
		assert.True(t, has)

		return nil
	}))
}
