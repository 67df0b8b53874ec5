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

package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/carverauto/edgesync/pkg/circuitbreaker"
	"github.com/carverauto/edgesync/pkg/clock"
	"github.com/carverauto/edgesync/pkg/cloud"
	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/carverauto/edgesync/pkg/models"
	"github.com/carverauto/edgesync/pkg/payload"
	"github.com/carverauto/edgesync/pkg/store"
	"github.com/carverauto/edgesync/pkg/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var errBroker = errors.New("broker unavailable")

func enqueue(t *testing.T, st *store.Store, msgs ...*models.QueuedMessage) {
	t.Helper()

	require.NoError(t, st.Update(context.Background(), func(tx *store.Tx) error {
		for _, m := range msgs {
			if err := tx.Enqueue(m); err != nil {
				return err
			}
		}

		return nil
	}))
}

func message(t *testing.T, st *store.Store, id string) *models.QueuedMessage {
	t.Helper()

	var msg *models.QueuedMessage

	require.NoError(t, st.View(context.Background(), func(tx *store.Tx) error {
		var err error
		msg, err = tx.Message(id)

		return err
	}))

	return msg
}

func newTestRelay(t *testing.T, st *store.Store, c *storetest.Clock, pub cloud.Publisher, cfg Config, opts ...Option) *Relay {
	t.Helper()

	opts = append([]Option{WithClock(c)}, opts...)

	r, err := New(st, pub, cfg, logger.NewTestLogger(), opts...)
	require.NoError(t, err)

	return r
}

func TestCycleDrainsByPriorityThenSchedule(t *testing.T) {
	st, c := storetest.New(t)
	ctrl := gomock.NewController(t)
	pub := cloud.NewMockPublisher(ctrl)

	enqueue(t, st,
		&models.QueuedMessage{MessageID: "p3", Topic: "t", Priority: 3},
		&models.QueuedMessage{MessageID: "p1", Topic: "t", Priority: 1},
		&models.QueuedMessage{MessageID: "p2", Topic: "t", Priority: 2},
	)

	var order []string

	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg cloud.Message) error {
		order = append(order, msg.ID)
		return nil
	}).Times(3)

	r := newTestRelay(t, st, c, pub, Config{})

	res, err := r.Cycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"p1", "p2", "p3"}, order)
	assert.Equal(t, CycleResult{Fetched: 3, Published: 3}, res)

	for _, id := range order {
		assert.Equal(t, models.MessageStatusSent, message(t, st, id).Status)
	}
}

func TestCycleRespectsBatchSize(t *testing.T) {
	st, c := storetest.New(t)
	ctrl := gomock.NewController(t)
	pub := cloud.NewMockPublisher(ctrl)

	for i := 0; i < 12; i++ {
		enqueue(t, st, &models.QueuedMessage{Topic: "t"})
	}

	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(10)

	r := newTestRelay(t, st, c, pub, Config{})

	res, err := r.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, res.Published)
	assert.Len(t, storetest.Messages(t, st), 2)
}

func TestCycleDeadLettersAfterMaxAttempts(t *testing.T) {
	st, c := storetest.New(t)
	ctrl := gomock.NewController(t)
	pub := cloud.NewMockPublisher(ctrl)

	enqueue(t, st, &models.QueuedMessage{MessageID: "m", Topic: "t"})
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errBroker).Times(3)

	r := newTestRelay(t, st, c, pub, Config{})
	ctx := context.Background()

	for attempt := 1; attempt <= 3; attempt++ {
		res, err := r.Cycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed)

		msg := message(t, st, "m")
		assert.Equal(t, attempt, msg.Attempts)

		if attempt < 3 {
			assert.Equal(t, models.MessageStatusPending, msg.Status)
		} else {
			assert.Equal(t, models.MessageStatusFailed, msg.Status)
			assert.Equal(t, 1, res.DeadLettered)
		}
	}

	res, err := r.Cycle(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Fetched)

	stats := r.Stats()
	assert.Equal(t, uint64(4), stats.Cycles)
	assert.Equal(t, uint64(3), stats.Failed)
	assert.Equal(t, uint64(1), stats.DeadLettered)
}

func TestIncidentDeliveredEndToEnd(t *testing.T) {
	st, c := storetest.New(t)
	ctrl := gomock.NewController(t)
	pub := cloud.NewMockPublisher(ctrl)
	ctx := context.Background()

	inc := &models.Incident{
		IncidentID:      "INC-1",
		DeviceID:        "DEV-1",
		ExternalEventID: "E1",
		IncidentType:    models.IncidentTypeOffline,
		Severity:        models.SeverityCritical,
		DetectedAt:      c.Now(),
	}

	body, err := payload.Incident(inc, "site-001", payload.FormatJSON, c.Now())
	require.NoError(t, err)

	require.NoError(t, st.Update(ctx, func(tx *store.Tx) error {
		if err := tx.InsertIncident(inc); err != nil {
			return err
		}

		return tx.Enqueue(&models.QueuedMessage{
			MessageID: "msg-inc-1",
			Topic:     "edgesync/site-001/incidents",
			Payload:   body,
			Priority:  1,
			RefKind:   models.RefKindIncident,
			RefID:     "INC-1",
		})
	}))

	pub.EXPECT().Publish(gomock.Any(), cloud.Message{
		ID:       "msg-inc-1",
		Topic:    "edgesync/site-001/incidents",
		Payload:  body,
		Priority: 1,
	}).Return(nil).Times(1)

	r := newTestRelay(t, st, c, pub, Config{})

	_, err = r.Cycle(ctx)
	require.NoError(t, err)

	require.NoError(t, st.View(ctx, func(tx *store.Tx) error {
		got, err := tx.Incident("INC-1")
		require.NoError(t, err)
		assert.True(t, got.SyncedToCloud)
		assert.Zero(t, got.RetryCount)

		msg, err := tx.Message("msg-inc-1")
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusSent, msg.Status)
		assert.Zero(t, msg.Attempts)

		return nil
	}))
}

type stuckPublisher struct {
	release chan struct{}
}

func (s *stuckPublisher) Publish(context.Context, cloud.Message) error {
	<-s.release
	return nil
}

func (*stuckPublisher) Close() error { return nil }

func TestPublishTimeoutIgnoringContext(t *testing.T) {
	st, c := storetest.New(t)
	pub := &stuckPublisher{release: make(chan struct{})}
	t.Cleanup(func() { close(pub.release) })

	enqueue(t, st, &models.QueuedMessage{MessageID: "slow", Topic: "t"})

	r := newTestRelay(t, st, c, pub, Config{PublishTimeout: models.Duration(50 * time.Millisecond)})

	start := time.Now()
	res, err := r.Cycle(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, res.Failed)

	msg := message(t, st, "slow")
	assert.Equal(t, 1, msg.Attempts)
	assert.Contains(t, msg.LastError, ErrPublishTimeout.Error())
}

func TestOpenBreakerDefersWithoutSpendingAttempts(t *testing.T) {
	st, c := storetest.New(t)
	ctrl := gomock.NewController(t)
	pub := cloud.NewMockPublisher(ctrl)

	enqueue(t, st,
		&models.QueuedMessage{MessageID: "a", Topic: "t", Priority: 1},
		&models.QueuedMessage{MessageID: "b", Topic: "t", Priority: 2},
	)

	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errBroker).Times(1)

	r := newTestRelay(t, st, c, pub, Config{Breaker: circuitbreaker.Config{FailureThreshold: 1}})

	res, err := r.Cycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, CycleResult{Fetched: 2, Failed: 1, Skipped: 1}, res)
	assert.Equal(t, 1, message(t, st, "a").Attempts)
	assert.Zero(t, message(t, st, "b").Attempts)
}

func TestShadowUpdateIsBestEffort(t *testing.T) {
	st, c := storetest.New(t)
	ctrl := gomock.NewController(t)
	pub := cloud.NewMockPublisher(ctrl)
	shadow := cloud.NewMockShadowSink(ctrl)

	inc := &models.Incident{IncidentID: "INC-9", DeviceID: "DEV-9", IncidentType: models.IncidentTypeOffline, DetectedAt: c.Now()}
	body, err := payload.Incident(inc, "site-001", payload.FormatJSON, c.Now())
	require.NoError(t, err)

	enqueue(t, st,
		&models.QueuedMessage{MessageID: "with-device", Topic: "t", Payload: body},
		&models.QueuedMessage{MessageID: "summary", Topic: "t", Payload: []byte(`{"kind":"analytics"}`)},
	)

	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	shadow.EXPECT().UpdateShadow(gomock.Any(), "DEV-9", cloud.ShadowState{
		LastIncident: "INC-9",
		LastUpdate:   c.Now().UTC(),
		Status:       "offline",
	}).Return(errBroker).Times(1)

	r := newTestRelay(t, st, c, pub, Config{}, WithShadowSink(shadow))

	_, err = r.Cycle(context.Background())
	require.NoError(t, err)
	r.WaitShadows()

	assert.Equal(t, models.MessageStatusSent, message(t, st, "with-device").Status)
	assert.Equal(t, uint64(1), r.Stats().ShadowFailures)
}

func TestSweepPurgesTerminalMessages(t *testing.T) {
	st, c := storetest.New(t)
	ctrl := gomock.NewController(t)
	pub := cloud.NewMockPublisher(ctrl)

	enqueue(t, st, &models.QueuedMessage{MessageID: "old", Topic: "t"}, &models.QueuedMessage{MessageID: "waiting", Topic: "t"})

	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	r := newTestRelay(t, st, c, pub, Config{BatchSize: 1})

	_, err := r.Cycle(context.Background())
	require.NoError(t, err)

	c.Advance(8 * 24 * time.Hour)

	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msgs := storetest.Messages(t, st)
	require.Len(t, msgs, 1)
	assert.Equal(t, "waiting", msgs[0].MessageID)
}

func TestRunCyclesOnTicksUntilCancelled(t *testing.T) {
	st, _ := storetest.New(t)
	ctrl := gomock.NewController(t)
	pub := cloud.NewMockPublisher(ctrl)
	clk := clock.NewMockClock(ctrl)
	poll := clock.NewMockTicker(ctrl)
	sweep := clock.NewMockTicker(ctrl)

	pollCh := make(chan time.Time)
	sweepCh := make(chan time.Time)

	clk.EXPECT().Now().Return(storetest.Epoch).AnyTimes()
	clk.EXPECT().Ticker(10 * time.Second).Return(poll)
	clk.EXPECT().Ticker(time.Hour).Return(sweep)
	poll.EXPECT().Chan().Return((<-chan time.Time)(pollCh)).AnyTimes()
	sweep.EXPECT().Chan().Return((<-chan time.Time)(sweepCh)).AnyTimes()
	poll.EXPECT().Stop()
	sweep.EXPECT().Stop()

	var (
		mu        sync.Mutex
		published []string
	)

	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg cloud.Message) error {
		mu.Lock()
		defer mu.Unlock()

		published = append(published, msg.ID)

		return nil
	}).AnyTimes()

	r, err := New(st, pub, Config{}, logger.NewTestLogger(), WithClock(clk))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- r.Run(ctx) }()

	enqueue(t, st, &models.QueuedMessage{MessageID: "late", Topic: "t"})
	pollCh <- time.Now()
	sweepCh <- time.Now()
	pollCh <- time.Now()

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []string{"late"}, published)
	assert.GreaterOrEqual(t, r.Stats().Cycles, uint64(3))
}
