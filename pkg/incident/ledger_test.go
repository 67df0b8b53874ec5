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
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/carverauto/edgesync/pkg/models"
	"github.com/carverauto/edgesync/pkg/payload"
	"github.com/carverauto/edgesync/pkg/registry"
	"github.com/carverauto/edgesync/pkg/store"
	"github.com/carverauto/edgesync/pkg/store/storetest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var detected = time.Date(2026, 1, 2, 22, 15, 31, 0, time.UTC)

func newTestLedger(t *testing.T) (*Ledger, *store.Store) {
	t.Helper()

	st, _ := storetest.New(t)

	reg, err := registry.New(st, registry.Config{SiteID: "site-001"}, logger.NewTestLogger())
	require.NoError(t, err)

	l, err := New(st, reg, Config{SiteID: "site-001"}, logger.NewTestLogger())
	require.NoError(t, err)

	return l, st
}

func problem(eventID string, sev models.Severity) *Event {
	return &Event{
		ExternalEventID: eventID,
		Severity:        sev,
		HostID:          "10084",
		HostIP:          "192.168.1.10",
		HostName:        "cam-lobby",
		Timestamp:       detected,
	}
}

func recovery(eventID string, at time.Time) *Event {
	ev := problem(eventID, models.SeverityInfo)
	ev.Recovery = true
	ev.Timestamp = at

	return ev
}

func incidentCount(t *testing.T, st *store.Store) int {
	t.Helper()

	var n int

	require.NoError(t, st.View(context.Background(), func(tx *store.Tx) error {
		var err error
		n, err = tx.CountIncidents()

		return err
	}))

	return n
}

func deviceStatus(t *testing.T, st *store.Store, deviceID string) models.DeviceStatus {
	t.Helper()

	var status models.DeviceStatus

	require.NoError(t, st.View(context.Background(), func(tx *store.Tx) error {
		d, err := tx.Device(deviceID)
		if err != nil {
			return err
		}

		status = d.Status

		return nil
	}))

	return status
}

func TestNewIncidentID(t *testing.T) {
	id := NewIncidentID(detected)
	assert.Regexp(t, regexp.MustCompile(`^INC-20260102221531-[0-9a-f]{8}$`), id)
}

func TestProblemThenRecovery(t *testing.T) {
	l, st := newTestLedger(t)
	ctx := context.Background()

	opened, err := l.Record(ctx, problem("E1", models.SeverityCritical))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, opened.Action)
	assert.Equal(t, "DEV-10084", opened.Incident.DeviceID)
	assert.Equal(t, models.IncidentStateOpen, opened.Incident.State())
	assert.Equal(t, models.DeviceStatusOffline, deviceStatus(t, st, "DEV-10084"))

	resolved, err := l.Record(ctx, recovery("E1", detected.Add(90*time.Second)))
	require.NoError(t, err)
	assert.Equal(t, ActionResolved, resolved.Action)
	assert.Equal(t, opened.Incident.IncidentID, resolved.Incident.IncidentID)
	require.NotNil(t, resolved.Incident.ResolvedAt)
	require.NotNil(t, resolved.Incident.DurationSeconds)
	assert.Equal(t, int64(90), *resolved.Incident.DurationSeconds)
	assert.Equal(t, models.DeviceStatusOnline, deviceStatus(t, st, "DEV-10084"))
	assert.Equal(t, 1, incidentCount(t, st))

	var incidentMsgs []models.QueuedMessage

	for _, m := range storetest.Messages(t, st) {
		if m.RefKind == models.RefKindIncident {
			incidentMsgs = append(incidentMsgs, m)
		}
	}

	require.Len(t, incidentMsgs, 2)
	assert.Equal(t, 1, incidentMsgs[0].Priority)
	assert.Equal(t, "edgesync/site-001/incidents", incidentMsgs[0].Topic)

	statuses := make([]string, 0, 2)
	for _, m := range incidentMsgs {
		ref, ok := payload.ParseRef(m.Payload)
		require.True(t, ok)
		statuses = append(statuses, ref.Status)
	}

	assert.ElementsMatch(t, []string{"open", "resolved"}, statuses)
}

func TestRecoveryBeforeDetectionIsClamped(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.RecordProblem(ctx, problem("E2", models.SeverityHigh))
	require.NoError(t, err)

	res, err := l.RecordRecovery(ctx, recovery("E2", detected.Add(-time.Hour)))
	require.NoError(t, err)

	assert.True(t, res.Incident.ResolvedAt.Equal(detected))
	assert.Equal(t, int64(0), *res.Incident.DurationSeconds)
}

func TestOrphanRecovery(t *testing.T) {
	l, st := newTestLedger(t)
	ctx := context.Background()

	res, err := l.RecordRecovery(ctx, recovery("E3", detected))
	require.NoError(t, err)

	assert.Equal(t, ActionOrphan, res.Action)
	assert.Equal(t, models.IncidentTypeOnline, res.Incident.IncidentType)
	assert.Equal(t, int64(0), *res.Incident.DurationSeconds)
	assert.Equal(t, 1, incidentCount(t, st))

	again, err := l.RecordRecovery(ctx, recovery("E3", detected.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, ActionDuplicate, again.Action)
	assert.Equal(t, 1, incidentCount(t, st))
}

func TestDuplicateProblemIsIdempotent(t *testing.T) {
	l, st := newTestLedger(t)
	ctx := context.Background()

	first, err := l.RecordProblem(ctx, problem("E4", models.SeverityMedium))
	require.NoError(t, err)

	second, err := l.RecordProblem(ctx, problem("E4", models.SeverityMedium))
	require.NoError(t, err)

	assert.Equal(t, ActionDuplicate, second.Action)
	assert.Equal(t, first.Incident.IncidentID, second.Incident.IncidentID)
	assert.Equal(t, 1, incidentCount(t, st))
}

func TestIngestRejectsMalformed(t *testing.T) {
	l, st := newTestLedger(t)

	_, err := l.Ingest(context.Background(), []byte(`{"event_status":"1"}`))
	require.ErrorIs(t, err, ErrMalformedPayload)
	assert.Equal(t, 0, incidentCount(t, st))
	assert.Empty(t, storetest.Messages(t, st))
}

func TestIngestReusesDeviceFoundByIP(t *testing.T) {
	l, st := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Ingest(ctx, []byte(`{"event_id":"1","event_status":"1","event_severity":"4",
		"host_id":"500","host_ip":"10.0.0.9","timestamp":"2026.01.02T22:15:31Z"}`))
	require.NoError(t, err)

	res, err := l.Ingest(ctx, []byte(`{"event_id":"2","event_status":"1","event_severity":"4",
		"host_id":"600","host_ip":"10.0.0.9","timestamp":"2026.01.02T22:16:31Z"}`))
	require.NoError(t, err)

	assert.Equal(t, "DEV-500", res.Incident.DeviceID)

	require.NoError(t, st.View(ctx, func(tx *store.Tx) error {
		n, err := tx.CountDevices()
		assert.Equal(t, 1, n)

		return err
	}))
}

func TestResyncPendingAfterDeadLetter(t *testing.T) {
	l, st := newTestLedger(t)
	ctx := context.Background()

	res, err := l.RecordProblem(ctx, problem("E5", models.SeverityCritical))
	require.NoError(t, err)

	queued, err := l.ResyncPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, queued, "message still pending")

	for _, m := range storetest.Messages(t, st) {
		if m.RefKind != models.RefKindIncident {
			continue
		}

		for i := 0; i < m.MaxAttempts; i++ {
			_, _, err := st.FailDelivery(ctx, &m, errors.New("broker down"))
			require.NoError(t, err)
		}
	}

	queued, err = l.ResyncPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	var found bool

	for _, m := range storetest.Messages(t, st) {
		if m.RefKind == models.RefKindIncident && m.RefID == res.Incident.IncidentID {
			found = true
		}
	}

	assert.True(t, found)
}

func deadLetterIncidentMessages(t *testing.T, st *store.Store) {
	t.Helper()

	for _, m := range storetest.Messages(t, st) {
		if m.RefKind != models.RefKindIncident || m.Status != models.MessageStatusPending {
			continue
		}

		for i := 0; i < m.MaxAttempts; i++ {
			_, _, err := st.FailDelivery(context.Background(), &m, errors.New("broker down"))
			require.NoError(t, err)
		}
	}
}

func TestResyncPendingStopsAtMaxSyncRetries(t *testing.T) {
	st, _ := storetest.New(t)
	ctx := context.Background()

	reg, err := registry.New(st, registry.Config{SiteID: "site-001"}, logger.NewTestLogger())
	require.NoError(t, err)

	var buf bytes.Buffer

	l, err := New(st, reg, Config{SiteID: "site-001", MaxSyncRetries: 2 * models.DefaultMaxAttempts},
		logger.NewWithWriter(&buf, zerolog.ErrorLevel))
	require.NoError(t, err)

	res, err := l.RecordProblem(ctx, problem("E9", models.SeverityCritical))
	require.NoError(t, err)

	deadLetterIncidentMessages(t, st)

	queued, err := l.ResyncPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	deadLetterIncidentMessages(t, st)

	for round := 0; round < 5; round++ {
		queued, err = l.ResyncPending(ctx, 10)
		require.NoError(t, err)
		assert.Zero(t, queued, "round %d", round)
	}

	require.NoError(t, st.View(ctx, func(tx *store.Tx) error {
		inc, err := tx.Incident(res.Incident.IncidentID)
		require.NoError(t, err)
		assert.False(t, inc.SyncedToCloud)
		assert.Equal(t, 2*models.DefaultMaxAttempts, inc.RetryCount)

		pending, err := tx.HasPendingMessageFor(models.RefKindIncident, inc.IncidentID)
		require.NoError(t, err)
		assert.False(t, pending)

		return nil
	}))

	assert.Equal(t, 1, strings.Count(buf.String(), "Giving up on incident cloud sync"))
	assert.Contains(t, buf.String(), res.Incident.IncidentID)
}
