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

// Package incident keeps the local incident ledger: problem and recovery
// events from the telemetry source become open and resolved incidents,
// each paired with a queued cloud message in the same transaction.
package incident

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/carverauto/edgesync/pkg/models"
	"github.com/carverauto/edgesync/pkg/payload"
	"github.com/carverauto/edgesync/pkg/registry"
	"github.com/carverauto/edgesync/pkg/store"
	"github.com/google/uuid"
)

// Action is what recording an event did to the ledger.
type Action string

const (
	ActionCreated   Action = "created"
	ActionResolved  Action = "resolved"
	ActionOrphan    Action = "orphan_recovery"
	ActionDuplicate Action = "duplicate"
)

// Result is the incident an event landed on.
type Result struct {
	Incident *models.Incident
	Action   Action
}

// DefaultMaxSyncRetries allows the initial delivery plus three resyncs at the
// default per-message attempt limit.
const DefaultMaxSyncRetries = 4 * models.DefaultMaxAttempts

// Config controls payload rendering and topics.
type Config struct {
	SiteID string
	Topics models.Topics
	Format payload.Format
	// MaxSyncRetries is the number of failed deliveries after which an
	// incident is no longer re-queued.
	MaxSyncRetries int
}

// Ledger records incidents.
type Ledger struct {
	store    *store.Store
	registry *registry.Registry
	config   Config
	logger   logger.Logger
	newID    func(time.Time) string
}

// New creates a ledger. Device references are resolved through reg.
func New(st *store.Store, reg *registry.Registry, cfg Config, log logger.Logger) (*Ledger, error) {
	if st == nil {
		return nil, errNilStore
	}

	if reg == nil {
		return nil, errNilRegistry
	}

	if err := cfg.Format.Validate(); err != nil {
		return nil, err
	}

	if cfg.Topics.SiteID == "" {
		cfg.Topics.SiteID = cfg.SiteID
	}

	if cfg.MaxSyncRetries <= 0 {
		cfg.MaxSyncRetries = DefaultMaxSyncRetries
	}

	return &Ledger{store: st, registry: reg, config: cfg, logger: log, newID: NewIncidentID}, nil
}

// NewIncidentID returns a time-ordered id such as INC-20260102221531-1a2b3c4d.
func NewIncidentID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

	return fmt.Sprintf("INC-%s-%s", now.UTC().Format("20060102150405"), suffix)
}

// Ingest parses a webhook body and records it.
func (l *Ledger) Ingest(ctx context.Context, body []byte) (*Result, error) {
	ev, err := ParseWebhook(body)
	if err != nil {
		return nil, err
	}

	return l.Record(ctx, ev)
}

// Record dispatches ev to RecordRecovery or RecordProblem.
func (l *Ledger) Record(ctx context.Context, ev *Event) (*Result, error) {
	if ev.Recovery {
		return l.RecordRecovery(ctx, ev)
	}

	return l.RecordProblem(ctx, ev)
}

// RecordProblem opens an incident for an unseen external event id. A known
// id returns the existing incident untouched.
func (l *Ledger) RecordProblem(ctx context.Context, ev *Event) (*Result, error) {
	var res *Result

	err := l.store.Update(ctx, func(tx *store.Tx) error {
		res = nil

		existing, err := tx.LatestIncidentByExternalEvent(ev.ExternalEventID)
		switch {
		case err == nil:
			res = &Result{Incident: existing, Action: ActionDuplicate}
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		deviceID := l.resolveDevice(tx, ev)

		inc := &models.Incident{
			IncidentID:      l.newID(tx.Now()),
			DeviceID:        deviceID,
			ExternalEventID: ev.ExternalEventID,
			IncidentType:    ev.IncidentType(),
			Severity:        ev.Severity,
			Description:     ev.Description,
			DetectedAt:      ev.Timestamp,
		}

		if err := tx.InsertIncident(inc); err != nil {
			return err
		}

		if err := l.enqueue(tx, inc); err != nil {
			return err
		}

		res = &Result{Incident: inc, Action: ActionCreated}

		return nil
	})
	if err != nil {
		l.logger.Error().Err(err).Str("external_event_id", ev.ExternalEventID).Msg("Failed to record problem event")
		return nil, err
	}

	l.logResult(res)

	return res, nil
}

// RecordRecovery resolves the open incident for the event. A recovery with
// no known incident is stored as a zero-duration resolved incident.
func (l *Ledger) RecordRecovery(ctx context.Context, ev *Event) (*Result, error) {
	var res *Result

	err := l.store.Update(ctx, func(tx *store.Tx) error {
		res = nil

		open, err := tx.OpenIncidentByExternalEvent(ev.ExternalEventID)
		switch {
		case err == nil:
			return l.resolve(tx, open, ev, &res)
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		latest, err := tx.LatestIncidentByExternalEvent(ev.ExternalEventID)
		switch {
		case err == nil:
			res = &Result{Incident: latest, Action: ActionDuplicate}
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		return l.recordOrphan(tx, ev, &res)
	})
	if err != nil {
		l.logger.Error().Err(err).Str("external_event_id", ev.ExternalEventID).Msg("Failed to record recovery event")
		return nil, err
	}

	l.logResult(res)

	return res, nil
}

func (l *Ledger) resolve(tx *store.Tx, open *models.Incident, ev *Event, res **Result) error {
	l.resolveDevice(tx, ev)

	inc, err := tx.ResolveIncident(open.IncidentID, ev.Timestamp)
	if err != nil {
		return err
	}

	if err := l.enqueue(tx, inc); err != nil {
		return err
	}

	*res = &Result{Incident: inc, Action: ActionResolved}

	return nil
}

func (l *Ledger) recordOrphan(tx *store.Tx, ev *Event, res **Result) error {
	deviceID := l.resolveDevice(tx, ev)
	resolved := ev.Timestamp

	inc := &models.Incident{
		IncidentID:      l.newID(tx.Now()),
		DeviceID:        deviceID,
		ExternalEventID: ev.ExternalEventID,
		IncidentType:    ev.IncidentType(),
		Severity:        ev.Severity,
		Description:     ev.Description,
		DetectedAt:      ev.Timestamp,
		ResolvedAt:      &resolved,
	}

	if err := tx.InsertIncident(inc); err != nil {
		return err
	}

	l.logger.Warn().
		Str("incident_id", inc.IncidentID).
		Str("external_event_id", ev.ExternalEventID).
		Str("device_id", deviceID).
		Msg("Recovery without prior problem, stored as zero-duration incident")

	if err := l.enqueue(tx, inc); err != nil {
		return err
	}

	*res = &Result{Incident: inc, Action: ActionOrphan}

	return nil
}

// resolveDevice maps the event's host to a device and records the status
// the event implies. It never fails: an unresolvable host falls back to
// the id the registry would have synthesized.
func (l *Ledger) resolveDevice(tx *store.Tx, ev *Event) string {
	status := ev.IncidentType().DeviceStatus()
	obs := &registry.Observation{
		ExternalHostID: ev.HostID,
		IPAddress:      ev.HostIP,
		HostName:       ev.HostName,
		Status:         status,
	}

	res, err := l.registry.ResolveTx(tx, obs)
	if err != nil {
		fallback := registry.SynthesizeDeviceID(&registry.Observation{ExternalHostID: ev.HostID})

		l.logger.Warn().
			Err(err).
			Str("external_event_id", ev.ExternalEventID).
			Str("device_id", fallback).
			Msg("Device resolution failed, using best-effort reference")

		return fallback
	}

	if res.Device.Status != status {
		if err := tx.SetDeviceStatus(res.Device.DeviceID, status); err != nil {
			l.logger.Warn().Err(err).Str("device_id", res.Device.DeviceID).Msg("Failed to update device status")
		}
	}

	return res.Device.DeviceID
}

func (l *Ledger) enqueue(tx *store.Tx, inc *models.Incident) error {
	body, err := payload.Incident(inc, l.config.SiteID, l.config.Format, tx.Now())
	if err != nil {
		return err
	}

	msg := &models.QueuedMessage{
		Topic:    l.config.Topics.Incidents(),
		Payload:  body,
		Priority: PriorityFor(inc.Severity),
		RefKind:  models.RefKindIncident,
		RefID:    inc.IncidentID,
	}

	if err := tx.Enqueue(msg); err != nil {
		return fmt.Errorf("enqueue incident %s: %w", inc.IncidentID, err)
	}

	return nil
}

// PriorityFor maps severity to queue priority: critical 1 through info 5.
func PriorityFor(sev models.Severity) int {
	return min(sev.Rank(), models.SeverityInfo.Rank())
}

// ResyncPending re-enqueues unsynced incidents that have no pending message,
// which happens after their message was dead-lettered. Incidents that failed
// MaxSyncRetries deliveries are given up instead. Returns how many were queued.
func (l *Ledger) ResyncPending(ctx context.Context, limit int) (int, error) {
	var (
		queued    int
		abandoned []models.Incident
	)

	err := l.store.Update(ctx, func(tx *store.Tx) error {
		var err error

		abandoned, err = tx.AbandonExhaustedIncidents(l.config.MaxSyncRetries)
		if err != nil {
			return err
		}

		incidents, err := tx.ResyncCandidates(l.config.MaxSyncRetries, limit)
		if err != nil {
			return err
		}

		queued = 0

		for i := range incidents {
			if err := l.enqueue(tx, &incidents[i]); err != nil {
				return err
			}

			queued++
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	for i := range abandoned {
		inc := &abandoned[i]
		l.logger.Error().
			Str("incident_id", inc.IncidentID).
			Str("device_id", inc.DeviceID).
			Int("retry_count", inc.RetryCount).
			Str("last_error", inc.ErrorMessage).
			Msg("Giving up on incident cloud sync")
	}

	if queued > 0 {
		l.logger.Info().Int("count", queued).Msg("Re-queued unsynced incidents")
	}

	return queued, nil
}

func (l *Ledger) logResult(res *Result) {
	if res == nil || res.Incident == nil {
		return
	}

	event := l.logger.Info()
	if res.Action == ActionDuplicate {
		event = l.logger.Debug()
	}

	event.
		Str("incident_id", res.Incident.IncidentID).
		Str("device_id", res.Incident.DeviceID).
		Str("severity", string(res.Incident.Severity)).
		Str("action", string(res.Action)).
		Msg("Recorded incident event")
}
