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

// Package aggregator rolls the incident ledger up into periodic analytics
// summaries queued for the cloud.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/carverauto/edgesync/pkg/clock"
	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/carverauto/edgesync/pkg/models"
	"github.com/carverauto/edgesync/pkg/payload"
	"github.com/carverauto/edgesync/pkg/store"
)

// AnalyticsMessagePriority is the queue priority of analytics summaries.
const AnalyticsMessagePriority = 5

// Aggregator produces one summary per interval.
type Aggregator struct {
	store  *store.Store
	config Config
	clock  clock.Clock
	logger logger.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(a *Aggregator) {
		a.clock = c
	}
}

// New creates an aggregator.
func New(st *store.Store, cfg Config, log logger.Logger, opts ...Option) (*Aggregator, error) {
	if st == nil {
		return nil, errNilStore
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Aggregator{
		store:  st,
		config: cfg,
		clock:  clock.Real(),
		logger: log,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Run aggregates once per interval until ctx is cancelled. The first
// summary is produced one interval after start.
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := a.clock.Ticker(time.Duration(a.config.Interval))
	defer ticker.Stop()

	a.logger.Info().
		Dur("interval", time.Duration(a.config.Interval)).
		Dur("window", time.Duration(a.config.Window)).
		Msg("Aggregator started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if _, err := a.Aggregate(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error().Err(err).Msg("Incident aggregation failed")
			}
		}
	}
}

// Aggregate summarizes incidents detected in [now-window, now) and queues
// the summary, including when the window is empty.
func (a *Aggregator) Aggregate(ctx context.Context) (*models.AnalyticsSummary, error) {
	end := a.clock.Now().UTC()
	start := end.Add(-time.Duration(a.config.Window))

	var summary *models.AnalyticsSummary

	err := a.store.Update(ctx, func(tx *store.Tx) error {
		rows, err := tx.IncidentsBetween(start, end)
		if err != nil {
			return err
		}

		groups, err := tx.HostGroups()
		if err != nil {
			return err
		}

		summary = Summarize(rows, groups, a.config.TopN)
		summary.SiteID = a.config.SiteID
		summary.WindowStart = start
		summary.WindowEnd = end
		summary.GeneratedAt = end

		body, err := payload.Summary(models.RefKindAnalytics, a.config.SiteID, summary, end)
		if err != nil {
			return err
		}

		return tx.Enqueue(&models.QueuedMessage{
			Topic:    a.config.Topics.Analytics(),
			Payload:  body,
			Priority: AnalyticsMessagePriority,
			RefKind:  models.RefKindAnalytics,
			RefID:    end.Format(time.RFC3339),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate incidents: %w", err)
	}

	a.logger.Info().
		Time("window_start", start).
		Time("window_end", end).
		Int("total_incidents", summary.TotalIncidents).
		Int("open_incidents", summary.OpenIncidents).
		Msg("Queued incident analytics summary")

	return summary, nil
}

// Summarize counts rows by severity, type, device type and host group and
// ranks the most affected devices. Ties rank by device id.
func Summarize(rows []models.IncidentWithDevice, groups []models.HostGroup, topN int) *models.AnalyticsSummary {
	s := &models.AnalyticsSummary{
		BySeverity:         make(map[string]int),
		ByType:             make(map[string]int),
		ByDeviceType:       make(map[string]int),
		ByHostGroup:        make(map[string]int),
		TopAffectedDevices: []models.AffectedDevice{},
	}

	names := make(map[string]string, len(groups))
	for _, g := range groups {
		names[g.GroupID] = g.Name
	}

	perDevice := make(map[string]*models.AffectedDevice)

	var (
		resolvedSecs int64
		resolvedN    int
	)

	for i := range rows {
		r := &rows[i]

		s.TotalIncidents++
		s.BySeverity[string(r.Severity)]++
		s.ByType[string(r.IncidentType)]++
		s.ByDeviceType[string(r.DeviceType)]++

		for _, id := range r.HostGroupIDs {
			name, ok := names[id]
			if !ok {
				name = id
			}

			s.ByHostGroup[name]++
		}

		if r.State() == models.IncidentStateResolved {
			s.ResolvedIncidents++

			if r.DurationSeconds != nil {
				resolvedSecs += *r.DurationSeconds
				resolvedN++
			}
		} else {
			s.OpenIncidents++
		}

		d, ok := perDevice[r.DeviceID]
		if !ok {
			d = &models.AffectedDevice{DeviceID: r.DeviceID, HostName: r.HostName}
			perDevice[r.DeviceID] = d
		}

		d.IncidentCount++
	}

	if resolvedN > 0 {
		s.MeanTimeToResolveSecs = float64(resolvedSecs) / float64(resolvedN)
	}

	for _, d := range perDevice {
		s.TopAffectedDevices = append(s.TopAffectedDevices, *d)
	}

	sort.Slice(s.TopAffectedDevices, func(i, j int) bool {
		a, b := s.TopAffectedDevices[i], s.TopAffectedDevices[j]
		if a.IncidentCount != b.IncidentCount {
			return a.IncidentCount > b.IncidentCount
		}

		return a.DeviceID < b.DeviceID
	})

	if topN > 0 && len(s.TopAffectedDevices) > topN {
		s.TopAffectedDevices = s.TopAffectedDevices[:topN]
	}

	return s
}
