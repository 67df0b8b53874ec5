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

// Package sync keeps the local device registry in step with the inventory
// source, pulling only hosts changed since the last successful run.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/carverauto/edgesync/pkg/clock"
	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/carverauto/edgesync/pkg/models"
	"github.com/carverauto/edgesync/pkg/payload"
	"github.com/carverauto/edgesync/pkg/registry"
	"github.com/carverauto/edgesync/pkg/store"
)

// InventoryMessagePriority is the queue priority of inventory summaries.
const InventoryMessagePriority = 5

const (
	syncModeFull        = "full"
	syncModeIncremental = "incremental"
)

// Service runs inventory syncs against one integration.
type Service struct {
	store    *store.Store
	registry *registry.Registry
	source   Integration
	config   Config
	metrics  Metrics
	clock    clock.Clock
	logger   logger.Logger

	// one run at a time
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithMetrics records run and API metrics.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a sync service.
func NewService(st *store.Store, reg *registry.Registry, src Integration, cfg Config, log logger.Logger, opts ...Option) (*Service, error) {
	switch {
	case st == nil:
		return nil, errNilStore
	case reg == nil:
		return nil, errNilRegistry
	case src == nil:
		return nil, errNilIntegration
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		store:    st,
		registry: reg,
		source:   src,
		config:   cfg,
		metrics:  &NoOpMetrics{},
		clock:    clock.Real(),
		logger:   log,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Run syncs immediately and then once per interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(time.Duration(s.config.Interval))
	defer ticker.Stop()

	s.logger.Info().
		Str("source", s.config.Source).
		Dur("interval", time.Duration(s.config.Interval)).
		Bool("incremental", s.config.IncrementalEnabled()).
		Msg("Inventory sync started")

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			s.runOnce(ctx)
		}
	}
}

func (s *Service) runOnce(ctx context.Context) {
	if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().
			Err(err).
			Str("sync_type", models.SyncTypeHostRegistry).
			Msg("Inventory sync failed")
	}
}

// Sync performs one run and returns its log entry. A failed run is logged
// with status error and leaves the watermark where it was.
func (s *Service) Sync(ctx context.Context) (*models.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.clock.Now()
	s.metrics.RecordSyncAttempt(s.config.Source)

	var watermark int64

	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error

		watermark, err = tx.ConfigInt(models.ConfigKeyLastSyncUnix)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read sync watermark: %w", err)
	}

	var since *time.Time

	mode := syncModeFull

	if s.config.IncrementalEnabled() && watermark > 0 {
		t := time.Unix(watermark, 0).UTC()
		since = &t
		mode = syncModeIncremental
	}

	s.logger.Info().
		Str("source", s.config.Source).
		Str("mode", mode).
		Int64("watermark", watermark).
		Msg("Fetching inventory")

	result, err := s.source.Fetch(ctx, since)
	if err != nil {
		if errors.Is(err, ErrAuthentication) {
			s.logger.Error().Err(err).Str("source", s.config.Source).Msg("Source rejected credentials, aborting sync")
		}

		return s.fail(ctx, start, fmt.Errorf("fetch inventory: %w", err))
	}

	var (
		run          *models.SyncRun
		totalDevices int
	)

	err = s.store.Update(ctx, func(tx *store.Tx) error {
		var err error

		run, totalDevices, err = s.apply(tx, result, start, mode)

		return err
	})
	if err != nil {
		return s.fail(ctx, start, fmt.Errorf("store inventory: %w", err))
	}

	s.metrics.RecordTotalDevices(totalDevices)

	duration := s.clock.Now().Sub(start)
	s.metrics.RecordSyncSuccess(s.config.Source, run.RecordsSynced, duration)

	s.logger.Info().
		Str("source", s.config.Source).
		Str("mode", mode).
		Int("host_groups", len(result.HostGroups)).
		Int("records", run.RecordsSynced).
		Str("status", string(run.Status)).
		Dur("duration", duration).
		Msg("Inventory sync complete")

	return run, nil
}

// apply runs inside the write transaction and may be retried on SQLITE_BUSY.
// It returns the run and the device count after the upsert.
func (s *Service) apply(tx *store.Tx, result *FetchResult, start time.Time, mode string) (*models.SyncRun, int, error) {
	bulk, err := s.registry.UpsertInventoryTx(tx, result.Records, result.HostGroups)
	if err != nil {
		return nil, 0, err
	}

	totalDevices, err := tx.CountDevices()
	if err != nil {
		return nil, 0, err
	}

	groups, err := tx.HostGroups()
	if err != nil {
		return nil, 0, err
	}

	settings := []struct{ key, value string }{
		{models.ConfigKeyLastSyncUnix, strconv.FormatInt(start.Unix(), 10)},
		{models.ConfigKeyLastSyncTimestamp, start.UTC().Format(time.RFC3339)},
		{models.ConfigKeyTotalDevices, strconv.Itoa(totalDevices)},
		{models.ConfigKeyTotalHostGroups, strconv.Itoa(len(groups))},
		{models.ConfigKeySiteID, s.config.SiteID},
	}

	for _, kv := range settings {
		if err := tx.SetConfigValue(kv.key, kv.value); err != nil {
			return nil, 0, err
		}
	}

	status := models.SyncStatusSuccess

	var errMsg string

	if bulk.Skipped > 0 {
		status = models.SyncStatusPartial
		errMsg = fmt.Sprintf("%d records without external host id skipped", bulk.Skipped)
	}

	run := &models.SyncRun{
		SyncType:      models.SyncTypeHostRegistry,
		RecordsSynced: bulk.Devices,
		Status:        status,
		DurationMS:    s.clock.Now().Sub(start).Milliseconds(),
		ErrorMessage:  errMsg,
	}

	if err := tx.AppendSyncRun(run); err != nil {
		return nil, 0, err
	}

	summary, err := inventorySummary(tx, groups, s.config.SiteID, mode, bulk.Devices)
	if err != nil {
		return nil, 0, err
	}

	body, err := payload.Summary(models.RefKindInventory, s.config.SiteID, summary, tx.Now())
	if err != nil {
		return nil, 0, err
	}

	err = tx.Enqueue(&models.QueuedMessage{
		Topic:    s.config.Topics.Inventory(),
		Payload:  body,
		Priority: InventoryMessagePriority,
		RefKind:  models.RefKindInventory,
		RefID:    strconv.FormatInt(run.ID, 10),
	})
	if err != nil {
		return nil, 0, err
	}

	return run, summary.TotalDevices, nil
}

func (s *Service) fail(ctx context.Context, start time.Time, cause error) (*models.SyncRun, error) {
	duration := s.clock.Now().Sub(start)
	s.metrics.RecordSyncFailure(s.config.Source, cause, duration)

	run := &models.SyncRun{
		SyncType:     models.SyncTypeHostRegistry,
		Status:       models.SyncStatusError,
		DurationMS:   duration.Milliseconds(),
		ErrorMessage: cause.Error(),
	}

	err := s.store.Update(context.WithoutCancel(ctx), func(tx *store.Tx) error {
		run.ID = 0
		run.Timestamp = time.Time{}

		return tx.AppendSyncRun(run)
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("sync_type", models.SyncTypeHostRegistry).
			Msg("Failed to record sync error")

		return run, errors.Join(cause, err)
	}

	return run, cause
}

// LastRun returns the most recent sync log entry, or store.ErrNotFound.
func (s *Service) LastRun(ctx context.Context) (*models.SyncRun, error) {
	var run *models.SyncRun

	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error

		run, err = tx.LastSyncRun(models.SyncTypeHostRegistry)

		return err
	})

	return run, err
}
