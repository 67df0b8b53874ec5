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

// Package gateway wires the edge components together and runs them.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/edgesync/pkg/aggregator"
	"github.com/carverauto/edgesync/pkg/clock"
	"github.com/carverauto/edgesync/pkg/cloud"
	"github.com/carverauto/edgesync/pkg/incident"
	"github.com/carverauto/edgesync/pkg/lifecycle"
	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/carverauto/edgesync/pkg/models"
	"github.com/carverauto/edgesync/pkg/registry"
	"github.com/carverauto/edgesync/pkg/relay"
	"github.com/carverauto/edgesync/pkg/store"
	edgesync "github.com/carverauto/edgesync/pkg/sync"
	"github.com/carverauto/edgesync/pkg/sync/integrations/zabbix"
	"github.com/carverauto/edgesync/pkg/version"
	"github.com/carverauto/edgesync/pkg/webhook"
)

// Gateway owns every component of one edge site.
type Gateway struct {
	config *Config
	clock  clock.Clock
	logger logger.Logger

	store      *store.Store
	registry   *registry.Registry
	ledger     *incident.Ledger
	publisher  cloud.Publisher
	shadow     cloud.ShadowSink
	relay      *relay.Relay
	sync       *edgesync.Service
	metrics    *edgesync.InMemoryMetrics
	aggregator *aggregator.Aggregator
	server     *webhook.Server
}

// Option customizes a Gateway.
type Option func(*options)

type options struct {
	clock     clock.Clock
	publisher cloud.Publisher
	shadow    cloud.ShadowSink
	source    edgesync.Integration
}

// WithClock sets the clock shared by the polling loops.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithPublisher replaces the publisher built from the cloud config.
func WithPublisher(p cloud.Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithShadowSink replaces the shadow sink built from the shadow config.
func WithShadowSink(s cloud.ShadowSink) Option {
	return func(o *options) {
		o.shadow = s
	}
}

// WithInventorySource replaces the Zabbix client as the sync source.
func WithInventorySource(src edgesync.Integration) Option {
	return func(o *options) {
		o.source = src
	}
}

// New validates cfg and builds every component. On error anything already
// opened is closed again.
func New(ctx context.Context, cfg *Config, log logger.Logger, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, errNilConfig
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}

	g := &Gateway{config: cfg, clock: o.clock, logger: log}

	if err := g.build(ctx, &o); err != nil {
		if cerr := g.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to release components after build error")
		}

		return nil, err
	}

	log.Info().
		Str("site_id", cfg.SiteID).
		Str("version", version.GetFullVersion()).
		Str("cloud_backend", cfg.Cloud.Backend).
		Str("shadow_backend", cfg.Shadow.Backend).
		Bool("inventory_sync", g.sync != nil).
		Msg("Gateway initialized")

	return g, nil
}

func (g *Gateway) build(ctx context.Context, o *options) error {
	cfg := g.config
	topics := cfg.Topics()

	st, err := store.Open(ctx, cfg.Store, g.component("store"), store.WithClock(g.clock.Now))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	g.store = st

	if err := g.recordSite(ctx); err != nil {
		return err
	}

	g.registry, err = registry.New(st, registry.Config{SiteID: cfg.SiteID, Topics: topics, Format: cfg.Format},
		g.component("registry"))
	if err != nil {
		return err
	}

	g.ledger, err = incident.New(st, g.registry, incident.Config{
		SiteID:         cfg.SiteID,
		Topics:         topics,
		Format:         cfg.Format,
		MaxSyncRetries: cfg.MaxSyncRetries,
	}, g.component("incident"))
	if err != nil {
		return err
	}

	if err := g.buildCloud(ctx, o); err != nil {
		return err
	}

	g.relay, err = relay.New(st, g.publisher, cfg.Relay, g.component("relay"),
		relay.WithClock(g.clock), relay.WithShadowSink(g.shadow))
	if err != nil {
		return err
	}

	if err := g.buildSync(o); err != nil {
		return err
	}

	g.aggregator, err = aggregator.New(st, cfg.Aggregator, g.component("aggregator"), aggregator.WithClock(g.clock))
	if err != nil {
		return err
	}

	statusOpts := []webhook.Option{
		webhook.WithStatus("version", func() any { return version.Get() }),
		webhook.WithStatus("relay", func() any { return g.relay.Stats() }),
	}

	if g.metrics != nil {
		statusOpts = append(statusOpts, webhook.WithStatus("sync", func() any { return g.metrics.GetMetrics() }))
	}

	g.server, err = webhook.New(cfg.Webhook, g.ledger, st, g.component("webhook"), statusOpts...)

	return err
}

func (g *Gateway) buildCloud(ctx context.Context, o *options) error {
	var err error

	g.publisher = o.publisher
	if g.publisher == nil {
		g.publisher, err = cloud.NewPublisher(ctx, &g.config.Cloud, g.component("cloud"))
		if err != nil {
			return fmt.Errorf("create %s publisher: %w", g.config.Cloud.Backend, err)
		}
	}

	g.shadow = o.shadow
	if g.shadow == nil {
		g.shadow, err = cloud.NewShadowSink(ctx, &g.config.Shadow, &g.config.Cloud, g.publisher, g.component("shadow"))
		if err != nil {
			return fmt.Errorf("create %s shadow sink: %w", g.config.Shadow.Backend, err)
		}
	}

	return nil
}

func (g *Gateway) buildSync(o *options) error {
	cfg := g.config
	src := o.source
	log := g.component("sync")

	metrics := edgesync.NewInMemoryMetrics(log)

	if src == nil {
		if cfg.Zabbix == nil {
			g.logger.Warn().Msg("No zabbix source configured, inventory sync disabled")

			return nil
		}

		client, err := zabbix.New(*cfg.Zabbix, log, zabbix.WithMetrics(metrics), zabbix.WithNow(g.clock.Now))
		if err != nil {
			return fmt.Errorf("create zabbix client: %w", err)
		}

		src = client
	}

	svc, err := edgesync.NewService(g.store, g.registry, src, cfg.Sync, log,
		edgesync.WithClock(g.clock), edgesync.WithMetrics(metrics))
	if err != nil {
		return err
	}

	g.sync, g.metrics = svc, metrics

	return nil
}

func (g *Gateway) recordSite(ctx context.Context) error {
	return g.store.Update(ctx, func(tx *store.Tx) error {
		return tx.SetConfigValue(models.ConfigKeySiteID, g.config.SiteID)
	})
}

func (g *Gateway) component(name string) logger.Logger {
	return lifecycle.ComponentLogger(g.logger, name)
}

// Run runs every loop until ctx is cancelled or one of them fails.
func (g *Gateway) Run(ctx context.Context) error {
	loops := map[string]lifecycle.Loop{
		"relay":      g.relay,
		"aggregator": g.aggregator,
		"webhook":    g.server,
		"resync":     lifecycle.LoopFunc(g.runResync),
	}

	if g.sync != nil {
		loops["sync"] = g.sync
	}

	return lifecycle.RunLoops(ctx, g.logger, loops)
}

// runResync re-queues unsynced incidents whose messages were dead-lettered,
// once per relay sweep interval.
func (g *Gateway) runResync(ctx context.Context) error {
	ticker := g.clock.Ticker(time.Duration(g.config.Relay.SweepInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			n, err := g.ledger.ResyncPending(ctx, g.config.ResyncBatch)
			if err != nil {
				g.logger.Error().Err(err).Msg("Failed to re-queue unsynced incidents")

				continue
			}

			if n > 0 {
				g.logger.Info().Int("count", n).Msg("Re-queued unsynced incidents")
			}
		}
	}
}

// Store exposes the gateway's store.
func (g *Gateway) Store() *store.Store { return g.store }

// Ledger exposes the incident ledger.
func (g *Gateway) Ledger() *incident.Ledger { return g.ledger }

// Relay exposes the outbound relay.
func (g *Gateway) Relay() *relay.Relay { return g.relay }

// Server exposes the webhook server.
func (g *Gateway) Server() *webhook.Server { return g.server }

// Close releases the shadow sink, the publisher and then the store.
func (g *Gateway) Close() error {
	var errs []error

	if g.shadow != nil {
		if err := g.shadow.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close shadow sink: %w", err))
		}
	}

	if g.publisher != nil {
		if err := g.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}

	if g.store != nil {
		if err := g.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}

	return errors.Join(errs...)
}
