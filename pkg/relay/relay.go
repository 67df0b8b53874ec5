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

// Package relay drains the outbound queue to the cloud publisher.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/edgesync/pkg/circuitbreaker"
	"github.com/carverauto/edgesync/pkg/clock"
	"github.com/carverauto/edgesync/pkg/cloud"
	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/carverauto/edgesync/pkg/models"
	"github.com/carverauto/edgesync/pkg/payload"
)

// Queue is the durable side of the relay. *store.Store implements it.
type Queue interface {
	PendingMessages(ctx context.Context, limit int) ([]models.QueuedMessage, error)
	CompleteDelivery(ctx context.Context, msg *models.QueuedMessage) error
	FailDelivery(ctx context.Context, msg *models.QueuedMessage, cause error) (models.MessageStatus, int, error)
	PurgeMessages(ctx context.Context, before time.Time) (int, error)
}

// Stats are cumulative relay counters.
type Stats struct {
	Cycles         uint64    `json:"cycles"`
	Published      uint64    `json:"published"`
	Failed         uint64    `json:"failed"`
	DeadLettered   uint64    `json:"dead_lettered"`
	Skipped        uint64    `json:"skipped"`
	ShadowFailures uint64    `json:"shadow_failures"`
	Purged         uint64    `json:"purged"`
	LastCycle      time.Time `json:"last_cycle"`
}

// CycleResult summarizes one drain pass.
type CycleResult struct {
	Fetched      int
	Published    int
	Failed       int
	DeadLettered int
	Skipped      int
}

// Relay publishes pending messages in priority order.
type Relay struct {
	queue     Queue
	publisher cloud.Publisher
	shadow    cloud.ShadowSink
	breaker   *circuitbreaker.CircuitBreaker
	config    Config
	clock     clock.Clock
	logger    logger.Logger

	mu    sync.Mutex
	stats Stats

	shadows sync.WaitGroup
}

// Option configures a Relay.
type Option func(*Relay)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(r *Relay) {
		r.clock = c
	}
}

// WithShadowSink enables shadow updates after successful delivery.
func WithShadowSink(s cloud.ShadowSink) Option {
	return func(r *Relay) {
		r.shadow = s
	}
}

// New creates a relay.
func New(q Queue, pub cloud.Publisher, cfg Config, log logger.Logger, opts ...Option) (*Relay, error) {
	if q == nil {
		return nil, errNilQueue
	}

	if pub == nil {
		return nil, errNilPublisher
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Relay{
		queue:     q,
		publisher: pub,
		shadow:    cloud.NoopShadow{},
		config:    cfg,
		clock:     clock.Real(),
		logger:    log,
	}

	for _, opt := range opts {
		opt(r)
	}

	r.breaker = circuitbreaker.New("cloud-publish", cfg.Breaker, log, circuitbreaker.WithClock(r.clock.Now))

	return r, nil
}

// Run drains immediately and then on every poll tick, sweeping retention on
// its own tick. It returns after ctx is cancelled and in-flight shadow
// updates have finished.
func (r *Relay) Run(ctx context.Context) error {
	poll := r.clock.Ticker(time.Duration(r.config.PollInterval))
	defer poll.Stop()

	sweep := r.clock.Ticker(time.Duration(r.config.SweepInterval))
	defer sweep.Stop()

	defer r.shadows.Wait()

	r.logger.Info().
		Dur("poll_interval", time.Duration(r.config.PollInterval)).
		Int("batch_size", r.config.BatchSize).
		Msg("Relay started")

	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Relay stopping")
			return ctx.Err()
		case <-poll.Chan():
			r.runCycle(ctx)
		case <-sweep.Chan():
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error().Err(err).Msg("Retention sweep failed")
			}
		}
	}
}

func (r *Relay) runCycle(ctx context.Context) {
	if _, err := r.Cycle(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error().Err(err).Msg("Relay cycle failed")
	}
}

// Cycle publishes up to BatchSize pending messages. While the publish
// breaker is open the rest of the batch is left for a later cycle without
// spending attempts.
func (r *Relay) Cycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	defer r.finishCycle(&res)

	msgs, err := r.queue.PendingMessages(ctx, r.config.BatchSize)
	if err != nil {
		return res, fmt.Errorf("failed to load pending messages: %w", err)
	}

	res.Fetched = len(msgs)

	for i := range msgs {
		msg := &msgs[i]

		if ctx.Err() != nil {
			res.Skipped += len(msgs) - i
			break
		}

		if !r.breaker.Allow() {
			res.Skipped += len(msgs) - i

			r.logger.Warn().
				Int("skipped", len(msgs)-i).
				Msg("Publish circuit open, deferring remaining messages")

			break
		}

		r.deliver(ctx, msg, &res)
	}

	return res, nil
}

func (r *Relay) deliver(ctx context.Context, msg *models.QueuedMessage, res *CycleResult) {
	err := r.publish(ctx, msg)

	// Bookkeeping must land even if shutdown began mid-publish.
	bookCtx := context.WithoutCancel(ctx)

	if err == nil {
		r.breaker.Record(nil)
		res.Published++

		if cerr := r.queue.CompleteDelivery(bookCtx, msg); cerr != nil {
			r.logger.Error().
				Err(cerr).
				Str("message_id", msg.MessageID).
				Msg("Published message could not be marked sent, it will be redelivered")

			return
		}

		r.updateShadow(msg)

		return
	}

	if ctx.Err() != nil {
		// Shutdown, not a delivery failure.
		res.Skipped++
		return
	}

	r.breaker.Record(err)
	res.Failed++

	status, attempts, ferr := r.queue.FailDelivery(bookCtx, msg, err)
	if ferr != nil {
		r.logger.Error().
			Err(ferr).
			Str("message_id", msg.MessageID).
			Msg("Failed to record delivery failure")

		return
	}

	event := r.logger.Warn()
	if status == models.MessageStatusFailed {
		res.DeadLettered++
		event = r.logger.Error()
	}

	event.
		Err(err).
		Str("message_id", msg.MessageID).
		Str("topic", msg.Topic).
		Str("ref_id", msg.RefID).
		Int("attempts", attempts).
		Int("max_attempts", msg.MaxAttempts).
		Str("status", string(status)).
		Msg("Message delivery failed")
}

// publish runs the publisher in its own goroutine so one that ignores
// its context still cannot hold the cycle past PublishTimeout.
func (r *Relay) publish(ctx context.Context, msg *models.QueuedMessage) error {
	timeout := time.Duration(r.config.PublishTimeout)

	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- r.publisher.Publish(pctx, cloud.Message{
			ID:       msg.MessageID,
			Topic:    msg.Topic,
			Payload:  msg.Payload,
			Priority: msg.Priority,
		})
	}()

	select {
	case err := <-done:
		return err
	case <-pctx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return fmt.Errorf("%w after %s", ErrPublishTimeout, timeout)
	}
}

func (r *Relay) updateShadow(msg *models.QueuedMessage) {
	ref, ok := payload.ParseRef(msg.Payload)
	if !ok {
		return
	}

	status := ref.DeviceStatus
	if status == "" {
		status = ref.Status
	}

	state := cloud.ShadowState{LastIncident: ref.IncidentID, LastUpdate: r.clock.Now().UTC(), Status: status}

	r.shadows.Add(1)

	go func() {
		defer r.shadows.Done()

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.config.ShadowTimeout))
		defer cancel()

		if err := r.shadow.UpdateShadow(ctx, ref.DeviceID, state); err != nil {
			r.mu.Lock()
			r.stats.ShadowFailures++
			r.mu.Unlock()

			r.logger.Warn().
				Err(err).
				Str("device_id", ref.DeviceID).
				Str("message_id", msg.MessageID).
				Msg("Shadow update failed")
		}
	}()
}

// WaitShadows blocks until in-flight shadow updates finish.
func (r *Relay) WaitShadows() {
	r.shadows.Wait()
}

func (r *Relay) finishCycle(res *CycleResult) {
	r.mu.Lock()
	r.stats.Cycles++
	r.stats.Published += uint64(res.Published)
	r.stats.Failed += uint64(res.Failed)
	r.stats.DeadLettered += uint64(res.DeadLettered)
	r.stats.Skipped += uint64(res.Skipped)
	r.stats.LastCycle = r.clock.Now()
	stats := r.stats
	r.mu.Unlock()

	if stats.Cycles%uint64(r.config.StatsEvery) != 0 {
		return
	}

	r.logger.Info().
		Uint64("cycles", stats.Cycles).
		Uint64("published", stats.Published).
		Uint64("failed", stats.Failed).
		Uint64("dead_lettered", stats.DeadLettered).
		Uint64("skipped", stats.Skipped).
		Uint64("shadow_failures", stats.ShadowFailures).
		Str("breaker", r.breaker.State().String()).
		Msg("Relay stats")
}

// Stats returns a copy of the cumulative counters.
func (r *Relay) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stats
}

// Sweep deletes terminal messages older than the retention window.
func (r *Relay) Sweep(ctx context.Context) (int, error) {
	cutoff := r.clock.Now().Add(-time.Duration(r.config.Retention))

	n, err := r.queue.PurgeMessages(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge messages: %w", err)
	}

	r.mu.Lock()
	r.stats.Purged += uint64(n)
	r.mu.Unlock()

	if n > 0 {
		r.logger.Info().Int("purged", n).Time("cutoff", cutoff).Msg("Purged delivered and dead-lettered messages")
	}

	return n, nil
}
