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

package cloud

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/carverauto/edgesync/pkg/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	headerPriority = "Edgesync-Priority"
	headerTopic    = "Edgesync-Topic"
)

// NATSConfig configures the JetStream publisher and the KV shadow sink.
type NATSConfig struct {
	URL         string          `json:"url"`
	Stream      string          `json:"stream"`
	Subjects    []string        `json:"subjects"`
	DedupWindow models.Duration `json:"dedup_window"`
	CredsFile   string          `json:"creds_file,omitempty"`
	Bucket      string          `json:"bucket"`
	TLS         *TLSConfig      `json:"tls,omitempty"`
}

func (c *NATSConfig) applyDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}

	if c.Stream == "" {
		c.Stream = "EDGESYNC"
	}

	if len(c.Subjects) == 0 {
		c.Subjects = []string{models.DefaultTopicPrefix + ".>"}
	}

	if c.Bucket == "" {
		c.Bucket = "edgesync-shadows"
	}
}

func connectNATS(cfg *NATSConfig, log logger.Logger) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.Name("edgesync-gateway"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	if cfg.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))
	}

	tlsCfg, err := cfg.TLS.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("nats tls: %w", err)
	}

	if tlsCfg != nil {
		opts = append(opts, nats.Secure(tlsCfg))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return nc, js, nil
}

// NATSPublisher publishes to a JetStream stream. The message id becomes
// Nats-Msg-Id so the stream drops redeliveries inside its dedup window.
type NATSPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger logger.Logger
}

// NewNATSPublisher connects and makes sure the stream exists.
func NewNATSPublisher(ctx context.Context, cfg *NATSConfig, log logger.Logger) (*NATSPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nats: %w", ErrMissingConfig)
	}

	cfg.applyDefaults()

	nc, js, err := connectNATS(cfg, log)
	if err != nil {
		return nil, err
	}

	streamCfg := jetstream.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   cfg.Subjects,
		Storage:    jetstream.FileStorage,
		Duplicates: time.Duration(cfg.DedupWindow),
	}

	if _, err := js.CreateOrUpdateStream(ctx, streamCfg); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create or update stream %s: %w", cfg.Stream, err)
	}

	log.Info().Str("stream", cfg.Stream).Strs("subjects", cfg.Subjects).Msg("NATS publisher ready")

	return &NATSPublisher{nc: nc, js: js, logger: log}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, msg Message) error {
	m := nats.NewMsg(SubjectFor(msg.Topic))
	m.Data = msg.Payload
	m.Header.Set(headerPriority, strconv.Itoa(msg.Priority))
	m.Header.Set(headerTopic, msg.Topic)

	ack, err := p.js.PublishMsg(ctx, m, jetstream.WithMsgID(msg.ID))
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.ID, err)
	}

	if ack.Duplicate {
		p.logger.Debug().Str("message_id", msg.ID).Msg("Stream already had message")
	}

	return nil
}

func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}

	err := p.nc.Drain()
	if errors.Is(err, nats.ErrConnectionClosed) {
		return nil
	}

	return err
}

// NATSKVShadow stores shadow documents in a JetStream KV bucket keyed by device id.
type NATSKVShadow struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// NewNATSKVShadow connects and creates the bucket if needed.
func NewNATSKVShadow(ctx context.Context, cfg *NATSConfig, log logger.Logger) (*NATSKVShadow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nats-kv: %w", ErrMissingConfig)
	}

	cfg.applyDefaults()

	nc, js, err := connectNATS(cfg, log)
	if err != nil {
		return nil, err
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: cfg.Bucket, History: 1})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create KV bucket %s: %w", cfg.Bucket, err)
	}

	return &NATSKVShadow{nc: nc, kv: kv}, nil
}

func (s *NATSKVShadow) UpdateShadow(ctx context.Context, deviceID string, state ShadowState) error {
	doc, err := ReportedDocument(state)
	if err != nil {
		return err
	}

	if _, err := s.kv.Put(ctx, deviceID, doc); err != nil {
		return fmt.Errorf("failed to put shadow for %s: %w", deviceID, err)
	}

	return nil
}

// Get returns the stored shadow document for a device.
func (s *NATSKVShadow) Get(ctx context.Context, deviceID string) ([]byte, bool, error) {
	entry, err := s.kv.Get(ctx, deviceID)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	return entry.Value(), true, nil
}

func (s *NATSKVShadow) Close() error {
	s.nc.Close()
	return nil
}
