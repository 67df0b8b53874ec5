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
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/edgesync/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig configures the AMQP publisher.
type AMQPConfig struct {
	URL      string     `json:"url"`
	Exchange string     `json:"exchange"`
	TLS      *TLSConfig `json:"tls,omitempty"`
}

func (c *AMQPConfig) validate() error {
	if c.URL == "" {
		return fmt.Errorf("amqp url: %w", ErrMissingConfig)
	}

	if c.Exchange == "" {
		c.Exchange = "amq.topic"
	}

	return nil
}

// amqpSession is a connection and its confirm-mode channel.
type amqpSession interface {
	publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error
	closed() bool
	Close() error
}

// AMQPPublisher publishes persistent messages on a confirm-mode channel.
// The routing key is the topic with slashes turned into dots. A lost
// connection or channel is redialed on the next Publish.
type AMQPPublisher struct {
	dial     func() (amqpSession, error)
	logger   logger.Logger
	exchange string

	mu       sync.Mutex
	session  amqpSession
	shutdown bool
}

// NewAMQPPublisher dials the broker and puts a channel into confirm mode.
func NewAMQPPublisher(cfg *AMQPConfig, log logger.Logger) (*AMQPPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("amqp: %w", ErrMissingConfig)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	tlsCfg, err := cfg.TLS.Build()
	if err != nil {
		return nil, fmt.Errorf("amqp tls: %w", err)
	}

	dial := func() (amqpSession, error) {
		return dialAMQP(cfg.URL, tlsCfg, log)
	}

	session, err := dial()
	if err != nil {
		return nil, err
	}

	log.Info().Str("exchange", cfg.Exchange).Msg("AMQP publisher ready")

	return &AMQPPublisher{dial: dial, logger: log, exchange: cfg.Exchange, session: session}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureSession(); err != nil {
		return err
	}

	return p.session.publish(ctx, p.exchange, SubjectFor(msg.Topic), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Priority:     amqpPriority(msg.Priority),
		Timestamp:    time.Now(),
		Body:         msg.Payload,
	})
}

// ensureSession redials when the session is gone. Callers hold p.mu.
func (p *AMQPPublisher) ensureSession() error {
	if p.shutdown {
		return fmt.Errorf("amqp: %w", amqp.ErrClosed)
	}

	if p.session != nil && !p.session.closed() {
		return nil
	}

	if p.session != nil {
		_ = p.session.Close()
		p.session = nil
	}

	session, err := p.dial()
	if err != nil {
		return fmt.Errorf("failed to reconnect to AMQP broker: %w", err)
	}

	p.session = session
	p.logger.Info().Str("exchange", p.exchange).Msg("AMQP publisher reconnected")

	return nil
}

func dialAMQP(url string, tlsCfg *tls.Config, log logger.Logger) (amqpSession, error) {
	var (
		conn *amqp.Connection
		err  error
	)

	if tlsCfg != nil {
		conn, err = amqp.DialTLS(url, tlsCfg)
	} else {
		conn, err = amqp.Dial(url)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	closes := conn.NotifyClose(make(chan *amqp.Error, 1))

	go func() {
		if err := <-closes; err != nil {
			log.Warn().Err(err).Msg("AMQP connection lost")
		}
	}()

	return &amqpConn{conn: conn, channel: ch}, nil
}

type amqpConn struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func (c *amqpConn) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	confirm, err := c.channel.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.MessageId, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed waiting for confirm of %s: %w", msg.MessageId, err)
	}

	if !acked {
		return fmt.Errorf("%s: %w", msg.MessageId, ErrNotAcknowledged)
	}

	return nil
}

func (c *amqpConn) closed() bool {
	return c.conn.IsClosed() || c.channel.IsClosed()
}

func (c *amqpConn) Close() error {
	_ = c.channel.Close()
	return c.conn.Close()
}

// amqpPriority inverts the queue priority: AMQP treats larger as more urgent.
func amqpPriority(p int) uint8 {
	switch {
	case p <= 1:
		return 9
	case p >= 9:
		return 1
	default:
		return uint8(10 - p)
	}
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.shutdown = true

	if p.session == nil {
		return nil
	}

	err := p.session.Close()
	p.session = nil

	return err
}
