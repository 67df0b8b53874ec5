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
	"fmt"
	"time"

	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/carverauto/edgesync/pkg/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the MQTT publisher.
type MQTTConfig struct {
	Broker         string          `json:"broker"`
	ClientID       string          `json:"client_id"`
	Username       string          `json:"username,omitempty"`
	Password       string          `json:"password,omitempty"`
	QoS            byte            `json:"qos"`
	KeepAlive      models.Duration `json:"keep_alive"`
	ConnectTimeout models.Duration `json:"connect_timeout"`
	TLS            *TLSConfig      `json:"tls,omitempty"`
}

func (c *MQTTConfig) validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt broker: %w", ErrMissingConfig)
	}

	if c.ClientID == "" {
		c.ClientID = "edgesync-gateway"
	}

	if c.QoS == 0 {
		c.QoS = 1
	}

	if c.KeepAlive == 0 {
		c.KeepAlive = models.Duration(60 * time.Second)
	}

	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = models.Duration(10 * time.Second)
	}

	return nil
}

// MQTTPublisher publishes each message to its topic with QoS 1 by default.
type MQTTPublisher struct {
	client mqtt.Client
	qos    byte
}

// NewMQTTPublisher connects to the broker.
func NewMQTTPublisher(cfg *MQTTConfig, log logger.Logger) (*MQTTPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mqtt: %w", ErrMissingConfig)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	tlsCfg, err := cfg.TLS.Build()
	if err != nil {
		return nil, fmt.Errorf("mqtt tls: %w", err)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(time.Duration(cfg.KeepAlive))
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(false)

	if tlsCfg != nil {
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("Connected to MQTT broker")
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Error().Err(err).Msg("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(time.Duration(cfg.ConnectTimeout)) {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: timed out", cfg.Broker)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	return &MQTTPublisher{client: client, qos: cfg.QoS}, nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, msg Message) error {
	return p.publish(ctx, msg.Topic, msg.Payload)
}

func (p *MQTTPublisher) publish(ctx context.Context, topic string, body []byte) error {
	token := p.client.Publish(topic, p.qos, false, body)

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", topic, err)
		}

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
