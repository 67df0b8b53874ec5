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
)

// Backend names.
const (
	BackendNATS     = "nats"
	BackendMQTT     = "mqtt"
	BackendAMQP     = "amqp"
	BackendAWSIoT   = "awsiot"
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendMulti    = "multi"

	ShadowNATSKV = "nats-kv"
	ShadowAWSIoT = "awsiot"
	ShadowTopic  = "topic"
	ShadowNone   = "none"
)

// Config selects and configures the publish backend.
type Config struct {
	Backend  string          `json:"backend"`
	Multi    []string        `json:"multi,omitempty"`
	NATS     *NATSConfig     `json:"nats,omitempty"`
	MQTT     *MQTTConfig     `json:"mqtt,omitempty"`
	AMQP     *AMQPConfig     `json:"amqp,omitempty"`
	AWS      *AWSConfig      `json:"aws,omitempty"`
	Postgres *PostgresConfig `json:"postgres,omitempty"`
}

// Validate defaults the backend to nats.
func (c *Config) Validate() error {
	if c.Backend == "" {
		c.Backend = BackendNATS
	}

	if c.Backend == BackendNATS && c.NATS == nil {
		c.NATS = &NATSConfig{}
	}

	return nil
}

// ShadowConfig selects the shadow sink.
type ShadowConfig struct {
	Backend   string `json:"backend"`
	ThingName string `json:"thing_name,omitempty"`
	RegionTag string `json:"region_tag,omitempty"`
}

// Validate defaults the sink to none and derives the thing name.
func (c *ShadowConfig) Validate(siteID string) error {
	if c.Backend == "" {
		c.Backend = ShadowNone
	}

	if c.RegionTag == "" {
		c.RegionTag = "hanoi"
	}

	if c.ThingName == "" {
		c.ThingName = fmt.Sprintf("GreengrassCore-%s-%s", siteID, c.RegionTag)
	}

	return nil
}

// NewPublisher builds the configured publisher.
func NewPublisher(ctx context.Context, cfg *Config, log logger.Logger) (Publisher, error) {
	if cfg.Backend != BackendMulti {
		return newPublisher(ctx, cfg.Backend, cfg, log)
	}

	if len(cfg.Multi) == 0 {
		return nil, errEmptyMulti
	}

	pubs := make([]Publisher, 0, len(cfg.Multi))

	for _, name := range cfg.Multi {
		if name == BackendMulti {
			closeAll(pubs)
			return nil, errNestedMulti
		}

		p, err := newPublisher(ctx, name, cfg, log)
		if err != nil {
			closeAll(pubs)
			return nil, err
		}

		pubs = append(pubs, p)
	}

	return NewMultiPublisher(cfg.Multi, pubs), nil
}

func newPublisher(ctx context.Context, backend string, cfg *Config, log logger.Logger) (Publisher, error) {
	switch backend {
	case BackendNATS:
		p, err := NewNATSPublisher(ctx, cfg.NATS, log)
		return nonNil[Publisher](p, err)
	case BackendMQTT:
		p, err := NewMQTTPublisher(cfg.MQTT, log)
		return nonNil[Publisher](p, err)
	case BackendAMQP:
		p, err := NewAMQPPublisher(cfg.AMQP, log)
		return nonNil[Publisher](p, err)
	case BackendAWSIoT:
		p, err := NewIoTPublisher(ctx, cfg.AWS)
		return nonNil[Publisher](p, err)
	case BackendDynamoDB:
		p, err := NewDynamoDBPublisher(ctx, cfg.AWS, func() int64 { return time.Now().Unix() })
		return nonNil[Publisher](p, err)
	case BackendPostgres:
		p, err := NewPostgresPublisher(ctx, cfg.Postgres)
		return nonNil[Publisher](p, err)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// nonNil keeps a failed constructor's typed nil pointer out of the interface.
func nonNil[I any, P any](p P, err error) (I, error) {
	var zero I
	if err != nil {
		return zero, err
	}

	v, ok := any(p).(I)
	if !ok {
		return zero, fmt.Errorf("%T does not implement %T", p, &zero)
	}

	return v, nil
}

func closeAll(pubs []Publisher) {
	for _, p := range pubs {
		_ = p.Close()
	}
}

// NewShadowSink builds the configured shadow sink. The topic sink reuses pub.
func NewShadowSink(ctx context.Context, shadow *ShadowConfig, cfg *Config, pub Publisher, log logger.Logger) (ShadowSink, error) {
	switch shadow.Backend {
	case ShadowNone, "":
		return NoopShadow{}, nil
	case ShadowNATSKV:
		nc := cfg.NATS
		if nc == nil {
			nc = &NATSConfig{}
		}

		p, err := NewNATSKVShadow(ctx, nc, log)
		return nonNil[ShadowSink](p, err)
	case ShadowAWSIoT:
		p, err := NewIoTShadow(ctx, cfg.AWS, shadow.ThingName)
		return nonNil[ShadowSink](p, err)
	case ShadowTopic:
		return NewTopicShadow(pub, shadow.ThingName), nil
	default:
		return nil, fmt.Errorf("shadow: %w: %q", ErrUnknownBackend, shadow.Backend)
	}
}
