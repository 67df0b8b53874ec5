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

package relay

import (
	"time"

	"github.com/carverauto/edgesync/pkg/circuitbreaker"
	"github.com/carverauto/edgesync/pkg/models"
)

const (
	defaultPollInterval   = 10 * time.Second
	defaultBatchSize      = 10
	defaultPublishTimeout = 5 * time.Second
	defaultShadowTimeout  = 5 * time.Second
	defaultRetention      = 7 * 24 * time.Hour
	defaultSweepInterval  = time.Hour
	defaultStatsEvery     = 10
)

// Config controls the relay loop.
type Config struct {
	PollInterval   models.Duration       `json:"poll_interval"`
	BatchSize      int                   `json:"batch_size"`
	PublishTimeout models.Duration       `json:"publish_timeout"`
	ShadowTimeout  models.Duration       `json:"shadow_timeout"`
	Retention      models.Duration       `json:"retention"`
	SweepInterval  models.Duration       `json:"sweep_interval"`
	StatsEvery     int                   `json:"stats_every"`
	Breaker        circuitbreaker.Config `json:"circuit_breaker"`
}

// Validate applies defaults to zero fields.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		c.PollInterval = models.Duration(defaultPollInterval)
	}

	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}

	if c.PublishTimeout <= 0 {
		c.PublishTimeout = models.Duration(defaultPublishTimeout)
	}

	if c.ShadowTimeout <= 0 {
		c.ShadowTimeout = models.Duration(defaultShadowTimeout)
	}

	if c.Retention <= 0 {
		c.Retention = models.Duration(defaultRetention)
	}

	if c.SweepInterval <= 0 {
		c.SweepInterval = models.Duration(defaultSweepInterval)
	}

	if c.StatsEvery <= 0 {
		c.StatsEvery = defaultStatsEvery
	}

	return c.Breaker.Validate()
}
