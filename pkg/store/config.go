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

package store

import (
	"time"

	"github.com/carverauto/edgesync/pkg/models"
)

const (
	defaultPoolSize       = 4
	defaultBusyTimeout    = 5 * time.Second
	defaultMaxBusyRetries = 3
)

// Config configures the SQLite-backed store.
type Config struct {
	Path           string          `json:"path"`
	PoolSize       int             `json:"pool_size"`
	BusyTimeout    models.Duration `json:"busy_timeout"`
	MaxBusyRetries int             `json:"max_busy_retries"`
}

// Validate applies defaults and checks required fields.
func (c *Config) Validate() error {
	if c.Path == "" {
		return ErrPathRequired
	}

	if c.PoolSize <= 0 {
		c.PoolSize = defaultPoolSize
	}

	if c.BusyTimeout <= 0 {
		c.BusyTimeout = models.Duration(defaultBusyTimeout)
	}

	if c.MaxBusyRetries <= 0 {
		c.MaxBusyRetries = defaultMaxBusyRetries
	}

	return nil
}
