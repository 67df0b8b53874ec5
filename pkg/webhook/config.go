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

package webhook

import (
	"time"

	"github.com/carverauto/edgesync/pkg/models"
)

const (
	defaultListenAddr      = ":8080"
	defaultMaxBodyBytes    = 1 << 20
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Config controls the ingress listener.
type Config struct {
	ListenAddr string `json:"listen_addr"`
	// APIKey, when set, is required in X-API-Key on every path but /health.
	APIKey          string          `json:"api_key,omitempty"`
	MaxBodyBytes    int64           `json:"max_body_bytes"`
	ReadTimeout     models.Duration `json:"read_timeout"`
	WriteTimeout    models.Duration `json:"write_timeout"`
	ShutdownTimeout models.Duration `json:"shutdown_timeout"`
}

// Validate applies defaults.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}

	if c.ReadTimeout <= 0 {
		c.ReadTimeout = models.Duration(defaultReadTimeout)
	}

	if c.WriteTimeout <= 0 {
		c.WriteTimeout = models.Duration(defaultWriteTimeout)
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = models.Duration(defaultShutdownTimeout)
	}

	return nil
}
