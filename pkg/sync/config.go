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

package sync

import (
	"time"

	"github.com/carverauto/edgesync/pkg/models"
)

const (
	defaultInterval = time.Hour
	defaultSource   = "zabbix"
)

// Config controls the inventory sync loop.
type Config struct {
	Interval    models.Duration `json:"interval"`
	Incremental *bool           `json:"incremental,omitempty"`
	Source      string          `json:"source"`

	// Filled in by the gateway from the site settings.
	SiteID string        `json:"-"`
	Topics models.Topics `json:"-"`
}

// Validate applies defaults.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		c.Interval = models.Duration(defaultInterval)
	}

	if c.Source == "" {
		c.Source = defaultSource
	}

	return nil
}

// IncrementalEnabled reports whether runs may use the stored watermark.
// Unset means enabled.
func (c *Config) IncrementalEnabled() bool {
	return c.Incremental == nil || *c.Incremental
}
