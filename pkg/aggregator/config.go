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

package aggregator

import (
	"errors"
	"time"

	"github.com/carverauto/edgesync/pkg/models"
)

const (
	defaultInterval = time.Hour
	defaultTopN     = 10
)

var errNilStore = errors.New("store is required")

// Config controls the analytics rollup.
type Config struct {
	Interval models.Duration `json:"interval"`
	// Window defaults to Interval so consecutive summaries tile.
	Window models.Duration `json:"window"`
	TopN   int             `json:"top_n"`

	SiteID string        `json:"-"`
	Topics models.Topics `json:"-"`
}

// Validate applies defaults.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		c.Interval = models.Duration(defaultInterval)
	}

	if c.Window <= 0 {
		c.Window = c.Interval
	}

	if c.TopN <= 0 {
		c.TopN = defaultTopN
	}

	return nil
}
