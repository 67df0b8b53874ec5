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

package gateway

import (
	"fmt"

	"github.com/carverauto/edgesync/pkg/aggregator"
	"github.com/carverauto/edgesync/pkg/cloud"
	"github.com/carverauto/edgesync/pkg/incident"
	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/carverauto/edgesync/pkg/models"
	"github.com/carverauto/edgesync/pkg/payload"
	"github.com/carverauto/edgesync/pkg/relay"
	"github.com/carverauto/edgesync/pkg/store"
	edgesync "github.com/carverauto/edgesync/pkg/sync"
	"github.com/carverauto/edgesync/pkg/sync/integrations/zabbix"
	"github.com/carverauto/edgesync/pkg/webhook"
)

const (
	defaultSiteID      = "site-001"
	defaultResyncBatch = 100
)

// Config is the whole gateway configuration document.
type Config struct {
	SiteID      string         `json:"site_id"`
	TopicPrefix string         `json:"topic_prefix,omitempty"`
	Format      payload.Format `json:"payload_format,omitempty"`
	Logging     *logger.Config `json:"logging,omitempty"`

	Store      store.Config       `json:"store"`
	Cloud      cloud.Config       `json:"cloud"`
	Shadow     cloud.ShadowConfig `json:"shadow"`
	Relay      relay.Config       `json:"relay"`
	Sync       edgesync.Config    `json:"sync"`
	Aggregator aggregator.Config  `json:"aggregator"`
	Webhook    webhook.Config     `json:"webhook"`

	// Zabbix is the inventory source. Inventory sync is off without it.
	Zabbix *zabbix.Config `json:"zabbix,omitempty"`

	// ResyncBatch caps how many unsynced incidents are re-queued per sweep.
	ResyncBatch int `json:"resync_batch,omitempty"`
	// MaxSyncRetries is the failed delivery count at which an incident is
	// given up. Defaults to incident.DefaultMaxSyncRetries.
	MaxSyncRetries int `json:"max_sync_retries,omitempty"`
}

// Validate applies defaults and pushes the site identity into the
// component configs.
func (c *Config) Validate() error {
	if c.SiteID == "" {
		c.SiteID = defaultSiteID
	}

	if c.TopicPrefix == "" {
		c.TopicPrefix = models.DefaultTopicPrefix
	}

	if c.ResyncBatch <= 0 {
		c.ResyncBatch = defaultResyncBatch
	}

	if c.MaxSyncRetries <= 0 {
		c.MaxSyncRetries = incident.DefaultMaxSyncRetries
	}

	if err := c.Format.Validate(); err != nil {
		return err
	}

	topics := c.Topics()

	c.Sync.SiteID, c.Sync.Topics = c.SiteID, topics
	c.Aggregator.SiteID, c.Aggregator.Topics = c.SiteID, topics

	validators := []struct {
		name string
		fn   func() error
	}{
		{"store", c.Store.Validate},
		{"cloud", c.Cloud.Validate},
		{"shadow", func() error { return c.Shadow.Validate(c.SiteID) }},
		{"relay", c.Relay.Validate},
		{"sync", c.Sync.Validate},
		{"aggregator", c.Aggregator.Validate},
		{"webhook", c.Webhook.Validate},
	}

	for _, v := range validators {
		if err := v.fn(); err != nil {
			return fmt.Errorf("%s config: %w", v.name, err)
		}
	}

	if c.Zabbix != nil {
		if err := c.Zabbix.Validate(); err != nil {
			return fmt.Errorf("zabbix config: %w", err)
		}
	}

	return nil
}

// Topics returns the outbound topic set for this site.
func (c *Config) Topics() models.Topics {
	return models.Topics{Prefix: c.TopicPrefix, SiteID: c.SiteID}
}
