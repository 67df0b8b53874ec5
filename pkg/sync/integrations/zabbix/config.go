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

package zabbix

import (
	"time"

	"github.com/carverauto/edgesync/pkg/circuitbreaker"
	"github.com/carverauto/edgesync/pkg/models"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultTokenTTL       = 45 * time.Minute
	defaultAgentPort      = 10050
)

// Config holds the API endpoint and credentials.
type Config struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
	// APIToken skips user.login when set.
	APIToken string `json:"api_token,omitempty"`

	RequestTimeout models.Duration `json:"request_timeout"`
	TokenTTL       models.Duration `json:"token_ttl"`
	DefaultPort    int             `json:"default_port"`
	// GroupBatchSize > 0 pages host.get by that many host groups per call.
	GroupBatchSize int                   `json:"group_batch_size,omitempty"`
	Breaker        circuitbreaker.Config `json:"circuit_breaker"`
}

// Validate applies defaults and checks required fields.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errMissingURL
	}

	if c.APIToken == "" && (c.Username == "" || c.Password == "") {
		return errMissingCredentials
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = models.Duration(defaultRequestTimeout)
	}

	if c.TokenTTL <= 0 {
		c.TokenTTL = models.Duration(defaultTokenTTL)
	}

	if c.DefaultPort <= 0 {
		c.DefaultPort = defaultAgentPort
	}

	return c.Breaker.Validate()
}
