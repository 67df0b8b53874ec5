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

package models

import "fmt"

// DefaultTopicPrefix roots every outbound topic.
const DefaultTopicPrefix = "edgesync"

// Topics builds the per-site outbound topic names.
type Topics struct {
	Prefix string
	SiteID string
}

func (t Topics) topic(leaf string) string {
	prefix := t.Prefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}

	return fmt.Sprintf("%s/%s/%s", prefix, t.SiteID, leaf)
}

func (t Topics) Incidents() string { return t.topic("incidents") }
func (t Topics) Devices() string   { return t.topic("devices") }
func (t Topics) Inventory() string { return t.topic("inventory") }
func (t Topics) Analytics() string { return t.topic("analytics") }
