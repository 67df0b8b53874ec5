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

package registry

import (
	"strings"

	"github.com/carverauto/edgesync/pkg/models"
)

type classRule struct {
	deviceType models.DeviceType
	keywords   []string
}

// Order matters: the first rule with a hit wins.
var classRules = []classRule{
	{deviceType: models.DeviceTypeCamera, keywords: []string{"camera"}},
	{deviceType: models.DeviceTypeServer, keywords: []string{"server"}},
	{deviceType: models.DeviceTypeNetwork, keywords: []string{"network", "switch", "router"}},
}

// Classify infers a device type from host group names.
func Classify(groupNames []string) models.DeviceType {
	lowered := make([]string, 0, len(groupNames))
	for _, name := range groupNames {
		lowered = append(lowered, strings.ToLower(name))
	}

	for _, rule := range classRules {
		for _, name := range lowered {
			for _, kw := range rule.keywords {
				if strings.Contains(name, kw) {
					return rule.deviceType
				}
			}
		}
	}

	return models.DeviceTypeUnknown
}

// MapHostStatus maps a source availability code to a device status.
func MapHostStatus(code string) models.DeviceStatus {
	switch strings.TrimSpace(code) {
	case "0":
		return models.DeviceStatusOnline
	case "1":
		return models.DeviceStatusOffline
	default:
		return models.DeviceStatusUnknown
	}
}
