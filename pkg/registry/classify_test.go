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
	"testing"

	"github.com/carverauto/edgesync/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		groups []string
		want   models.DeviceType
	}{
		{name: "camera", groups: []string{"Hanoi Cameras"}, want: models.DeviceTypeCamera},
		{name: "server", groups: []string{"Linux servers"}, want: models.DeviceTypeServer},
		{name: "router", groups: []string{"Edge Routers"}, want: models.DeviceTypeNetwork},
		{name: "first rule wins", groups: []string{"Network gear", "camera-server"}, want: models.DeviceTypeCamera},
		{name: "no hit", groups: []string{"Templates"}, want: models.DeviceTypeUnknown},
		{name: "empty", want: models.DeviceTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.groups))
		})
	}
}

func TestMapHostStatus(t *testing.T) {
	assert.Equal(t, models.DeviceStatusOnline, MapHostStatus("0"))
	assert.Equal(t, models.DeviceStatusOffline, MapHostStatus("1"))
	assert.Equal(t, models.DeviceStatusUnknown, MapHostStatus("2"))
	assert.Equal(t, models.DeviceStatusUnknown, MapHostStatus(""))
}
