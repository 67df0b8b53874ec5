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

//go:generate mockgen -destination=mock_sync.go -package=sync github.com/carverauto/edgesync/pkg/sync Integration

import (
	"context"
	"time"

	"github.com/carverauto/edgesync/pkg/models"
)

// FetchResult is one pull from the inventory source.
type FetchResult struct {
	HostGroups []models.HostGroup
	Records    []models.InventoryRecord
}

// Integration pulls host inventory from an external source. A nil since
// requests everything; otherwise only hosts changed at or after since.
type Integration interface {
	Fetch(ctx context.Context, since *time.Time) (*FetchResult, error)
}
