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
	"fmt"

	"github.com/carverauto/edgesync/pkg/models"
	"zombiezen.com/go/sqlite"
)

// UpsertHostGroups writes host groups keyed by group id.
func (tx *Tx) UpsertHostGroups(groups []models.HostGroup) (int, error) {
	for i, g := range groups {
		err := tx.exec(`INSERT INTO host_groups (group_id, name, internal, flags, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(group_id) DO UPDATE SET
				name = excluded.name,
				internal = excluded.internal,
				flags = excluded.flags,
				updated_at = excluded.updated_at`,
			g.GroupID, g.Name, boolToInt(g.Internal), int64(g.Flags), toMillis(tx.now))
		if err != nil {
			return i, fmt.Errorf("upsert host group %s: %w", g.GroupID, err)
		}
	}

	return len(groups), nil
}

// HostGroups returns every known host group ordered by name.
func (tx *Tx) HostGroups() ([]models.HostGroup, error) {
	var groups []models.HostGroup

	err := tx.query(`SELECT group_id, name, internal, flags, updated_at FROM host_groups ORDER BY name`,
		func(stmt *sqlite.Stmt) error {
			groups = append(groups, models.HostGroup{
				GroupID:   stmt.ColumnText(0),
				Name:      stmt.ColumnText(1),
				Internal:  stmt.ColumnInt(2) != 0,
				Flags:     stmt.ColumnInt(3),
				UpdatedAt: fromMillis(stmt.ColumnInt64(4)),
			})

			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list host groups: %w", err)
	}

	return groups, nil
}
