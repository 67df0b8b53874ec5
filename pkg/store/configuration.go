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
	"strconv"

	"zombiezen.com/go/sqlite"
)

// ConfigValue reads a configuration key. found is false when the key is unset.
func (tx *Tx) ConfigValue(key string) (value string, found bool, err error) {
	err = tx.query(`SELECT value FROM configuration WHERE key = ?`, func(stmt *sqlite.Stmt) error {
		value = stmt.ColumnText(0)
		found = true

		return nil
	}, key)
	if err != nil {
		return "", false, fmt.Errorf("read config %s: %w", key, err)
	}

	return value, found, nil
}

// ConfigInt reads an integer configuration key, returning 0 when unset.
func (tx *Tx) ConfigInt(key string) (int64, error) {
	value, found, err := tx.ConfigValue(key)
	if err != nil || !found || value == "" {
		return 0, err
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config %s is not an integer: %w", key, err)
	}

	return n, nil
}

// SetConfigValue writes a configuration key.
func (tx *Tx) SetConfigValue(key, value string) error {
	err := tx.exec(`INSERT INTO configuration (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, toMillis(tx.now))
	if err != nil {
		return fmt.Errorf("write config %s: %w", key, err)
	}

	return nil
}
