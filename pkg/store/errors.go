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

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrPathRequired is returned by Open when no database path is configured.
	ErrPathRequired = errors.New("store: path is required")
	// ErrMessageNotPending is returned when a delivery transition targets a terminal message.
	ErrMessageNotPending = errors.New("message is not pending")
	// ErrAlreadyResolved is returned when resolving an incident that already has resolved_at.
	ErrAlreadyResolved = errors.New("incident already resolved")
	// ErrIntegrityCheckFailed is reported in health output when PRAGMA integrity_check is not ok.
	ErrIntegrityCheckFailed = errors.New("integrity check failed")
)
