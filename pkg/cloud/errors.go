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

package cloud

import "errors"

var (
	// ErrUnknownBackend is returned by the factories for an unrecognized backend name.
	ErrUnknownBackend = errors.New("unknown cloud backend")
	// ErrMissingConfig is returned when a backend is selected without its settings.
	ErrMissingConfig = errors.New("missing backend configuration")
	// ErrNotAcknowledged is returned when the broker refuses a message.
	ErrNotAcknowledged = errors.New("message not acknowledged")
	errNestedMulti     = errors.New("multi backend cannot contain multi")
	errEmptyMulti      = errors.New("multi backend needs at least one member")
)
