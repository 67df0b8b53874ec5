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

package incident

import "errors"

var (
	// ErrMalformedPayload marks input the transport should reject without retrying.
	ErrMalformedPayload = errors.New("malformed webhook payload")
	errMissingField     = errors.New("missing required field")
	errBadTimestamp     = errors.New("unparseable timestamp")
	errNilStore         = errors.New("ledger requires a store")
	errNilRegistry      = errors.New("ledger requires a registry")
)
