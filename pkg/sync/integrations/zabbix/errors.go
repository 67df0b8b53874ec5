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
	"errors"
	"fmt"

	edgesync "github.com/carverauto/edgesync/pkg/sync"
)

var (
	// ErrAuthFailed is returned when user.login is rejected. It wraps
	// sync.ErrAuthentication so the sync service can classify it.
	ErrAuthFailed = fmt.Errorf("zabbix login rejected: %w", edgesync.ErrAuthentication)

	// ErrRPC wraps JSON-RPC error objects returned by the API.
	ErrRPC = errors.New("zabbix api error")

	errMissingURL         = errors.New("zabbix url is required")
	errMissingCredentials = errors.New("zabbix username and password, or api token, are required")
	errUnexpectedStatus   = errors.New("unexpected status code")
	errEmptyToken         = errors.New("user.login returned an empty token")
)
