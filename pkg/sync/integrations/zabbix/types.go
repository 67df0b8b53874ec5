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
	"encoding/json"
	"fmt"
)

const jsonRPCVersion = "2.0"

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, e.Message, e.Data)
}

// HostGroup is a hostgroup.get row.
type HostGroup struct {
	GroupID  string `json:"groupid"`
	Name     string `json:"name"`
	Flags    string `json:"flags,omitempty"`
	Internal string `json:"internal,omitempty"`
	UUID     string `json:"uuid,omitempty"`
}

// Host is a host.get row with the selected groups, interfaces and tags.
type Host struct {
	HostID            string          `json:"hostid"`
	Host              string          `json:"host"`
	Name              string          `json:"name"`
	Status            string          `json:"status"`
	Available         string          `json:"available,omitempty"`
	MaintenanceStatus string          `json:"maintenance_status,omitempty"`
	Groups            []HostGroup     `json:"groups,omitempty"`
	HostGroups        []HostGroup     `json:"hostgroups,omitempty"`
	Interfaces        []HostInterface `json:"interfaces,omitempty"`
	Tags              []HostTag       `json:"tags,omitempty"`
}

// HostInterface is an agent, SNMP, IPMI or JMX interface of a host.
type HostInterface struct {
	InterfaceID string `json:"interfaceid"`
	IP          string `json:"ip"`
	DNS         string `json:"dns,omitempty"`
	Port        string `json:"port"`
	Type        string `json:"type"`
}

// HostTag is a host tag.
type HostTag struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// groups returns the host groups under either field name; Zabbix 6.2
// renamed selectGroups to selectHostGroups.
func (h *Host) groups() []HostGroup {
	if len(h.HostGroups) > 0 {
		return h.HostGroups
	}

	return h.Groups
}
