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
	"errors"
	"fmt"

	"github.com/carverauto/edgesync/pkg/models"
	"github.com/carverauto/edgesync/pkg/store"
)

// MatchKind is the strategy that resolved an observation.
type MatchKind int

const (
	// NoMatch means no stored device matched; a new one is created.
	NoMatch MatchKind = iota
	// ExactMatch means the observation's device id exists.
	ExactMatch
	// ExternalIDMatch means the observation's external host id is mapped.
	ExternalIDMatch
	// IPMatch means only the IP matched and the external id may need repointing.
	IPMatch
)

func (k MatchKind) String() string {
	switch k {
	case ExactMatch:
		return "exact"
	case ExternalIDMatch:
		return "external_id"
	case IPMatch:
		return "ip"
	case NoMatch:
		return "none"
	default:
		return fmt.Sprintf("MatchKind(%d)", int(k))
	}
}

// Observation is one sighting of a device from a webhook or the source API.
type Observation struct {
	DeviceID       string
	ExternalHostID string
	IPAddress      string
	HostName       string
	Status         models.DeviceStatus
	Watermark      int64
}

func (o *Observation) hasIdentity() bool {
	return o.DeviceID != "" || o.ExternalHostID != "" || o.IPAddress != ""
}

// Match is the outcome of the lookup cascade. Device is nil for NoMatch.
type Match struct {
	Kind   MatchKind
	Device *models.Device
}

// NeedsReconciliation reports whether applying the match repoints an external id.
func (m Match) NeedsReconciliation(obs *Observation) bool {
	return m.Kind == IPMatch && obs.ExternalHostID != "" && m.Device.ExternalHostID != obs.ExternalHostID
}

type lookup struct {
	kind MatchKind
	key  func(*Observation) string
	find func(*store.Tx, string) (*models.Device, error)
}

var cascade = []lookup{
	{kind: ExactMatch, key: func(o *Observation) string { return o.DeviceID }, find: (*store.Tx).Device},
	{kind: ExternalIDMatch, key: func(o *Observation) string { return o.ExternalHostID }, find: (*store.Tx).DeviceByExternalID},
	{kind: IPMatch, key: func(o *Observation) string { return o.IPAddress }, find: (*store.Tx).DeviceByIP},
}

// Match tries device id, then external host id, then IP. The first hit wins.
func (*Registry) Match(tx *store.Tx, obs *Observation) (Match, error) {
	if !obs.hasIdentity() {
		return Match{}, ErrNoIdentity
	}

	for _, l := range cascade {
		key := l.key(obs)
		if key == "" {
			continue
		}

		d, err := l.find(tx, key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}

		if err != nil {
			return Match{}, err
		}

		return Match{Kind: l.kind, Device: d}, nil
	}

	return Match{Kind: NoMatch}, nil
}

// SynthesizeDeviceID derives a device id from the strongest identifier available.
func SynthesizeDeviceID(obs *Observation) string {
	switch {
	case obs.DeviceID != "":
		return obs.DeviceID
	case obs.ExternalHostID != "":
		return "DEV-" + obs.ExternalHostID
	case obs.IPAddress != "":
		return "DEV-ip-" + obs.IPAddress
	default:
		return ""
	}
}
