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

// Package registry resolves observations from the telemetry source to
// canonical devices and keeps the external id mapping current.
package registry

import (
	"context"
	"fmt"

	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/carverauto/edgesync/pkg/models"
	"github.com/carverauto/edgesync/pkg/payload"
	"github.com/carverauto/edgesync/pkg/store"
)

// DeviceMessagePriority is the queue priority of device change messages.
const DeviceMessagePriority = 4

// Config controls how device changes are announced upstream.
type Config struct {
	SiteID string
	Topics models.Topics
	Format payload.Format
}

// Registry is the single authority for device identity.
type Registry struct {
	store  *store.Store
	config Config
	logger logger.Logger
}

// Resolution describes what ResolveTx did for an observation.
type Resolution struct {
	Device     *models.Device
	Kind       MatchKind
	Created    bool
	Reconciled bool
}

// New creates a registry over st.
func New(st *store.Store, cfg Config, log logger.Logger) (*Registry, error) {
	if st == nil {
		return nil, errNilStore
	}

	if err := cfg.Format.Validate(); err != nil {
		return nil, err
	}

	if cfg.Topics.SiteID == "" {
		cfg.Topics.SiteID = cfg.SiteID
	}

	return &Registry{store: st, config: cfg, logger: log}, nil
}

// Resolve runs ResolveTx in its own write transaction.
func (r *Registry) Resolve(ctx context.Context, obs *Observation) (*Resolution, error) {
	var res *Resolution

	err := r.store.Update(ctx, func(tx *store.Tx) error {
		var err error

		res, err = r.ResolveTx(tx, obs)

		return err
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// ResolveTx matches obs to a device and applies the side effects of the
// match inside tx.
func (r *Registry) ResolveTx(tx *store.Tx, obs *Observation) (*Resolution, error) {
	m, err := r.Match(tx, obs)
	if err != nil {
		return nil, err
	}

	res := &Resolution{Kind: m.Kind, Device: m.Device}

	switch m.Kind {
	case ExactMatch, ExternalIDMatch:
		err = r.touch(tx, m.Device.DeviceID, obs)
	case IPMatch:
		err = r.reconcile(tx, m, obs, res)
	case NoMatch:
		err = r.create(tx, obs, res)
	}

	if err != nil {
		return nil, err
	}

	if !res.Created {
		if res.Device, err = tx.Device(res.Device.DeviceID); err != nil {
			return nil, err
		}
	}

	if res.Created || res.Reconciled {
		if err := r.announce(tx, res.Device); err != nil {
			return nil, err
		}
	}

	return res, nil
}

func (*Registry) touch(tx *store.Tx, deviceID string, obs *Observation) error {
	return tx.TouchDevice(deviceID, store.DeviceUpdate{
		HostName:  obs.HostName,
		IPAddress: obs.IPAddress,
		Status:    obs.Status,
		Watermark: obs.Watermark,
	})
}

func (r *Registry) reconcile(tx *store.Tx, m Match, obs *Observation, res *Resolution) error {
	if m.NeedsReconciliation(obs) {
		r.logger.Warn().
			Str("device_id", m.Device.DeviceID).
			Str("ip_address", obs.IPAddress).
			Str("old_external_host_id", m.Device.ExternalHostID).
			Str("new_external_host_id", obs.ExternalHostID).
			Msg("Reconciling external host id by IP match")

		if err := tx.RepointExternalID(m.Device.DeviceID, obs.ExternalHostID); err != nil {
			return err
		}

		res.Reconciled = true
	}

	return r.touch(tx, m.Device.DeviceID, obs)
}

func (r *Registry) create(tx *store.Tx, obs *Observation, res *Resolution) error {
	d := &models.Device{
		DeviceID:            SynthesizeDeviceID(obs),
		ExternalHostID:      obs.ExternalHostID,
		IPAddress:           obs.IPAddress,
		HostName:            obs.HostName,
		DeviceType:          models.DeviceTypeUnknown,
		Status:              models.DeviceStatusUnknown,
		LastChangeWatermark: obs.Watermark,
		SiteID:              r.config.SiteID,
	}

	if err := tx.InsertDevice(d); err != nil {
		return err
	}

	r.logger.Info().
		Str("device_id", d.DeviceID).
		Str("external_host_id", d.ExternalHostID).
		Str("ip_address", d.IPAddress).
		Msg("Created device from observation")

	res.Device = d
	res.Created = true

	return nil
}

func (r *Registry) announce(tx *store.Tx, d *models.Device) error {
	body, err := payload.Device(d, r.config.SiteID, r.config.Format, tx.Now())
	if err != nil {
		return err
	}

	msg := &models.QueuedMessage{
		Topic:    r.config.Topics.Devices(),
		Payload:  body,
		Priority: DeviceMessagePriority,
		RefKind:  models.RefKindDevice,
		RefID:    d.DeviceID,
	}

	if err := tx.Enqueue(msg); err != nil {
		return fmt.Errorf("enqueue device %s: %w", d.DeviceID, err)
	}

	return nil
}
