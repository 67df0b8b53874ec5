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

// Package zabbix pulls host inventory from the Zabbix JSON-RPC API.
package zabbix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/carverauto/edgesync/pkg/circuitbreaker"
	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/carverauto/edgesync/pkg/models"
	edgesync "github.com/carverauto/edgesync/pkg/sync"
)

const integrationName = "zabbix"

// Client talks to one Zabbix frontend.
type Client struct {
	config  Config
	http    circuitbreaker.HTTPClient
	tokens  *CachedTokenProvider
	metrics edgesync.Metrics
	now     func() time.Time
	logger  logger.Logger

	requestID atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. It is still wrapped
// by the circuit breaker.
func WithHTTPClient(c circuitbreaker.HTTPClient) Option {
	return func(z *Client) {
		z.http = c
	}
}

// WithMetrics records per-method API metrics.
func WithMetrics(m edgesync.Metrics) Option {
	return func(z *Client) {
		z.metrics = m
	}
}

// WithNow overrides time.Now for record timestamps and token expiry.
func WithNow(now func() time.Time) Option {
	return func(z *Client) {
		z.now = now
	}
}

// New creates a client. No request is made until the first Fetch.
func New(cfg Config, log logger.Logger, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	z := &Client{
		config:  cfg,
		http:    &http.Client{Timeout: time.Duration(cfg.RequestTimeout)},
		metrics: &edgesync.NoOpMetrics{},
		now:     time.Now,
		logger:  log,
	}

	for _, opt := range opts {
		opt(z)
	}

	breaker := circuitbreaker.New(integrationName, cfg.Breaker, log, circuitbreaker.WithClock(z.now))
	z.http = circuitbreaker.NewHTTPClient(z.http, breaker)

	var provider TokenProvider = loginProvider{client: z}
	if cfg.APIToken != "" {
		provider = staticToken(cfg.APIToken)
	}

	z.tokens = NewCachedTokenProvider(provider, time.Duration(cfg.TokenTTL))
	z.tokens.now = z.now

	return z, nil
}

// Fetch returns all host groups plus the hosts changed since the watermark.
func (z *Client) Fetch(ctx context.Context, since *time.Time) (*edgesync.FetchResult, error) {
	groups, err := z.HostGroups(ctx)
	if err != nil {
		return nil, err
	}

	hosts, err := z.Hosts(ctx, since, groups)
	if err != nil {
		return nil, err
	}

	now := z.now()
	result := &edgesync.FetchResult{
		HostGroups: make([]models.HostGroup, 0, len(groups)),
		Records:    make([]models.InventoryRecord, 0, len(hosts)),
	}

	for i := range groups {
		result.HostGroups = append(result.HostGroups, convertGroup(&groups[i]))
	}

	for i := range hosts {
		result.Records = append(result.Records, z.convertHost(&hosts[i], now))
	}

	z.logger.Debug().
		Int("host_groups", len(result.HostGroups)).
		Int("hosts", len(result.Records)).
		Bool("incremental", since != nil).
		Msg("Fetched Zabbix inventory")

	return result, nil
}

// HostGroups calls hostgroup.get.
func (z *Client) HostGroups(ctx context.Context) ([]HostGroup, error) {
	var groups []HostGroup

	err := z.call(ctx, "hostgroup.get", map[string]any{
		"output": []string{"groupid", "name", "flags", "uuid"},
	}, &groups)
	if err != nil {
		return nil, err
	}

	return groups, nil
}

// Hosts calls host.get, optionally filtered to hosts changed at or after
// since. With GroupBatchSize set, hosts are requested a slice of groups at
// a time and deduplicated by host id.
func (z *Client) Hosts(ctx context.Context, since *time.Time, groups []HostGroup) ([]Host, error) {
	params := map[string]any{
		"output":           []string{"hostid", "host", "name", "status", "available", "maintenance_status"},
		"selectGroups":     []string{"groupid", "name"},
		"selectInterfaces": []string{"interfaceid", "ip", "dns", "port", "type"},
		"selectTags":       []string{"tag", "value"},
	}

	if since != nil {
		params["filter"] = map[string]any{"lastchange": fmt.Sprintf("%d:", since.Unix())}
	}

	size := z.config.GroupBatchSize
	if size <= 0 || len(groups) == 0 {
		var hosts []Host
		if err := z.call(ctx, "host.get", params, &hosts); err != nil {
			return nil, err
		}

		return hosts, nil
	}

	seen := make(map[string]struct{})

	var hosts []Host

	for start := 0; start < len(groups); start += size {
		end := min(start+size, len(groups))

		ids := make([]string, 0, end-start)
		for _, g := range groups[start:end] {
			ids = append(ids, g.GroupID)
		}

		params["groupids"] = ids

		var page []Host
		if err := z.call(ctx, "host.get", params, &page); err != nil {
			return nil, err
		}

		for i := range page {
			if _, dup := seen[page[i].HostID]; dup {
				continue
			}

			seen[page[i].HostID] = struct{}{}
			hosts = append(hosts, page[i])
		}
	}

	return hosts, nil
}

// call runs an authenticated method. A session rejected by the server is
// dropped and the call retried once with a fresh login.
func (z *Client) call(ctx context.Context, method string, params, out any) error {
	for attempt := 0; ; attempt++ {
		token, err := z.tokens.GetAccessToken(ctx)
		if err != nil {
			return err
		}

		err = z.do(ctx, method, params, token, out)
		if err == nil {
			return nil
		}

		var rerr *rpcError
		if attempt == 0 && errors.As(err, &rerr) && isSessionError(rerr) && z.config.APIToken == "" {
			z.logger.Warn().Str("method", method).Msg("Zabbix session rejected, logging in again")
			z.tokens.InvalidateToken()

			continue
		}

		return err
	}
}

// login implements user.login. The API rejects an Authorization header on
// this method, so token is empty.
func (z *Client) login(ctx context.Context) (string, error) {
	var token string

	err := z.do(ctx, "user.login", map[string]string{
		"username": z.config.Username,
		"password": z.config.Password,
	}, "", &token)
	if err != nil {
		var rerr *rpcError
		if errors.As(err, &rerr) {
			return "", fmt.Errorf("%w: %s", ErrAuthFailed, rerr.Data)
		}

		return "", err
	}

	if token == "" {
		return "", fmt.Errorf("%w: %w", ErrAuthFailed, errEmptyToken)
	}

	z.logger.Info().Str("url", z.config.URL).Msg("Authenticated with Zabbix API")

	return token, nil
}

type loginProvider struct {
	client *Client
}

func (p loginProvider) GetAccessToken(ctx context.Context) (string, error) {
	return p.client.login(ctx)
}

func (z *Client) do(ctx context.Context, method string, params any, token string, out any) error {
	z.metrics.RecordAPICall(integrationName, method)
	start := z.now()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  params,
		ID:      z.requestID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.config.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json-rpc")
	req.Header.Set("Accept", "application/json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := z.http.Do(req)
	if err != nil {
		z.metrics.RecordAPIFailure(integrationName, method, 0, z.now().Sub(start))
		return fmt.Errorf("%s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	if resp.StatusCode != http.StatusOK {
		z.metrics.RecordAPIFailure(integrationName, method, resp.StatusCode, z.now().Sub(start))
		return fmt.Errorf("%s: %w: %d, response: %s", method, errUnexpectedStatus, resp.StatusCode, string(raw))
	}

	var rpc rpcResponse
	if err := json.Unmarshal(raw, &rpc); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", method, err)
	}

	if rpc.Error != nil {
		z.metrics.RecordAPIFailure(integrationName, method, resp.StatusCode, z.now().Sub(start))
		return fmt.Errorf("%w: %s: %w", ErrRPC, method, rpc.Error)
	}

	if err := json.Unmarshal(rpc.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}

	z.metrics.RecordAPISuccess(integrationName, method, z.now().Sub(start))

	return nil
}

func isSessionError(e *rpcError) bool {
	text := strings.ToLower(e.Message + " " + e.Data)

	return strings.Contains(text, "re-login") ||
		strings.Contains(text, "not authorised") ||
		strings.Contains(text, "not authorized") ||
		strings.Contains(text, "session terminated")
}

func convertGroup(g *HostGroup) models.HostGroup {
	flags, _ := strconv.Atoi(g.Flags)

	return models.HostGroup{
		GroupID:  g.GroupID,
		Name:     g.Name,
		Internal: g.Internal == "1",
		Flags:    flags,
	}
}

func (z *Client) convertHost(h *Host, now time.Time) models.InventoryRecord {
	rec := models.InventoryRecord{
		ExternalHostID: h.HostID,
		HostName:       h.Host,
		DisplayName:    h.Name,
		Port:           z.config.DefaultPort,
		StatusCode:     h.Status,
		LastChange:     now.Unix(),
	}

	if iface := primaryInterface(h.Interfaces); iface != nil {
		rec.IPAddress = iface.IP
		if rec.IPAddress == "" {
			rec.IPAddress = iface.DNS
		}

		if port, err := strconv.Atoi(iface.Port); err == nil && port > 0 {
			rec.Port = port
		}
	}

	for _, g := range h.groups() {
		rec.GroupIDs = append(rec.GroupIDs, g.GroupID)
		rec.GroupNames = append(rec.GroupNames, g.Name)
	}

	if len(h.Tags) > 0 {
		rec.Tags = make(map[string]string, len(h.Tags))
		for _, t := range h.Tags {
			rec.Tags[t.Tag] = t.Value
		}
	}

	return rec
}

func primaryInterface(ifaces []HostInterface) *HostInterface {
	if len(ifaces) == 0 {
		return nil
	}

	return &ifaces[0]
}
