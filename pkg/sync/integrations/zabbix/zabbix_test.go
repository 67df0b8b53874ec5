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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/carverauto/edgesync/pkg/circuitbreaker"
	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/carverauto/edgesync/pkg/models"
	edgesync "github.com/carverauto/edgesync/pkg/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Method string
	Auth   string
	Params map[string]any
}

// fakeZabbix is a scripted JSON-RPC endpoint.
type fakeZabbix struct {
	t *testing.T

	mu     sync.Mutex
	calls  []recordedCall
	logins int

	// handlers override the default result per method.
	handlers map[string]func(call recordedCall, n int) (result any, rpcErr *rpcError, status int)
	counts   map[string]int
}

func newFakeZabbix(t *testing.T) (*fakeZabbix, *httptest.Server) {
	t.Helper()

	f := &fakeZabbix{
		t:        t,
		handlers: make(map[string]func(recordedCall, int) (any, *rpcError, int)),
		counts:   make(map[string]int),
	}

	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	return f, srv
}

func (f *fakeZabbix) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string         `json:"method"`
		Params map[string]any `json:"params"`
		ID     int64          `json:"id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	call := recordedCall{Method: req.Method, Auth: r.Header.Get("Authorization"), Params: req.Params}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.counts[req.Method]++
	n := f.counts[req.Method]

	if req.Method == "user.login" {
		f.logins++
	}

	handler := f.handlers[req.Method]
	f.mu.Unlock()

	var (
		result any
		rpcErr *rpcError
		status = http.StatusOK
	)

	if handler != nil {
		result, rpcErr, status = handler(call, n)
	} else {
		result = defaultResult(req.Method, n)
	}

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	assert.NoError(f.t, json.NewEncoder(w).Encode(resp))
}

func defaultResult(method string, n int) any {
	switch method {
	case "user.login":
		return "session-" + string(rune('0'+n))
	case "hostgroup.get":
		return []map[string]string{
			{"groupid": "1", "name": "Cameras", "flags": "0"},
			{"groupid": "2", "name": "Linux servers", "flags": "0"},
		}
	case "host.get":
		return []map[string]any{
			{
				"hostid": "10501", "host": "cam-lobby", "name": "Lobby camera", "status": "0",
				"groups":     []map[string]string{{"groupid": "1", "name": "Cameras"}},
				"interfaces": []map[string]string{{"interfaceid": "1", "ip": "10.0.0.1", "port": "10051", "type": "1"}},
				"tags":       []map[string]string{{"tag": "floor", "value": "1"}},
			},
			{
				"hostid": "10502", "host": "", "name": "db-01", "status": "1",
				"groups":     []map[string]string{{"groupid": "2", "name": "Linux servers"}},
				"interfaces": []map[string]string{{"interfaceid": "2", "ip": "10.0.0.2", "port": "", "type": "1"}},
			},
		}
	default:
		return nil
	}
}

func (f *fakeZabbix) handle(method string, h func(call recordedCall, n int) (any, *rpcError, int)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.handlers[method] = h
}

func (f *fakeZabbix) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]recordedCall(nil), f.calls...)
}

func (f *fakeZabbix) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.logins
}

func newTestClient(t *testing.T, url string, mutate func(*Config), opts ...Option) *Client {
	t.Helper()

	cfg := Config{URL: url, Username: "Admin", Password: "zabbix"}
	if mutate != nil {
		mutate(&cfg)
	}

	z, err := New(cfg, logger.NewTestLogger(), opts...)
	require.NoError(t, err)

	return z
}

func TestFetchConvertsInventory(t *testing.T) {
	fake, srv := newFakeZabbix(t)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	z := newTestClient(t, srv.URL, nil, WithNow(func() time.Time { return now }))

	res, err := z.Fetch(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []models.HostGroup{
		{GroupID: "1", Name: "Cameras"},
		{GroupID: "2", Name: "Linux servers"},
	}, res.HostGroups)

	require.Len(t, res.Records, 2)
	assert.Equal(t, models.InventoryRecord{
		ExternalHostID: "10501",
		HostName:       "cam-lobby",
		DisplayName:    "Lobby camera",
		IPAddress:      "10.0.0.1",
		Port:           10051,
		StatusCode:     "0",
		GroupIDs:       []string{"1"},
		GroupNames:     []string{"Cameras"},
		Tags:           map[string]string{"floor": "1"},
		LastChange:     now.Unix(),
	}, res.Records[0])

	assert.Equal(t, defaultAgentPort, res.Records[1].Port)
	assert.Equal(t, "db-01", res.Records[1].DisplayName)

	calls := fake.recorded()
	require.Len(t, calls, 3)
	assert.Equal(t, "user.login", calls[0].Method)
	assert.Empty(t, calls[0].Auth)
	assert.Equal(t, "Admin", calls[0].Params["username"])

	assert.Equal(t, "hostgroup.get", calls[1].Method)
	assert.Equal(t, "Bearer session-1", calls[1].Auth)

	assert.Equal(t, "host.get", calls[2].Method)
	assert.NotContains(t, calls[2].Params, "filter")
	assert.Contains(t, calls[2].Params, "selectInterfaces")
}

func TestIncrementalFetchFiltersByLastChange(t *testing.T) {
	fake, srv := newFakeZabbix(t)
	z := newTestClient(t, srv.URL, nil)

	since := time.Unix(1767392131, 0)

	_, err := z.Fetch(context.Background(), &since)
	require.NoError(t, err)

	calls := fake.recorded()
	host := calls[len(calls)-1]
	require.Equal(t, "host.get", host.Method)
	assert.Equal(t, map[string]any{"lastchange": "1767392131:"}, host.Params["filter"])
}

func TestTokenIsCachedUntilTTL(t *testing.T) {
	fake, srv := newFakeZabbix(t)

	var (
		mu  sync.Mutex
		now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	)

	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		return now
	}

	z := newTestClient(t, srv.URL, nil, WithNow(clock))
	ctx := context.Background()

	_, err := z.Fetch(ctx, nil)
	require.NoError(t, err)
	_, err = z.Fetch(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.loginCount())

	mu.Lock()
	now = now.Add(46 * time.Minute)
	mu.Unlock()

	_, err = z.Fetch(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.loginCount())
}

func TestExpiredSessionIsRenewedOnce(t *testing.T) {
	fake, srv := newFakeZabbix(t)
	fake.handle("hostgroup.get", func(call recordedCall, n int) (any, *rpcError, int) {
		if n == 1 {
			return nil, &rpcError{Code: -32602, Message: "Invalid params.", Data: "Session terminated, re-login, please."}, http.StatusOK
		}

		return defaultResult("hostgroup.get", n), nil, http.StatusOK
	})

	z := newTestClient(t, srv.URL, nil)

	res, err := z.Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, res.HostGroups, 2)
	assert.Equal(t, 2, fake.loginCount())

	calls := fake.recorded()
	assert.Equal(t, "Bearer session-2", calls[len(calls)-1].Auth)
}

func TestLoginRejected(t *testing.T) {
	fake, srv := newFakeZabbix(t)
	fake.handle("user.login", func(recordedCall, int) (any, *rpcError, int) {
		return nil, &rpcError{Code: -32602, Message: "Invalid params.", Data: "Incorrect user name or password or account is temporarily blocked."}, http.StatusOK
	})

	z := newTestClient(t, srv.URL, nil)

	_, err := z.Fetch(context.Background(), nil)
	require.ErrorIs(t, err, ErrAuthFailed)
	require.ErrorIs(t, err, edgesync.ErrAuthentication)
	assert.Equal(t, 1, fake.loginCount())
}

func TestRPCErrorIsNotRetried(t *testing.T) {
	fake, srv := newFakeZabbix(t)
	fake.handle("host.get", func(recordedCall, int) (any, *rpcError, int) {
		return nil, &rpcError{Code: -32500, Message: "Application error.", Data: "No permissions to referred object."}, http.StatusOK
	})

	z := newTestClient(t, srv.URL, nil)

	_, err := z.Fetch(context.Background(), nil)
	require.ErrorIs(t, err, ErrRPC)
	assert.NotErrorIs(t, err, edgesync.ErrAuthentication)
	assert.Equal(t, 1, fake.loginCount())
}

func TestAPITokenSkipsLogin(t *testing.T) {
	fake, srv := newFakeZabbix(t)
	z := newTestClient(t, srv.URL, func(c *Config) {
		c.Username, c.Password = "", ""
		c.APIToken = "api-token"
	})

	_, err := z.Fetch(context.Background(), nil)
	require.NoError(t, err)

	assert.Zero(t, fake.loginCount())

	for _, call := range fake.recorded() {
		assert.Equal(t, "Bearer api-token", call.Auth)
	}
}

func TestHostsPagedByGroupAreDeduplicated(t *testing.T) {
	fake, srv := newFakeZabbix(t)
	fake.handle("host.get", func(recordedCall, int) (any, *rpcError, int) {
		// the same host belongs to both groups
		return []map[string]any{{"hostid": "10501", "host": "cam-lobby", "status": "0"}}, nil, http.StatusOK
	})

	z := newTestClient(t, srv.URL, func(c *Config) { c.GroupBatchSize = 1 })

	res, err := z.Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)

	var pages [][]any

	for _, call := range fake.recorded() {
		if call.Method == "host.get" {
			pages = append(pages, call.Params["groupids"].([]any))
		}
	}

	assert.Equal(t, [][]any{{"1"}, {"2"}}, pages)
}

func TestServerErrorsTripBreaker(t *testing.T) {
	fake, srv := newFakeZabbix(t)
	fake.handle("hostgroup.get", func(recordedCall, int) (any, *rpcError, int) {
		return nil, nil, http.StatusBadGateway
	})

	z := newTestClient(t, srv.URL, func(c *Config) {
		c.Breaker = circuitbreaker.Config{FailureThreshold: 2}
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := z.Fetch(ctx, nil)
		require.Error(t, err)
	}

	_, err := z.Fetch(ctx, nil)
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		err  error
	}{
		{name: "missing url", cfg: Config{Username: "a", Password: "b"}, err: errMissingURL},
		{name: "missing password", cfg: Config{URL: "http://z", Username: "a"}, err: errMissingCredentials},
		{name: "token only", cfg: Config{URL: "http://z", APIToken: "t"}},
		{name: "credentials", cfg: Config{URL: "http://z", Username: "a", Password: "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, models.Duration(defaultTokenTTL), tt.cfg.TokenTTL)
			assert.Equal(t, defaultAgentPort, tt.cfg.DefaultPort)
		})
	}
}

func TestIsSessionError(t *testing.T) {
	assert.True(t, isSessionError(&rpcError{Data: "Session terminated, re-login, please."}))
	assert.True(t, isSessionError(&rpcError{Data: "Not authorised."}))
	assert.False(t, isSessionError(&rpcError{Data: "No permissions to referred object."}))
}
