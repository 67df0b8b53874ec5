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

package circuitbreaker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/carverauto/edgesync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

func newBreaker(clock *manualClock) *CircuitBreaker {
	return New("test", Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          models.Duration(10 * time.Second),
		ResetTimeout:     models.Duration(time.Minute),
	}, logger.NewTestLogger(), WithClock(clock.Now))
}

func TestCircuitBreakerLifecycle(t *testing.T) {
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	cb := newBreaker(clock)
	ctx := context.Background()
	fail := func() error { return errBoom }
	ok := func() error { return nil }

	require.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())

	require.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	calls := 0
	err := cb.Execute(ctx, func() error { calls++; return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls)

	clock.now = clock.now.Add(11 * time.Second)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	cb := newBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func() error { return errBoom })
	}

	clock.now = clock.now.Add(11 * time.Second)
	require.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.Record(errBoom)
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	require.NoError(t, c.Validate())
	assert.Equal(t, DefaultConfig(), c)
}

func TestHTTPClientCountsServerErrors(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	client := NewHTTPClient(srv.Client(), newBreaker(clock))

	for i := 0; i < 3; i++ {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, http.NoBody)
		require.NoError(t, err)

		resp, err := client.Do(req)
		require.Error(t, err)
		assert.Nil(t, resp)
	}

	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, StateOpen, client.Breaker().State())
}
