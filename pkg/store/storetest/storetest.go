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

// Package storetest opens throwaway stores for tests in other packages.
package storetest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/carverauto/edgesync/pkg/clock"
	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/carverauto/edgesync/pkg/models"
	"github.com/carverauto/edgesync/pkg/store"
	"github.com/stretchr/testify/require"
)

// Epoch is the default start time of a Clock.
var Epoch = time.Date(2026, 1, 2, 22, 15, 31, 0, time.UTC)

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: Epoch}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = t
}

// Ticker returns a ticker that never fires, so loops under test only
// advance when driven directly.
func (*Clock) Ticker(time.Duration) clock.Ticker {
	return idleTicker{}
}

type idleTicker struct{}

func (idleTicker) Chan() <-chan time.Time { return nil }
func (idleTicker) Stop()                  {}

// New opens a store in t.TempDir() driven by a fresh Clock and closes it on cleanup.
func New(t *testing.T) (*store.Store, *Clock) {
	t.Helper()

	clock := NewClock()

	s, err := store.Open(context.Background(), store.Config{Path: filepath.Join(t.TempDir(), "edge.db")},
		logger.NewTestLogger(), store.WithClock(clock.Now))
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, s.Close()) })

	return s, clock
}

// Messages returns every pending message in delivery order.
func Messages(t *testing.T, s *store.Store) []models.QueuedMessage {
	t.Helper()

	msgs, err := s.PendingMessages(context.Background(), 1000)
	require.NoError(t, err)

	return msgs
}
