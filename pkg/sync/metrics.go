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

package sync

import (
	"sync"
	"time"

	"github.com/carverauto/edgesync/pkg/logger"
)

// Metrics defines the interface for collecting sync metrics
type Metrics interface {
	// Sync run metrics
	RecordSyncAttempt(source string)
	RecordSyncSuccess(source string, recordCount int, duration time.Duration)
	RecordSyncFailure(source string, err error, duration time.Duration)

	// Source API metrics
	RecordAPICall(integration, endpoint string)
	RecordAPISuccess(integration, endpoint string, duration time.Duration)
	RecordAPIFailure(integration, endpoint string, statusCode int, duration time.Duration)

	RecordTotalDevices(count int)

	// Export metrics for the health endpoint
	GetMetrics() map[string]interface{}
}

// NoOpMetrics provides a no-op implementation of the Metrics interface
type NoOpMetrics struct{}

func (*NoOpMetrics) RecordSyncAttempt(string)                            {}
func (*NoOpMetrics) RecordSyncSuccess(string, int, time.Duration)        {}
func (*NoOpMetrics) RecordSyncFailure(string, error, time.Duration)      {}
func (*NoOpMetrics) RecordAPICall(string, string)                        {}
func (*NoOpMetrics) RecordAPISuccess(string, string, time.Duration)      {}
func (*NoOpMetrics) RecordAPIFailure(string, string, int, time.Duration) {}
func (*NoOpMetrics) RecordTotalDevices(int)                              {}
func (*NoOpMetrics) GetMetrics() map[string]interface{}                  { return map[string]interface{}{} }

// InMemoryMetrics provides an in-memory implementation of the Metrics interface
type InMemoryMetrics struct {
	mu     sync.RWMutex
	logger logger.Logger

	syncAttempts map[string]int
	syncSuccess  map[string]int
	syncFailures map[string]int
	syncDuration map[string]time.Duration
	syncRecords  map[string]int
	lastError    map[string]string

	apiCalls    map[string]int
	apiSuccess  map[string]int
	apiFailures map[string]int
	apiDuration map[string]time.Duration

	totalDevices int
	lastUpdated  time.Time
}

// NewInMemoryMetrics creates a new in-memory metrics collector
func NewInMemoryMetrics(log logger.Logger) *InMemoryMetrics {
	return &InMemoryMetrics{
		logger:       log,
		syncAttempts: make(map[string]int),
		syncSuccess:  make(map[string]int),
		syncFailures: make(map[string]int),
		syncDuration: make(map[string]time.Duration),
		syncRecords:  make(map[string]int),
		lastError:    make(map[string]string),
		apiCalls:     make(map[string]int),
		apiSuccess:   make(map[string]int),
		apiFailures:  make(map[string]int),
		apiDuration:  make(map[string]time.Duration),
		lastUpdated:  time.Now(),
	}
}

func (m *InMemoryMetrics) RecordSyncAttempt(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncAttempts[source]++
	m.lastUpdated = time.Now()
}

func (m *InMemoryMetrics) RecordSyncSuccess(source string, recordCount int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncSuccess[source]++
	m.syncDuration[source] = duration
	m.syncRecords[source] = recordCount
	delete(m.lastError, source)
	m.lastUpdated = time.Now()
}

func (m *InMemoryMetrics) RecordSyncFailure(source string, err error, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncFailures[source]++
	m.syncDuration[source] = duration

	if err != nil {
		m.lastError[source] = err.Error()
	}

	m.lastUpdated = time.Now()
}

func (m *InMemoryMetrics) RecordAPICall(integration, endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiCalls[integration+":"+endpoint]++
	m.lastUpdated = time.Now()
}

func (m *InMemoryMetrics) RecordAPISuccess(integration, endpoint string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := integration + ":" + endpoint
	m.apiSuccess[key]++
	m.apiDuration[key] = duration
	m.lastUpdated = time.Now()
}

func (m *InMemoryMetrics) RecordAPIFailure(integration, endpoint string, statusCode int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := integration + ":" + endpoint
	m.apiFailures[key]++
	m.apiDuration[key] = duration
	m.lastUpdated = time.Now()

	m.logger.Warn().
		Str("integration", integration).
		Str("endpoint", endpoint).
		Int("status_code", statusCode).
		Dur("duration", duration).
		Msg("Source API call failed")
}

func (m *InMemoryMetrics) RecordTotalDevices(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalDevices = count
	m.lastUpdated = time.Now()
}

// GetMetrics returns a snapshot suitable for JSON encoding.
func (m *InMemoryMetrics) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"sync_attempts": copyCounts(m.syncAttempts),
		"sync_success":  copyCounts(m.syncSuccess),
		"sync_failures": copyCounts(m.syncFailures),
		"sync_records":  copyCounts(m.syncRecords),
		"sync_duration": copyDurations(m.syncDuration),
		"last_error":    copyStrings(m.lastError),
		"api_calls":     copyCounts(m.apiCalls),
		"api_success":   copyCounts(m.apiSuccess),
		"api_failures":  copyCounts(m.apiFailures),
		"api_duration":  copyDurations(m.apiDuration),
		"total_devices": m.totalDevices,
		"last_updated":  m.lastUpdated,
	}
}

func copyCounts(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src))
	for k, v := range src {
		dst[k] = v
	}

	return dst
}

func copyDurations(src map[string]time.Duration) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v.String()
	}

	return dst
}

func copyStrings(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}

	return dst
}
