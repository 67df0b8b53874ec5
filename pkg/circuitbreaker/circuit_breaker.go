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

// Package circuitbreaker stops hammering a dependency that keeps failing.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/carverauto/edgesync/pkg/models"
)

// ErrCircuitOpen is returned without calling through while the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the current state of a circuit breaker.
type State int

const (
	// StateClosed allows requests.
	StateClosed State = iota
	// StateOpen rejects requests.
	StateOpen
	// StateHalfOpen lets probes through to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int `json:"failure_threshold"`
	// SuccessThreshold is the number of half-open successes that close it again.
	SuccessThreshold int `json:"success_threshold"`
	// Timeout is how long the circuit stays open before probing.
	Timeout models.Duration `json:"timeout"`
	// ResetTimeout clears the failure count in the closed state.
	ResetTimeout models.Duration `json:"reset_timeout"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          models.Duration(30 * time.Second),
		ResetTimeout:     models.Duration(60 * time.Second),
	}
}

// Validate fills zero fields from DefaultConfig.
func (c *Config) Validate() error {
	def := DefaultConfig()

	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}

	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}

	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}

	if c.ResetTimeout <= 0 {
		c.ResetTimeout = def.ResetTimeout
	}

	return nil
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// CircuitBreaker implements the closed/open/half-open pattern.
type CircuitBreaker struct {
	config        Config
	state         State
	failureCount  int
	successCount  int
	lastFailTime  time.Time
	lastResetTime time.Time
	mu            sync.Mutex
	logger        logger.Logger
	name          string
	now           func() time.Time
}

// New creates a circuit breaker. Zero config fields take defaults.
func New(name string, config Config, log logger.Logger, opts ...Option) *CircuitBreaker {
	_ = config.Validate()

	cb := &CircuitBreaker{
		config: config,
		state:  StateClosed,
		logger: log,
		name:   name,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(cb)
	}

	cb.lastResetTime = cb.now()

	return cb
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(_ context.Context, fn func() error) error {
	if !cb.Allow() {
		return fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
	}

	err := fn()
	cb.Record(err)

	return err
}

// Allow reports whether a request may proceed, moving an expired open
// circuit to half-open. Callers that use Allow directly must Record the outcome.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	switch cb.state {
	case StateClosed:
		if now.Sub(cb.lastResetTime) >= time.Duration(cb.config.ResetTimeout) {
			cb.failureCount = 0
			cb.lastResetTime = now
		}

		return true

	case StateOpen:
		if now.Sub(cb.lastFailTime) >= time.Duration(cb.config.Timeout) {
			cb.state = StateHalfOpen
			cb.successCount = 0
			cb.logger.Info().
				Str("circuit_breaker", cb.name).
				Msg("Circuit breaker transitioning to half-open")

			return true
		}

		return false

	case StateHalfOpen:
		return true

	default:
		return false
	}
}

// Record feeds the outcome of a request into the breaker.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failureCount++
	cb.lastFailTime = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.logger.Warn().
				Str("circuit_breaker", cb.name).
				Int("failure_count", cb.failureCount).
				Msg("Circuit breaker opened due to failures")
		}

	case StateHalfOpen:
		cb.state = StateOpen
		cb.logger.Warn().
			Str("circuit_breaker", cb.name).
			Msg("Circuit breaker reopened after failed attempt in half-open state")

	case StateOpen:
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.lastResetTime = cb.now()
			cb.logger.Info().
				Str("circuit_breaker", cb.name).
				Msg("Circuit breaker closed after successful recovery")
		}

	case StateClosed:
		cb.failureCount = 0
		cb.lastResetTime = cb.now()

	case StateOpen:
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.state
}

// Metrics returns a snapshot for status reporting.
func (cb *CircuitBreaker) Metrics() map[string]any {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]any{
		"name":          cb.name,
		"state":         cb.state.String(),
		"failure_count": cb.failureCount,
		"success_count": cb.successCount,
		"last_failure":  cb.lastFailTime,
		"last_reset":    cb.lastResetTime,
	}
}

// HTTPClient is the subset of *http.Client the wrapper needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClientWrapper sends requests through a circuit breaker. Transport
// errors and 5xx responses count as failures.
type HTTPClientWrapper struct {
	client  HTTPClient
	breaker *CircuitBreaker
}

// NewHTTPClient wraps client with breaker.
func NewHTTPClient(client HTTPClient, breaker *CircuitBreaker) *HTTPClientWrapper {
	return &HTTPClientWrapper{client: client, breaker: breaker}
}

var errServerStatus = errors.New("server error")

// Do executes req through the breaker. A 5xx response is closed and
// returned as an error.
func (c *HTTPClientWrapper) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response

	err := c.breaker.Execute(req.Context(), func() error {
		var err error

		resp, err = c.client.Do(req)
		if err != nil {
			return err
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			_ = resp.Body.Close()

			return fmt.Errorf("%w: %d", errServerStatus, resp.StatusCode)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// Breaker returns the underlying breaker.
func (c *HTTPClientWrapper) Breaker() *CircuitBreaker {
	return c.breaker
}
