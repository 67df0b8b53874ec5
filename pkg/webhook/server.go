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

// Package webhook is the HTTP ingress: alert webhooks in, health out.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/carverauto/edgesync/pkg/incident"
	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/carverauto/edgesync/pkg/store"
	"github.com/gorilla/mux"
)

const (
	webhookPath = "/webhook"
	healthPath  = "/health"
)

// Ingester records a raw webhook body. *incident.Ledger implements it.
type Ingester interface {
	Ingest(ctx context.Context, body []byte) (*incident.Result, error)
}

// HealthChecker reports store health. *store.Store implements it.
type HealthChecker interface {
	Health(ctx context.Context) (*store.HealthReport, error)
}

// Server serves POST /webhook and GET /health.
type Server struct {
	config   Config
	ingester Ingester
	health   HealthChecker
	status   map[string]func() any
	logger   logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithStatus adds a named section to the /health response.
func WithStatus(name string, fn func() any) Option {
	return func(s *Server) {
		s.status[name] = fn
	}
}

// New creates a server.
func New(cfg Config, ing Ingester, health HealthChecker, log logger.Logger, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config:   cfg,
		ingester: ing,
		health:   health,
		status:   make(map[string]func() any),
		logger:   log,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(loggingMiddleware(s.logger), apiKeyMiddleware(s.config.APIKey, []string{healthPath}, s.logger))

	router.HandleFunc(webhookPath, s.handleWebhook).Methods(http.MethodPost)
	router.HandleFunc(healthPath, s.handleHealth).Methods(http.MethodGet)

	return router
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.ListenAddr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(s.config.ReadTimeout),
		WriteTimeout: time.Duration(s.config.WriteTimeout),
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("Webhook listener started")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.config.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Webhook listener shutdown failed")
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}

type errorResponse struct {
	Error string `json:"error"`
}

type ingestResponse struct {
	IncidentID string `json:"incident_id"`
	DeviceID   string `json:"device_id"`
	State      string `json:"state"`
	Action     string `json:"action"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "payload too large"})
			return
		}

		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read body"})

		return
	}

	res, err := s.ingester.Ingest(r.Context(), body)

	switch {
	case errors.Is(err, incident.ErrMalformedPayload):
		s.logger.Warn().Err(err).Msg("Rejected malformed webhook payload")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})

	case err != nil:
		s.logger.Error().Err(err).Msg("Failed to record webhook event")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to record event"})

	default:
		writeJSON(w, http.StatusAccepted, ingestResponse{
			IncidentID: res.Incident.IncidentID,
			DeviceID:   res.Incident.DeviceID,
			State:      string(res.Incident.State()),
			Action:     string(res.Action),
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{}
	status := http.StatusOK

	report, err := s.health.Health(r.Context())
	switch {
	case err != nil:
		s.logger.Error().Err(err).Msg("Health check failed")

		status = http.StatusServiceUnavailable
		resp["store"] = errorResponse{Error: err.Error()}
	case !report.Healthy:
		status = http.StatusServiceUnavailable
		resp["store"] = report
	default:
		resp["store"] = report
	}

	for name, fn := range s.status {
		resp[name] = fn()
	}

	resp["healthy"] = status == http.StatusOK

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
