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

package cloud

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runJetStreamServer(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	srv, err := server.NewServer(opts)
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}

	require.Eventually(t, func() bool {
		return srv.JetStreamEnabled()
	}, 5*time.Second, 50*time.Millisecond, "embedded NATS server not ready for JetStream")

	t.Cleanup(srv.Shutdown)

	return srv
}

func TestNATSConfigDefaults(t *testing.T) {
	cfg := &NATSConfig{Stream: "CUSTOM"}
	cfg.applyDefaults()

	assert.Equal(t, nats.DefaultURL, cfg.URL)
	assert.Equal(t, "CUSTOM", cfg.Stream)
	assert.Equal(t, []string{"edgesync.>"}, cfg.Subjects)
	assert.Equal(t, "edgesync-shadows", cfg.Bucket)
}

func TestNATSPublisherDedupesByMessageID(t *testing.T) {
	srv := runJetStreamServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := &NATSConfig{URL: srv.ClientURL()}

	pub, err := NewNATSPublisher(ctx, cfg, logger.NewTestLogger())
	require.NoError(t, err)

	defer func() { _ = pub.Close() }()

	msg := Message{ID: "m-1", Topic: "edgesync/site-001/incidents", Payload: []byte(`{"incident_id":"INC-1"}`), Priority: 1}

	require.NoError(t, pub.Publish(ctx, msg))
	require.NoError(t, pub.Publish(ctx, msg))

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)

	defer nc.Close()

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	stream, err := js.Stream(ctx, "EDGESYNC")
	require.NoError(t, err)

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)

	stored, err := stream.GetLastMsgForSubject(ctx, "edgesync.site-001.incidents")
	require.NoError(t, err)
	assert.JSONEq(t, `{"incident_id":"INC-1"}`, string(stored.Data))
	assert.Equal(t, "1", stored.Header.Get(headerPriority))
}

func TestNATSKVShadow(t *testing.T) {
	srv := runJetStreamServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sink, err := NewNATSKVShadow(ctx, &NATSConfig{URL: srv.ClientURL()}, logger.NewTestLogger())
	require.NoError(t, err)

	defer func() { _ = sink.Close() }()

	_, found, err := sink.Get(ctx, "DEV-1")
	require.NoError(t, err)
	assert.False(t, found)

	state := ShadowState{LastIncident: "INC-1", LastUpdate: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), Status: "offline"}
	require.NoError(t, sink.UpdateShadow(ctx, "DEV-1", state))

	doc, found, err := sink.Get(ctx, "DEV-1")
	require.NoError(t, err)
	require.True(t, found)

	var got struct {
		State struct {
			Reported ShadowState `json:"reported"`
		} `json:"state"`
	}

	require.NoError(t, json.Unmarshal(doc, &got))
	assert.Equal(t, "INC-1", got.State.Reported.LastIncident)
	assert.Equal(t, "offline", got.State.Reported.Status)
}
