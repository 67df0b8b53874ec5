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

package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	l, err := New(&Config{Level: "warn", Output: "stderr"})
	require.NoError(t, err)

	_, err = New(&Config{Level: "not-a-level"})
	require.Error(t, err)

	l.SetDebug(true)
	l.SetDebug(false)
}

func TestWithComponentAddsField(t *testing.T) {
	var buf bytes.Buffer

	l := NewWithWriter(&buf, zerolog.InfoLevel)
	component := l.WithComponent("relay")
	component.Info().Str("message_id", "m-1").Msg("published")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "relay", line["component"])
	assert.Equal(t, "m-1", line["message_id"])
	assert.Equal(t, "published", line["message"])
}

func TestSetLevelFiltersEvents(t *testing.T) {
	var buf bytes.Buffer

	l := NewWithWriter(&buf, zerolog.InfoLevel)
	l.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	l.SetDebug(true)
	l.Debug().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEBUG", "yes")

	config := DefaultConfig()
	assert.Equal(t, "debug", config.Level)
	assert.True(t, config.Debug)
	assert.Equal(t, "stdout", config.Output)
}

func TestTestLoggerIsSilent(t *testing.T) {
	l := NewTestLogger()
	l.Info().Msg("nothing")
	assert.Equal(t, zerolog.Disabled, l.WithComponent("x").GetLevel())
}
