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

// Package config loads a JSON configuration document with environment
// overrides and validates it.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/carverauto/edgesync/pkg/logger"
)

// DefaultEnvPrefix prefixes every environment override.
const DefaultEnvPrefix = "EDGESYNC_"

var (
	errInvalidConfigPtr = errors.New("config must be a non-nil pointer")
	errNoConfigSource   = errors.New("no config file found and CONFIG_JSON is unset")
)

// Validator is implemented by configs that check and default themselves.
type Validator interface {
	Validate() error
}

// ConfigLoader fills dst from a source identified by path.
type ConfigLoader interface {
	Load(ctx context.Context, path string, dst interface{}) error
}

// Config holds the configuration loading dependencies.
type Config struct {
	file   ConfigLoader
	env    *EnvConfigLoader
	dotenv []string
	logger logger.Logger
}

// Option configures a Config.
type Option func(*Config)

// WithEnvPrefix replaces DefaultEnvPrefix.
func WithEnvPrefix(prefix string) Option {
	return func(c *Config) {
		c.env.prefix = prefix
	}
}

// WithDotEnv sets the .env files read before the environment is consulted.
// Missing files are skipped.
func WithDotEnv(files ...string) Option {
	return func(c *Config) {
		c.dotenv = files
	}
}

// NewConfig returns a loader that reads ./.env, the JSON file and then
// EDGESYNC_* overrides.
func NewConfig(log logger.Logger, opts ...Option) *Config {
	c := &Config{
		file:   &FileConfigLoader{},
		env:    NewEnvConfigLoader(log, DefaultEnvPrefix),
		dotenv: []string{".env"},
		logger: log,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ValidateConfig validates a configuration if it implements Validator.
func ValidateConfig(cfg interface{}) error {
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}

	return v.Validate()
}

// LoadAndValidate fills cfg and validates it. Sources, later ones winning:
// the JSON file at path (or <prefix>CONFIG_JSON instead of the file), then
// individual <prefix>* variables. .env files only seed variables that are
// not already set in the process environment.
func (c *Config) LoadAndValidate(ctx context.Context, path string, cfg interface{}) error {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return errInvalidConfigPtr
	}

	if err := LoadDotEnv(c.logger, c.dotenv...); err != nil {
		return err
	}

	loaded, err := c.env.LoadJSON(cfg)
	if err != nil {
		return err
	}

	if !loaded {
		if err := c.loadFile(ctx, path, cfg); err != nil {
			return err
		}
	}

	if err := c.env.Overlay(cfg); err != nil {
		return err
	}

	return ValidateConfig(cfg)
}

func (c *Config) loadFile(ctx context.Context, path string, cfg interface{}) error {
	if path == "" {
		return errNoConfigSource
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %w", errNoConfigSource, err)
	}

	if err := c.file.Load(ctx, path, cfg); err != nil {
		return err
	}

	c.logger.Info().Str("path", path).Msg("Loaded configuration file")

	return nil
}
