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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/carverauto/edgesync/pkg/config"
	"github.com/carverauto/edgesync/pkg/gateway"
	"github.com/carverauto/edgesync/pkg/lifecycle"
	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/carverauto/edgesync/pkg/version"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/edgesync/gateway.json", "Path to gateway config file")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetFullVersion())

		return nil
	}

	ctx, cancel := lifecycle.SignalContext(context.Background())
	defer cancel()

	// Step 1: load config. The loader logs through the env-configured default logger.
	bootLogger, err := lifecycle.CreateComponentLogger("config", logger.DefaultConfig())
	if err != nil {
		return err
	}

	var cfg gateway.Config
	if err := config.NewConfig(bootLogger).LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Step 2: create the gateway logger from the loaded config
	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = logger.DefaultConfig()
	}

	gwLogger, err := lifecycle.CreateComponentLogger("gateway", logConfig)
	if err != nil {
		return err
	}

	// Step 3: build and run
	gw, err := gateway.New(ctx, &cfg, gwLogger)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	defer func() {
		if err := gw.Close(); err != nil {
			gwLogger.Error().Err(err).Msg("Failed to close gateway")
		}
	}()

	gwLogger.Info().Str("config", *configPath).Str("site_id", cfg.SiteID).Msg("Edge gateway starting")

	if err := gw.Run(ctx); err != nil {
		return fmt.Errorf("gateway stopped: %w", err)
	}

	gwLogger.Info().Msg("Edge gateway stopped")

	return nil
}
