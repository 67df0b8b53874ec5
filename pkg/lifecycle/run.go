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

package lifecycle

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/carverauto/edgesync/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Loop is a long-running component. Run must return once ctx is cancelled.
type Loop interface {
	Run(ctx context.Context) error
}

// LoopFunc adapts a function to Loop.
type LoopFunc func(ctx context.Context) error

func (f LoopFunc) Run(ctx context.Context) error { return f(ctx) }

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// RunLoops runs every named loop until ctx is cancelled or one of them fails.
// A failing loop cancels the rest; context cancellation is not reported as an error.
func RunLoops(ctx context.Context, log logger.Logger, loops map[string]Loop) error {
	g, gctx := errgroup.WithContext(ctx)

	for name, loop := range loops {
		g.Go(func() error {
			log.Info().Str("loop", name).Msg("Starting loop")

			err := loop.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("loop", name).Msg("Loop exited with error")

				return err
			}

			log.Info().Str("loop", name).Msg("Loop stopped")

			return nil
		})
	}

	return g.Wait()
}
