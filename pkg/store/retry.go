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

package store

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"zombiezen.com/go/sqlite"
)

const baseBusyBackoff = 50 * time.Millisecond

// isBusy reports whether err is a lock contention error worth retrying.
func isBusy(err error) bool {
	if err == nil {
		return false
	}

	switch sqlite.ErrCode(err).ToPrimary() {
	case sqlite.ResultBusy, sqlite.ResultLocked:
		return true
	default:
		return false
	}
}

// busyBackoff is exponential with up to 100% jitter so contending writers
// do not retry in lockstep.
func busyBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	backoff := baseBusyBackoff * time.Duration(1<<(attempt-1))
	jitter := time.Duration(rand.Int64N(int64(baseBusyBackoff)))

	return backoff + jitter
}

func (s *Store) withBusyRetry(ctx context.Context, fn func() error) error {
	var err error

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) || attempt == s.maxRetries {
			return err
		}

		delay := busyBackoff(attempt)
		s.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", s.maxRetries).
			Dur("backoff", delay).
			Msg("SQLite busy, retrying transaction")

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
	}

	return err
}
