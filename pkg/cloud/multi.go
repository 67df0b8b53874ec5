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
	"errors"
	"fmt"
)

type namedPublisher struct {
	name string
	Publisher
}

// MultiPublisher fans a message out to several backends. Publish fails if
// any backend fails; the relay retries the whole message and every backend
// dedupes on the message id.
type MultiPublisher struct {
	publishers []namedPublisher
}

// NewMultiPublisher combines publishers keyed by backend name.
func NewMultiPublisher(names []string, pubs []Publisher) *MultiPublisher {
	m := &MultiPublisher{publishers: make([]namedPublisher, 0, len(pubs))}
	for i, p := range pubs {
		m.publishers = append(m.publishers, namedPublisher{name: names[i], Publisher: p})
	}

	return m
}

func (m *MultiPublisher) Publish(ctx context.Context, msg Message) error {
	var errs []error

	for _, p := range m.publishers {
		if err := p.Publish(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
		}
	}

	return errors.Join(errs...)
}

func (m *MultiPublisher) Close() error {
	var errs []error

	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
		}
	}

	return errors.Join(errs...)
}
