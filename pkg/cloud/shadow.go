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
	"fmt"
)

// TopicShadow publishes reported state to the shadow update topic of the
// site's core thing through a Publisher.
type TopicShadow struct {
	publisher Publisher
	thingName string
}

// NewTopicShadow publishes shadow documents through pub.
func NewTopicShadow(pub Publisher, thingName string) *TopicShadow {
	return &TopicShadow{publisher: pub, thingName: thingName}
}

// ShadowTopic is the named shadow update topic for a device.
func (s *TopicShadow) ShadowTopic(deviceID string) string {
	return fmt.Sprintf("$aws/things/%s/shadow/name/%s/update", s.thingName, deviceID)
}

func (s *TopicShadow) UpdateShadow(ctx context.Context, deviceID string, state ShadowState) error {
	doc, err := ReportedDocument(state)
	if err != nil {
		return err
	}

	return s.publisher.Publish(ctx, Message{
		ID:       fmt.Sprintf("shadow-%s-%d", deviceID, state.LastUpdate.UnixMilli()),
		Topic:    s.ShadowTopic(deviceID),
		Payload:  doc,
		Priority: 5,
	})
}

// Close leaves the shared publisher open.
func (*TopicShadow) Close() error { return nil }

// NoopShadow discards shadow updates.
type NoopShadow struct{}

func (NoopShadow) UpdateShadow(context.Context, string, ShadowState) error { return nil }
func (NoopShadow) Close() error                                            { return nil }
