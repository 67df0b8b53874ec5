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
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/carverauto/edgesync/pkg/logger"
	"github.com/jackc/pgx/v5/pgconn"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var errDown = errors.New("down")

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, "edgesync.site-001.incidents", SubjectFor("edgesync/site-001/incidents"))
	assert.Equal(t, "a.b", SubjectFor("/a/b/"))
}

func TestAMQPPriority(t *testing.T) {
	assert.Equal(t, uint8(9), amqpPriority(1))
	assert.Equal(t, uint8(5), amqpPriority(5))
	assert.Equal(t, uint8(9), amqpPriority(0))
	assert.Equal(t, uint8(1), amqpPriority(12))
}

type fakeAMQPSession struct {
	keys   []string
	lost   bool
	closes int
}

func (f *fakeAMQPSession) publish(_ context.Context, _, key string, _ amqp.Publishing) error {
	if f.lost {
		return amqp.ErrClosed
	}

	f.keys = append(f.keys, key)

	return nil
}

func (f *fakeAMQPSession) closed() bool { return f.lost }

func (f *fakeAMQPSession) Close() error {
	f.closes++
	return nil
}

func TestAMQPPublisherRedialsLostSession(t *testing.T) {
	ctx := context.Background()
	first := &fakeAMQPSession{}
	second := &fakeAMQPSession{}
	dialErr := errDown

	var dials int

	pub := &AMQPPublisher{
		exchange: "amq.topic",
		logger:   logger.NewTestLogger(),
		session:  first,
		dial: func() (amqpSession, error) {
			dials++
			if dialErr != nil {
				return nil, dialErr
			}

			return second, nil
		},
	}

	msg := Message{ID: "m-1", Topic: "edgesync/site-001/incidents", Payload: []byte(`{}`), Priority: 1}

	require.NoError(t, pub.Publish(ctx, msg))
	assert.Zero(t, dials)

	first.lost = true

	require.ErrorIs(t, pub.Publish(ctx, msg), errDown)
	assert.Equal(t, 1, dials)
	assert.Equal(t, 1, first.closes)

	dialErr = nil

	require.NoError(t, pub.Publish(ctx, msg))
	assert.Equal(t, 2, dials)
	assert.Equal(t, []string{"edgesync.site-001.incidents"}, first.keys)
	assert.Equal(t, []string{"edgesync.site-001.incidents"}, second.keys)

	require.NoError(t, pub.Close())
	assert.Equal(t, 1, second.closes)
	require.ErrorIs(t, pub.Publish(ctx, msg), amqp.ErrClosed)
	assert.Equal(t, 2, dials)
}

func TestMultiPublisherRequiresAll(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := NewMockPublisher(ctrl)
	b := NewMockPublisher(ctrl)
	msg := Message{ID: "m-1", Topic: "t"}

	a.EXPECT().Publish(gomock.Any(), msg).Return(nil).Times(2)
	b.EXPECT().Publish(gomock.Any(), msg).Return(errDown)
	b.EXPECT().Publish(gomock.Any(), msg).Return(nil)

	m := NewMultiPublisher([]string{"nats", "dynamodb"}, []Publisher{a, b})

	err := m.Publish(context.Background(), msg)
	require.ErrorIs(t, err, errDown)
	assert.Contains(t, err.Error(), "dynamodb")

	require.NoError(t, m.Publish(context.Background(), msg))

	a.EXPECT().Close().Return(nil)
	b.EXPECT().Close().Return(nil)
	require.NoError(t, m.Close())
}

func TestTopicShadow(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := NewMockPublisher(ctrl)
	sink := NewTopicShadow(pub, "GreengrassCore-site-001-hanoi")
	state := ShadowState{LastIncident: "INC-1", LastUpdate: time.Unix(1_700_000_000, 0).UTC(), Status: "offline"}

	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg Message) error {
		assert.Equal(t, "$aws/things/GreengrassCore-site-001-hanoi/shadow/name/DEV-1/update", msg.Topic)
		assert.JSONEq(t, `{"state":{"reported":{"last_incident":"INC-1","last_update":"2023-11-14T22:13:20Z","status":"offline"}}}`,
			string(msg.Payload))

		return nil
	})

	require.NoError(t, sink.UpdateShadow(context.Background(), "DEV-1", state))
}

type fakeDynamo struct {
	items []*dynamodb.PutItemInput
	err   error
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items = append(f.items, in)
	return &dynamodb.PutItemOutput{}, f.err
}

func TestDynamoDBPublisher(t *testing.T) {
	fake := &fakeDynamo{}
	pub := &DynamoDBPublisher{client: fake, table: "EdgeMessages", now: func() int64 { return 42 }}
	msg := Message{ID: "m-1", Topic: "t", Payload: []byte(`{}`), Priority: 2}

	require.NoError(t, pub.Publish(context.Background(), msg))
	require.Len(t, fake.items, 1)
	assert.Equal(t, "EdgeMessages", *fake.items[0].TableName)
	assert.Equal(t, "attribute_not_exists(message_id)", *fake.items[0].ConditionExpression)

	id, ok := fake.items[0].Item["message_id"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, "m-1", id.Value)

	fake.err = &types.ConditionalCheckFailedException{}
	require.NoError(t, pub.Publish(context.Background(), msg), "redelivery is a no-op")

	fake.err = errDown
	require.ErrorIs(t, pub.Publish(context.Background(), msg), errDown)
}

type fakeExecer struct {
	queries []string
	args    [][]any
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.queries = append(f.queries, sql)
	f.args = append(f.args, args)

	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestPostgresPublisher(t *testing.T) {
	db := &fakeExecer{}

	pub, err := newPostgresPublisher(context.Background(), db, "")
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), Message{ID: "m-1", Topic: "t", Payload: []byte(`{"a":1}`), Priority: 3}))

	require.Len(t, db.queries, 2)
	assert.Contains(t, db.queries[0], `CREATE TABLE IF NOT EXISTS "edge_messages"`)
	assert.Contains(t, db.queries[1], "ON CONFLICT (message_id) DO NOTHING")
	assert.Equal(t, []any{"m-1", "t", `{"a":1}`, 3}, db.args[1])
	require.NoError(t, pub.Close())
}

func TestFactories(t *testing.T) {
	ctx := context.Background()
	log := logger.NewTestLogger()

	_, err := NewPublisher(ctx, &Config{Backend: "carrier-pigeon"}, log)
	require.ErrorIs(t, err, ErrUnknownBackend)

	_, err = NewPublisher(ctx, &Config{Backend: BackendMulti}, log)
	require.ErrorIs(t, err, errEmptyMulti)

	_, err = NewPublisher(ctx, &Config{Backend: BackendMulti, Multi: []string{BackendMulti}}, log)
	require.ErrorIs(t, err, errNestedMulti)

	p, err := NewPublisher(ctx, &Config{Backend: BackendMQTT}, log)
	require.ErrorIs(t, err, ErrMissingConfig)
	assert.Nil(t, p)

	shadow := &ShadowConfig{}
	require.NoError(t, shadow.Validate("site-001"))
	assert.Equal(t, "GreengrassCore-site-001-hanoi", shadow.ThingName)

	sink, err := NewShadowSink(ctx, shadow, &Config{}, nil, log)
	require.NoError(t, err)
	assert.IsType(t, NoopShadow{}, sink)

	_, err = NewShadowSink(ctx, &ShadowConfig{Backend: "fax"}, &Config{}, nil, log)
	require.ErrorIs(t, err, ErrUnknownBackend)
}
