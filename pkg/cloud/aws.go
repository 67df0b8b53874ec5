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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
)

// AWSConfig holds the settings shared by the AWS backends.
type AWSConfig struct {
	Region string `json:"region"`
	// Endpoint is the account specific IoT data endpoint, e.g. https://xxx-ats.iot.ap-southeast-1.amazonaws.com.
	Endpoint string `json:"endpoint"`
	// Table is the DynamoDB table messages are written to.
	Table string `json:"table"`
}

func loadAWSConfig(ctx context.Context, cfg *AWSConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	return awsCfg, nil
}

func newIoTDataClient(ctx context.Context, cfg *AWSConfig) (*iotdataplane.Client, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("aws iot endpoint: %w", ErrMissingConfig)
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return iotdataplane.NewFromConfig(awsCfg, func(o *iotdataplane.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
	}), nil
}

type iotDataAPI interface {
	Publish(ctx context.Context, in *iotdataplane.PublishInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error)
	UpdateThingShadow(ctx context.Context, in *iotdataplane.UpdateThingShadowInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.UpdateThingShadowOutput, error)
}

// IoTPublisher publishes through the AWS IoT data plane with QoS 1.
type IoTPublisher struct {
	client iotDataAPI
}

// NewIoTPublisher builds a data plane client from the default credential chain.
func NewIoTPublisher(ctx context.Context, cfg *AWSConfig) (*IoTPublisher, error) {
	client, err := newIoTDataClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &IoTPublisher{client: client}, nil
}

func (p *IoTPublisher) Publish(ctx context.Context, msg Message) error {
	_, err := p.client.Publish(ctx, &iotdataplane.PublishInput{
		Topic:   aws.String(msg.Topic),
		Payload: msg.Payload,
		Qos:     1,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s to AWS IoT: %w", msg.ID, err)
	}

	return nil
}

func (*IoTPublisher) Close() error { return nil }

// IoTShadow writes named shadows on the site's core thing, one per device.
type IoTShadow struct {
	client    iotDataAPI
	thingName string
}

// NewIoTShadow builds a data plane client for thingName.
func NewIoTShadow(ctx context.Context, cfg *AWSConfig, thingName string) (*IoTShadow, error) {
	client, err := newIoTDataClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &IoTShadow{client: client, thingName: thingName}, nil
}

func (s *IoTShadow) UpdateShadow(ctx context.Context, deviceID string, state ShadowState) error {
	doc, err := ReportedDocument(state)
	if err != nil {
		return err
	}

	_, err = s.client.UpdateThingShadow(ctx, &iotdataplane.UpdateThingShadowInput{
		ThingName:  aws.String(s.thingName),
		ShadowName: aws.String(deviceID),
		Payload:    doc,
	})
	if err != nil {
		return fmt.Errorf("failed to update shadow %s/%s: %w", s.thingName, deviceID, err)
	}

	return nil
}

func (*IoTShadow) Close() error { return nil }

type dynamoPutAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// dynamoItem is the stored form of a message.
type dynamoItem struct {
	MessageID string `dynamodbav:"message_id"`
	Topic     string `dynamodbav:"topic"`
	Payload   string `dynamodbav:"payload"`
	Priority  int    `dynamodbav:"priority"`
	Timestamp int64  `dynamodbav:"timestamp"`
}

// DynamoDBPublisher writes each message as an item keyed by message_id.
// A conditional put makes redelivery a no-op.
type DynamoDBPublisher struct {
	client dynamoPutAPI
	table  string
	now    func() int64
}

// NewDynamoDBPublisher builds a DynamoDB client from the default credential chain.
func NewDynamoDBPublisher(ctx context.Context, cfg *AWSConfig, now func() int64) (*DynamoDBPublisher, error) {
	if cfg == nil || cfg.Table == "" {
		return nil, fmt.Errorf("dynamodb table: %w", ErrMissingConfig)
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &DynamoDBPublisher{client: dynamodb.NewFromConfig(awsCfg), table: cfg.Table, now: now}, nil
}

func (p *DynamoDBPublisher) Publish(ctx context.Context, msg Message) error {
	item, err := attributevalue.MarshalMap(dynamoItem{
		MessageID: msg.ID,
		Topic:     msg.Topic,
		Payload:   string(msg.Payload),
		Priority:  msg.Priority,
		Timestamp: p.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message %s: %w", msg.ID, err)
	}

	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(p.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(message_id)"),
	})

	var exists *types.ConditionalCheckFailedException
	if errors.As(err, &exists) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to store message %s in dynamodb: %w", msg.ID, err)
	}

	return nil
}

func (*DynamoDBPublisher) Close() error { return nil }
