/*
 * Copyright (c) 2023 VMware, Inc.
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of this software and
 * associated documentation files (the "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is furnished to do
 * so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all copies or substantial
 * portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT
 * NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
 * WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 */
package config

import (
	"log"
	"time"

	"github.com/aws/aws-sdk-go/aws/credentials"

	"github.com/vmware/vmware-go-checkpointer/clientlibrary/metrics"
	par "github.com/vmware/vmware-go-checkpointer/clientlibrary/partition"
	"github.com/vmware/vmware-go-checkpointer/clientlibrary/utils"
	"github.com/vmware/vmware-go-checkpointer/logger"
)

// NewCheckpointerConfig creates a default CheckpointerConfiguration based on the required fields.
// An empty consumerID is replaced by a generated one, an empty tableName by DefaultTableName.
func NewCheckpointerConfig(consumerID, tableName, regionName string) *CheckpointerConfiguration {
	return NewCheckpointerConfigWithCredentials(consumerID, tableName, regionName, nil, nil)
}

// NewCheckpointerConfigWithCredential creates a default CheckpointerConfiguration sharing one credential
// between DynamoDB and Kinesis.
func NewCheckpointerConfigWithCredential(consumerID, tableName, regionName string,
	creds *credentials.Credentials) *CheckpointerConfiguration {
	return NewCheckpointerConfigWithCredentials(consumerID, tableName, regionName, creds, creds)
}

// NewCheckpointerConfigWithCredentials creates a default CheckpointerConfiguration with specific credentials
// for each service.
func NewCheckpointerConfigWithCredentials(consumerID, tableName, regionName string,
	dynamodbCreds, kinesisCreds *credentials.Credentials) *CheckpointerConfiguration {
	checkIsValueNotEmpty("RegionName", regionName)

	if empty(consumerID) {
		consumerID = utils.MustNewUUID()
	}
	if empty(tableName) {
		tableName = DefaultTableName
	}

	// populate the configuration with default values
	return &CheckpointerConfiguration{
		ConsumerID:                      consumerID,
		TableName:                       tableName,
		RegionName:                      regionName,
		DynamoDBCredentials:             dynamodbCreds,
		KinesisCredentials:              kinesisCreds,
		InitialPositionInStream:         DefaultInitialPositionInStream,
		InitialPositionInStreamExtended: *newInitialPosition(DefaultInitialPositionInStream),
		MaxRecords:                      DefaultMaxRecords,
		IdleTimeBetweenReadsInMillis:    DefaultIdletimeBetweenReadsMillis,
		ShardSyncIntervalMillis:         DefaultShardSyncIntervalMillis,
		InitialLeaseTableReadCapacity:   DefaultInitialLeaseTableReadCapacity,
		InitialLeaseTableWriteCapacity:  DefaultInitialLeaseTableWriteCapacity,
		StoreRetries:                    DefaultStoreRetries,
		PositionOrdering:                DefaultPositionOrdering,
		OriginField:                     DefaultOriginField,
		InvocationTimeoutMillis:         DefaultInvocationTimeoutMillis,
		CommitTimeoutMillis:             DefaultCommitTimeoutMillis,
		MaxConcurrentShards:             DefaultMaxConcurrentShards,
		RedriveMinBackoffMillis:         DefaultRedriveMinBackoffMillis,
		RedriveMaxBackoffMillis:         DefaultRedriveMaxBackoffMillis,
		Logger:                          logger.GetDefaultLogger(),
		MonitoringService:               metrics.NoopMonitoringService{},
	}
}

// WithDynamoDBEndpoint is used to provide an alternative DynamoDB endpoint
func (c *CheckpointerConfiguration) WithDynamoDBEndpoint(dynamoDBEndpoint string) *CheckpointerConfiguration {
	c.DynamoDBEndpoint = dynamoDBEndpoint
	return c
}

// WithKinesisEndpoint is used to provide an alternative Kinesis endpoint
func (c *CheckpointerConfiguration) WithKinesisEndpoint(kinesisEndpoint string) *CheckpointerConfiguration {
	c.KinesisEndpoint = kinesisEndpoint
	return c
}

// WithStreamName sets the stream read by the polling worker
func (c *CheckpointerConfiguration) WithStreamName(streamName string) *CheckpointerConfiguration {
	checkIsValueNotEmpty("StreamName", streamName)
	c.StreamName = streamName
	return c
}

func (c *CheckpointerConfiguration) WithInitialPositionInStream(initialPositionInStream InitialPositionInStream) *CheckpointerConfiguration {
	c.InitialPositionInStream = initialPositionInStream
	c.InitialPositionInStreamExtended = *newInitialPosition(initialPositionInStream)
	return c
}

func (c *CheckpointerConfiguration) WithTimestampAtInitialPositionInStream(timestamp *time.Time) *CheckpointerConfiguration {
	c.InitialPositionInStream = AT_TIMESTAMP
	c.InitialPositionInStreamExtended = *newInitialPositionAtTimestamp(timestamp)
	return c
}

func (c *CheckpointerConfiguration) WithMaxRecords(maxRecords int) *CheckpointerConfiguration {
	checkIsValuePositive("MaxRecords", maxRecords)
	c.MaxRecords = maxRecords
	return c
}

func (c *CheckpointerConfiguration) WithIdleTimeBetweenReadsInMillis(idleTimeBetweenReadsInMillis int) *CheckpointerConfiguration {
	checkIsValuePositive("IdleTimeBetweenReadsInMillis", idleTimeBetweenReadsInMillis)
	c.IdleTimeBetweenReadsInMillis = idleTimeBetweenReadsInMillis
	return c
}

func (c *CheckpointerConfiguration) WithShardSyncIntervalMillis(shardSyncIntervalMillis int) *CheckpointerConfiguration {
	checkIsValuePositive("ShardSyncIntervalMillis", shardSyncIntervalMillis)
	c.ShardSyncIntervalMillis = shardSyncIntervalMillis
	return c
}

// WithLeaseTableCapacity sets the provisioned throughput used when the lease table has to be created
func (c *CheckpointerConfiguration) WithLeaseTableCapacity(read, write int) *CheckpointerConfiguration {
	checkIsValuePositive("InitialLeaseTableReadCapacity", read)
	checkIsValuePositive("InitialLeaseTableWriteCapacity", write)
	c.InitialLeaseTableReadCapacity = read
	c.InitialLeaseTableWriteCapacity = write
	return c
}

func (c *CheckpointerConfiguration) WithStoreRetries(retries int) *CheckpointerConfiguration {
	checkIsValuePositive("StoreRetries", retries)
	c.StoreRetries = retries
	return c
}

// WithPositionOrdering selects how record positions compare to checkpoints
func (c *CheckpointerConfiguration) WithPositionOrdering(ordering par.PositionOrdering) *CheckpointerConfiguration {
	if ordering != par.NumericOrdering && ordering != par.LexicographicOrdering {
		log.Panicf("Unknown position ordering: %v", ordering)
	}
	c.PositionOrdering = ordering
	return c
}

func (c *CheckpointerConfiguration) WithOriginField(field string) *CheckpointerConfiguration {
	checkIsValueNotEmpty("OriginField", field)
	c.OriginField = field
	return c
}

func (c *CheckpointerConfiguration) WithInvocationTimeoutMillis(timeout int) *CheckpointerConfiguration {
	checkIsValueNotNegative("InvocationTimeoutMillis", timeout)
	c.InvocationTimeoutMillis = timeout
	return c
}

func (c *CheckpointerConfiguration) WithCommitTimeoutMillis(timeout int) *CheckpointerConfiguration {
	checkIsValuePositive("CommitTimeoutMillis", timeout)
	c.CommitTimeoutMillis = timeout
	return c
}

func (c *CheckpointerConfiguration) WithMaxConcurrentShards(n int) *CheckpointerConfiguration {
	checkIsValuePositive("MaxConcurrentShards", n)
	c.MaxConcurrentShards = n
	return c
}

func (c *CheckpointerConfiguration) WithRedriveBackoffMillis(min, max int) *CheckpointerConfiguration {
	checkIsValuePositive("RedriveMinBackoffMillis", min)
	checkIsValuePositive("RedriveMaxBackoffMillis", max)
	if max < min {
		log.Panicf("RedriveMaxBackoffMillis %v is lower than RedriveMinBackoffMillis %v", max, min)
	}
	c.RedriveMinBackoffMillis = min
	c.RedriveMaxBackoffMillis = max
	return c
}

func (c *CheckpointerConfiguration) WithDebugLogging(debug bool) *CheckpointerConfiguration {
	c.DebugLogging = debug
	return c
}

// WithRewindBeforeRun makes the next invocation restart every shard it touches from the initial checkpoint.
func (c *CheckpointerConfiguration) WithRewindBeforeRun(rewind bool) *CheckpointerConfiguration {
	c.RewindBeforeRun = rewind
	return c
}

func (c *CheckpointerConfiguration) WithDryRunCommit(dryRun bool) *CheckpointerConfiguration {
	c.DryRunCommit = dryRun
	return c
}

func (c *CheckpointerConfiguration) WithLogger(logger logger.Logger) *CheckpointerConfiguration {
	if logger == nil {
		log.Panic("Logger cannot be null")
	}
	c.Logger = logger
	return c
}

// WithMonitoringService sets the monitoring service to use to publish metrics.
func (c *CheckpointerConfiguration) WithMonitoringService(mService metrics.MonitoringService) *CheckpointerConfiguration {
	if mService == nil {
		mService = metrics.NoopMonitoringService{}
	}
	c.MonitoringService = mService
	return c
}
