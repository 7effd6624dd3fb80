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
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	creds "github.com/aws/aws-sdk-go/aws/credentials"

	"github.com/vmware/vmware-go-checkpointer/clientlibrary/metrics"
	par "github.com/vmware/vmware-go-checkpointer/clientlibrary/partition"
	"github.com/vmware/vmware-go-checkpointer/logger"
)

const (
	// LATEST start after the most recent data record (fetch new data).
	LATEST InitialPositionInStream = iota + 1
	// TRIM_HORIZON start from the oldest available data record
	TRIM_HORIZON
	// AT_TIMESTAMP start from the record at or after the specified server-side Timestamp.
	AT_TIMESTAMP

	// The location in the shard from which a polling consumer starts when there is no lease for the shard.
	// A lease at the initial checkpoint means "nothing applied yet", so the oldest retained record is the
	// only position consistent with it.
	DefaultInitialPositionInStream = TRIM_HORIZON

	// DefaultTableName is the lease table name used when none is given.
	DefaultTableName = "consumers"

	// Max records to fetch from Kinesis in a single GetRecords call.
	DefaultMaxRecords = 10000

	// How long a polling consumer sleeps when a GetRecords call returned nothing.
	DefaultIdletimeBetweenReadsMillis = 1000

	// The lease table is provisioned with this read capacity.
	DefaultInitialLeaseTableReadCapacity = 1

	// The lease table is provisioned with this write capacity.
	DefaultInitialLeaseTableWriteCapacity = 1

	// Max attempts for a throttled lease store call.
	DefaultStoreRetries = 10

	// Positions are compared numerically unless configured otherwise.
	DefaultPositionOrdering = par.NumericOrdering

	// Payload attribute whose distinct values are counted in the invocation summary.
	DefaultOriginField = "visitor_site_id"

	// Zero means the invocation is only bounded by the caller's context.
	DefaultInvocationTimeoutMillis = 0

	// Time allowed for the final commit once the invocation context is done.
	DefaultCommitTimeoutMillis = 5000

	// Shards of a single delivery processed at the same time.
	DefaultMaxConcurrentShards = 8

	// How often the polling worker lists the stream's shards.
	DefaultShardSyncIntervalMillis = 60000

	// Backoff bounds for a polling consumer re-reading a shard after a failed batch.
	DefaultRedriveMinBackoffMillis = 100
	DefaultRedriveMaxBackoffMillis = 30000
)

type (
	// InitialPositionInStream Used to specify the Position in the stream where a new consumer should start from
	// when reading the stream itself.
	InitialPositionInStream int

	// InitialPositionInStreamExtended carries the AT_TIMESTAMP value along with the position.
	InitialPositionInStreamExtended struct {
		Position InitialPositionInStream

		// The time stamp of the data record from which to start reading. Used with
		// shard iterator type AT_TIMESTAMP.
		Timestamp *time.Time `type:"Timestamp" timestampFormat:"unix"`
	}

	// CheckpointerConfiguration is the configuration handed to the controller, the lease stores and the
	// stream transports at construction time. There are no process wide toggles.
	CheckpointerConfiguration struct {
		// ConsumerID identifies the consuming application. It is the hash key of every lease row.
		ConsumerID string

		// TableName is the lease table (DynamoDB, Postgres) or key prefix (Redis).
		TableName string

		// RegionName The region name for the AWS services
		RegionName string

		// DynamoDBEndpoint is an optional endpoint URL that overrides the default generated endpoint for a DynamoDB client.
		DynamoDBEndpoint string

		// DynamoDBCredentials is used to access DynamoDB
		DynamoDBCredentials *creds.Credentials

		// KinesisEndpoint is an optional endpoint URL that overrides the default generated endpoint for a Kinesis client.
		KinesisEndpoint string

		// KinesisCredentials is used to access Kinesis
		KinesisCredentials *creds.Credentials

		// StreamName is the Kinesis stream read by the polling worker. Unused when records are pushed by Lambda.
		StreamName string

		// InitialPositionInStream specifies where the polling worker starts on a shard without a lease
		InitialPositionInStream InitialPositionInStream

		// InitialPositionInStreamExtended provides actual AT_TIMESTAMP value
		InitialPositionInStreamExtended InitialPositionInStreamExtended

		// MaxRecords Max records to read per Kinesis getRecords() call
		MaxRecords int

		// IdleTimeBetweenReadsInMillis Idle time between calls to fetch data from Kinesis
		IdleTimeBetweenReadsInMillis int

		// ShardSyncIntervalMillis is the period at which the polling worker discovers new shards
		ShardSyncIntervalMillis int

		// Read capacity to provision when creating the lease table (dynamoDB).
		InitialLeaseTableReadCapacity int

		// Write capacity to provision when creating the lease table.
		InitialLeaseTableWriteCapacity int

		// StoreRetries bounds retries of throttled lease store calls
		StoreRetries int

		// PositionOrdering decides how record positions are compared against the checkpoint
		PositionOrdering par.PositionOrdering

		// OriginField is the JSON payload attribute counted as the record origin in the invocation summary
		OriginField string

		// InvocationTimeoutMillis aborts the remaining records of an invocation. 0 disables it.
		InvocationTimeoutMillis int

		// CommitTimeoutMillis bounds the commit issued after the invocation context is done
		CommitTimeoutMillis int

		// MaxConcurrentShards bounds how many shards of one delivery are processed in parallel
		MaxConcurrentShards int

		// Backoff bounds used by the polling worker before re-reading a shard after a failed batch
		RedriveMinBackoffMillis int
		RedriveMaxBackoffMillis int

		// DebugLogging logs at debug level and dumps the consumer's leases at the start of an invocation
		DebugLogging bool

		// RewindBeforeRun deletes the lease of every shard in the next invocation before loading it
		RewindBeforeRun bool

		// DryRunCommit processes records but never writes the lease
		DryRunCommit bool

		// Logger used to log message.
		Logger logger.Logger

		// MonitoringService publishes per consumer metrics.
		MonitoringService metrics.MonitoringService
	}
)

var positionMap = map[InitialPositionInStream]*string{
	LATEST:       aws.String("LATEST"),
	TRIM_HORIZON: aws.String("TRIM_HORIZON"),
	AT_TIMESTAMP: aws.String("AT_TIMESTAMP"),
}

// InitalPositionInStreamToShardIteratorType maps a position to the Kinesis shard iterator type.
func InitalPositionInStreamToShardIteratorType(pos InitialPositionInStream) *string {
	return positionMap[pos]
}

// ParseInitialPositionInStream maps a configuration name to a position.
func ParseInitialPositionInStream(name string) (InitialPositionInStream, bool) {
	for pos, n := range positionMap {
		if strings.EqualFold(*n, name) {
			return pos, true
		}
	}
	return 0, false
}

func newInitialPosition(position InitialPositionInStream) *InitialPositionInStreamExtended {
	return &InitialPositionInStreamExtended{Position: position}
}

func newInitialPositionAtTimestamp(timestamp *time.Time) *InitialPositionInStreamExtended {
	return &InitialPositionInStreamExtended{Position: AT_TIMESTAMP, Timestamp: timestamp}
}

func empty(s string) bool {
	return len(strings.TrimSpace(s)) == 0
}

// checkIsValueNotEmpty makes sure the value is not empty.
func checkIsValueNotEmpty(key string, value string) {
	if empty(value) {
		// There is no point to continue for incorrect configuration. Fail fast!
		log.Panicf("Non-empty value expected for %v, actual: %v", key, value)
	}
}

// checkIsValuePositive makes sure the value is possitive.
func checkIsValuePositive(key string, value int) {
	if value <= 0 {
		// There is no point to continue for incorrect configuration. Fail fast!
		log.Panicf("Positive value expected for %v, actual: %v", key, value)
	}
}

// checkIsValueNotNegative makes sure the value is zero or more.
func checkIsValueNotNegative(key string, value int) {
	if value < 0 {
		log.Panicf("Non-negative value expected for %v, actual: %v", key, value)
	}
}
