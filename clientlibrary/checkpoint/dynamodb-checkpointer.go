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
package checkpoint

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/matryer/try"
	"github.com/pkg/errors"

	"github.com/vmware/vmware-go-checkpointer/clientlibrary/config"
	par "github.com/vmware/vmware-go-checkpointer/clientlibrary/partition"
	"github.com/vmware/vmware-go-checkpointer/clientlibrary/utils"
	"github.com/vmware/vmware-go-checkpointer/logger"
)

const (
	ConsumerKey   = "consumer"
	ShardKey      = "shard"
	LeaseKey      = "lease"
	CheckpointKey = "checkpoint"
)

type dynamoLeaseRow struct {
	Consumer string           `dynamodbav:"consumer"`
	Shard    string           `dynamodbav:"shard"`
	Lease    dynamoLeaseValue `dynamodbav:"lease"`
}

type dynamoLeaseValue struct {
	Checkpoint string `dynamodbav:"checkpoint"`
}

// DynamoCheckpoint implements the Checkpointer interface using DynamoDB as a backend.
// Rows are keyed by consumer (HASH) and shard (RANGE) so a consumer's leases are one range query.
type DynamoCheckpoint struct {
	log                     logger.Logger
	TableName               string
	leaseTableReadCapacity  int64
	leaseTableWriteCapacity int64

	svc     dynamodbiface.DynamoDBAPI
	cfg     *config.CheckpointerConfiguration
	Retries int

	once    sync.Once
	initErr error
}

func NewDynamoCheckpoint(cfg *config.CheckpointerConfiguration) *DynamoCheckpoint {
	return &DynamoCheckpoint{
		log:                     cfg.Logger,
		TableName:               cfg.TableName,
		leaseTableReadCapacity:  int64(cfg.InitialLeaseTableReadCapacity),
		leaseTableWriteCapacity: int64(cfg.InitialLeaseTableWriteCapacity),
		cfg:                     cfg,
		Retries:                 cfg.StoreRetries,
	}
}

// WithDynamoDB is used to provide DynamoDB service
func (checkpointer *DynamoCheckpoint) WithDynamoDB(svc dynamodbiface.DynamoDBAPI) *DynamoCheckpoint {
	checkpointer.svc = svc
	return checkpointer
}

func (checkpointer *DynamoCheckpoint) client() (dynamodbiface.DynamoDBAPI, error) {
	checkpointer.once.Do(func() {
		if checkpointer.svc != nil {
			return
		}

		checkpointer.log.Infof("Creating DynamoDB session")
		s, err := session.NewSession(&aws.Config{
			Region:      aws.String(checkpointer.cfg.RegionName),
			Endpoint:    aws.String(checkpointer.cfg.DynamoDBEndpoint),
			Credentials: checkpointer.cfg.DynamoDBCredentials,
			// throttling is retried by retry(), bounded by Retries
			MaxRetries: aws.Int(0),
		})
		if err != nil {
			checkpointer.initErr = errors.Wrap(err, "failed in getting DynamoDB session")
			return
		}
		checkpointer.svc = dynamodb.New(s)
	})
	return checkpointer.svc, checkpointer.initErr
}

// EnsureProvisioned creates the lease table when it does not exist and waits for it to become active.
func (checkpointer *DynamoCheckpoint) EnsureProvisioned(ctx context.Context) error {
	svc, err := checkpointer.client()
	if err != nil {
		return storeUnavailable(OpProvision, err)
	}

	status, exists := checkpointer.tableStatus(ctx, svc)
	if exists && status == dynamodb.TableStatusActive {
		return nil
	}

	if !exists {
		checkpointer.log.Infof("Creating lease table %s", checkpointer.TableName)
		if err := checkpointer.createTable(ctx, svc); err != nil {
			// another consumer may have raced us to it
			if utils.AWSErrCode(err) != dynamodb.ErrCodeResourceInUseException {
				return storeUnavailable(OpProvision, errors.Wrapf(err, "creating table %s", checkpointer.TableName))
			}
		}
	} else {
		checkpointer.log.Infof("Lease table %s is %s, waiting for it", checkpointer.TableName, status)
	}

	err = svc.WaitUntilTableExistsWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(checkpointer.TableName),
	})
	if err != nil {
		return storeUnavailable(OpProvision, errors.Wrapf(err, "waiting for table %s", checkpointer.TableName))
	}
	return nil
}

// Load retrieves the lease of the consumer on the given shard
func (checkpointer *DynamoCheckpoint) Load(ctx context.Context, consumerID, shardID string) (*par.Lease, error) {
	svc, err := checkpointer.client()
	if err != nil {
		return nil, storeUnavailable(OpLoad, err)
	}

	var out *dynamodb.GetItemOutput
	err = checkpointer.retry(ctx, func() error {
		var err error
		out, err = svc.GetItemWithContext(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(checkpointer.TableName),
			Key:            leaseKey(consumerID, shardID),
			ConsistentRead: aws.Bool(true),
		})
		return err
	})
	if err != nil {
		return nil, storeUnavailable(OpLoad, errors.Wrapf(err, "getting lease %s/%s", consumerID, shardID))
	}
	if len(out.Item) == 0 {
		return nil, ErrLeaseNotFound
	}

	lease, err := unmarshalLease(out.Item)
	if err != nil {
		return nil, storeUnavailable(OpLoad, err)
	}
	return lease, nil
}

// Commit writes the full lease row
func (checkpointer *DynamoCheckpoint) Commit(ctx context.Context, lease *par.Lease) error {
	svc, err := checkpointer.client()
	if err != nil {
		return storeUnavailable(OpCommit, err)
	}

	item, err := dynamodbattribute.MarshalMap(dynamoLeaseRow{
		Consumer: lease.ConsumerID,
		Shard:    lease.ShardID,
		Lease:    dynamoLeaseValue{Checkpoint: lease.Checkpoint},
	})
	if err != nil {
		return storeUnavailable(OpCommit, errors.Wrap(err, "marshalling lease"))
	}

	err = checkpointer.retry(ctx, func() error {
		_, err := svc.PutItemWithContext(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(checkpointer.TableName),
			Item:      item,
		})
		return err
	})
	if err != nil {
		return storeUnavailable(OpCommit, errors.Wrapf(err, "putting lease %s", lease))
	}
	return nil
}

// Rewind deletes the lease row
func (checkpointer *DynamoCheckpoint) Rewind(ctx context.Context, consumerID, shardID string) error {
	svc, err := checkpointer.client()
	if err != nil {
		return storeUnavailable(OpRewind, err)
	}

	err = checkpointer.retry(ctx, func() error {
		_, err := svc.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(checkpointer.TableName),
			Key:       leaseKey(consumerID, shardID),
		})
		return err
	})
	if err != nil {
		return storeUnavailable(OpRewind, errors.Wrapf(err, "deleting lease %s/%s", consumerID, shardID))
	}
	return nil
}

// ListLeases queries every lease of the consumer
func (checkpointer *DynamoCheckpoint) ListLeases(ctx context.Context, consumerID string) ([]*par.Lease, error) {
	svc, err := checkpointer.client()
	if err != nil {
		return nil, storeUnavailable(OpList, err)
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(checkpointer.TableName),
		KeyConditionExpression: aws.String("#consumer = :consumer"),
		ExpressionAttributeNames: map[string]*string{
			"#consumer": aws.String(ConsumerKey),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":consumer": {S: aws.String(consumerID)},
		},
	}

	var leases []*par.Lease
	var unmarshalErr error
	err = svc.QueryPagesWithContext(ctx, input, func(page *dynamodb.QueryOutput, lastPage bool) bool {
		for _, item := range page.Items {
			lease, err := unmarshalLease(item)
			if err != nil {
				unmarshalErr = err
				return false
			}
			leases = append(leases, lease)
		}
		return !lastPage
	})
	if err == nil {
		err = unmarshalErr
	}
	if err != nil {
		return nil, storeUnavailable(OpList, errors.Wrapf(err, "querying leases of %s", consumerID))
	}
	return leases, nil
}

// retry runs fn again when DynamoDB throttles, with the backoff recommended by
// https://docs.aws.amazon.com/general/latest/gr/api-retries.html
func (checkpointer *DynamoCheckpoint) retry(ctx context.Context, fn func() error) error {
	return try.Do(func(attempt int) (bool, error) {
		err := fn()
		if err == nil {
			return false, nil
		}

		switch utils.AWSErrCode(err) {
		case dynamodb.ErrCodeProvisionedThroughputExceededException,
			dynamodb.ErrCodeInternalServerError,
			dynamodb.ErrCodeRequestLimitExceeded:
			if attempt >= checkpointer.Retries {
				return false, err
			}
			select {
			case <-ctx.Done():
				return false, err
			case <-time.After(time.Duration(math.Exp2(float64(attempt))*100) * time.Millisecond):
			}
			return true, err
		}
		return false, err
	})
}

func (checkpointer *DynamoCheckpoint) createTable(ctx context.Context, svc dynamodbiface.DynamoDBAPI) error {
	input := &dynamodb.CreateTableInput{
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String(ConsumerKey),
				AttributeType: aws.String("S"),
			},
			{
				AttributeName: aws.String(ShardKey),
				AttributeType: aws.String("S"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String(ConsumerKey),
				KeyType:       aws.String("HASH"),
			},
			{
				AttributeName: aws.String(ShardKey),
				KeyType:       aws.String("RANGE"),
			},
		},
		ProvisionedThroughput: &dynamodb.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(checkpointer.leaseTableReadCapacity),
			WriteCapacityUnits: aws.Int64(checkpointer.leaseTableWriteCapacity),
		},
		TableName: aws.String(checkpointer.TableName),
	}
	_, err := svc.CreateTableWithContext(ctx, input)
	return err
}

// tableStatus returns the status of the lease table and whether it exists.
func (checkpointer *DynamoCheckpoint) tableStatus(ctx context.Context, svc dynamodbiface.DynamoDBAPI) (string, bool) {
	input := &dynamodb.DescribeTableInput{
		TableName: aws.String(checkpointer.TableName),
	}
	out, err := svc.DescribeTableWithContext(ctx, input)
	if err != nil {
		return "", false
	}
	if out.Table == nil {
		return "", true
	}
	return aws.StringValue(out.Table.TableStatus), true
}

func leaseKey(consumerID, shardID string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		ConsumerKey: {
			S: aws.String(consumerID),
		},
		ShardKey: {
			S: aws.String(shardID),
		},
	}
}

func unmarshalLease(item map[string]*dynamodb.AttributeValue) (*par.Lease, error) {
	var row dynamoLeaseRow
	if err := dynamodbattribute.UnmarshalMap(item, &row); err != nil {
		return nil, errors.Wrap(err, "unmarshalling lease")
	}

	checkpoint := row.Lease.Checkpoint
	if checkpoint == "" {
		checkpoint = par.InitialCheckpoint
	}
	return &par.Lease{
		ConsumerID: row.Consumer,
		ShardID:    row.Shard,
		Checkpoint: checkpoint,
	}, nil
}
