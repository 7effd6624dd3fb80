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
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/vmware/vmware-go-checkpointer/clientlibrary/config"
	par "github.com/vmware/vmware-go-checkpointer/clientlibrary/partition"
)

func newTestDynamoCheckpoint(svc dynamodbiface.DynamoDBAPI) *DynamoCheckpoint {
	config := cfg.NewCheckpointerConfig("test-consumer", "consumers", "us-west-2").
		WithStoreRetries(3)
	return NewDynamoCheckpoint(config).WithDynamoDB(svc)
}

func TestEnsureProvisionedCreatesTable(t *testing.T) {
	svc := newMockDynamoDB(false)
	checkpoint := newTestDynamoCheckpoint(svc)

	require.NoError(t, checkpoint.EnsureProvisioned(context.Background()))
	assert.True(t, svc.tableExist)
	assert.Equal(t, 1, svc.createCalls)

	createInput := svc.createInput
	assert.Equal(t, "consumers", aws.StringValue(createInput.TableName))
	assert.Equal(t, ConsumerKey, aws.StringValue(createInput.KeySchema[0].AttributeName))
	assert.Equal(t, "HASH", aws.StringValue(createInput.KeySchema[0].KeyType))
	assert.Equal(t, ShardKey, aws.StringValue(createInput.KeySchema[1].AttributeName))
	assert.Equal(t, "RANGE", aws.StringValue(createInput.KeySchema[1].KeyType))

	assert.Equal(t, 1, svc.waitCalls)
	assert.Equal(t, dynamodb.TableStatusActive, svc.tableStatus)

	// second call finds the table active
	require.NoError(t, checkpoint.EnsureProvisioned(context.Background()))
	assert.Equal(t, 1, svc.createCalls)
	assert.Equal(t, 1, svc.waitCalls)
}

func TestEnsureProvisionedWaitsForCreatingTable(t *testing.T) {
	svc := newMockDynamoDB(true)
	svc.tableStatus = dynamodb.TableStatusCreating
	checkpoint := newTestDynamoCheckpoint(svc)

	require.NoError(t, checkpoint.EnsureProvisioned(context.Background()))
	assert.Equal(t, 0, svc.createCalls)
	assert.Equal(t, 1, svc.waitCalls)
	assert.Equal(t, dynamodb.TableStatusActive, svc.tableStatus)
}

func TestEnsureProvisionedFailure(t *testing.T) {
	svc := newMockDynamoDB(false)
	svc.failCreate = awserr.New("AccessDeniedException", "denied", nil)
	checkpoint := newTestDynamoCheckpoint(svc)

	err := checkpoint.EnsureProvisioned(context.Background())
	var unavailable ErrStoreUnavailable
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, OpProvision, unavailable.Op)
}

func TestDynamoLoadCommitRewind(t *testing.T) {
	svc := newMockDynamoDB(true)
	checkpoint := newTestDynamoCheckpoint(svc)
	ctx := context.Background()

	_, err := checkpoint.Load(ctx, "test-consumer", "shard-001")
	assert.Equal(t, ErrLeaseNotFound, err)

	require.NoError(t, checkpoint.Commit(ctx, &par.Lease{ConsumerID: "test-consumer", ShardID: "shard-001", Checkpoint: "25"}))

	// original row layout: consumer, shard, lease{checkpoint}
	item := svc.items["test-consumer/shard-001"]
	assert.Equal(t, "25", aws.StringValue(item[LeaseKey].M[CheckpointKey].S))

	lease, err := checkpoint.Load(ctx, "test-consumer", "shard-001")
	require.NoError(t, err)
	assert.Equal(t, &par.Lease{ConsumerID: "test-consumer", ShardID: "shard-001", Checkpoint: "25"}, lease)

	require.NoError(t, checkpoint.Rewind(ctx, "test-consumer", "shard-001"))
	_, err = checkpoint.Load(ctx, "test-consumer", "shard-001")
	assert.Equal(t, ErrLeaseNotFound, err)
}

func TestDynamoListLeases(t *testing.T) {
	svc := newMockDynamoDB(true)
	checkpoint := newTestDynamoCheckpoint(svc)
	ctx := context.Background()

	require.NoError(t, checkpoint.Commit(ctx, &par.Lease{ConsumerID: "a", ShardID: "shard-001", Checkpoint: "5"}))
	require.NoError(t, checkpoint.Commit(ctx, &par.Lease{ConsumerID: "a", ShardID: "shard-002", Checkpoint: "7"}))
	require.NoError(t, checkpoint.Commit(ctx, &par.Lease{ConsumerID: "b", ShardID: "shard-001", Checkpoint: "9"}))

	leases, err := checkpoint.ListLeases(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, leases, 2)
	for _, lease := range leases {
		assert.Equal(t, "a", lease.ConsumerID)
	}
}

func TestDynamoRetriesThrottling(t *testing.T) {
	svc := newMockDynamoDB(true)
	svc.throttle = 2
	checkpoint := newTestDynamoCheckpoint(svc)

	err := checkpoint.Commit(context.Background(), &par.Lease{ConsumerID: "a", ShardID: "s", Checkpoint: "1"})
	require.NoError(t, err)
	assert.Equal(t, 3, svc.putCalls)
}

func TestDynamoThrottlingIsBounded(t *testing.T) {
	svc := newMockDynamoDB(true)
	svc.throttle = 10
	checkpoint := newTestDynamoCheckpoint(svc)

	err := checkpoint.Commit(context.Background(), &par.Lease{ConsumerID: "a", ShardID: "s", Checkpoint: "1"})
	var unavailable ErrStoreUnavailable
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, OpCommit, unavailable.Op)
	assert.Equal(t, 3, svc.putCalls)
}

func TestDynamoClientDoesNotRetry(t *testing.T) {
	config := cfg.NewCheckpointerConfig("test-consumer", "consumers", "us-west-2").
		WithDynamoDBEndpoint("http://localhost:8000").
		WithStoreRetries(3)
	checkpoint := NewDynamoCheckpoint(config)

	svc, err := checkpoint.client()
	require.NoError(t, err)
	client, ok := svc.(*dynamodb.DynamoDB)
	require.True(t, ok)
	assert.Equal(t, 0, client.MaxRetries())
}

func TestDynamoStoreUnavailable(t *testing.T) {
	svc := newMockDynamoDB(true)
	svc.unreachable = true
	checkpoint := newTestDynamoCheckpoint(svc)

	_, err := checkpoint.Load(context.Background(), "a", "s")
	var unavailable ErrStoreUnavailable
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, OpLoad, unavailable.Op)
	assert.Equal(t, 1, svc.getCalls)

	err = checkpoint.Commit(context.Background(), &par.Lease{ConsumerID: "a", ShardID: "s", Checkpoint: "1"})
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, OpCommit, unavailable.Op)
}

type mockDynamoDB struct {
	dynamodbiface.DynamoDBAPI

	sync.Mutex
	tableExist  bool
	tableStatus string
	waitCalls   int
	createCalls int
	createInput *dynamodb.CreateTableInput
	failCreate  error
	items       map[string]map[string]*dynamodb.AttributeValue

	throttle    int
	unreachable bool
	putCalls    int
	getCalls    int
}

func newMockDynamoDB(tableExist bool) *mockDynamoDB {
	return &mockDynamoDB{
		tableExist:  tableExist,
		tableStatus: dynamodb.TableStatusActive,
		items:      map[string]map[string]*dynamodb.AttributeValue{},
	}
}

func itemKey(key map[string]*dynamodb.AttributeValue) string {
	return aws.StringValue(key[ConsumerKey].S) + "/" + aws.StringValue(key[ShardKey].S)
}

func (m *mockDynamoDB) DescribeTableWithContext(aws.Context, *dynamodb.DescribeTableInput, ...request.Option) (*dynamodb.DescribeTableOutput, error) {
	m.Lock()
	defer m.Unlock()
	if !m.tableExist {
		return &dynamodb.DescribeTableOutput{}, awserr.New(dynamodb.ErrCodeResourceNotFoundException, "doesNotExist", errors.New(""))
	}
	return &dynamodb.DescribeTableOutput{
		Table: &dynamodb.TableDescription{TableStatus: aws.String(m.tableStatus)},
	}, nil
}

func (m *mockDynamoDB) CreateTableWithContext(_ aws.Context, input *dynamodb.CreateTableInput, _ ...request.Option) (*dynamodb.CreateTableOutput, error) {
	m.Lock()
	defer m.Unlock()
	if m.failCreate != nil {
		return nil, m.failCreate
	}
	m.createCalls++
	m.createInput = input
	m.tableExist = true
	m.tableStatus = dynamodb.TableStatusCreating
	return &dynamodb.CreateTableOutput{}, nil
}

func (m *mockDynamoDB) WaitUntilTableExistsWithContext(aws.Context, *dynamodb.DescribeTableInput, ...request.WaiterOption) error {
	m.Lock()
	defer m.Unlock()
	m.waitCalls++
	if m.tableExist {
		m.tableStatus = dynamodb.TableStatusActive
	}
	return nil
}

func (m *mockDynamoDB) PutItemWithContext(_ aws.Context, input *dynamodb.PutItemInput, _ ...request.Option) (*dynamodb.PutItemOutput, error) {
	m.Lock()
	defer m.Unlock()
	m.putCalls++
	if m.unreachable {
		return nil, awserr.New("RequestError", "send request failed", errors.New("dial tcp: i/o timeout"))
	}
	if m.throttle > 0 {
		m.throttle--
		return nil, awserr.New(dynamodb.ErrCodeProvisionedThroughputExceededException, "slow down", nil)
	}
	m.items[itemKey(input.Item)] = input.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamoDB) GetItemWithContext(_ aws.Context, input *dynamodb.GetItemInput, _ ...request.Option) (*dynamodb.GetItemOutput, error) {
	m.Lock()
	defer m.Unlock()
	m.getCalls++
	if m.unreachable {
		return nil, awserr.New("RequestError", "send request failed", errors.New("dial tcp: i/o timeout"))
	}
	return &dynamodb.GetItemOutput{
		Item: m.items[itemKey(input.Key)],
	}, nil
}

func (m *mockDynamoDB) DeleteItemWithContext(_ aws.Context, input *dynamodb.DeleteItemInput, _ ...request.Option) (*dynamodb.DeleteItemOutput, error) {
	m.Lock()
	defer m.Unlock()
	delete(m.items, itemKey(input.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockDynamoDB) QueryPagesWithContext(_ aws.Context, input *dynamodb.QueryInput, fn func(*dynamodb.QueryOutput, bool) bool, _ ...request.Option) error {
	m.Lock()
	consumer := aws.StringValue(input.ExpressionAttributeValues[":consumer"].S)
	var items []map[string]*dynamodb.AttributeValue
	for _, item := range m.items {
		if aws.StringValue(item[ConsumerKey].S) == consumer {
			items = append(items, item)
		}
	}
	m.Unlock()

	fn(&dynamodb.QueryOutput{Items: items}, true)
	return nil
}
