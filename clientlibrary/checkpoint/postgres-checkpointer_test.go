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
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmware/vmware-go-checkpointer/clientlibrary/database/models"
	par "github.com/vmware/vmware-go-checkpointer/clientlibrary/partition"
	"github.com/vmware/vmware-go-checkpointer/logger"
)

type mockLeaseDatastore struct {
	rows      map[string]*models.Lease
	tableMade bool
	err       error
}

func newMockLeaseDatastore() *mockLeaseDatastore {
	return &mockLeaseDatastore{rows: map[string]*models.Lease{}}
}

func (m *mockLeaseDatastore) ServiceName() string                  { return "mock" }
func (m *mockLeaseDatastore) GetDBStats() sql.DBStats              { return sql.DBStats{} }
func (m *mockLeaseDatastore) PingContext(ctx context.Context) error { return m.err }
func (m *mockLeaseDatastore) Close() error                         { return nil }

func (m *mockLeaseDatastore) CreateLeaseTable(ctx context.Context) error {
	m.tableMade = true
	return m.err
}

func (m *mockLeaseDatastore) GetLease(ctx context.Context, consumerID, shardID string) (*models.Lease, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.rows[consumerID+"/"+shardID], nil
}

func (m *mockLeaseDatastore) SaveLease(ctx context.Context, lease *models.Lease) error {
	if m.err != nil {
		return m.err
	}
	m.rows[lease.ConsumerID+"/"+lease.ShardID] = lease
	return nil
}

func (m *mockLeaseDatastore) RemoveLease(ctx context.Context, consumerID, shardID string) error {
	delete(m.rows, consumerID+"/"+shardID)
	return m.err
}

func (m *mockLeaseDatastore) GetLeases(ctx context.Context, consumerID string) ([]*models.Lease, error) {
	var leases []*models.Lease
	for _, row := range m.rows {
		if row.ConsumerID == consumerID {
			leases = append(leases, row)
		}
	}
	return leases, m.err
}

func TestPostgresCheckpoint(t *testing.T) {
	datastore := newMockLeaseDatastore()
	checkpoint := NewPostgresCheckpoint(datastore, logger.GetDefaultLogger())
	ctx := context.Background()

	require.NoError(t, checkpoint.EnsureProvisioned(ctx))
	assert.True(t, datastore.tableMade)

	_, err := checkpoint.Load(ctx, "test-consumer", "shard-001")
	assert.Equal(t, ErrLeaseNotFound, err)

	require.NoError(t, checkpoint.Commit(ctx, &par.Lease{ConsumerID: "test-consumer", ShardID: "shard-001", Checkpoint: "50"}))
	lease, err := checkpoint.Load(ctx, "test-consumer", "shard-001")
	require.NoError(t, err)
	assert.Equal(t, "50", lease.Checkpoint)

	leases, err := checkpoint.ListLeases(ctx, "test-consumer")
	require.NoError(t, err)
	assert.Len(t, leases, 1)

	require.NoError(t, checkpoint.Rewind(ctx, "test-consumer", "shard-001"))
	_, err = checkpoint.Load(ctx, "test-consumer", "shard-001")
	assert.Equal(t, ErrLeaseNotFound, err)
}

func TestPostgresCheckpointUnavailable(t *testing.T) {
	datastore := newMockLeaseDatastore()
	datastore.err = errors.New("connection refused")
	checkpoint := NewPostgresCheckpoint(datastore, logger.GetDefaultLogger())

	var unavailable ErrStoreUnavailable
	err := checkpoint.EnsureProvisioned(context.Background())
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, OpProvision, unavailable.Op)

	_, err = checkpoint.Load(context.Background(), "c", "s")
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, OpLoad, unavailable.Op)
	assert.NotErrorIs(t, err, ErrLeaseNotFound)
}
