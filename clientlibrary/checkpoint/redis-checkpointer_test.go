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
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	par "github.com/vmware/vmware-go-checkpointer/clientlibrary/partition"
	"github.com/vmware/vmware-go-checkpointer/clientlibrary/utils"
)

func TestRedisCheckpoint(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	store := NewRedisCheckpointWithAddr(addr, "checkpointer-test:")
	defer store.Close()
	ctx := context.Background()
	consumerID := utils.MustNewUUID()

	require.NoError(t, store.EnsureProvisioned(ctx))

	_, err := store.Load(ctx, consumerID, "shard-001")
	assert.Equal(t, ErrLeaseNotFound, err)

	require.NoError(t, store.Commit(ctx, &par.Lease{ConsumerID: consumerID, ShardID: "shard-001", Checkpoint: "50"}))
	require.NoError(t, store.Commit(ctx, &par.Lease{ConsumerID: consumerID, ShardID: "shard-002", Checkpoint: "7"}))

	lease, err := store.Load(ctx, consumerID, "shard-001")
	require.NoError(t, err)
	assert.Equal(t, "50", lease.Checkpoint)

	leases, err := store.ListLeases(ctx, consumerID)
	require.NoError(t, err)
	assert.Len(t, leases, 2)

	require.NoError(t, store.Rewind(ctx, consumerID, "shard-001"))
	require.NoError(t, store.Rewind(ctx, consumerID, "shard-002"))
	_, err = store.Load(ctx, consumerID, "shard-001")
	assert.Equal(t, ErrLeaseNotFound, err)
}

func TestRedisCheckpointUnreachable(t *testing.T) {
	// nothing listens on the discard port
	store := NewRedisCheckpointWithAddr("127.0.0.1:9", "")
	defer store.Close()

	_, err := store.Load(context.Background(), "c", "s")
	var unavailable ErrStoreUnavailable
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, OpLoad, unavailable.Op)
}
