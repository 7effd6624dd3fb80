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
package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker(t *testing.T) {
	const otherShard = "shardId-000000000001"
	kc := newMockKinesis()
	kc.addShard(testShard, 10)
	kc.addShard(otherShard, 7)
	store := newStubCheckpointer()
	handler := newShardHandler()

	cfg := newPollingConfig().WithShardSyncIntervalMillis(50)
	worker := NewWorker(handler, cfg).WithKinesis(kc).WithCheckpointer(store)
	require.NoError(t, worker.Start())
	defer worker.Shutdown()

	assert.Eventually(t, func() bool {
		return store.checkpoint(t, testShard) == "10" && store.checkpoint(t, otherShard) == "7"
	}, 5*time.Second, 10*time.Millisecond)

	leases, err := worker.Controller().Leases(context.Background())
	require.NoError(t, err)
	assert.Len(t, leases, 2)

	// closed shards are not read again by later shard syncs
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 10, handler.count(testShard))
	assert.Equal(t, 7, handler.count(otherShard))
}

func TestWorkerRequiresStream(t *testing.T) {
	cfg := newTestConfig()
	worker := NewWorker(newShardHandler(), cfg).WithKinesis(newMockKinesis()).WithCheckpointer(newStubCheckpointer())
	assert.Error(t, worker.Start())

	// nothing to shut down
	worker.Shutdown()
}

func TestWorkerGetShardIDs(t *testing.T) {
	kc := newMockKinesis()
	kc.addShard("shardId-000000000002", 1)
	kc.addShard("shardId-000000000000", 1)
	kc.addShard("shardId-000000000001", 1)

	worker := NewWorker(newShardHandler(), newPollingConfig()).WithKinesis(kc)
	shardIDs, err := worker.getShardIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"shardId-000000000000", "shardId-000000000001", "shardId-000000000002"}, shardIDs)
}
