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
	"sort"
	"sync"

	par "github.com/vmware/vmware-go-checkpointer/clientlibrary/partition"
)

type memoryKey struct {
	consumerID string
	shardID    string
}

// MemoryCheckpoint keeps leases in process memory. Nothing survives a restart; it backs tests and local
// dry runs.
type MemoryCheckpoint struct {
	leases sync.Map
}

func NewMemoryCheckpoint() *MemoryCheckpoint {
	return &MemoryCheckpoint{}
}

func (m *MemoryCheckpoint) EnsureProvisioned(ctx context.Context) error {
	return nil
}

func (m *MemoryCheckpoint) Load(ctx context.Context, consumerID, shardID string) (*par.Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeUnavailable(OpLoad, err)
	}
	v, ok := m.leases.Load(memoryKey{consumerID, shardID})
	if !ok {
		return nil, ErrLeaseNotFound
	}
	return v.(*par.Lease).Copy(), nil
}

func (m *MemoryCheckpoint) Commit(ctx context.Context, lease *par.Lease) error {
	if err := ctx.Err(); err != nil {
		return storeUnavailable(OpCommit, err)
	}
	m.leases.Store(memoryKey{lease.ConsumerID, lease.ShardID}, lease.Copy())
	return nil
}

func (m *MemoryCheckpoint) Rewind(ctx context.Context, consumerID, shardID string) error {
	if err := ctx.Err(); err != nil {
		return storeUnavailable(OpRewind, err)
	}
	m.leases.Delete(memoryKey{consumerID, shardID})
	return nil
}

// ListLeases returns the consumer's leases sorted by shard.
func (m *MemoryCheckpoint) ListLeases(ctx context.Context, consumerID string) ([]*par.Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeUnavailable(OpList, err)
	}
	var leases []*par.Lease
	m.leases.Range(func(k, v interface{}) bool {
		if k.(memoryKey).consumerID == consumerID {
			leases = append(leases, v.(*par.Lease).Copy())
		}
		return true
	})
	sort.Slice(leases, func(i, j int) bool {
		return leases[i].ShardID < leases[j].ShardID
	})
	return leases, nil
}
