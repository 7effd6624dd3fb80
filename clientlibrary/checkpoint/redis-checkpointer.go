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

	"github.com/pkg/errors"
	redis "gopkg.in/redis.v5"

	par "github.com/vmware/vmware-go-checkpointer/clientlibrary/partition"
)

// DefaultRedisKeyPrefix is prepended to the consumer id to build the hash holding its leases.
const DefaultRedisKeyPrefix = "checkpointer:"

// RedisCheckpoint implements the Checkpointer interface using one Redis hash per consumer. The hash field is
// the shard id and the value its checkpoint.
type RedisCheckpoint struct {
	client    *redis.Client
	KeyPrefix string
}

func NewRedisCheckpoint(client *redis.Client, keyPrefix string) *RedisCheckpoint {
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	return &RedisCheckpoint{
		client:    client,
		KeyPrefix: keyPrefix,
	}
}

// NewRedisCheckpointWithAddr connects to the Redis server at addr.
func NewRedisCheckpointWithAddr(addr, keyPrefix string) *RedisCheckpoint {
	return NewRedisCheckpoint(redis.NewClient(&redis.Options{Addr: addr}), keyPrefix)
}

func (c *RedisCheckpoint) key(consumerID string) string {
	return c.KeyPrefix + consumerID
}

// EnsureProvisioned only checks that the server answers; hashes are created on first write.
func (c *RedisCheckpoint) EnsureProvisioned(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return storeUnavailable(OpProvision, err)
	}
	if err := c.client.Ping().Err(); err != nil {
		return storeUnavailable(OpProvision, errors.Wrap(err, "ping redis"))
	}
	return nil
}

func (c *RedisCheckpoint) Load(ctx context.Context, consumerID, shardID string) (*par.Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeUnavailable(OpLoad, err)
	}

	checkpoint, err := c.client.HGet(c.key(consumerID), shardID).Result()
	if err == redis.Nil {
		return nil, ErrLeaseNotFound
	}
	if err != nil {
		return nil, storeUnavailable(OpLoad, errors.Wrapf(err, "hget %s %s", c.key(consumerID), shardID))
	}

	return &par.Lease{ConsumerID: consumerID, ShardID: shardID, Checkpoint: checkpoint}, nil
}

func (c *RedisCheckpoint) Commit(ctx context.Context, lease *par.Lease) error {
	if err := ctx.Err(); err != nil {
		return storeUnavailable(OpCommit, err)
	}

	err := c.client.HSet(c.key(lease.ConsumerID), lease.ShardID, lease.Checkpoint).Err()
	if err != nil {
		return storeUnavailable(OpCommit, errors.Wrapf(err, "hset %s", lease))
	}
	return nil
}

func (c *RedisCheckpoint) Rewind(ctx context.Context, consumerID, shardID string) error {
	if err := ctx.Err(); err != nil {
		return storeUnavailable(OpRewind, err)
	}

	if err := c.client.HDel(c.key(consumerID), shardID).Err(); err != nil {
		return storeUnavailable(OpRewind, errors.Wrapf(err, "hdel %s %s", c.key(consumerID), shardID))
	}
	return nil
}

func (c *RedisCheckpoint) ListLeases(ctx context.Context, consumerID string) ([]*par.Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeUnavailable(OpList, err)
	}

	fields, err := c.client.HGetAll(c.key(consumerID)).Result()
	if err != nil {
		return nil, storeUnavailable(OpList, errors.Wrapf(err, "hgetall %s", c.key(consumerID)))
	}

	leases := make([]*par.Lease, 0, len(fields))
	for shardID, checkpoint := range fields {
		leases = append(leases, &par.Lease{ConsumerID: consumerID, ShardID: shardID, Checkpoint: checkpoint})
	}
	sort.Slice(leases, func(i, j int) bool {
		return leases[i].ShardID < leases[j].ShardID
	})
	return leases, nil
}

// Close releases the client connections.
func (c *RedisCheckpoint) Close() error {
	return c.client.Close()
}
