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
	"fmt"

	par "github.com/vmware/vmware-go-checkpointer/clientlibrary/partition"
)

// Operations reported in ErrStoreUnavailable.
const (
	OpProvision = "provision"
	OpLoad      = "load"
	OpCommit    = "commit"
	OpRewind    = "rewind"
	OpList      = "list"
)

// ErrLeaseNotFound is returned by Load when the consumer has never committed on the shard.
var ErrLeaseNotFound = errors.New("LeaseNotFoundForShard")

// ErrStoreUnavailable is returned when the lease store cannot serve an operation. The current invocation
// cannot continue safely.
type ErrStoreUnavailable struct {
	Op  string
	Err error
}

func (e ErrStoreUnavailable) Error() string {
	return fmt.Sprintf("lease store unavailable on %s: %v", e.Op, e.Err)
}

func (e ErrStoreUnavailable) Unwrap() error {
	return e.Err
}

func storeUnavailable(op string, err error) error {
	return ErrStoreUnavailable{Op: op, Err: err}
}

// Checkpointer persists one lease per (consumer, shard). Implementations must allow concurrent calls on
// different shards without locking across keys, and must not cache rows between calls.
type Checkpointer interface {
	// EnsureProvisioned creates the backing table if absent and waits until it is usable. It is called once
	// at startup, never per batch.
	EnsureProvisioned(ctx context.Context) error

	// Load returns the committed lease, or ErrLeaseNotFound.
	Load(ctx context.Context, consumerID, shardID string) (*par.Lease, error)

	// Commit upserts the whole lease row.
	Commit(ctx context.Context, lease *par.Lease) error

	// Rewind deletes the lease row so the shard restarts from the initial checkpoint.
	Rewind(ctx context.Context, consumerID, shardID string) error

	// ListLeases returns every lease of the consumer.
	ListLeases(ctx context.Context, consumerID string) ([]*par.Lease, error)
}
