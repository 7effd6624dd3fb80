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
package partition

import "fmt"

// InitialCheckpoint is the checkpoint of a (consumer, shard) pair that has never committed.
const InitialCheckpoint = "0"

// Lease records how far a consumer has committed progress on a shard. Everything up to and
// including Checkpoint has been applied.
type Lease struct {
	ConsumerID string
	ShardID    string
	Checkpoint string
}

// NewInitialLease returns the lease substituted when the store has no row for the pair.
func NewInitialLease(consumerID, shardID string) *Lease {
	return &Lease{
		ConsumerID: consumerID,
		ShardID:    shardID,
		Checkpoint: InitialCheckpoint,
	}
}

// Copy returns an independent copy of the lease.
func (l *Lease) Copy() *Lease {
	c := *l
	return &c
}

// WithCheckpoint returns a copy of the lease advanced to checkpoint.
func (l *Lease) WithCheckpoint(checkpoint string) *Lease {
	c := l.Copy()
	c.Checkpoint = checkpoint
	return c
}

// IsInitial reports whether the lease is still at the initial checkpoint.
func (l *Lease) IsInitial() bool {
	return l.Checkpoint == InitialCheckpoint
}

func (l *Lease) String() string {
	return fmt.Sprintf("%s/%s@%s", l.ConsumerID, l.ShardID, l.Checkpoint)
}
