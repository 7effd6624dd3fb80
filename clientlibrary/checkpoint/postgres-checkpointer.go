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

	"github.com/vmware/vmware-go-checkpointer/clientlibrary/database"
	"github.com/vmware/vmware-go-checkpointer/clientlibrary/database/models"
	par "github.com/vmware/vmware-go-checkpointer/clientlibrary/partition"
	"github.com/vmware/vmware-go-checkpointer/logger"
)

// PostgresCheckpoint implements the Checkpointer interface on top of a SQL lease datastore.
type PostgresCheckpoint struct {
	log       logger.Logger
	Datastore database.LeaseDatastore
}

func NewPostgresCheckpoint(datastore database.LeaseDatastore, log logger.Logger) *PostgresCheckpoint {
	return &PostgresCheckpoint{
		log:       log,
		Datastore: datastore,
	}
}

func (c *PostgresCheckpoint) EnsureProvisioned(ctx context.Context) error {
	if err := c.Datastore.PingContext(ctx); err != nil {
		return storeUnavailable(OpProvision, err)
	}
	if err := c.Datastore.CreateLeaseTable(ctx); err != nil {
		return storeUnavailable(OpProvision, err)
	}
	c.log.Infof("Lease table ready on %s", c.Datastore.ServiceName())
	return nil
}

func (c *PostgresCheckpoint) Load(ctx context.Context, consumerID, shardID string) (*par.Lease, error) {
	row, err := c.Datastore.GetLease(ctx, consumerID, shardID)
	if err != nil {
		return nil, storeUnavailable(OpLoad, err)
	}
	if row == nil {
		return nil, ErrLeaseNotFound
	}
	return toLease(row), nil
}

func (c *PostgresCheckpoint) Commit(ctx context.Context, lease *par.Lease) error {
	err := c.Datastore.SaveLease(ctx, &models.Lease{
		ConsumerID: lease.ConsumerID,
		ShardID:    lease.ShardID,
		Checkpoint: lease.Checkpoint,
	})
	if err != nil {
		return storeUnavailable(OpCommit, err)
	}
	return nil
}

func (c *PostgresCheckpoint) Rewind(ctx context.Context, consumerID, shardID string) error {
	if err := c.Datastore.RemoveLease(ctx, consumerID, shardID); err != nil {
		return storeUnavailable(OpRewind, err)
	}
	c.log.Infof("Lease of consumer %s on shard %s has been removed", consumerID, shardID)
	return nil
}

func (c *PostgresCheckpoint) ListLeases(ctx context.Context, consumerID string) ([]*par.Lease, error) {
	rows, err := c.Datastore.GetLeases(ctx, consumerID)
	if err != nil {
		return nil, storeUnavailable(OpList, err)
	}

	leases := make([]*par.Lease, 0, len(rows))
	for _, row := range rows {
		leases = append(leases, toLease(row))
	}
	return leases, nil
}

func toLease(row *models.Lease) *par.Lease {
	return &par.Lease{
		ConsumerID: row.ConsumerID,
		ShardID:    row.ShardID,
		Checkpoint: row.Checkpoint,
	}
}
