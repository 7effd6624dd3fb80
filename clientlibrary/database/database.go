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
package database

import (
	"context"
	"database/sql"

	"github.com/vmware/vmware-go-checkpointer/clientlibrary/database/models"
)

type Datastore interface {
	ServiceName() string
	GetDBStats() sql.DBStats
	PingContext(context.Context) error
	Close() error
}

// LeaseDatastore persists lease rows in a SQL database.
type LeaseDatastore interface {
	Datastore
	CreateLeaseTable(ctx context.Context) error
	// GetLease returns nil and no error when the row does not exist.
	GetLease(ctx context.Context, consumerID, shardID string) (*models.Lease, error)
	SaveLease(ctx context.Context, lease *models.Lease) error
	RemoveLease(ctx context.Context, consumerID, shardID string) error
	GetLeases(ctx context.Context, consumerID string) ([]*models.Lease, error)
}
