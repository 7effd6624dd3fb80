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

// Package postgres stores leases in a PostgreSQL table through the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"

	"github.com/vmware/vmware-go-checkpointer/clientlibrary/database"
	"github.com/vmware/vmware-go-checkpointer/clientlibrary/database/models"
)

const serviceName = "postgres"

type Config struct {
	DSN       string
	TableName string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// LeaseStore implements database.LeaseDatastore. The table is keyed by (consumer, shard).
type LeaseStore struct {
	db    *sql.DB
	table string
}

var _ database.LeaseDatastore = (*LeaseStore)(nil)

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, cfg Config) (*LeaseStore, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	return New(db, cfg.TableName), nil
}

// New wraps an open database handle.
func New(db *sql.DB, tableName string) *LeaseStore {
	return &LeaseStore{
		db:    db,
		table: pgx.Identifier{tableName}.Sanitize(),
	}
}

func (s *LeaseStore) ServiceName() string {
	return serviceName
}

func (s *LeaseStore) GetDBStats() sql.DBStats {
	return s.db.Stats()
}

func (s *LeaseStore) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *LeaseStore) Close() error {
	return s.db.Close()
}

func (s *LeaseStore) CreateLeaseTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			consumer   TEXT NOT NULL,
			shard      TEXT NOT NULL,
			checkpoint TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (consumer, shard)
		)`, s.table)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return errors.Wrapf(err, "create table %s", s.table)
	}
	return nil
}

func (s *LeaseStore) GetLease(ctx context.Context, consumerID, shardID string) (*models.Lease, error) {
	query := fmt.Sprintf(`
		SELECT consumer, shard, checkpoint, updated_at
		FROM %s
		WHERE consumer = $1 AND shard = $2`, s.table)

	var lease models.Lease
	err := s.db.QueryRowContext(ctx, query, consumerID, shardID).Scan(
		&lease.ConsumerID,
		&lease.ShardID,
		&lease.Checkpoint,
		&lease.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "load lease")
	}
	return &lease, nil
}

func (s *LeaseStore) SaveLease(ctx context.Context, lease *models.Lease) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (consumer, shard, checkpoint, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (consumer, shard)
		DO UPDATE SET
			checkpoint = EXCLUDED.checkpoint,
			updated_at = EXCLUDED.updated_at`, s.table)

	updatedAt := lease.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query, lease.ConsumerID, lease.ShardID, lease.Checkpoint, updatedAt)
	if err != nil {
		return errors.Wrap(err, "save lease")
	}
	return nil
}

func (s *LeaseStore) RemoveLease(ctx context.Context, consumerID, shardID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE consumer = $1 AND shard = $2`, s.table)

	if _, err := s.db.ExecContext(ctx, query, consumerID, shardID); err != nil {
		return errors.Wrap(err, "delete lease")
	}
	return nil
}

func (s *LeaseStore) GetLeases(ctx context.Context, consumerID string) ([]*models.Lease, error) {
	query := fmt.Sprintf(`
		SELECT consumer, shard, checkpoint, updated_at
		FROM %s
		WHERE consumer = $1
		ORDER BY shard`, s.table)

	rows, err := s.db.QueryContext(ctx, query, consumerID)
	if err != nil {
		return nil, errors.Wrap(err, "list leases")
	}
	defer rows.Close()

	var leases []*models.Lease
	for rows.Next() {
		var lease models.Lease
		if err := rows.Scan(&lease.ConsumerID, &lease.ShardID, &lease.Checkpoint, &lease.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan lease")
		}
		leases = append(leases, &lease)
	}
	return leases, errors.Wrap(rows.Err(), "list leases")
}
