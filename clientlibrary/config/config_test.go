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
package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	par "github.com/vmware/vmware-go-checkpointer/clientlibrary/partition"
	"github.com/vmware/vmware-go-checkpointer/logger"
)

func TestConfig(t *testing.T) {
	cfg := NewCheckpointerConfig("test-consumer", "", "us-west-2").
		WithMaxRecords(50).
		WithPositionOrdering(par.LexicographicOrdering).
		WithInvocationTimeoutMillis(3000).
		WithDryRunCommit(true).
		WithLogger(logger.GetDefaultLogger())

	assert.Equal(t, "test-consumer", cfg.ConsumerID)
	assert.Equal(t, DefaultTableName, cfg.TableName)
	assert.Equal(t, 50, cfg.MaxRecords)
	assert.Equal(t, par.LexicographicOrdering, cfg.PositionOrdering)
	assert.Equal(t, 3000, cfg.InvocationTimeoutMillis)
	assert.True(t, cfg.DryRunCommit)
	assert.False(t, cfg.RewindBeforeRun)
	assert.False(t, cfg.DebugLogging)
	assert.Equal(t, DefaultOriginField, cfg.OriginField)
	assert.NotNil(t, cfg.MonitoringService)
}

func TestConfigGeneratesConsumerID(t *testing.T) {
	cfg := NewCheckpointerConfig("", "leases", "us-west-2")
	assert.NotEmpty(t, cfg.ConsumerID)
	assert.Equal(t, "leases", cfg.TableName)
}

func TestConfigFailsFast(t *testing.T) {
	assert.Panics(t, func() { NewCheckpointerConfig("test-consumer", "", "") })
	assert.Panics(t, func() { NewCheckpointerConfig("c", "t", "us-west-2").WithMaxRecords(0) })
	assert.Panics(t, func() { NewCheckpointerConfig("c", "t", "us-west-2").WithRedriveBackoffMillis(500, 100) })
	assert.Panics(t, func() { NewCheckpointerConfig("c", "t", "us-west-2").WithPositionOrdering(par.PositionOrdering(9)) })
}

func TestInitialPosition(t *testing.T) {
	pos, ok := ParseInitialPositionInStream("latest")
	assert.True(t, ok)
	assert.Equal(t, LATEST, pos)
	assert.Equal(t, "TRIM_HORIZON", *InitalPositionInStreamToShardIteratorType(DefaultInitialPositionInStream))
}
