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
package metrics

// MonitoringService publishes the per shard activity of a consumer. Implementations must be safe for
// concurrent use because shards of one delivery are processed in parallel.
type MonitoringService interface {
	Init(appName, consumerID string) error
	Start() error
	IncrRecordsApplied(shard string, count int)
	IncrRecordsReplayed(shard string, count int)
	IncrBytesApplied(shard string, count int64)
	CheckpointCommitted(shard string)
	CommitWithheld(shard string)
	StoreFailure(op string)
	RecordProcessBatchTime(shard string, millis float64)
	Shutdown()
}

// NoopMonitoringService implements MonitoringService by does nothing.
type NoopMonitoringService struct{}

func (NoopMonitoringService) Init(appName, consumerID string) error { return nil }
func (NoopMonitoringService) Start() error                          { return nil }
func (NoopMonitoringService) Shutdown()                             {}

func (NoopMonitoringService) IncrRecordsApplied(shard string, count int)          {}
func (NoopMonitoringService) IncrRecordsReplayed(shard string, count int)         {}
func (NoopMonitoringService) IncrBytesApplied(shard string, count int64)          {}
func (NoopMonitoringService) CheckpointCommitted(shard string)                    {}
func (NoopMonitoringService) CommitWithheld(shard string)                         {}
func (NoopMonitoringService) StoreFailure(op string)                              {}
func (NoopMonitoringService) RecordProcessBatchTime(shard string, millis float64) {}
