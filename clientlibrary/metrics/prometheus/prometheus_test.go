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
package prometheus

import (
	"net/http"
	"net/http/httptest"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmware/vmware-go-checkpointer/logger"
)

func TestMonitoringService(t *testing.T) {
	reg := prom.NewRegistry()
	p := NewMonitoringServiceWithRegistry(":0", "us-west-2", reg, logger.GetDefaultLogger())
	require.NoError(t, p.Init("checkpointer", "test-consumer"))

	p.IncrRecordsApplied("shard-001", 25)
	p.IncrRecordsApplied("shard-001", 25)
	p.IncrRecordsReplayed("shard-001", 3)
	p.IncrBytesApplied("shard-001", 1024)
	p.CheckpointCommitted("shard-001")
	p.CommitWithheld("shard-002")
	p.StoreFailure("load")
	p.RecordProcessBatchTime("shard-001", 120)

	labels := prom.Labels{"shard": "shard-001", "consumer": "test-consumer"}
	assert.Equal(t, float64(50), testutil.ToFloat64(p.appliedRecords.With(labels)))
	assert.Equal(t, float64(3), testutil.ToFloat64(p.replayedRecords.With(labels)))
	assert.Equal(t, float64(1024), testutil.ToFloat64(p.appliedBytes.With(labels)))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.checkpointsCommited.With(labels)))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.commitsWithheld.With(prom.Labels{"shard": "shard-002", "consumer": "test-consumer"})))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.storeFailures.With(prom.Labels{"op": "load", "consumer": "test-consumer"})))

	count, err := testutil.GatherAndCount(reg, "checkpointer_process_batch_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMonitoringServiceRegistersOnce(t *testing.T) {
	reg := prom.NewRegistry()
	require.NoError(t, NewMonitoringServiceWithRegistry(":0", "us-west-2", reg, logger.GetDefaultLogger()).Init("checkpointer", "c"))

	err := NewMonitoringServiceWithRegistry(":0", "us-west-2", reg, logger.GetDefaultLogger()).Init("checkpointer", "c")
	assert.Error(t, err)
}

func TestShutdownWithoutStart(t *testing.T) {
	p := NewMonitoringServiceWithRegistry(":0", "us-west-2", prom.NewRegistry(), logger.GetDefaultLogger())
	assert.NotPanics(t, p.Shutdown)
}

func TestMetricsEndpoint(t *testing.T) {
	p := NewMonitoringServiceWithRegistry(":0", "us-west-2", prom.NewRegistry(), logger.GetDefaultLogger())
	require.NoError(t, p.Init("checkpointer", "test-consumer"))
	p.IncrRecordsApplied("shard-001", 7)

	server := httptest.NewServer(p.handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	require.NoError(t, err)

	applied, ok := families["checkpointer_applied_records"]
	require.True(t, ok)
	require.Len(t, applied.GetMetric(), 1)
	assert.Equal(t, float64(7), applied.GetMetric()[0].GetCounter().GetValue())
}
