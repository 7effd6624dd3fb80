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
package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	chk "github.com/vmware/vmware-go-checkpointer/clientlibrary/checkpoint"
	"github.com/vmware/vmware-go-checkpointer/clientlibrary/metrics"
	par "github.com/vmware/vmware-go-checkpointer/clientlibrary/partition"
	"github.com/vmware/vmware-go-checkpointer/logger"
)

func newTestContext(t *testing.T, args ...string) *cli.Context {
	set := flag.NewFlagSet("checkpointer", flag.ContinueOnError)
	for _, f := range globalFlags() {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(&cli.App{Name: "checkpointer"}, set, nil)
}

func TestRuntimeArgs(t *testing.T) {
	env := func(values map[string]string) func(string) string {
		return func(key string) string { return values[key] }
	}

	inLambda := env(map[string]string{lambdaRuntimeAPIEnv: "127.0.0.1:9001"})
	assert.Equal(t, []string{"bootstrap", "lambda"}, runtimeArgs([]string{"bootstrap"}, inLambda))
	assert.Equal(t, []string{"bootstrap", "leases"}, runtimeArgs([]string{"bootstrap", "leases"}, inLambda))

	assert.Equal(t, []string{"checkpointer"}, runtimeArgs([]string{"checkpointer"}, env(nil)))
}

func TestNewCheckpointer(t *testing.T) {
	c := newTestContext(t, "--store", "memory", "--consumer", "test-consumer")
	s, err := newStack(c, false)
	require.NoError(t, err)
	assert.IsType(t, &chk.MemoryCheckpoint{}, s.store)
	assert.Equal(t, "test-consumer", s.cfg.ConsumerID)
	assert.Equal(t, par.NumericOrdering, s.cfg.PositionOrdering)
	assert.Equal(t, metrics.NoopMonitoringService{}, s.cfg.MonitoringService)

	c = newTestContext(t, "--store", "dynamodb")
	s, err = newStack(c, false)
	require.NoError(t, err)
	assert.IsType(t, &chk.DynamoCheckpoint{}, s.store)

	c = newTestContext(t, "--store", "redis", "--table", "leases")
	s, err = newStack(c, false)
	require.NoError(t, err)
	assert.IsType(t, &chk.RedisCheckpoint{}, s.store)

	c = newTestContext(t, "--store", "cassandra")
	_, err = newStack(c, false)
	assert.EqualError(t, err, `unknown lease store "cassandra"`)
}

func TestNewStackOptions(t *testing.T) {
	c := newTestContext(t, "--store", "memory", "--ordering", "lexicographic", "--dry-run",
		"--rewind-before-run", "--debug", "--max-concurrent-shards", "2")
	s, err := newStack(c, true)
	require.NoError(t, err)
	assert.Equal(t, par.LexicographicOrdering, s.cfg.PositionOrdering)
	assert.True(t, s.cfg.DryRunCommit)
	assert.True(t, s.cfg.RewindBeforeRun)
	assert.True(t, s.cfg.DebugLogging)
	assert.Equal(t, 2, s.cfg.MaxConcurrentShards)

	c = newTestContext(t, "--store", "memory", "--ordering", "random")
	_, err = newStack(c, false)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	for _, backend := range []string{"logrus", "zap", "zerolog", "apex"} {
		t.Run(backend, func(t *testing.T) {
			log, err := newLogger(newTestContext(t, "--log-backend", backend, "--log-json"))
			require.NoError(t, err)
			log.WithFields(logger.Fields{"backend": backend}).Debugf("selected")
		})
	}

	_, err := newLogger(newTestContext(t, "--log-backend", "glog"))
	assert.EqualError(t, err, `unknown log backend "glog"`)
}

func TestNewMonitoringService(t *testing.T) {
	log := logger.GetDefaultLogger()

	mService, err := newMonitoringService(newTestContext(t), log)
	require.NoError(t, err)
	assert.Equal(t, metrics.NoopMonitoringService{}, mService)

	mService, err = newMonitoringService(newTestContext(t, "--metrics", "prometheus", "--metrics-addr", ":0"), log)
	require.NoError(t, err)
	assert.NotNil(t, mService)

	mService, err = newMonitoringService(newTestContext(t, "--metrics", "cloudwatch"), log)
	require.NoError(t, err)
	assert.NotNil(t, mService)

	_, err = newMonitoringService(newTestContext(t, "--metrics", "statsd"), log)
	assert.EqualError(t, err, `unknown metrics backend "statsd"`)
}
