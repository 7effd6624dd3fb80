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
	"context"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vmware/vmware-go-checkpointer/logger"
)

// MonitoringService publishes checkpointer metrics to Prometheus.
// It might be trick if the service embedding the checkpointer already uses Prometheus, use
// NewMonitoringServiceWithRegistry to keep the metrics apart.
type MonitoringService struct {
	listenAddress string
	namespace     string
	consumerID    string
	region        string
	logger        logger.Logger

	registerer prom.Registerer
	gatherer   prom.Gatherer
	server     *http.Server

	appliedRecords      *prom.CounterVec
	replayedRecords     *prom.CounterVec
	appliedBytes        *prom.CounterVec
	checkpointsCommited *prom.CounterVec
	commitsWithheld     *prom.CounterVec
	storeFailures       *prom.CounterVec
	processBatchTime    *prom.HistogramVec
}

// NewMonitoringService returns a Monitoring service publishing metrics to the default Prometheus registry.
func NewMonitoringService(listenAddress, region string, logger logger.Logger) *MonitoringService {
	return &MonitoringService{
		listenAddress: listenAddress,
		region:        region,
		logger:        logger,
		registerer:    prom.DefaultRegisterer,
		gatherer:      prom.DefaultGatherer,
	}
}

// NewMonitoringServiceWithRegistry returns a Monitoring service registering its collectors in reg.
func NewMonitoringServiceWithRegistry(listenAddress, region string, reg *prom.Registry, logger logger.Logger) *MonitoringService {
	p := NewMonitoringService(listenAddress, region, logger)
	p.registerer = reg
	p.gatherer = reg
	return p
}

func (p *MonitoringService) Init(appName, consumerID string) error {
	p.namespace = appName
	p.consumerID = consumerID

	p.appliedRecords = prom.NewCounterVec(prom.CounterOpts{
		Name: p.namespace + `_applied_records`,
		Help: "Number of records handed to the record handler",
	}, []string{"consumer", "shard"})
	p.replayedRecords = prom.NewCounterVec(prom.CounterOpts{
		Name: p.namespace + `_replayed_records`,
		Help: "Number of records skipped because they were at or below the checkpoint",
	}, []string{"consumer", "shard"})
	p.appliedBytes = prom.NewCounterVec(prom.CounterOpts{
		Name: p.namespace + `_applied_bytes`,
		Help: "Number of payload bytes handed to the record handler",
	}, []string{"consumer", "shard"})
	p.checkpointsCommited = prom.NewCounterVec(prom.CounterOpts{
		Name: p.namespace + `_checkpoints_committed`,
		Help: "Number of checkpoint writes",
	}, []string{"consumer", "shard"})
	p.commitsWithheld = prom.NewCounterVec(prom.CounterOpts{
		Name: p.namespace + `_commits_withheld`,
		Help: "Number of invocations that ended without advancing the checkpoint",
	}, []string{"consumer", "shard"})
	p.storeFailures = prom.NewCounterVec(prom.CounterOpts{
		Name: p.namespace + `_store_failures`,
		Help: "Number of failed lease store operations",
	}, []string{"consumer", "op"})
	p.processBatchTime = prom.NewHistogramVec(prom.HistogramOpts{
		Name: p.namespace + `_process_batch_duration_seconds`,
		Help: "The time taken to process the records of a shard",
	}, []string{"consumer", "shard"})

	metrics := []prom.Collector{
		p.appliedRecords,
		p.replayedRecords,
		p.appliedBytes,
		p.checkpointsCommited,
		p.commitsWithheld,
		p.storeFailures,
		p.processBatchTime,
	}
	for _, metric := range metrics {
		err := p.registerer.Register(metric)
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *MonitoringService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{}))
	return mux
}

func (p *MonitoringService) Start() error {
	p.server = &http.Server{Addr: p.listenAddress, Handler: p.handler()}

	go func() {
		p.logger.Infof("Starting Prometheus listener on %s", p.listenAddress)
		err := p.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			p.logger.Errorf("Error starting Prometheus metrics endpoint. %+v", err)
		}
		p.logger.Infof("Stopped metrics server")
	}()

	return nil
}

func (p *MonitoringService) Shutdown() {
	if p.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.server.Shutdown(ctx); err != nil {
		p.logger.Warnf("Error stopping Prometheus metrics endpoint. %+v", err)
	}
}

func (p *MonitoringService) IncrRecordsApplied(shard string, count int) {
	p.appliedRecords.With(prom.Labels{"shard": shard, "consumer": p.consumerID}).Add(float64(count))
}

func (p *MonitoringService) IncrRecordsReplayed(shard string, count int) {
	p.replayedRecords.With(prom.Labels{"shard": shard, "consumer": p.consumerID}).Add(float64(count))
}

func (p *MonitoringService) IncrBytesApplied(shard string, count int64) {
	p.appliedBytes.With(prom.Labels{"shard": shard, "consumer": p.consumerID}).Add(float64(count))
}

func (p *MonitoringService) CheckpointCommitted(shard string) {
	p.checkpointsCommited.With(prom.Labels{"shard": shard, "consumer": p.consumerID}).Inc()
}

func (p *MonitoringService) CommitWithheld(shard string) {
	p.commitsWithheld.With(prom.Labels{"shard": shard, "consumer": p.consumerID}).Inc()
}

func (p *MonitoringService) StoreFailure(op string) {
	p.storeFailures.With(prom.Labels{"op": op, "consumer": p.consumerID}).Inc()
}

func (p *MonitoringService) RecordProcessBatchTime(shard string, millis float64) {
	p.processBatchTime.With(prom.Labels{"shard": shard, "consumer": p.consumerID}).Observe(millis / 1000)
}
