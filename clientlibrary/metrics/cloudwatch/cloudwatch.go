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
package cloudwatch

import (
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	cwatch "github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"

	"github.com/vmware/vmware-go-checkpointer/logger"
)

// DefaultResolutionSec is the flush period used when none is configured.
const DefaultResolutionSec = 60

// MonitoringService buffers metrics per shard and periodically publishes them to CloudWatch.
type MonitoringService struct {
	Namespace  string
	ConsumerID string
	Region     string
	Creds      *credentials.Credentials

	// What granularity we should send metrics to CW at. Note setting this to 1 will cost quite a bit of money
	ResolutionSec int

	logger logger.Logger
	svc    cloudwatchiface.CloudWatchAPI

	mu           sync.Mutex
	shardMetrics map[string]*cloudWatchMetrics
	storeMetrics map[string]int64

	stop    chan struct{}
	waitGrp sync.WaitGroup
}

type cloudWatchMetrics struct {
	appliedRecords      int64
	replayedRecords     int64
	appliedBytes        int64
	checkpointsCommited int64
	commitsWithheld     int64
	processBatchTime    []float64
}

// NewMonitoringService returns a MonitoringService that creates its own CloudWatch client on Init.
func NewMonitoringService(region string, creds *credentials.Credentials, resolutionSec int, logger logger.Logger) *MonitoringService {
	return &MonitoringService{
		Region:        region,
		Creds:         creds,
		ResolutionSec: resolutionSec,
		logger:        logger,
	}
}

// NewMonitoringServiceWithClient returns a MonitoringService publishing through svc.
func NewMonitoringServiceWithClient(svc cloudwatchiface.CloudWatchAPI, resolutionSec int, logger logger.Logger) *MonitoringService {
	return &MonitoringService{
		ResolutionSec: resolutionSec,
		logger:        logger,
		svc:           svc,
	}
}

func (cw *MonitoringService) Init(appName, consumerID string) error {
	cw.Namespace = appName
	cw.ConsumerID = consumerID

	if cw.ResolutionSec <= 0 {
		cw.ResolutionSec = DefaultResolutionSec
	}
	cw.shardMetrics = make(map[string]*cloudWatchMetrics)
	cw.storeMetrics = make(map[string]int64)
	cw.stop = make(chan struct{})

	if cw.svc != nil {
		return nil
	}

	s, err := session.NewSession(&aws.Config{
		Region:      aws.String(cw.Region),
		Credentials: cw.Creds,
	})
	if err != nil {
		cw.logger.Errorf("Failed in getting CloudWatch session for metrics publishing: %+v", err)
		return err
	}
	cw.svc = cwatch.New(s)
	return nil
}

func (cw *MonitoringService) Start() error {
	cw.waitGrp.Add(1)
	go cw.flushDaemon()
	return nil
}

// Shutdown stops the flush daemon after a last flush.
func (cw *MonitoringService) Shutdown() {
	if cw.stop == nil {
		return
	}
	close(cw.stop)
	cw.waitGrp.Wait()
}

func (cw *MonitoringService) flushDaemon() {
	defer cw.waitGrp.Done()

	ticker := time.NewTicker(time.Duration(cw.ResolutionSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-cw.stop:
			cw.logger.Infof("Flushing CloudWatch metrics before shutdown")
			if err := cw.flush(); err != nil {
				cw.logger.Errorf("Error sending metrics to CloudWatch. %+v", err)
			}
			return
		case <-ticker.C:
			if err := cw.flush(); err != nil {
				cw.logger.Errorf("Error sending metrics to CloudWatch. %+v", err)
			}
		}
	}
}

// flush publishes and resets every buffered metric. Buffers of a failed PutMetricData call are kept for the
// next flush.
func (cw *MonitoringService) flush() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	metricTimestamp := time.Now()
	for shard, metric := range cw.shardMetrics {
		dimensions := []*cwatch.Dimension{
			{
				Name:  aws.String("Shard"),
				Value: aws.String(shard),
			},
			{
				Name:  aws.String("ConsumerID"),
				Value: aws.String(cw.ConsumerID),
			},
		}

		data := []*cwatch.MetricDatum{
			countDatum(dimensions, "RecordsApplied", "Count", metric.appliedRecords, metricTimestamp),
			countDatum(dimensions, "RecordsReplayed", "Count", metric.replayedRecords, metricTimestamp),
			countDatum(dimensions, "DataBytesApplied", "Bytes", metric.appliedBytes, metricTimestamp),
			countDatum(dimensions, "CheckpointCommitted", "Count", metric.checkpointsCommited, metricTimestamp),
			countDatum(dimensions, "CommitWithheld", "Count", metric.commitsWithheld, metricTimestamp),
		}
		if len(metric.processBatchTime) > 0 {
			data = append(data, &cwatch.MetricDatum{
				Dimensions: dimensions,
				MetricName: aws.String("ProcessBatch.Time"),
				Unit:       aws.String("Milliseconds"),
				Timestamp:  &metricTimestamp,
				StatisticValues: &cwatch.StatisticSet{
					SampleCount: aws.Float64(float64(len(metric.processBatchTime))),
					Sum:         sumFloat64(metric.processBatchTime),
					Maximum:     maxFloat64(metric.processBatchTime),
					Minimum:     minFloat64(metric.processBatchTime),
				},
			})
		}

		if err := cw.putMetricData(data); err != nil {
			return err
		}
		delete(cw.shardMetrics, shard)
	}

	for op, count := range cw.storeMetrics {
		dimensions := []*cwatch.Dimension{
			{
				Name:  aws.String("Operation"),
				Value: aws.String(op),
			},
			{
				Name:  aws.String("ConsumerID"),
				Value: aws.String(cw.ConsumerID),
			},
		}
		if err := cw.putMetricData([]*cwatch.MetricDatum{
			countDatum(dimensions, "StoreFailure", "Count", count, metricTimestamp),
		}); err != nil {
			return err
		}
		delete(cw.storeMetrics, op)
	}
	return nil
}

func (cw *MonitoringService) putMetricData(data []*cwatch.MetricDatum) error {
	_, err := cw.svc.PutMetricData(&cwatch.PutMetricDataInput{
		Namespace:  aws.String(cw.Namespace),
		MetricData: data,
	})
	return err
}

func countDatum(dimensions []*cwatch.Dimension, name, unit string, value int64, ts time.Time) *cwatch.MetricDatum {
	return &cwatch.MetricDatum{
		Dimensions: dimensions,
		MetricName: aws.String(name),
		Unit:       aws.String(unit),
		Timestamp:  &ts,
		Value:      aws.Float64(float64(value)),
	}
}

// shard returns the buffer of the shard. The caller holds cw.mu.
func (cw *MonitoringService) shard(shard string) *cloudWatchMetrics {
	m, ok := cw.shardMetrics[shard]
	if !ok {
		m = &cloudWatchMetrics{}
		cw.shardMetrics[shard] = m
	}
	return m
}

func (cw *MonitoringService) IncrRecordsApplied(shard string, count int) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.shard(shard).appliedRecords += int64(count)
}

func (cw *MonitoringService) IncrRecordsReplayed(shard string, count int) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.shard(shard).replayedRecords += int64(count)
}

func (cw *MonitoringService) IncrBytesApplied(shard string, count int64) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.shard(shard).appliedBytes += count
}

func (cw *MonitoringService) CheckpointCommitted(shard string) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.shard(shard).checkpointsCommited++
}

func (cw *MonitoringService) CommitWithheld(shard string) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.shard(shard).commitsWithheld++
}

func (cw *MonitoringService) StoreFailure(op string) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.storeMetrics[op]++
}

func (cw *MonitoringService) RecordProcessBatchTime(shard string, millis float64) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	m := cw.shard(shard)
	m.processBatchTime = append(m.processBatchTime, millis)
}

func sumFloat64(slice []float64) *float64 {
	sum := float64(0)
	for _, num := range slice {
		sum += num
	}
	return &sum
}

func maxFloat64(slice []float64) *float64 {
	if len(slice) < 1 {
		return aws.Float64(0)
	}
	max := slice[0]
	for _, num := range slice {
		if num > max {
			max = num
		}
	}
	return &max
}

func minFloat64(slice []float64) *float64 {
	if len(slice) < 1 {
		return aws.Float64(0)
	}
	min := slice[0]
	for _, num := range slice {
		if num < min {
			min = num
		}
	}
	return &min
}
