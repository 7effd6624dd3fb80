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
package worker

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"
	"github.com/jpillora/backoff"

	chk "github.com/vmware/vmware-go-checkpointer/clientlibrary/checkpoint"
	"github.com/vmware/vmware-go-checkpointer/clientlibrary/config"
	kcl "github.com/vmware/vmware-go-checkpointer/clientlibrary/interfaces"
	"github.com/vmware/vmware-go-checkpointer/clientlibrary/utils"
)

// PollingShardConsumer reads one shard with GetRecords and hands every page to the controller. After a failed
// page it backs off and seeks again from the stored checkpoint, so the records applied before the failure are
// not read twice.
type PollingShardConsumer struct {
	shardID    string
	streamName string
	kc         kinesisiface.KinesisAPI
	controller *CheckpointController
	cfg        *config.CheckpointerConfiguration
	stop       <-chan struct{}
}

func (sc *PollingShardConsumer) getStartingPosition(ctx context.Context) (*kinesis.StartingPosition, error) {
	log := sc.cfg.Logger

	lease, err := sc.controller.Checkpointer().Load(ctx, sc.cfg.ConsumerID, sc.shardID)
	if err != nil && !errors.Is(err, chk.ErrLeaseNotFound) {
		return nil, err
	}

	if lease != nil && !lease.IsInitial() {
		log.Debugf("Start shard: %v at checkpoint: %v", sc.shardID, lease.Checkpoint)
		return &kinesis.StartingPosition{
			Type:           aws.String(kinesis.ShardIteratorTypeAfterSequenceNumber),
			SequenceNumber: aws.String(lease.Checkpoint),
		}, nil
	}

	shardIteratorType := config.InitalPositionInStreamToShardIteratorType(sc.cfg.InitialPositionInStream)
	log.Debugf("No checkpoint recorded for shard: %v, starting with: %v", sc.shardID, aws.StringValue(shardIteratorType))

	if sc.cfg.InitialPositionInStream == config.AT_TIMESTAMP {
		return &kinesis.StartingPosition{
			Type:      shardIteratorType,
			Timestamp: sc.cfg.InitialPositionInStreamExtended.Timestamp,
		}, nil
	}

	return &kinesis.StartingPosition{
		Type: shardIteratorType,
	}, nil
}

func (sc *PollingShardConsumer) getShardIterator(ctx context.Context) (*string, error) {
	startPosition, err := sc.getStartingPosition(ctx)
	if err != nil {
		return nil, err
	}
	shardIterArgs := &kinesis.GetShardIteratorInput{
		ShardId:                aws.String(sc.shardID),
		ShardIteratorType:      startPosition.Type,
		StartingSequenceNumber: startPosition.SequenceNumber,
		Timestamp:              startPosition.Timestamp,
		StreamName:             aws.String(sc.streamName),
	}
	iterResp, err := sc.kc.GetShardIteratorWithContext(ctx, shardIterArgs)
	if err != nil {
		return nil, err
	}
	return iterResp.ShardIterator, nil
}

// getRecords consumes the shard until it is closed, the consumer is stopped or a non retryable error occurs.
func (sc *PollingShardConsumer) getRecords(ctx context.Context) error {
	log := sc.cfg.Logger

	redrive := &backoff.Backoff{
		Min:    time.Duration(sc.cfg.RedriveMinBackoffMillis) * time.Millisecond,
		Max:    time.Duration(sc.cfg.RedriveMaxBackoffMillis) * time.Millisecond,
		Factor: 2,
		Jitter: true,
	}
	throttle := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    time.Duration(sc.cfg.RedriveMaxBackoffMillis) * time.Millisecond,
		Factor: 2,
	}

	shardIterator, err := sc.getShardIterator(ctx)
	if err != nil {
		log.Errorf("Unable to get shard iterator for %s: %v", sc.shardID, err)
		return err
	}

	for {
		log.Debugf("Trying to read %d record from iterator: %v", sc.cfg.MaxRecords, aws.StringValue(shardIterator))
		getRecordsArgs := &kinesis.GetRecordsInput{
			Limit:         aws.Int64(int64(sc.cfg.MaxRecords)),
			ShardIterator: shardIterator,
		}
		// Get records from stream and retry as needed
		getResp, err := sc.kc.GetRecordsWithContext(ctx, getRecordsArgs)
		if err != nil {
			switch utils.AWSErrCode(err) {
			case kinesis.ErrCodeProvisionedThroughputExceededException, kinesis.ErrCodeKMSThrottlingException:
				log.Errorf("Error getting records from shard %v: %+v", sc.shardID, err)
				if !sc.sleep(ctx, throttle.Duration()) {
					return nil
				}
				continue
			case kinesis.ErrCodeExpiredIteratorException:
				log.Warnf("Shard iterator expired for shard %v, seeking from checkpoint", sc.shardID)
				if shardIterator, err = sc.getShardIterator(ctx); err != nil {
					return err
				}
				continue
			}
			log.Errorf("Error getting records from Kinesis that cannot be retried: %+v Request: %s", err, getRecordsArgs)
			return err
		}
		// reset the retry count after success
		throttle.Reset()

		if len(getResp.Records) > 0 {
			_, err := sc.controller.Invoke(ctx, sc.toRecords(getResp.Records))
			if err != nil {
				wait := redrive.Duration()
				log.Warnf("Batch on shard %s failed, reading again from checkpoint in %v: %+v", sc.shardID, wait, err)
				if !sc.sleep(ctx, wait) {
					return nil
				}
				if shardIterator, err = sc.getShardIterator(ctx); err != nil {
					log.Errorf("Unable to get shard iterator for %s: %v", sc.shardID, err)
					return err
				}
				continue
			}
			redrive.Reset()
		}

		// The shard has been closed, so no new records can be read from it
		if getResp.NextShardIterator == nil {
			log.Infof("Shard %s closed", sc.shardID)
			return nil
		}
		shardIterator = getResp.NextShardIterator

		// Idle between each read when there is nothing to catch up on.
		if len(getResp.Records) == 0 && aws.Int64Value(getResp.MillisBehindLatest) < int64(sc.cfg.IdleTimeBetweenReadsInMillis) {
			if !sc.sleep(ctx, time.Duration(sc.cfg.IdleTimeBetweenReadsInMillis)*time.Millisecond) {
				return nil
			}
		}

		select {
		case <-sc.stop:
			log.Infof("Stopping consumer of shard %s", sc.shardID)
			return nil
		default:
		}
	}
}

// sleep waits for d and returns false when the consumer was stopped in the meantime.
func (sc *PollingShardConsumer) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-sc.stop:
		return false
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (sc *PollingShardConsumer) toRecords(records []*kinesis.Record) []*kcl.Record {
	out := make([]*kcl.Record, 0, len(records))
	for _, r := range records {
		out = append(out, &kcl.Record{
			EventID:                     EventID(sc.shardID, aws.StringValue(r.SequenceNumber)),
			ShardID:                     sc.shardID,
			PayloadBase64:               base64.StdEncoding.EncodeToString(r.Data),
			ApproximateArrivalTimestamp: r.ApproximateArrivalTimestamp,
		})
	}
	return out
}
