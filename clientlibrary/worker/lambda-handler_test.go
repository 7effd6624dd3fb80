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
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinesisEvent(shardID string, from, to int) events.KinesisEvent {
	var event events.KinesisEvent
	for i := from; i <= to; i++ {
		seq := fmt.Sprint(i)
		event.Records = append(event.Records, events.KinesisEventRecord{
			EventID:     EventID(shardID, seq),
			EventSource: "aws:kinesis",
			Kinesis: events.KinesisRecord{
				Data:                        []byte(fmt.Sprintf(`{"visitor_site_id": "site-%d", "ts_action": "ts-%d"}`, i%2, i)),
				SequenceNumber:              seq,
				PartitionKey:                "pk",
				ApproximateArrivalTimestamp: events.SecondsEpochTime{Time: time.Unix(1690000000, 0)},
			},
		})
	}
	return event
}

func TestRecordsFromKinesisEvent(t *testing.T) {
	records := recordsFromKinesisEvent(kinesisEvent(testShard, 1, 2))
	require.Len(t, records, 2)
	assert.Equal(t, EventID(testShard, "1"), records[0].EventID)
	assert.Equal(t, testShard, shardOf(records[0]))

	data, err := decodePayload(records[1])
	require.NoError(t, err)
	assert.Equal(t, `{"visitor_site_id": "site-0", "ts_action": "ts-2"}`, string(data))
	assert.Equal(t, int64(1690000000), records[1].ApproximateArrivalTimestamp.Unix())
}

func TestLambdaHandler(t *testing.T) {
	store := newStubCheckpointer()
	handler := newShardHandler()
	h := NewLambdaHandler(NewCheckpointController(newTestConfig(), store, handler))

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "request-1"})
	require.NoError(t, h.Handle(ctx, kinesisEvent(testShard, 1, 20)))
	assert.Equal(t, "20", store.checkpoint(t, testShard))

	// a retried event is acknowledged without applying anything twice
	require.NoError(t, h.Handle(ctx, kinesisEvent(testShard, 1, 20)))
	assert.Equal(t, 20, handler.count(testShard))

	handler.failAt[EventID(testShard, "25")] = true
	err := h.Handle(ctx, kinesisEvent(testShard, 21, 30))
	assert.IsType(t, ErrRecordHandlerFailure{}, err)
	assert.Equal(t, "24", store.checkpoint(t, testShard))
}

func TestLambdaHandlerBatchItemFailures(t *testing.T) {
	const otherShard = "shardId-000000000001"
	store := newStubCheckpointer()
	handler := newShardHandler()
	handler.failAt[EventID(testShard, "4")] = true
	h := NewLambdaHandler(NewCheckpointController(newTestConfig(), store, handler))

	event := kinesisEvent(testShard, 1, 6)
	event.Records = append(event.Records, kinesisEvent(otherShard, 1, 3).Records...)

	response, err := h.HandleWithBatchItemFailures(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, response.BatchItemFailures, 1)
	assert.Equal(t, "4", response.BatchItemFailures[0].ItemIdentifier)
	assert.Equal(t, "3", store.checkpoint(t, testShard))
	assert.Equal(t, "3", store.checkpoint(t, otherShard))

	// nothing applied at all reports the first record after the stored checkpoint
	response, err = h.HandleWithBatchItemFailures(context.Background(), kinesisEvent(testShard, 1, 6))
	require.NoError(t, err)
	require.Len(t, response.BatchItemFailures, 1)
	assert.Equal(t, "4", response.BatchItemFailures[0].ItemIdentifier)

	// success reports no failure
	delete(handler.failAt, EventID(testShard, "4"))
	response, err = h.HandleWithBatchItemFailures(context.Background(), kinesisEvent(testShard, 1, 6))
	require.NoError(t, err)
	assert.Empty(t, response.BatchItemFailures)
	assert.Equal(t, "6", store.checkpoint(t, testShard))
}

func TestLambdaHandlerBatchItemFailuresStoreDown(t *testing.T) {
	store := newStubCheckpointer()
	store.loadErr = assert.AnError
	h := NewLambdaHandler(NewCheckpointController(newTestConfig(), store, newShardHandler()))

	response, err := h.HandleWithBatchItemFailures(context.Background(), kinesisEvent(testShard, 1, 3))
	assert.Error(t, err)
	assert.Empty(t, response.BatchItemFailures)
}
