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

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"

	kcl "github.com/vmware/vmware-go-checkpointer/clientlibrary/interfaces"
)

// LambdaHandler feeds Kinesis events delivered to a Lambda function through a CheckpointController.
// Lambda invokes one function per shard, so an event normally holds a single shard.
type LambdaHandler struct {
	controller *CheckpointController
}

func NewLambdaHandler(controller *CheckpointController) *LambdaHandler {
	return &LambdaHandler{controller: controller}
}

// Handle processes the event. A returned error makes Lambda retry the whole event; the progress committed
// before the failure makes the retry skip what was already applied.
func (h *LambdaHandler) Handle(ctx context.Context, event events.KinesisEvent) error {
	_, err := h.controller.Invoke(h.context(ctx), recordsFromKinesisEvent(event))
	return err
}

// HandleWithBatchItemFailures processes the event and reports, per failed shard, the first record that was
// not applied. It is meant for event source mappings with ReportBatchItemFailures enabled.
func (h *LambdaHandler) HandleWithBatchItemFailures(ctx context.Context, event events.KinesisEvent) (events.KinesisEventResponse, error) {
	records := recordsFromKinesisEvent(event)
	result, err := h.controller.Invoke(h.context(ctx), records)
	if err == nil {
		return events.KinesisEventResponse{}, nil
	}

	response := events.KinesisEventResponse{}
	for _, shard := range result.Shards {
		if shard.Err == nil {
			continue
		}
		// nothing can be told about a shard whose lease is unknown
		if shard.State == LoadFailed || shard.State == CommitFailed {
			return events.KinesisEventResponse{}, err
		}

		checkpoint := shard.CommittedCheckpoint
		if checkpoint == "" {
			checkpoint = shard.PreviousCheckpoint
		}
		if seq := h.firstUnapplied(event, shard.ShardID, checkpoint); seq != "" {
			response.BatchItemFailures = append(response.BatchItemFailures, events.KinesisBatchItemFailure{
				ItemIdentifier: seq,
			})
		}
	}
	return response, nil
}

// Start runs the handler in the Lambda runtime. It does not return.
func (h *LambdaHandler) Start() {
	lambda.Start(h.Handle)
}

func (h *LambdaHandler) context(ctx context.Context) context.Context {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return WithInvocationID(ctx, lc.AwsRequestID)
	}
	return ctx
}

func (h *LambdaHandler) firstUnapplied(event events.KinesisEvent, shardID, checkpoint string) string {
	ordering := h.controller.cfg.PositionOrdering
	for _, r := range event.Records {
		recordShard, position, err := ParseIdentity(r.EventID)
		if err != nil {
			if shardOf(&kcl.Record{EventID: r.EventID}) == shardID {
				return r.Kinesis.SequenceNumber
			}
			continue
		}
		if recordShard != shardID {
			continue
		}
		replay, err := ordering.IsReplay(position, checkpoint)
		if err != nil || !replay {
			return r.Kinesis.SequenceNumber
		}
	}
	return ""
}

func recordsFromKinesisEvent(event events.KinesisEvent) []*kcl.Record {
	records := make([]*kcl.Record, 0, len(event.Records))
	for _, r := range event.Records {
		arrival := r.Kinesis.ApproximateArrivalTimestamp.Time
		records = append(records, &kcl.Record{
			EventID:                     r.EventID,
			PayloadBase64:               base64.StdEncoding.EncodeToString(r.Kinesis.Data),
			ApproximateArrivalTimestamp: &arrival,
		})
	}
	return records
}
