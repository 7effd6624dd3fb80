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

	kcl "github.com/vmware/vmware-go-checkpointer/clientlibrary/interfaces"
	par "github.com/vmware/vmware-go-checkpointer/clientlibrary/partition"
	"github.com/vmware/vmware-go-checkpointer/logger"
)

// BatchProcessor applies the records of one shard in order, skipping those at or behind the checkpoint.
type BatchProcessor struct {
	handler     kcl.IRecordHandler
	ordering    par.PositionOrdering
	originField string
	log         logger.Logger
}

func NewBatchProcessor(handler kcl.IRecordHandler, ordering par.PositionOrdering, originField string, log logger.Logger) *BatchProcessor {
	return &BatchProcessor{
		handler:     handler,
		ordering:    ordering,
		originField: originField,
		log:         log,
	}
}

// Run processes records against lease, which is not modified. The working checkpoint starts at the lease's
// checkpoint and moves to each applied position. The first handler failure, malformed record or context
// expiry stops the batch and is reported in the outcome's Failure.
func (bp *BatchProcessor) Run(ctx context.Context, lease *par.Lease, records []*kcl.Record) *kcl.BatchOutcome {
	log := bp.log
	outcome := &kcl.BatchOutcome{
		ShardID:             lease.ShardID,
		LastActionTimestamp: NotAvailable,
		Origins:             map[string]struct{}{},
	}

	working := lease.Checkpoint
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			outcome.Failure = ErrBatchAborted{ShardID: lease.ShardID, EventID: r.EventID, Err: err}
			break
		}

		position, err := parseRecord(r, lease.ShardID, bp.ordering)
		if err != nil {
			outcome.Failure = err
			break
		}
		outcome.LastPositionObserved = position

		replay, err := bp.ordering.IsReplay(position, working)
		if err != nil {
			outcome.Failure = ErrMalformedRecord{EventID: r.EventID, Reason: "position not comparable to checkpoint " + working, Err: err}
			break
		}
		if replay {
			log.Debugf("Replayed record %s at or behind checkpoint %s; skipping", r.EventID, working)
			outcome.RecordsReplayed++
			continue
		}

		data, err := decodePayload(r)
		if err != nil {
			outcome.Failure = err
			break
		}

		attrs := payloadAttributes(data)
		record := &kcl.DecodedRecord{
			EventID:        r.EventID,
			ShardID:        lease.ShardID,
			StreamPosition: position,
			Data:           data,
			Origin:         attribute(attrs, bp.originField),
		}

		if err := bp.handler.HandleRecord(ctx, record); err != nil {
			outcome.Failure = ErrRecordHandlerFailure{ShardID: lease.ShardID, Position: position, Err: err}
			break
		}

		outcome.Origins[record.Origin] = struct{}{}
		outcome.LastActionTimestamp = attribute(attrs, ActionTimestampField)
		outcome.RecordsApplied++
		outcome.BytesApplied += int64(len(data))
		outcome.LastCommittedPosition = position
		working = position
	}

	return outcome
}
