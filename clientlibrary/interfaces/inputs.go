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
package interfaces

import (
	"time"
)

// Containers for the data exchanged between the stream transports, the batch processor and the record handler.
type (
	// Record is one delivered stream record. EventID is the identity assigned by the stream, formatted as
	// "<shardId>:<position>". ShardID may be filled in by the transport; it is used to partition a mixed
	// delivery and must agree with the shard encoded in EventID.
	Record struct {
		EventID       string
		ShardID       string
		PayloadBase64 string

		// ApproximateArrivalTimestamp is informational, nil when the transport does not provide it.
		ApproximateArrivalTimestamp *time.Time
	}

	// DecodedRecord is what a record handler receives once the identity has been parsed and the payload decoded.
	DecodedRecord struct {
		EventID        string
		ShardID        string
		StreamPosition string
		Data           []byte

		// Origin is the value of the configured origin field of a JSON payload, or "N/A".
		Origin string
	}

	// BatchOutcome is the result of running one shard's batch through the batch processor.
	BatchOutcome struct {
		ShardID string

		// RecordsApplied counts successful handler invocations.
		RecordsApplied int

		// RecordsReplayed counts records skipped because they were at or behind the checkpoint.
		RecordsReplayed int

		BytesApplied int64

		// LastCommittedPosition is the highest position applied in this batch, empty when nothing was applied.
		LastCommittedPosition string

		// LastPositionObserved is the position of the last record examined, applied or not.
		LastPositionObserved string

		// LastActionTimestamp is the "ts_action" attribute of the last applied record, or "N/A".
		LastActionTimestamp string

		// Origins is the set of distinct origins among applied records.
		Origins map[string]struct{}

		// Failure is set when the batch stopped before its end.
		Failure error
	}

	// InvocationSummary is logged once per invocation and returned to the caller.
	InvocationSummary struct {
		UniqueOriginsSeen    int
		LastPositionObserved string

		// LastActionTimestamp is the "ts_action" attribute of the last applied record carrying one.
		LastActionTimestamp string
	}
)

// HasAdvanced tells whether at least one record was applied.
func (o *BatchOutcome) HasAdvanced() bool {
	return o.LastCommittedPosition != ""
}
