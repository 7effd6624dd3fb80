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
	"context"
)

// IRecordHandler applies one decoded record. A returned error stops the shard's batch at that record; the
// records applied before it are still checkpointed.
//
// A handler is called sequentially for the records of one shard but may be called concurrently for
// different shards of the same delivery.
type IRecordHandler interface {
	HandleRecord(ctx context.Context, record *DecodedRecord) error
}

// RecordHandlerFunc adapts a plain function to IRecordHandler.
type RecordHandlerFunc func(ctx context.Context, record *DecodedRecord) error

func (f RecordHandlerFunc) HandleRecord(ctx context.Context, record *DecodedRecord) error {
	return f(ctx, record)
}

// NoopRecordHandler accepts every record.
type NoopRecordHandler struct{}

func (NoopRecordHandler) HandleRecord(ctx context.Context, record *DecodedRecord) error { return nil }
