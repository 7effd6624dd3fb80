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
	"fmt"
)

// ErrRecordHandlerFailure is returned when the record handler rejects a record. The batch stops at that record.
type ErrRecordHandlerFailure struct {
	ShardID  string
	Position string
	Err      error
}

func (e ErrRecordHandlerFailure) Error() string {
	return fmt.Sprintf("record handler failed on shard %s at position %s: %v", e.ShardID, e.Position, e.Err)
}

func (e ErrRecordHandlerFailure) Unwrap() error {
	return e.Err
}

// ErrMalformedRecord is returned when a record identity cannot be parsed or its payload cannot be decoded.
// It stops the batch like a handler failure.
type ErrMalformedRecord struct {
	EventID string
	Reason  string
	Err     error
}

func (e ErrMalformedRecord) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed record %q: %s: %v", e.EventID, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed record %q: %s", e.EventID, e.Reason)
}

func (e ErrMalformedRecord) Unwrap() error {
	return e.Err
}

// ErrBatchAborted is returned when the invocation context ended before every record was examined.
type ErrBatchAborted struct {
	ShardID string
	EventID string
	Err     error
}

func (e ErrBatchAborted) Error() string {
	return fmt.Sprintf("batch on shard %s aborted before record %s: %v", e.ShardID, e.EventID, e.Err)
}

func (e ErrBatchAborted) Unwrap() error {
	return e.Err
}
