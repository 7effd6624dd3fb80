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
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	kcl "github.com/vmware/vmware-go-checkpointer/clientlibrary/interfaces"
	par "github.com/vmware/vmware-go-checkpointer/clientlibrary/partition"
)

const (
	identityDelimiter = ":"

	// NotAvailable stands for a payload attribute that is absent.
	NotAvailable = "N/A"

	// ActionTimestampField is the payload attribute reported as the last action timestamp of a batch.
	ActionTimestampField = "ts_action"
)

// EventID builds the identity of a record at position on shardID.
func EventID(shardID, position string) string {
	return shardID + identityDelimiter + position
}

// ParseIdentity splits a record identity into its shard and position.
func ParseIdentity(eventID string) (shardID, position string, err error) {
	parts := strings.Split(eventID, identityDelimiter)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrMalformedRecord{
			EventID: eventID,
			Reason:  fmt.Sprintf("identity is not <shard>%s<position>", identityDelimiter),
		}
	}
	return parts[0], parts[1], nil
}

// shardOf returns the shard a record belongs to, or "" when it cannot be told.
func shardOf(r *kcl.Record) string {
	if r.ShardID != "" {
		return r.ShardID
	}
	if i := strings.Index(r.EventID, identityDelimiter); i > 0 {
		return r.EventID[:i]
	}
	return ""
}

// parseRecord checks the identity of r against the shard being processed and the position ordering.
func parseRecord(r *kcl.Record, shardID string, ordering par.PositionOrdering) (string, error) {
	recordShard, position, err := ParseIdentity(r.EventID)
	if err != nil {
		return "", err
	}
	if recordShard != shardID || (r.ShardID != "" && r.ShardID != recordShard) {
		return "", ErrMalformedRecord{
			EventID: r.EventID,
			Reason:  fmt.Sprintf("record does not belong to shard %s", shardID),
		}
	}
	if err := ordering.Validate(position); err != nil {
		return "", ErrMalformedRecord{EventID: r.EventID, Reason: "invalid position", Err: err}
	}
	return position, nil
}

func decodePayload(r *kcl.Record) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(r.PayloadBase64)
	if err != nil {
		return nil, ErrMalformedRecord{EventID: r.EventID, Reason: "payload is not base64", Err: err}
	}
	return data, nil
}

// payloadAttributes reads the top level attributes of a JSON object payload. Any other payload has none.
func payloadAttributes(data []byte) map[string]interface{} {
	var attrs map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&attrs); err != nil {
		return nil
	}
	return attrs
}

func attribute(attrs map[string]interface{}, name string) string {
	v, ok := attrs[name]
	if !ok || v == nil {
		return NotAvailable
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
