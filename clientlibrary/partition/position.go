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
package partition

import (
	"fmt"
	"strings"
)

const (
	// NumericOrdering compares positions as unsigned decimal integers of arbitrary length, which is how
	// Kinesis and DynamoDB Streams encode sequence numbers.
	NumericOrdering PositionOrdering = iota + 1

	// LexicographicOrdering compares positions byte-wise. Only safe for fixed-width encodings.
	LexicographicOrdering
)

// PositionOrdering selects how stream positions are compared against checkpoints.
type PositionOrdering int

// ErrInvalidPosition is returned when a position cannot be interpreted under an ordering.
type ErrInvalidPosition struct {
	Position string
	Ordering PositionOrdering
}

func (e ErrInvalidPosition) Error() string {
	return fmt.Sprintf("invalid stream position %q for %s ordering", e.Position, e.Ordering)
}

var orderingNames = map[PositionOrdering]string{
	NumericOrdering:       "numeric",
	LexicographicOrdering: "lexicographic",
}

func (o PositionOrdering) String() string {
	if name, ok := orderingNames[o]; ok {
		return name
	}
	return fmt.Sprintf("PositionOrdering(%d)", int(o))
}

// ParsePositionOrdering maps a configuration name to an ordering.
func ParsePositionOrdering(name string) (PositionOrdering, error) {
	for o, n := range orderingNames {
		if strings.EqualFold(name, n) {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown position ordering %q", name)
}

// Validate checks that position is well formed for the ordering.
func (o PositionOrdering) Validate(position string) error {
	if position == "" {
		return ErrInvalidPosition{Position: position, Ordering: o}
	}
	if o == NumericOrdering {
		for i := 0; i < len(position); i++ {
			if position[i] < '0' || position[i] > '9' {
				return ErrInvalidPosition{Position: position, Ordering: o}
			}
		}
	}
	return nil
}

// Compare returns -1, 0 or 1 as a is before, equal to or after b.
func (o PositionOrdering) Compare(a, b string) (int, error) {
	if err := o.Validate(a); err != nil {
		return 0, err
	}
	if err := o.Validate(b); err != nil {
		return 0, err
	}

	if o == NumericOrdering {
		a = strings.TrimLeft(a, "0")
		b = strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			if len(a) < len(b) {
				return -1, nil
			}
			return 1, nil
		}
	}
	return strings.Compare(a, b), nil
}

// IsReplay reports whether position is at or behind checkpoint.
func (o PositionOrdering) IsReplay(position, checkpoint string) (bool, error) {
	c, err := o.Compare(position, checkpoint)
	if err != nil {
		return false, err
	}
	return c <= 0, nil
}
