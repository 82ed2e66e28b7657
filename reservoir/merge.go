/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package reservoir

import (
	"errors"
	"fmt"
)

// Merge combines two sketches of equal capacity into a fresh sketch without
// mutating either input. The result retains the k largest priorities among
// the pooled retained items and counts both streams, so it is distributed
// exactly as a single sketch that had seen both streams.
//
// Merge is commutative and, up to priority ties, associative: any reduction
// tree over any partitioning of a stream yields the same sample distribution.
// A nil operand counts as empty. The result draws future priorities from the
// first non-nil operand's source.
func Merge[T any](a, b *ItemsSketch[T]) (*ItemsSketch[T], error) {
	if a == nil && b == nil {
		return nil, errors.New("both operands are nil")
	}
	if a != nil && b != nil && a.k != b.k {
		return nil, fmt.Errorf("incompatible sketch capacities: %d and %d", a.k, b.k)
	}

	first := a
	if first == nil {
		first = b
	}

	result, err := NewItemsSketch[T](first.k, WithItemsSketchResizeFactor(first.rf))
	if err != nil {
		return nil, err
	}
	result.rng = first.rng
	result.absorb(a)
	result.absorb(b)
	return result, nil
}

// absorb folds another sketch's retained items, with their priorities, into
// the receiver. The other sketch is not modified.
func (s *ItemsSketch[T]) absorb(other *ItemsSketch[T]) {
	if other == nil {
		return
	}
	for i := 0; i < len(other.data); i++ {
		s.insertWeighted(other.data[i], other.weights[i])
	}
	s.n += other.n
}
