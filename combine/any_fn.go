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

package combine

import "fmt"

// AnyFn is a combiner producing any n occurrences of its input: whichever
// elements arrive first survive merging. It makes no uniformity claim and
// draws no randomness, which makes it much cheaper than FixedSizeFn when the
// caller only needs some bounded sample, not a fair one.
//
// Guarantees kept: output size is min(n, |input|) and every output element is
// an occurrence of the input with multiplicity respected.
type AnyFn[T any] struct {
	n int
}

// NewAny creates a combiner keeping at most n arbitrary occurrences.
// n < 0 is rejected before any data flows; n == 0 is valid.
func NewAny[T any](n int) (*AnyFn[T], error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleSize, n)
	}
	return &AnyFn[T]{n: n}, nil
}

// N returns the maximum sample size.
func (fn *AnyFn[T]) N() int { return fn.n }

// CreateAccumulator returns an empty accumulator.
func (fn *AnyFn[T]) CreateAccumulator() []T {
	return nil
}

// AddInput keeps the value only while the accumulator is below capacity.
func (fn *AnyFn[T]) AddInput(acc []T, value T) []T {
	if len(acc) < fn.n {
		acc = append(acc, value)
	}
	return acc
}

// MergeAccumulators concatenates the accumulators and truncates to capacity.
func (fn *AnyFn[T]) MergeAccumulators(accs [][]T) []T {
	var merged []T
	for _, acc := range accs {
		for _, v := range acc {
			if len(merged) == fn.n {
				return merged
			}
			merged = append(merged, v)
		}
	}
	return merged
}

// ExtractOutput copies the sample out, so the result stays valid however the
// host reuses the accumulator.
func (fn *AnyFn[T]) ExtractOutput(acc []T) []T {
	out := make([]T, len(acc))
	copy(out, acc)
	return out
}

// Apply runs the whole lifecycle over one slice of values.
func (fn *AnyFn[T]) Apply(values []T) []T {
	acc := fn.CreateAccumulator()
	for _, v := range values {
		acc = fn.AddInput(acc, v)
	}
	return fn.ExtractOutput(fn.MergeAccumulators([][]T{acc}))
}
