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

import (
	"fmt"
	"sync/atomic"

	"github.com/apache/sampling-go/common"
	"github.com/apache/sampling-go/reservoir"
)

// FixedSizeFn is a combiner producing a uniform random sample of at most k
// occurrences of its input. Every occurrence is equally likely to survive,
// whatever the partitioning and merge shape; when the input has at most k
// occurrences the output is the whole input.
//
// Accumulators are independent: partitions may run concurrently as long as
// each accumulator is owned by one goroutine at a time. A retried partition
// simply builds a fresh accumulator; discarding the failed one is safe
// because no state lives outside it.
type FixedSizeFn[T any] struct {
	k   int
	cfg config

	// created numbers accumulators for per-accumulator seed derivation.
	created atomic.Uint64
}

// NewFixedSizeGlobally creates a combiner sampling k occurrences uniformly.
// k < 0 is rejected here, before any accumulator exists or any element is
// read; k == 0 is valid and yields empty samples.
func NewFixedSizeGlobally[T any](k int, opts ...Option) (*FixedSizeFn[T], error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleSize, k)
	}
	fn := &FixedSizeFn[T]{k: k}
	for _, opt := range opts {
		opt(&fn.cfg)
	}
	// Fail on unusable k now rather than in CreateAccumulator.
	if _, err := reservoir.NewItemsSketch[T](k); err != nil {
		return nil, err
	}
	return fn, nil
}

// K returns the maximum sample size.
func (fn *FixedSizeFn[T]) K() int { return fn.k }

// CreateAccumulator returns a fresh empty reservoir. The host calls this once
// per partition.
func (fn *FixedSizeFn[T]) CreateAccumulator() *reservoir.ItemsSketch[T] {
	stream := fn.created.Add(1) - 1

	var opts []reservoir.ItemsSketchOption
	switch {
	case fn.cfg.sourceFactory != nil:
		opts = append(opts, reservoir.WithItemsSketchSource(fn.cfg.sourceFactory(stream)))
	case fn.cfg.seeded:
		opts = append(opts, reservoir.WithItemsSketchSeed(common.DeriveSeed(fn.cfg.seed, stream)))
	}

	acc, err := reservoir.NewItemsSketch[T](fn.k, opts...)
	if err != nil {
		// k was validated at construction; only a nil source from a broken
		// factory can land here.
		panic(fmt.Sprintf("combine: creating accumulator: %v", err))
	}
	return acc
}

// AddInput folds one occurrence into the accumulator and returns it. A nil
// accumulator is replaced with a fresh one.
func (fn *FixedSizeFn[T]) AddInput(acc *reservoir.ItemsSketch[T], value T) *reservoir.ItemsSketch[T] {
	if acc == nil {
		acc = fn.CreateAccumulator()
	}
	acc.Update(value)
	return acc
}

// MergeAccumulators reduces any number of accumulators into one. The host may
// call it repeatedly over partial groups in any tree shape; the distribution
// of the final sample does not depend on the shape. Nil accumulators are
// skipped; an empty slice yields an empty accumulator.
func (fn *FixedSizeFn[T]) MergeAccumulators(accs []*reservoir.ItemsSketch[T]) *reservoir.ItemsSketch[T] {
	union, err := reservoir.NewItemsUnion[T](fn.k)
	if err != nil {
		panic(fmt.Sprintf("combine: merging accumulators: %v", err))
	}
	for _, acc := range accs {
		union.UpdateSketch(acc)
	}
	merged, err := union.Result()
	if err != nil {
		panic(fmt.Sprintf("combine: merging accumulators: %v", err))
	}
	return merged
}

// ExtractOutput materializes the sample as plain elements, order unspecified.
// The accumulator is not modified; repeated calls return fresh copies.
func (fn *FixedSizeFn[T]) ExtractOutput(acc *reservoir.ItemsSketch[T]) []T {
	if acc == nil {
		return []T{}
	}
	return acc.Samples()
}

// Apply runs the whole lifecycle over one slice of values. Hosts with real
// partitioning call the four combiner operations directly instead.
func (fn *FixedSizeFn[T]) Apply(values []T) []T {
	acc := fn.CreateAccumulator()
	for _, v := range values {
		acc = fn.AddInput(acc, v)
	}
	return fn.ExtractOutput(fn.MergeAccumulators([]*reservoir.ItemsSketch[T]{acc}))
}
