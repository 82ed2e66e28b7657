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
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/constraints"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mathext/prng"

	"github.com/apache/sampling-go/common"
	"github.com/apache/sampling-go/reservoir"
)

// verifyCorrectSample checks the two guarantees every sample carries: its
// size is min(k, |population|), and no element appears more often than in the
// population. The ordering used to compare is purely a test device.
func verifyCorrectSample[T constraints.Ordered](t *testing.T, k int, population, sample []T) {
	t.Helper()

	wantSize := k
	if len(population) < k {
		wantSize = len(population)
	}
	require.Len(t, sample, wantSize)

	pop := slices.Clone(population)
	smp := slices.Clone(sample)
	slices.Sort(pop)
	slices.Sort(smp)

	i := 0
	for _, s := range smp {
		for i < len(pop) && common.NaturalOrder(pop[i], s) {
			i++
		}
		if i >= len(pop) || pop[i] != s {
			t.Fatalf("sample element %v not available in population", s)
		}
		i++
	}
}

func TestNewFixedSizeGloballyRejectsNegativeK(t *testing.T) {
	fn, err := NewFixedSizeGlobally[int](-1)
	assert.Nil(t, fn)
	assert.ErrorIs(t, err, ErrInvalidSampleSize)
	assert.ErrorContains(t, err, "-1")
}

func TestFixedSizeSample(t *testing.T) {
	data := []int{1, 2, 3, 4, 5}

	t.Run("SmallerThanInput", func(t *testing.T) {
		fn, err := NewFixedSizeGlobally[int](3)
		require.NoError(t, err)
		verifyCorrectSample(t, 3, data, fn.Apply(data))
	})

	t.Run("EmptyInput", func(t *testing.T) {
		fn, err := NewFixedSizeGlobally[int](3)
		require.NoError(t, err)
		assert.Empty(t, fn.Apply(nil))
	})

	t.Run("ZeroK", func(t *testing.T) {
		fn, err := NewFixedSizeGlobally[int](0)
		require.NoError(t, err)
		assert.Empty(t, fn.Apply(data))
	})

	t.Run("InsufficientInput", func(t *testing.T) {
		fn, err := NewFixedSizeGlobally[int](10)
		require.NoError(t, err)

		// The whole input survives, as a multiset.
		sample := fn.Apply(data)
		verifyCorrectSample(t, 10, data, sample)
		slices.Sort(sample)
		assert.Equal(t, data, sample)
	})

	t.Run("MultiplicityRespected", func(t *testing.T) {
		repeated := []int{1, 1, 2, 2, 3, 3, 4, 4, 5, 5}
		fn, err := NewFixedSizeGlobally[int](6)
		require.NoError(t, err)

		sample := fn.Apply(repeated)
		verifyCorrectSample(t, 6, repeated, sample)

		// Six slots over five distinct values force a repeat.
		slices.Sort(sample)
		hasDup := false
		for i := 1; i < len(sample); i++ {
			if sample[i] == sample[i-1] {
				hasDup = true
			}
		}
		assert.True(t, hasDup)
	})
}

func intRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestFixedSizePartitionedLifecycle(t *testing.T) {
	const k = 10
	data := intRange(1000)

	for _, parts := range []int{1, 2, 3, 7, 32} {
		fn, err := NewFixedSizeGlobally[int](k)
		require.NoError(t, err)

		accs := make([]*reservoir.ItemsSketch[int], parts)
		for p := range accs {
			accs[p] = fn.CreateAccumulator()
		}
		for i, v := range data {
			accs[i%parts] = fn.AddInput(accs[i%parts], v)
		}

		verifyCorrectSample(t, k, data, fn.ExtractOutput(fn.MergeAccumulators(accs)))
	}
}

func TestFixedSizeMergeTreeShapes(t *testing.T) {
	const k = 8
	data := intRange(300)

	fn, err := NewFixedSizeGlobally[int](k, WithSeed(2024))
	require.NoError(t, err)

	accs := make([]*reservoir.ItemsSketch[int], 6)
	for p := range accs {
		accs[p] = fn.CreateAccumulator()
	}
	for i, v := range data {
		accs[i%len(accs)] = fn.AddInput(accs[i%len(accs)], v)
	}

	// Flat reduction.
	flat := fn.ExtractOutput(fn.MergeAccumulators(accs))

	// Lopsided tree over the same accumulators: ((0,1),(2,3)) then (4,5).
	left := fn.MergeAccumulators(accs[:2])
	mid := fn.MergeAccumulators(accs[2:4])
	right := fn.MergeAccumulators(accs[4:])
	tree := fn.ExtractOutput(fn.MergeAccumulators(
		[]*reservoir.ItemsSketch[int]{fn.MergeAccumulators(
			[]*reservoir.ItemsSketch[int]{left, mid}), right}))

	// Merging never redraws priorities, so every tree keeps the same items.
	slices.Sort(flat)
	slices.Sort(tree)
	assert.Equal(t, flat, tree)
	verifyCorrectSample(t, k, data, flat)
}

func TestFixedSizeMergeAccumulatorsEdgeCases(t *testing.T) {
	fn, err := NewFixedSizeGlobally[int](5)
	require.NoError(t, err)

	merged := fn.MergeAccumulators(nil)
	require.NotNil(t, merged)
	assert.True(t, merged.IsEmpty())

	// Nil accumulators are skipped, as on a retried empty partition.
	acc := fn.AddInput(nil, 42)
	merged = fn.MergeAccumulators([]*reservoir.ItemsSketch[int]{nil, acc, nil})
	assert.Equal(t, []int{42}, fn.ExtractOutput(merged))
}

func TestFixedSizeExtractOutputRepeatable(t *testing.T) {
	fn, err := NewFixedSizeGlobally[int](4)
	require.NoError(t, err)

	acc := fn.CreateAccumulator()
	for _, v := range intRange(100) {
		acc = fn.AddInput(acc, v)
	}

	first := fn.ExtractOutput(acc)
	second := fn.ExtractOutput(acc)
	assert.ElementsMatch(t, first, second)

	// Mutating an extracted slice must not reach into the accumulator.
	first[0] = -1
	assert.ElementsMatch(t, second, fn.ExtractOutput(acc))

	assert.Empty(t, fn.ExtractOutput(nil))
}

func TestFixedSizeSeededReplay(t *testing.T) {
	run := func() []int {
		fn, err := NewFixedSizeGlobally[int](7, WithSeed(99))
		require.NoError(t, err)

		accs := make([]*reservoir.ItemsSketch[int], 4)
		for p := range accs {
			accs[p] = fn.CreateAccumulator()
		}
		for i, v := range intRange(500) {
			accs[i%4] = fn.AddInput(accs[i%4], v)
		}
		out := fn.ExtractOutput(fn.MergeAccumulators(accs))
		slices.Sort(out)
		return out
	}

	assert.Equal(t, run(), run())
}

func TestFixedSizeWithSourceFactory(t *testing.T) {
	factory := func(stream uint64) reservoir.Source {
		src := prng.NewMT19937()
		src.Seed(1000 + stream)
		return src
	}

	run := func() []int {
		fn, err := NewFixedSizeGlobally[int](5, WithSourceFactory(factory))
		require.NoError(t, err)
		out := fn.Apply(intRange(200))
		slices.Sort(out)
		return out
	}

	assert.Equal(t, run(), run())
}

func TestFixedSizeConcurrentPartitions(t *testing.T) {
	const (
		k     = 16
		parts = 8
	)
	data := intRange(10000)

	fn, err := NewFixedSizeGlobally[int](k)
	require.NoError(t, err)

	accs := make([]*reservoir.ItemsSketch[int], parts)
	var g errgroup.Group
	for p := 0; p < parts; p++ {
		g.Go(func() error {
			acc := fn.CreateAccumulator()
			for i := p; i < len(data); i += parts {
				acc = fn.AddInput(acc, data[i])
			}
			accs[p] = acc
			return nil
		})
	}
	require.NoError(t, g.Wait())

	verifyCorrectSample(t, k, data, fn.ExtractOutput(fn.MergeAccumulators(accs)))
}

func TestFixedSizeUniformity(t *testing.T) {
	const (
		streamLen = 100
		k         = 10
		parts     = 4
		trials    = 400
	)

	counts := make([]int, streamLen)
	for trial := 0; trial < trials; trial++ {
		fn, err := NewFixedSizeGlobally[int](k, WithSeed(uint64(trial)+1))
		require.NoError(t, err)

		accs := make([]*reservoir.ItemsSketch[int], parts)
		for p := range accs {
			accs[p] = fn.CreateAccumulator()
		}
		for i := 0; i < streamLen; i++ {
			accs[i%parts] = fn.AddInput(accs[i%parts], i)
		}
		for _, v := range fn.ExtractOutput(fn.MergeAccumulators(accs)) {
			counts[v]++
		}
	}

	// Inclusion of each occurrence is Binomial(trials, k/streamLen):
	// mean 40, stddev 6. Check the histogram is flat overall and that no
	// position drifts past five standard deviations.
	expected := float64(trials) * float64(k) / float64(streamLen)
	stddev := math.Sqrt(expected * (1 - float64(k)/float64(streamLen)))

	mean := 0.0
	for _, c := range counts {
		mean += float64(c)
	}
	mean /= streamLen
	assert.InDelta(t, expected, mean, 1e-9)

	variance := 0.0
	for _, c := range counts {
		d := float64(c) - mean
		variance += d * d
	}
	variance /= streamLen
	assert.Less(t, math.Sqrt(variance), 2*stddev)

	outliers := 0
	for _, c := range counts {
		if math.Abs(float64(c)-expected) > 5*stddev {
			outliers++
		}
	}
	assert.Zero(t, outliers)
}
