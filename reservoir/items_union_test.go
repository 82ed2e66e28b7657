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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewItemsUnion(t *testing.T) {
	union, err := NewItemsUnion[int64](25)
	assert.NoError(t, err)
	assert.Equal(t, 25, union.MaxK())

	result, err := union.Result()
	assert.NoError(t, err)
	assert.True(t, result.IsEmpty())
	assert.Equal(t, 25, result.K())
}

func TestNewItemsUnionInvalidConfig(t *testing.T) {
	_, err := NewItemsUnion[int64](-1)
	assert.ErrorContains(t, err, "maxK must not be negative")

	_, err = NewItemsUnion[int64](maxSketchK + 1)
	assert.ErrorContains(t, err, "maxK must not exceed")

	_, err = NewItemsUnion[int64](10, WithUnionSource(nil))
	assert.ErrorContains(t, err, "source must not be nil")
}

func TestItemsUnionUpdateItems(t *testing.T) {
	union, err := NewItemsUnion[int64](10)
	assert.NoError(t, err)

	for i := int64(0); i < 100; i++ {
		union.Update(i)
	}
	result, err := union.Result()
	assert.NoError(t, err)
	assert.Equal(t, int64(100), result.N())
	assert.Equal(t, 10, result.NumSamples())
	assertIsSubMultiset(t, int64Range(0, 100), result.Samples())
}

func TestItemsUnionIgnoresEmptyAndNil(t *testing.T) {
	union, err := NewItemsUnion[int64](10)
	assert.NoError(t, err)

	union.UpdateSketch(nil)
	empty := seededSketch(t, 4, 1, nil)
	union.UpdateSketch(empty)

	result, err := union.Result()
	assert.NoError(t, err)
	assert.True(t, result.IsEmpty())
	assert.Equal(t, 10, result.K())
}

func TestItemsUnionUpsizesExactModeSketch(t *testing.T) {
	union, err := NewItemsUnion[int64](20)
	assert.NoError(t, err)

	// Exact-mode input with a small k keeps every occurrence and must not
	// cap the union below maxK.
	small := seededSketch(t, 4, 1, int64Range(0, 3))
	union.UpdateSketch(small)

	big := seededSketch(t, 20, 2, int64Range(3, 15))
	union.UpdateSketch(big)

	result, err := union.Result()
	assert.NoError(t, err)
	assert.Equal(t, 20, result.K())
	assert.Equal(t, int64(15), result.N())
	assert.Equal(t, 15, result.NumSamples())
	assert.ElementsMatch(t, int64Range(0, 15), result.Samples())
}

func TestItemsUnionSamplingModeCapsEffectiveK(t *testing.T) {
	union, err := NewItemsUnion[int64](20)
	assert.NoError(t, err)

	union.UpdateSketch(seededSketch(t, 20, 1, int64Range(0, 100)))

	// A sampling-mode sketch with smaller k only knows its own top-5, so
	// the pooled result is capped at 5.
	union.UpdateSketch(seededSketch(t, 5, 2, int64Range(100, 200)))

	result, err := union.Result()
	assert.NoError(t, err)
	assert.Equal(t, 5, result.K())
	assert.Equal(t, int64(200), result.N())
	assert.Equal(t, 5, result.NumSamples())
	assertIsSubMultiset(t, int64Range(0, 200), result.Samples())
}

func TestItemsUnionDownsamplesOversizedSketch(t *testing.T) {
	union, err := NewItemsUnion[int64](8)
	assert.NoError(t, err)

	union.UpdateSketch(seededSketch(t, 32, 1, int64Range(0, 500)))

	result, err := union.Result()
	assert.NoError(t, err)
	assert.Equal(t, 8, result.K())
	assert.Equal(t, int64(500), result.N())
	assert.Equal(t, 8, result.NumSamples())
}

func TestItemsUnionMixedAbsorptionOrder(t *testing.T) {
	// One exact sketch, one sampling sketch with a small k, one sampling
	// sketch with an oversized k.
	sketches := []*ItemsSketch[int64]{
		seededSketch(t, 16, 1, int64Range(0, 8)),
		seededSketch(t, 8, 2, int64Range(8, 300)),
		seededSketch(t, 32, 3, int64Range(300, 400)),
	}

	forward, err := NewItemsUnion[int64](16)
	assert.NoError(t, err)
	for _, s := range sketches {
		forward.UpdateSketch(s)
	}

	backward, err := NewItemsUnion[int64](16)
	assert.NoError(t, err)
	for i := len(sketches) - 1; i >= 0; i-- {
		backward.UpdateSketch(sketches[i])
	}

	fr, err := forward.Result()
	assert.NoError(t, err)
	br, err := backward.Result()
	assert.NoError(t, err)

	// The binding cap is the sampling-mode k=8 regardless of order.
	assert.Equal(t, 8, fr.K())
	assert.Equal(t, 8, br.K())
	assert.Equal(t, int64(400), fr.N())
	assert.Equal(t, int64(400), br.N())
	assert.Equal(t, 8, fr.NumSamples())
	assertIsSubMultiset(t, int64Range(0, 400), fr.Samples())
	assertIsSubMultiset(t, int64Range(0, 400), br.Samples())
}

func TestItemsUnionResultIsDetached(t *testing.T) {
	union, err := NewItemsUnion[int64](10)
	assert.NoError(t, err)
	union.Update(1)

	result, err := union.Result()
	assert.NoError(t, err)
	result.Update(2)

	again, err := union.Result()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), again.N())
}

func TestItemsUnionReset(t *testing.T) {
	union, err := NewItemsUnion[int64](10)
	assert.NoError(t, err)
	for i := int64(0); i < 50; i++ {
		union.Update(i)
	}

	union.Reset()
	result, err := union.Result()
	assert.NoError(t, err)
	assert.True(t, result.IsEmpty())
	assert.Equal(t, 10, union.MaxK())
}

func TestItemsUnionString(t *testing.T) {
	union, err := NewItemsUnion[int64](10)
	assert.NoError(t, err)
	assert.Contains(t, union.String(), "Gadget: empty")

	union.Update(1)
	assert.Contains(t, union.String(), "Max K: 10")
	assert.Contains(t, union.String(), "N: 1")
}
