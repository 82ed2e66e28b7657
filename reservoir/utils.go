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
	"math"
	"math/bits"
)

const (
	// minLgArrItems is the log2 of the smallest retained-item allocation.
	minLgArrItems = 3

	// defaultKappa is the number of standard deviations used for subset sum
	// error bounds.
	defaultKappa = 2.0
)

func ceilingLg(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

func startingSubMultiple(lgTarget, lgRf, lgMin int) int {
	if lgTarget <= lgMin {
		return lgMin
	}
	if lgRf == 0 {
		return lgTarget
	}
	return (lgTarget-lgMin)%lgRf + lgMin
}

// adjustedSamplingAllocationSize checks target sampling allocation is more than
// 50% of max sampling size. If so, return max sampling size, otherwise passes
// through the target size.
func adjustedSamplingAllocationSize(
	maxSize, resizeTarget int,
) int {
	if maxSize-(resizeTarget<<1) < 0 {
		return maxSize
	}
	return resizeTarget
}

// initialAllocation returns the starting capacity of the retained-item arrays
// for the given k and resize factor.
func initialAllocation(k int, rf ResizeFactor) int {
	if k <= (1 << minLgArrItems) {
		return k
	}
	initialLgSize := startingSubMultiple(ceilingLg(k), int(rf), minLgArrItems)
	return adjustedSamplingAllocationSize(k, 1<<initialLgSize)
}

// SampleSubsetSummary is a simple object that captures the results of a subset sum query on a sampling sketch.
type SampleSubsetSummary struct {
	LowerBound        float64
	Estimate          float64
	UpperBound        float64
	TotalSketchWeight float64
}

// wilsonBoundsOnP returns normal-approximation confidence bounds on a
// proportion observed as x successes out of n samples, at z standard
// deviations. The interval is clamped to [0, 1].
func wilsonBoundsOnP(x, n int, z float64) (float64, float64) {
	if n == 0 {
		return 0, 1
	}
	fn := float64(n)
	pHat := float64(x) / fn
	zz := z * z
	denom := 1 + zz/fn
	center := (pHat + zz/(2*fn)) / denom
	halfWidth := (z / denom) * math.Sqrt(pHat*(1-pHat)/fn+zz/(4*fn*fn))
	return math.Max(0, center-halfWidth), math.Min(1, center+halfWidth)
}
