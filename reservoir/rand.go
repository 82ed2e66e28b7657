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
	"sync"
	"time"

	"gonum.org/v1/gonum/mathext/prng"
)

// Source supplies the raw random words behind priority draws. Any generator
// with a well distributed Uint64 works; sketches created without an explicit
// source share a process-wide MT19937.
type Source interface {
	// Uint64 returns a random number in [0, MaxUint64] and advances the
	// generator's state.
	Uint64() uint64
}

var globalRNG = newRNG()

func newRNG() *rng {
	// A cryptographically secure source is not needed here; sampling only
	// requires uniformity, not unpredictability.
	source := prng.NewMT19937()
	source.Seed(uint64(time.Now().UnixNano()))
	return &rng{src: source}
}

func newSeededRNG(seed uint64) *rng {
	source := prng.NewMT19937()
	source.Seed(seed)
	return &rng{src: source}
}

// rng guards a Source so that sketches sharing it can draw concurrently.
type rng struct {
	lock sync.Mutex
	src  Source
}

// Float64 returns a uniformly distributed number in [0, 1).
func (r *rng) Float64() float64 {
	r.lock.Lock()
	u := r.src.Uint64()
	r.lock.Unlock()
	// 53 high bits give the full float64 mantissa range.
	return float64(u>>11) * 0x1p-53
}
