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

// Package combine exposes the sampling sketches as combiner functions for a
// partitioned data-processing host: CreateAccumulator, AddInput,
// MergeAccumulators, ExtractOutput. The host decides how the input is
// partitioned, where each operation runs, and in what shape partial results
// are reduced; the combiners guarantee the same output distribution for
// every choice.
package combine

import (
	"errors"

	"github.com/apache/sampling-go/reservoir"
)

// ErrInvalidSampleSize reports a negative sample-size parameter. It is
// returned, wrapped, by the combiner constructors before any data flows.
var ErrInvalidSampleSize = errors.New("sample size must not be negative")

// Option configures a combiner at construction time.
type Option func(*config)

type config struct {
	seed          uint64
	seeded        bool
	sourceFactory func(stream uint64) reservoir.Source
}

// WithSeed makes the combiner deterministic: accumulator number i draws its
// priorities from a private generator seeded with an independent mix of
// jobSeed and i. Two runs that create accumulators in the same order retain
// identical samples.
func WithSeed(jobSeed uint64) Option {
	return func(c *config) {
		c.seed = jobSeed
		c.seeded = true
	}
}

// WithSourceFactory supplies the random source for each accumulator, keyed by
// creation index. It overrides WithSeed.
func WithSourceFactory(factory func(stream uint64) reservoir.Source) Option {
	return func(c *config) {
		c.sourceFactory = factory
	}
}
