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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/apache/sampling-go/common"
)

// ItemsSketch provides a uniform random sample of at most k items from a
// stream of unknown size.
//
// Every occurrence receives an independent priority drawn uniformly from
// [0, 1) and the sketch retains the min(k, n) occurrences with the largest
// priorities, stored as a min-heap so the next eviction candidate is at the
// root. Because survival depends only on the priorities, two sketches merge
// exactly: the top k of the pooled retained items is the same sample the
// combined stream would have produced, regardless of how the stream was
// partitioned or in which order partial results are merged.
//
// Duplicate values are distinct occurrences and draw independent priorities.
//
// Reference: Efraimidis and Spirakis, "Weighted random sampling with a
// reservoir", Inf. Process. Lett. 97(5): 181-185, 2006 (with all weights
// equal to 1).
type ItemsSketch[T any] struct {
	k       int       // maximum sample size
	n       int64     // total items seen
	data    []T       // retained items, heap-ordered by priority
	weights []float64 // priorities parallel to data; weights[0] is the smallest

	// resize factor for array growth
	rf ResizeFactor

	// current allocated capacity
	allocatedSize int

	rng *rng
}

const maxSketchK = (1 << 31) - 2

type ItemsSketchOption func(*itemsSketchConfig)

type itemsSketchConfig struct {
	resizeFactor ResizeFactor
	source       Source
	sourceSet    bool
	seed         uint64
	seeded       bool
}

// WithItemsSketchResizeFactor controls how fast the retained-item arrays grow
// toward k.
func WithItemsSketchResizeFactor(rf ResizeFactor) ItemsSketchOption {
	return func(c *itemsSketchConfig) {
		c.resizeFactor = rf
	}
}

// WithItemsSketchSource draws priorities from src instead of the shared
// process-wide generator. Access to src is serialized, so one source may back
// several sketches.
func WithItemsSketchSource(src Source) ItemsSketchOption {
	return func(c *itemsSketchConfig) {
		c.source = src
		c.sourceSet = true
	}
}

// WithItemsSketchSeed gives the sketch a private deterministic generator.
// Two sketches with the same seed fed the same stream retain the same sample.
func WithItemsSketchSeed(seed uint64) ItemsSketchOption {
	return func(c *itemsSketchConfig) {
		c.seed = seed
		c.seeded = true
	}
}

// NewItemsSketch creates a reservoir sketch with the given capacity k.
// k must not be negative; k == 0 is valid and retains nothing while still
// counting the stream.
func NewItemsSketch[T any](k int, opts ...ItemsSketchOption) (*ItemsSketch[T], error) {
	if k < 0 {
		return nil, fmt.Errorf("k must not be negative: %d", k)
	}
	if k > maxSketchK {
		return nil, fmt.Errorf("k must not exceed %d: %d", maxSketchK, k)
	}

	cfg := &itemsSketchConfig{
		resizeFactor: defaultResizeFactor,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if _, err := encodeResizeFactor(cfg.resizeFactor); err != nil {
		return nil, err
	}
	if cfg.sourceSet && cfg.source == nil {
		return nil, errors.New("source must not be nil")
	}

	var r *rng
	switch {
	case cfg.sourceSet:
		r = &rng{src: cfg.source}
	case cfg.seeded:
		r = newSeededRNG(cfg.seed)
	default:
		r = globalRNG
	}

	initialSize := initialAllocation(k, cfg.resizeFactor)
	return &ItemsSketch[T]{
		k:             k,
		n:             0,
		data:          make([]T, 0, initialSize),
		weights:       make([]float64, 0, initialSize),
		rf:            cfg.resizeFactor,
		allocatedSize: initialSize,
		rng:           r,
	}, nil
}

// K returns the maximum sample size.
func (s *ItemsSketch[T]) K() int { return s.k }

// N returns the total number of items seen by the sketch.
func (s *ItemsSketch[T]) N() int64 { return s.n }

// NumSamples returns the number of items currently retained.
// It equals min(K, N) at all times, including after merges.
func (s *ItemsSketch[T]) NumSamples() int { return len(s.data) }

// IsEmpty returns true if no items have been seen.
func (s *ItemsSketch[T]) IsEmpty() bool { return s.n == 0 }

// ImplicitSampleWeight returns the weight each retained item carries when the
// sample stands in for the whole stream, N / NumSamples.
func (s *ItemsSketch[T]) ImplicitSampleWeight() float64 {
	if len(s.data) == 0 {
		return 0
	}
	return float64(s.n) / float64(len(s.data))
}

// inSamplingMode reports whether the sketch has seen more items than it can
// retain.
func (s *ItemsSketch[T]) inSamplingMode() bool {
	return s.n > int64(s.k)
}

// Update adds an item to the sketch, drawing a fresh priority for this
// occurrence.
func (s *ItemsSketch[T]) Update(item T) {
	s.offer(item, s.rng.Float64())
}

// offer records one occurrence that already carries its priority.
func (s *ItemsSketch[T]) offer(item T, priority float64) {
	s.insertWeighted(item, priority)
	s.n++
}

// insertWeighted places an occurrence into the heap without touching n.
// Below capacity the item sifts up from the tail; at capacity it replaces the
// root only if its priority beats the current minimum, so ties favor the
// incumbent.
func (s *ItemsSketch[T]) insertWeighted(item T, priority float64) {
	if s.k == 0 {
		return
	}
	if len(s.data) < s.k {
		if len(s.data) >= s.allocatedSize {
			s.growDataArrays()
		}
		s.data = append(s.data, item)
		s.weights = append(s.weights, priority)
		s.siftUp(len(s.data) - 1)
		return
	}
	if priority > s.weights[0] {
		s.data[0] = item
		s.weights[0] = priority
		s.siftDown(0)
	}
}

// Samples returns a copy of the retained items. The order is unspecified.
func (s *ItemsSketch[T]) Samples() []T {
	result := make([]T, len(s.data))
	copy(result, s.data)
	return result
}

// WeightedItem pairs a retained occurrence with the priority that keeps it in
// the sample.
type WeightedItem[T any] struct {
	Item     T
	Priority float64
}

// All returns an iterator over the retained occurrences and their priorities.
func (s *ItemsSketch[T]) All() iter.Seq[WeightedItem[T]] {
	return func(yield func(WeightedItem[T]) bool) {
		for i := 0; i < len(s.data); i++ {
			if !yield(WeightedItem[T]{Item: s.data[i], Priority: s.weights[i]}) {
				return
			}
		}
	}
}

// Reset clears the sketch while preserving its configuration.
func (s *ItemsSketch[T]) Reset() {
	initialSize := initialAllocation(s.k, s.rf)
	s.n = 0
	s.data = make([]T, 0, initialSize)
	s.weights = make([]float64, 0, initialSize)
	s.allocatedSize = initialSize
}

// Copy returns a deep copy of the sketch. The copy shares the original's
// random source.
func (s *ItemsSketch[T]) Copy() *ItemsSketch[T] {
	c := &ItemsSketch[T]{
		k:             s.k,
		n:             s.n,
		data:          make([]T, len(s.data), s.allocatedSize),
		weights:       make([]float64, len(s.weights), s.allocatedSize),
		rf:            s.rf,
		allocatedSize: s.allocatedSize,
		rng:           s.rng,
	}
	copy(c.data, s.data)
	copy(c.weights, s.weights)
	return c
}

// DownsampledCopy returns a copy restricted to the smallerK largest
// priorities. The result is distributed exactly as if the sketch had been
// built with the smaller capacity from the start.
func (s *ItemsSketch[T]) DownsampledCopy(smallerK int) *ItemsSketch[T] {
	if smallerK >= s.k {
		return s.Copy()
	}
	return s.resizedCopy(smallerK)
}

// resizedCopy rebuilds the sketch at a different capacity, keeping the
// largest priorities that fit. Growing is only meaningful while the sketch is
// in exact mode, where every retained occurrence survives.
func (s *ItemsSketch[T]) resizedCopy(newK int) *ItemsSketch[T] {
	c, _ := NewItemsSketch[T](newK,
		WithItemsSketchResizeFactor(s.rf))
	c.rng = s.rng
	for i := 0; i < len(s.data); i++ {
		c.insertWeighted(s.data[i], s.weights[i])
	}
	c.n = s.n
	return c
}

// EstimateSubsetSum estimates how many of the observed occurrences satisfy
// the predicate, using the retained sample. Below capacity the answer is
// exact; in sampling mode the matching count is scaled by the implicit sample
// weight, with Wilson bounds at two standard deviations shrunk by the finite
// population factor.
func (s *ItemsSketch[T]) EstimateSubsetSum(predicate func(T) bool) (SampleSubsetSummary, error) {
	if predicate == nil {
		return SampleSubsetSummary{}, errors.New("nil predicate")
	}
	if s.n == 0 {
		return SampleSubsetSummary{}, nil
	}

	matches := 0
	for i := 0; i < len(s.data); i++ {
		if predicate(s.data[i]) {
			matches++
		}
	}

	total := float64(s.n)
	if !s.inSamplingMode() {
		exact := float64(matches)
		return SampleSubsetSummary{
			LowerBound:        exact,
			Estimate:          exact,
			UpperBound:        exact,
			TotalSketchWeight: total,
		}, nil
	}

	numSamples := len(s.data)
	samplingRate := float64(numSamples) / total
	z := defaultKappa * math.Sqrt(1-samplingRate)
	lowerP, upperP := wilsonBoundsOnP(matches, numSamples, z)
	return SampleSubsetSummary{
		LowerBound:        lowerP * total,
		Estimate:          float64(matches) * s.ImplicitSampleWeight(),
		UpperBound:        upperP * total,
		TotalSketchWeight: total,
	}, nil
}

// String returns a human-readable summary of the sketch.
func (s *ItemsSketch[T]) String() string {
	var sb strings.Builder
	sb.WriteString("### ItemsSketch SUMMARY:\n")
	sb.WriteString(fmt.Sprintf("   K: %d\n", s.k))
	sb.WriteString(fmt.Sprintf("   N: %d\n", s.n))
	sb.WriteString(fmt.Sprintf("   Num samples: %d\n", len(s.data)))
	sb.WriteString(fmt.Sprintf("   Sampling mode: %t\n", s.inSamplingMode()))
	sb.WriteString("### END SKETCH SUMMARY\n")
	return sb.String()
}

// siftDown restores the heap property by moving the element at slotIn down.
func (s *ItemsSketch[T]) siftDown(slotIn int) {
	lastSlot := len(s.data) - 1
	slot := slotIn
	child := 2*slotIn + 1

	for child <= lastSlot {
		child2 := child + 1
		if child2 <= lastSlot && s.weights[child2] < s.weights[child] {
			child = child2
		}

		if s.weights[slot] <= s.weights[child] {
			break
		}

		s.swap(slot, child)
		slot = child
		child = 2*slot + 1
	}
}

// siftUp restores the heap property by moving the element at slotIn up.
func (s *ItemsSketch[T]) siftUp(slotIn int) {
	slot := slotIn
	p := ((slot + 1) / 2) - 1 // parent

	for slot > 0 && s.weights[slot] < s.weights[p] {
		s.swap(slot, p)
		slot = p
		p = ((slot + 1) / 2) - 1
	}
}

// swap exchanges items at two positions.
func (s *ItemsSketch[T]) swap(i, j int) {
	s.data[i], s.data[j] = s.data[j], s.data[i]
	s.weights[i], s.weights[j] = s.weights[j], s.weights[i]
}

// growDataArrays increases the capacity of the data and weights arrays.
func (s *ItemsSketch[T]) growDataArrays() {
	prevSize := s.allocatedSize
	newSize := adjustedSamplingAllocationSize(s.k, prevSize<<int(s.rf))

	if newSize > prevSize {
		newData := make([]T, len(s.data), newSize)
		copy(newData, s.data)
		s.data = newData

		newWeights := make([]float64, len(s.weights), newSize)
		copy(newWeights, s.weights)
		s.weights = newWeights

		s.allocatedSize = newSize
	}
}

// ToSlice serializes the sketch using the provided SerDe.
func (s *ItemsSketch[T]) ToSlice(serde common.ItemsSerDe[T]) ([]byte, error) {
	if serde == nil {
		return nil, errors.New("nil serde")
	}
	rfBits, err := encodeResizeFactor(s.rf)
	if err != nil {
		return nil, err
	}

	if s.IsEmpty() {
		buf := make([]byte, preambleLongsEmpty*8)
		buf[0] = rfBits | preambleLongsEmpty
		buf[1] = serVer
		buf[2] = familySketchID
		buf[3] = flagEmpty
		binary.LittleEndian.PutUint32(buf[4:], uint32(s.k))
		return buf, nil
	}

	itemBytes, err := serde.SerializeToBytes(s.data)
	if err != nil {
		return nil, err
	}

	numSamples := len(s.data)
	preBytes := preambleLongsNonEmpty * 8
	buf := make([]byte, preBytes+numSamples*8+checksumBytes+len(itemBytes))

	buf[0] = rfBits | preambleLongsNonEmpty
	buf[1] = serVer
	buf[2] = familySketchID
	// byte 3: flags, all clear
	binary.LittleEndian.PutUint32(buf[4:], uint32(s.k))
	binary.LittleEndian.PutUint64(buf[8:], uint64(s.n))
	binary.LittleEndian.PutUint32(buf[16:], uint32(numSamples))
	// bytes 20-23 reserved

	offset := preBytes
	for i := 0; i < numSamples; i++ {
		binary.LittleEndian.PutUint64(buf[offset:], math.Float64bits(s.weights[i]))
		offset += 8
	}
	binary.LittleEndian.PutUint64(buf[offset:], xxhash.Sum64(itemBytes))
	offset += checksumBytes
	copy(buf[offset:], itemBytes)

	return buf, nil
}

// NewItemsSketchFromSlice deserializes a sketch using the provided SerDe.
// A restored sketch draws future priorities from the shared process-wide
// generator.
func NewItemsSketchFromSlice[T any](mem []byte, serde common.ItemsSerDe[T]) (*ItemsSketch[T], error) {
	if serde == nil {
		return nil, errors.New("nil serde")
	}
	if len(mem) < 8 {
		return nil, errors.New("data too short")
	}

	preLongs := int(mem[0] & 0x3F)
	rfBits := (mem[0] >> 6) & 0x03
	ver := mem[1]
	family := mem[2]
	flags := mem[3]
	k := int(int32(binary.LittleEndian.Uint32(mem[4:])))

	if ver != serVer {
		return nil, fmt.Errorf("unsupported serialization version: %d", ver)
	}
	if family != familySketchID {
		return nil, fmt.Errorf("wrong sketch family: %d", family)
	}
	rf, err := decodeResizeFactor(rfBits)
	if err != nil {
		return nil, err
	}
	if k < 0 {
		return nil, fmt.Errorf("k must not be negative: %d", k)
	}

	empty := flags&flagEmpty != 0
	if preLongs == preambleLongsEmpty {
		if !empty {
			return nil, errors.New("short preamble without empty flag")
		}
		return NewItemsSketch[T](k, WithItemsSketchResizeFactor(rf))
	}
	if preLongs != preambleLongsNonEmpty {
		return nil, fmt.Errorf("invalid preamble longs: %d", preLongs)
	}
	if empty {
		return nil, errors.New("empty flag set on non-empty preamble")
	}
	if len(mem) < preambleLongsNonEmpty*8 {
		return nil, errors.New("data too short for preamble")
	}

	n := int64(binary.LittleEndian.Uint64(mem[8:]))
	numSamples := int(int32(binary.LittleEndian.Uint32(mem[16:])))
	if n <= 0 {
		return nil, fmt.Errorf("non-positive n on non-empty sketch: %d", n)
	}
	expected := int(common.MinOf(int64(k), n))
	if numSamples != expected {
		return nil, fmt.Errorf("sample count inconsistent with k and n: %d", numSamples)
	}

	offset := preambleLongsNonEmpty * 8
	if len(mem) < offset+numSamples*8+checksumBytes {
		return nil, errors.New("data too short for priorities")
	}
	weights := make([]float64, numSamples)
	for i := range weights {
		w := math.Float64frombits(binary.LittleEndian.Uint64(mem[offset:]))
		if math.IsNaN(w) || w < 0 || w >= 1 {
			return nil, fmt.Errorf("priority out of range: %v", w)
		}
		weights[i] = w
		offset += 8
	}

	declared := binary.LittleEndian.Uint64(mem[offset:])
	offset += checksumBytes
	itemBytes := mem[offset:]
	if computed := xxhash.Sum64(itemBytes); computed != declared {
		return nil, fmt.Errorf("item checksum mismatch: computed %x, stored %x", computed, declared)
	}

	items, err := serde.DeserializeFromBytes(itemBytes, numSamples)
	if err != nil {
		return nil, err
	}
	if len(items) != numSamples {
		return nil, fmt.Errorf("serde returned %d items, want %d", len(items), numSamples)
	}

	allocatedSize := common.MaxOf(initialAllocation(k, rf), numSamples)
	sketch := &ItemsSketch[T]{
		k:             k,
		n:             n,
		data:          make([]T, numSamples, allocatedSize),
		weights:       make([]float64, numSamples, allocatedSize),
		rf:            rf,
		allocatedSize: allocatedSize,
		rng:           globalRNG,
	}
	copy(sketch.data, items)
	copy(sketch.weights, weights)
	return sketch, nil
}

// ItemsSketchEncoder writes sketch images to an io.Writer.
type ItemsSketchEncoder[T any] struct {
	w     io.Writer
	serde common.ItemsSerDe[T]
}

// NewItemsSketchEncoder creates an encoder with the provided writer and serde.
func NewItemsSketchEncoder[T any](w io.Writer, serde common.ItemsSerDe[T]) ItemsSketchEncoder[T] {
	return ItemsSketchEncoder[T]{w: w, serde: serde}
}

// Encode writes the serialized sketch to the encoder's writer.
func (e ItemsSketchEncoder[T]) Encode(sketch *ItemsSketch[T]) error {
	if e.w == nil {
		return errors.New("nil writer")
	}
	data, err := sketch.ToSlice(e.serde)
	if err != nil {
		return err
	}
	_, err = e.w.Write(data)
	return err
}

// ItemsSketchDecoder reads sketch images from an io.Reader.
type ItemsSketchDecoder[T any] struct {
	r     io.Reader
	serde common.ItemsSerDe[T]
}

// NewItemsSketchDecoder creates a decoder with the provided reader and serde.
func NewItemsSketchDecoder[T any](r io.Reader, serde common.ItemsSerDe[T]) ItemsSketchDecoder[T] {
	return ItemsSketchDecoder[T]{r: r, serde: serde}
}

// Decode reads all bytes from the decoder's reader and deserializes the sketch.
func (d ItemsSketchDecoder[T]) Decode() (*ItemsSketch[T], error) {
	if d.r == nil {
		return nil, errors.New("nil reader")
	}
	data, err := io.ReadAll(d.r)
	if err != nil {
		return nil, err
	}
	return NewItemsSketchFromSlice[T](data, d.serde)
}
