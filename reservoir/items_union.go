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
	"strings"

	"github.com/apache/sampling-go/common"
)

// ItemsUnion merges any number of sketches, possibly built with different
// capacities, into one sample. This is the gadget a distributed job uses when
// workers sized their local sketches independently; Merge alone only accepts
// equal capacities.
//
// The union's effective capacity is maxK reduced by the k of every absorbed
// sketch that was in sampling mode: such a sketch only knows its top-k
// priorities, so pooling beyond that k would bias the sample. Sketches still
// in exact mode retain every occurrence they saw and never shrink the result;
// absorbing one into an exact-mode gadget keeps the gadget at maxK.
//
// Priorities carried by retained items survive absorption, so the gadget is
// always the top-effectiveK of the pooled weighted items.
type ItemsUnion[T any] struct {
	maxK   int
	gadget *ItemsSketch[T] // nil until the first update
	rng    *rng
}

type ItemsUnionOption func(*itemsUnionConfig)

type itemsUnionConfig struct {
	source    Source
	sourceSet bool
}

// WithUnionSource draws priorities for items fed directly to the union from
// src instead of the shared process-wide generator.
func WithUnionSource(src Source) ItemsUnionOption {
	return func(c *itemsUnionConfig) {
		c.source = src
		c.sourceSet = true
	}
}

// NewItemsUnion creates a union with the given maximum capacity.
func NewItemsUnion[T any](maxK int, opts ...ItemsUnionOption) (*ItemsUnion[T], error) {
	if maxK < 0 {
		return nil, fmt.Errorf("maxK must not be negative: %d", maxK)
	}
	if maxK > maxSketchK {
		return nil, fmt.Errorf("maxK must not exceed %d: %d", maxSketchK, maxK)
	}

	cfg := &itemsUnionConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.sourceSet && cfg.source == nil {
		return nil, errors.New("source must not be nil")
	}

	r := globalRNG
	if cfg.sourceSet {
		r = &rng{src: cfg.source}
	}
	return &ItemsUnion[T]{maxK: maxK, rng: r}, nil
}

// MaxK returns the maximum capacity of the union.
func (u *ItemsUnion[T]) MaxK() int { return u.maxK }

// Update adds a single item directly to the union.
func (u *ItemsUnion[T]) Update(item T) {
	if u.gadget == nil {
		u.gadget = u.newGadget(u.maxK)
	}
	u.gadget.Update(item)
}

// UpdateSketch absorbs a sketch into the union. The sketch is not modified.
func (u *ItemsUnion[T]) UpdateSketch(sketch *ItemsSketch[T]) {
	if sketch == nil || sketch.IsEmpty() {
		return
	}

	in := sketch
	if in.k > u.maxK {
		in = in.DownsampledCopy(u.maxK)
	}

	if u.gadget == nil || u.gadget.IsEmpty() {
		u.initGadget(in)
		return
	}

	// A sampling-mode input caps the pool at its own k. An exact-mode input
	// imposes nothing, but its k may exceed the gadget's: the gadget's k is
	// already the binding cap, so the input is folded in as is.
	if in.inSamplingMode() && in.k < u.gadget.k {
		u.gadget = u.gadget.DownsampledCopy(in.k)
	}
	if u.gadget.k < in.k {
		in = in.DownsampledCopy(u.gadget.k)
	}
	u.gadget.absorb(in)
}

// initGadget seeds an empty union from the first absorbed sketch. An
// exact-mode sketch smaller than maxK is upsized so later inputs can still
// fill the union to its full capacity.
func (u *ItemsUnion[T]) initGadget(in *ItemsSketch[T]) {
	if in.k < u.maxK && !in.inSamplingMode() {
		u.gadget = u.newGadget(u.maxK)
		u.gadget.absorb(in)
		return
	}
	u.gadget = in.Copy()
	u.gadget.rng = u.rng
}

func (u *ItemsUnion[T]) newGadget(k int) *ItemsSketch[T] {
	g, _ := NewItemsSketch[T](k)
	g.rng = u.rng
	return g
}

// Result returns a copy of the union's current state as a sketch.
func (u *ItemsUnion[T]) Result() (*ItemsSketch[T], error) {
	if u.gadget == nil {
		return NewItemsSketch[T](u.maxK)
	}
	return u.gadget.Copy(), nil
}

// Reset clears the union while preserving maxK and the random source.
func (u *ItemsUnion[T]) Reset() {
	u.gadget = nil
}

// String returns a human-readable summary of the union.
func (u *ItemsUnion[T]) String() string {
	var sb strings.Builder
	sb.WriteString("### ItemsUnion SUMMARY:\n")
	sb.WriteString(fmt.Sprintf("   Max K: %d\n", u.maxK))
	if u.gadget == nil {
		sb.WriteString("   Gadget: empty\n")
	} else {
		sb.WriteString("   Gadget:\n")
		sb.WriteString(u.gadget.String())
	}
	sb.WriteString("### END UNION SUMMARY\n")
	return sb.String()
}

// ToSlice serializes the union: a one-long preamble carrying maxK, followed
// by the gadget's own image when one exists.
func (u *ItemsUnion[T]) ToSlice(serde common.ItemsSerDe[T]) ([]byte, error) {
	if serde == nil {
		return nil, errors.New("nil serde")
	}

	pre := make([]byte, preambleLongsEmpty*8)
	pre[0] = preambleLongsEmpty
	pre[1] = serVer
	pre[2] = familyUnionID
	binary.LittleEndian.PutUint32(pre[4:], uint32(u.maxK))

	if u.gadget == nil {
		pre[3] = flagEmpty
		return pre, nil
	}

	gadgetBytes, err := u.gadget.ToSlice(serde)
	if err != nil {
		return nil, err
	}
	return append(pre, gadgetBytes...), nil
}

// NewItemsUnionFromSlice deserializes a union image. A restored union draws
// future priorities from the shared process-wide generator.
func NewItemsUnionFromSlice[T any](mem []byte, serde common.ItemsSerDe[T]) (*ItemsUnion[T], error) {
	if serde == nil {
		return nil, errors.New("nil serde")
	}
	if len(mem) < preambleLongsEmpty*8 {
		return nil, errors.New("data too short")
	}

	preLongs := int(mem[0] & 0x3F)
	ver := mem[1]
	family := mem[2]
	flags := mem[3]
	maxK := int(int32(binary.LittleEndian.Uint32(mem[4:])))

	if preLongs != preambleLongsEmpty {
		return nil, fmt.Errorf("invalid union preamble longs: %d", preLongs)
	}
	if ver != serVer {
		return nil, fmt.Errorf("unsupported serialization version: %d", ver)
	}
	if family != familyUnionID {
		return nil, fmt.Errorf("wrong sketch family: %d", family)
	}
	if maxK < 0 {
		return nil, fmt.Errorf("maxK must not be negative: %d", maxK)
	}

	union, err := NewItemsUnion[T](maxK)
	if err != nil {
		return nil, err
	}
	if flags&flagEmpty != 0 {
		return union, nil
	}

	gadget, err := NewItemsSketchFromSlice[T](mem[preambleLongsEmpty*8:], serde)
	if err != nil {
		return nil, err
	}
	if gadget.k > maxK {
		return nil, fmt.Errorf("gadget k exceeds maxK: %d > %d", gadget.k, maxK)
	}
	union.gadget = gadget
	return union, nil
}

// ItemsUnionEncoder writes union images to an io.Writer.
type ItemsUnionEncoder[T any] struct {
	w     io.Writer
	serde common.ItemsSerDe[T]
}

// NewItemsUnionEncoder creates an encoder with the provided writer and serde.
func NewItemsUnionEncoder[T any](w io.Writer, serde common.ItemsSerDe[T]) ItemsUnionEncoder[T] {
	return ItemsUnionEncoder[T]{w: w, serde: serde}
}

// Encode writes the serialized union to the encoder's writer.
func (e ItemsUnionEncoder[T]) Encode(union *ItemsUnion[T]) error {
	if e.w == nil {
		return errors.New("nil writer")
	}
	data, err := union.ToSlice(e.serde)
	if err != nil {
		return err
	}
	_, err = e.w.Write(data)
	return err
}

// ItemsUnionDecoder reads union images from an io.Reader.
type ItemsUnionDecoder[T any] struct {
	r     io.Reader
	serde common.ItemsSerDe[T]
}

// NewItemsUnionDecoder creates a decoder with the provided reader and serde.
func NewItemsUnionDecoder[T any](r io.Reader, serde common.ItemsSerDe[T]) ItemsUnionDecoder[T] {
	return ItemsUnionDecoder[T]{r: r, serde: serde}
}

// Decode reads all bytes from the decoder's reader and deserializes the union.
func (d ItemsUnionDecoder[T]) Decode() (*ItemsUnion[T], error) {
	if d.r == nil {
		return nil, errors.New("nil reader")
	}
	data, err := io.ReadAll(d.r)
	if err != nil {
		return nil, err
	}
	return NewItemsUnionFromSlice[T](data, d.serde)
}
