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

package common

import (
	"encoding/binary"

	"github.com/twmb/murmur3"
)

// DeriveSeed mixes a job-level seed with a stream index into an independent
// per-stream seed. Replayable distributed runs give every partition its own
// generator seeded with DeriveSeed(jobSeed, partitionIndex); reusing the job
// seed directly would make all partitions draw the same sequence.
func DeriveSeed(jobSeed uint64, stream uint64) uint64 {
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], stream)
	return murmur3.SeedSum64(jobSeed, scratch[:])
}
