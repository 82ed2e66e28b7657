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

import "golang.org/x/exp/constraints"

// NaturalOrder reports whether a orders before b under <.
func NaturalOrder[T constraints.Ordered](a, b T) bool {
	return a < b
}

// MinOf returns the smaller of a and b.
func MinOf[T constraints.Ordered](a, b T) T {
	if b < a {
		return b
	}
	return a
}

// MaxOf returns the larger of a and b.
func MaxOf[T constraints.Ordered](a, b T) T {
	if b > a {
		return b
	}
	return a
}
