// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stride

// Register receives the values routed by a pass. lane is the sub-stream the
// value came from, in [0, k).
type Register[T Float] interface {
	Store(lane int, v T)
	Result() T
	Reset()
}

// SingleRegister folds every stored value into one accumulator, ignoring the
// lane. This keeps a single dependency chain across the whole pass.
type SingleRegister[T Float] struct {
	acc T
}

// NewSingleRegister returns an empty single accumulator.
func NewSingleRegister[T Float]() *SingleRegister[T] {
	return &SingleRegister[T]{}
}

// Store adds v to the accumulator.
func (r *SingleRegister[T]) Store(_ int, v T) { r.acc += v }

// Result returns the accumulated sum.
func (r *SingleRegister[T]) Result() T { return r.acc }

// Reset zeroes the accumulator.
func (r *SingleRegister[T]) Reset() { r.acc = 0 }

// MultiRegister keeps one accumulator per lane. The lanes are combined only
// in Result, left to right.
type MultiRegister[T Float] struct {
	acc []T
}

// NewMultiRegister returns k zeroed lane accumulators. k below 1 is treated
// as 1.
func NewMultiRegister[T Float](k int) *MultiRegister[T] {
	if k < 1 {
		k = 1
	}
	return &MultiRegister[T]{acc: make([]T, k)}
}

// Store adds v to the accumulator of lane. lane must be in [0, Lanes()).
func (r *MultiRegister[T]) Store(lane int, v T) { r.acc[lane] += v }

// Result returns acc[0] + acc[1] + ... + acc[k-1].
func (r *MultiRegister[T]) Result() T {
	sum := r.acc[0]
	for _, v := range r.acc[1:] {
		sum += v
	}
	return sum
}

// Reset zeroes every lane.
func (r *MultiRegister[T]) Reset() { clear(r.acc) }

// Lanes returns the number of lane accumulators.
func (r *MultiRegister[T]) Lanes() int { return len(r.acc) }

// Partials returns a copy of the per-lane sums.
func (r *MultiRegister[T]) Partials() []T {
	out := make([]T, len(r.acc))
	copy(out, r.acc)
	return out
}
