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

// SinglePass walks values once, k consecutive elements per step, storing
// element j of each group into lane j. It returns the trailing len(values)
// mod k elements it did not consume. k must be positive.
func SinglePass[T Float](r Register[T], values []T, k int) (tail []T) {
	n := len(values) - len(values)%k
	for i := 0; i < n; i += k {
		group := values[i : i+k : i+k]
		for lane, v := range group {
			r.Store(lane, v)
		}
	}
	return values[n:]
}

// MultiPass splits the first k*(len(values)/k) elements into k contiguous
// blocks of length d = len(values)/k and walks them in lock-step: step t
// stores values[i*d+t] into lane i for i = 0..k-1. It returns the trailing
// elements that do not fill a block. k must be positive.
func MultiPass[T Float](r Register[T], values []T, k int) (tail []T) {
	d := len(values) / k
	n := k * d
	if d == 0 {
		return values
	}
	for t := 0; t < d; t++ {
		for lane, off := 0, t; lane < k; lane, off = lane+1, off+d {
			r.Store(lane, values[off])
		}
	}
	return values[n:]
}
