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

// Package benchmarks contains the performance tests for the stride engine and
// the vecops kernels, plus reference reducers they are compared against.
package benchmarks

// NaiveSum is the range-loop sum every strategy is measured against.
func NaiveSum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

// KahanSum is a compensated sum used as the accuracy reference: it is far
// closer to the exact sum than any plain reordering.
func KahanSum(values []float64) float64 {
	var sum, c float64
	for _, v := range values {
		y := v - c
		t := sum + y
		c = (t - sum) - y
		sum = t
	}
	return sum
}
