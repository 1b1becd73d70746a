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

// Concrete kernels for the hot strategies. They perform exactly the same
// additions, in the same order, as the Register/pass composition, so results
// are bit-identical to the generic path; they only avoid the interface call
// per element.

// unrolledSinglePass handles SinglePassMultiRegister for k in {1, 2, 4, 8}.
func unrolledSinglePass[T Float](values []T, k int) (T, bool) {
	switch k {
	case 1:
		return Sum(values), true
	case 2:
		return singlePass2(values), true
	case 4:
		return singlePass4(values), true
	case 8:
		return singlePass8(values), true
	}
	return 0, false
}

func singlePass2[T Float](values []T) T {
	var a0, a1 T
	n := len(values) &^ 1
	for i := 0; i < n; i += 2 {
		v := values[i : i+2 : i+2]
		a0 += v[0]
		a1 += v[1]
	}
	return a0 + a1 + Sum(values[n:])
}

func singlePass4[T Float](values []T) T {
	var acc [4]T
	n := len(values) &^ 3
	for i := 0; i < n; i += 4 {
		v := values[i : i+4 : i+4]
		acc[0] += v[0]
		acc[1] += v[1]
		acc[2] += v[2]
		acc[3] += v[3]
	}
	return acc[0] + acc[1] + acc[2] + acc[3] + Sum(values[n:])
}

func singlePass8[T Float](values []T) T {
	var acc [8]T
	n := len(values) &^ 7
	for i := 0; i < n; i += 8 {
		v := values[i : i+8 : i+8]
		acc[0] += v[0]
		acc[1] += v[1]
		acc[2] += v[2]
		acc[3] += v[3]
		acc[4] += v[4]
		acc[5] += v[5]
		acc[6] += v[6]
		acc[7] += v[7]
	}
	sum := acc[0] + acc[1] + acc[2] + acc[3] + acc[4] + acc[5] + acc[6] + acc[7]
	return sum + Sum(values[n:])
}

// multiPassMulti handles MultiPassMultiRegister for any k.
func multiPassMulti[T Float](values []T, k int) T {
	d := len(values) / k
	if d == 0 {
		return Sum(values)
	}
	acc := make([]T, k)
	for t := 0; t < d; t++ {
		for lane, off := 0, t; lane < k; lane, off = lane+1, off+d {
			acc[lane] += values[off]
		}
	}
	sum := acc[0]
	for _, v := range acc[1:] {
		sum += v
	}
	return sum + Sum(values[k*d:])
}
