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

package benchmarks

import (
	"testing"

	"stride/pkg/vecops"
)

const vecopsSize = 64000

func operands(n, count int) [][]float64 {
	out := make([][]float64, count)
	for i := range out {
		out[i] = filled(n, 2.0)
	}
	return out
}

// ---- elementwise kernels ----

func BenchmarkVecops_Add(b *testing.B) {
	ops := operands(vecopsSize, 3)
	b.SetBytes(vecopsSize * 8 * 3)
	for i := 0; i < b.N; i++ {
		_ = vecops.Add(ops[0], ops[1], ops[2])
	}
}

func BenchmarkVecops_Mul(b *testing.B) {
	ops := operands(vecopsSize, 3)
	b.SetBytes(vecopsSize * 8 * 3)
	for i := 0; i < b.N; i++ {
		_ = vecops.Mul(ops[0], ops[1], ops[2])
	}
}

func BenchmarkVecops_Log(b *testing.B) {
	ops := operands(vecopsSize, 2)
	for i := 0; i < b.N; i++ {
		_ = vecops.Log(ops[0], ops[1])
	}
}

func BenchmarkVecops_AddInPlace(b *testing.B) {
	ops := operands(vecopsSize, 2)
	for i := 0; i < b.N; i++ {
		_ = vecops.AddInPlace(ops[0], ops[1])
	}
}

func BenchmarkVecops_LogInPlace(b *testing.B) {
	x := filled(vecopsSize, 2.0)
	for i := 0; i < b.N; i++ {
		vecops.LogInPlace(x)
		// keep inputs in the log domain instead of drifting to NaN
		if x[0] < 0 {
			for j := range x {
				x[j] = 2.0
			}
		}
	}
}

// ---- fused vs sequenced ----

func BenchmarkVecops_MulAdd_Fused(b *testing.B) {
	ops := operands(vecopsSize, 4)
	for i := 0; i < b.N; i++ {
		_ = vecops.MulAdd(ops[0], ops[1], ops[2], ops[3])
	}
}

func BenchmarkVecops_MulAdd_Sequenced(b *testing.B) {
	ops := operands(vecopsSize, 4)
	for i := 0; i < b.N; i++ {
		_ = vecops.Mul(ops[0], ops[1], ops[2])
		_ = vecops.AddInPlace(ops[0], ops[3])
	}
}

func BenchmarkVecops_MulAddMulAdd_Fused(b *testing.B) {
	ops := operands(vecopsSize, 6)
	for i := 0; i < b.N; i++ {
		_ = vecops.MulAddMulAdd(ops[0], ops[1], ops[2], ops[3], ops[4], ops[5])
	}
}

func BenchmarkVecops_MulAddMulAdd_Sequenced(b *testing.B) {
	ops := operands(vecopsSize, 6)
	for i := 0; i < b.N; i++ {
		_ = vecops.Mul(ops[0], ops[1], ops[2])
		_ = vecops.AddInPlace(ops[0], ops[3])
		_ = vecops.MulInPlace(ops[0], ops[4])
		_ = vecops.AddInPlace(ops[0], ops[5])
	}
}

func BenchmarkVecops_LogMulAdd_Fused(b *testing.B) {
	ops := operands(vecopsSize, 4)
	for i := 0; i < b.N; i++ {
		_ = vecops.LogMulAdd(ops[0], ops[1], ops[2], ops[3])
	}
}

func BenchmarkVecops_LogMulAdd_Sequenced(b *testing.B) {
	ops := operands(vecopsSize, 4)
	for i := 0; i < b.N; i++ {
		_ = vecops.Mul(ops[0], ops[1], ops[2])
		_ = vecops.AddInPlace(ops[0], ops[3])
		vecops.LogInPlace(ops[0])
	}
}

// ---- many operands: one wide pass vs several narrower passes ----

func BenchmarkVecops_AddN16(b *testing.B) {
	ops := operands(vecopsSize, 17)
	for i := 0; i < b.N; i++ {
		_ = vecops.AddN(ops[0], ops[1:]...)
	}
}

func BenchmarkVecops_AddN8x2(b *testing.B) {
	ops := operands(vecopsSize, 17)
	for i := 0; i < b.N; i++ {
		_ = vecops.AddN(ops[0], ops[1:9]...)
		_ = vecops.AddNAccumulate(ops[0], ops[9:17]...)
	}
}

func BenchmarkVecops_AddN4x4(b *testing.B) {
	ops := operands(vecopsSize, 17)
	for i := 0; i < b.N; i++ {
		_ = vecops.AddN(ops[0], ops[1:5]...)
		_ = vecops.AddNAccumulate(ops[0], ops[5:9]...)
		_ = vecops.AddNAccumulate(ops[0], ops[9:13]...)
		_ = vecops.AddNAccumulate(ops[0], ops[13:17]...)
	}
}

// ---- transform into a preallocated slice vs append ----

func BenchmarkTransform_Assign(b *testing.B) {
	src := filled(vecopsSize, 3.0)
	dst := make([]float64, vecopsSize)
	for i := 0; i < b.N; i++ {
		_ = vecops.Scale(dst, src, 2)
	}
}

func BenchmarkTransform_Append(b *testing.B) {
	src := filled(vecopsSize, 3.0)
	dst := make([]float64, 0, vecopsSize)
	for i := 0; i < b.N; i++ {
		dst = dst[:0]
		for _, v := range src {
			dst = append(dst, v*2)
		}
	}
}
