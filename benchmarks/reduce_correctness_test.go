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
	"math"
	"math/rand/v2"
	"testing"

	"stride"
)

func TestReduceAgreesWithBaselines(t *testing.T) {
	values := make([]float64, 10000)
	for i := range values {
		values[i] = float64(i)
	}
	for _, s := range stride.Strategies() {
		for _, k := range stride.SupportedRegisters() {
			got, err := stride.Reduce(values, k, s)
			if err != nil {
				t.Fatalf("%s k=%d: %v", s, k, err)
			}
			if got != 49995000 {
				t.Errorf("%s k=%d: sum = %v, want 49995000", s, k, got)
			}
		}
	}
}

// TestReduceErrorBound checks that reordering the sum never moves it far from
// the compensated reference, for every strategy and register count.
func TestReduceErrorBound(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 1024))
	values := make([]float64, vectorSize+13)
	for i := range values {
		values[i] = r.Float64()
	}
	ref := KahanSum(values)
	naive := NaiveSum(values)
	if rel := math.Abs(naive-ref) / ref; rel > 1e-12 {
		t.Fatalf("naive sum drifted %g from reference", rel)
	}
	for _, s := range stride.Strategies() {
		for _, k := range stride.SupportedRegisters() {
			got, err := stride.Reduce(values, k, s)
			if err != nil {
				t.Fatal(err)
			}
			if rel := math.Abs(got-ref) / ref; rel > 1e-12 {
				t.Errorf("%s k=%d: relative error %g exceeds 1e-12", s, k, rel)
			}
		}
	}
}
