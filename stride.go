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

// Package stride provides a strided, multi-register reduction engine for
// floating-point sequences. A sequence is split into K sub-streams so that K
// independent accumulation chains can overlap in the CPU pipeline, and the
// per-lane partial sums are combined once at the end.
//
// Two partitioning policies are offered. Single-pass walks the sequence once
// and routes element j of every group of K to lane j. Multi-pass cuts the
// sequence into K contiguous blocks of length L/K and walks them in lock-step.
// Each policy can feed either a single register (one long dependency chain)
// or K registers (K short chains). The trailing L mod K elements are summed
// sequentially and added after the fan-in.
package stride

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidArgument is wrapped by every error returned for bad input.
var ErrInvalidArgument = errors.New("invalid argument")

// Float is the set of element types the engine reduces.
type Float interface {
	~float32 | ~float64
}

// Strategy selects the partitioning policy and the register layout. The zero
// value is not a valid strategy; Options treats it as "use the default".
type Strategy int

const (
	// SinglePassSingleRegister walks once, K elements per step, into one accumulator.
	SinglePassSingleRegister Strategy = iota + 1
	// SinglePassMultiRegister walks once, K elements per step, element j into lane j.
	SinglePassMultiRegister
	// MultiPassSingleRegister walks K contiguous blocks in lock-step into one accumulator.
	MultiPassSingleRegister
	// MultiPassMultiRegister walks K contiguous blocks in lock-step, block i into lane i.
	MultiPassMultiRegister
)

var strategyNames = [...]string{
	SinglePassSingleRegister: "single-pass-single-register",
	SinglePassMultiRegister:  "single-pass-multi-register",
	MultiPassSingleRegister:  "multi-pass-single-register",
	MultiPassMultiRegister:   "multi-pass-multi-register",
}

var strategyAliases = map[string]Strategy{
	"sp-sr":                  SinglePassSingleRegister,
	"sp-mr":                  SinglePassMultiRegister,
	"mp-sr":                  MultiPassSingleRegister,
	"mp-mr":                  MultiPassMultiRegister,
	"single_pass_single_reg": SinglePassSingleRegister,
	"single_pass_multi_reg":  SinglePassMultiRegister,
	"multi_pass_single_reg":  MultiPassSingleRegister,
	"multi_pass_multi_reg":   MultiPassMultiRegister,
}

// Strategies returns every strategy in declaration order.
func Strategies() []Strategy {
	return []Strategy{
		SinglePassSingleRegister,
		SinglePassMultiRegister,
		MultiPassSingleRegister,
		MultiPassMultiRegister,
	}
}

// String returns the kebab-case name of the strategy.
func (s Strategy) String() string {
	if !s.valid() {
		return fmt.Sprintf("strategy(%d)", int(s))
	}
	return strategyNames[s]
}

// SinglePass reports whether the strategy uses the single-pass policy.
func (s Strategy) SinglePass() bool {
	return s == SinglePassSingleRegister || s == SinglePassMultiRegister
}

// MultiRegister reports whether the strategy keeps one accumulator per lane.
func (s Strategy) MultiRegister() bool {
	return s == SinglePassMultiRegister || s == MultiPassMultiRegister
}

func (s Strategy) valid() bool {
	return s >= SinglePassSingleRegister && s <= MultiPassMultiRegister
}

// ParseStrategy accepts the kebab-case names returned by String, the short
// forms sp-sr, sp-mr, mp-sr and mp-mr, and the snake_case forms such as
// single_pass_multi_reg. Matching is case-insensitive.
func ParseStrategy(name string) (Strategy, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range strategyNames {
		if i > 0 && s == n {
			return Strategy(i), nil
		}
	}
	if s, ok := strategyAliases[n]; ok {
		return s, nil
	}
	return 0, fmt.Errorf("%w: unknown strategy %q", ErrInvalidArgument, name)
}

// supportedRegisters are the fan-out factors swept by the benchmarks.
var supportedRegisters = []int{1, 2, 3, 4, 5, 6, 7, 8, 16, 32, 64, 128}

// SupportedRegisters returns the register counts the benchmarks sweep. Any
// positive count is accepted by Reduce; this list is informational.
func SupportedRegisters() []int {
	out := make([]int, len(supportedRegisters))
	copy(out, supportedRegisters)
	return out
}

// Reduce sums values using k lanes and the given strategy. An empty sequence
// sums to 0. k must be positive.
func Reduce(values []float64, k int, s Strategy) (float64, error) {
	return ReduceOf(values, k, s)
}

// ReduceOf is the generic form of Reduce.
func ReduceOf[T Float](values []T, k int, s Strategy) (T, error) {
	return reduce(values, k, s, false)
}

func reduce[T Float](values []T, k int, s Strategy, strict bool) (T, error) {
	if k <= 0 {
		return 0, fmt.Errorf("%w: registers must be positive, got %d", ErrInvalidArgument, k)
	}
	if !s.valid() {
		return 0, fmt.Errorf("%w: unknown strategy %d", ErrInvalidArgument, int(s))
	}
	if strict && s.SinglePass() && len(values)%k != 0 {
		return 0, fmt.Errorf("%w: single-pass length %d is not a multiple of %d registers",
			ErrInvalidArgument, len(values), k)
	}
	if len(values) == 0 {
		return 0, nil
	}

	switch s {
	case SinglePassMultiRegister:
		if sum, ok := unrolledSinglePass(values, k); ok {
			return sum, nil
		}
	case MultiPassMultiRegister:
		return multiPassMulti(values, k), nil
	}

	var r Register[T]
	if s.MultiRegister() {
		r = NewMultiRegister[T](k)
	} else {
		r = NewSingleRegister[T]()
	}
	var tail []T
	if s.SinglePass() {
		tail = SinglePass(r, values, k)
	} else {
		tail = MultiPass(r, values, k)
	}
	return r.Result() + Sum(tail), nil
}

// Sum is the plain left-to-right accumulation used as the baseline and for
// remainder handling.
func Sum[T Float](values []T) T {
	var sum T
	for _, v := range values {
		sum += v
	}
	return sum
}
