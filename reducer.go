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

import "fmt"

const (
	// DefaultRegisters is the register count used when Options.Registers is 0.
	DefaultRegisters = 8
	// DefaultStrategy is the strategy used when Options.Strategy is 0.
	DefaultStrategy = MultiPassMultiRegister
)

// Options configures a Reducer.
type Options struct {
	// Registers is the fan-out factor K. 0 uses DefaultRegisters.
	Registers int

	// Strategy selects partitioning and register layout. The zero value
	// uses DefaultStrategy.
	Strategy Strategy

	// StrictSinglePass rejects single-pass reductions whose length is not a
	// multiple of Registers instead of summing the tail separately.
	StrictSinglePass bool
}

// Reducer is a validated, reusable reduction configuration. It holds no
// mutable state and is safe for concurrent use.
type Reducer struct {
	k        int
	strategy Strategy
	strict   bool
}

// New returns a Reducer with k registers and strategy s.
func New(k int, s Strategy) (*Reducer, error) {
	return NewWithOptions(Options{Registers: k, Strategy: s})
}

// NewWithOptions validates opts and returns a Reducer.
func NewWithOptions(opts Options) (*Reducer, error) {
	k := opts.Registers
	if k == 0 {
		k = DefaultRegisters
	}
	if k < 0 {
		return nil, fmt.Errorf("%w: registers must be positive, got %d", ErrInvalidArgument, k)
	}
	s := opts.Strategy
	if s == 0 {
		s = DefaultStrategy
	}
	if !s.valid() {
		return nil, fmt.Errorf("%w: unknown strategy %d", ErrInvalidArgument, int(s))
	}
	return &Reducer{k: k, strategy: s, strict: opts.StrictSinglePass}, nil
}

// Registers returns the configured fan-out factor.
func (r *Reducer) Registers() int { return r.k }

// Strategy returns the configured strategy.
func (r *Reducer) Strategy() Strategy { return r.strategy }

// Strict reports whether single-pass tails are rejected.
func (r *Reducer) Strict() bool { return r.strict }

// Reduce sums values with the reducer's configuration.
func (r *Reducer) Reduce(values []float64) (float64, error) {
	return reduce(values, r.k, r.strategy, r.strict)
}

// ReduceWith sums values overriding the register count and strategy while
// keeping the reducer's remainder policy. Zero k or s keeps the configured
// value.
func (r *Reducer) ReduceWith(values []float64, k int, s Strategy) (float64, error) {
	if k == 0 {
		k = r.k
	}
	if s == 0 {
		s = r.strategy
	}
	return reduce(values, k, s, r.strict)
}

// Reduce32 is Reduce for float32 sequences.
func (r *Reducer) Reduce32(values []float32) (float32, error) {
	return reduce(values, r.k, r.strategy, r.strict)
}
