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

// Package vecops provides elementwise float64 kernels: binary and fused
// arithmetic written as single tight loops so the compiler can keep them in
// registers, plus their in-place and multi-operand forms. Comparing a fused
// kernel (MulAdd) against its sequenced equivalent (Mul then AddInPlace) is
// the typical use.
//
// No function allocates. Every operand must have the same length as the
// destination, otherwise ErrLengthMismatch is returned and out is untouched.
package vecops

import (
	"errors"
	"fmt"
	"math"
)

// ErrLengthMismatch is wrapped by errors for operands of unequal length.
var ErrLengthMismatch = errors.New("length mismatch")

func check(n int, operands ...[]float64) error {
	for i, op := range operands {
		if len(op) != n {
			return fmt.Errorf("%w: operand %d has %d elements, want %d", ErrLengthMismatch, i, len(op), n)
		}
	}
	return nil
}

// Add stores a[i] + b[i] into out.
func Add(out, a, b []float64) error {
	if err := check(len(out), a, b); err != nil {
		return err
	}
	a, b = a[:len(out)], b[:len(out)]
	for i := range out {
		out[i] = a[i] + b[i]
	}
	return nil
}

// Mul stores a[i] * b[i] into out.
func Mul(out, a, b []float64) error {
	if err := check(len(out), a, b); err != nil {
		return err
	}
	a, b = a[:len(out)], b[:len(out)]
	for i := range out {
		out[i] = a[i] * b[i]
	}
	return nil
}

// Log stores ln(x[i]) into out.
func Log(out, x []float64) error {
	if err := check(len(out), x); err != nil {
		return err
	}
	x = x[:len(out)]
	for i := range out {
		out[i] = math.Log(x[i])
	}
	return nil
}

// Scale stores x[i] * factor into out.
func Scale(out, x []float64, factor float64) error {
	if err := check(len(out), x); err != nil {
		return err
	}
	x = x[:len(out)]
	for i := range out {
		out[i] = x[i] * factor
	}
	return nil
}

// AddInPlace adds rp[i] into lp[i].
func AddInPlace(lp, rp []float64) error {
	if err := check(len(lp), rp); err != nil {
		return err
	}
	rp = rp[:len(lp)]
	for i := range lp {
		lp[i] += rp[i]
	}
	return nil
}

// MulInPlace multiplies lp[i] by rp[i].
func MulInPlace(lp, rp []float64) error {
	if err := check(len(lp), rp); err != nil {
		return err
	}
	rp = rp[:len(lp)]
	for i := range lp {
		lp[i] *= rp[i]
	}
	return nil
}

// LogInPlace replaces x[i] with ln(x[i]).
func LogInPlace(x []float64) {
	for i := range x {
		x[i] = math.Log(x[i])
	}
}

// MulAdd stores a[i]*b[i] + c[i] into out.
func MulAdd(out, a, b, c []float64) error {
	if err := check(len(out), a, b, c); err != nil {
		return err
	}
	a, b, c = a[:len(out)], b[:len(out)], c[:len(out)]
	for i := range out {
		out[i] = a[i]*b[i] + c[i]
	}
	return nil
}

// LogMulAdd stores ln(a[i]*b[i] + c[i]) into out.
func LogMulAdd(out, a, b, c []float64) error {
	if err := check(len(out), a, b, c); err != nil {
		return err
	}
	a, b, c = a[:len(out)], b[:len(out)], c[:len(out)]
	for i := range out {
		out[i] = math.Log(a[i]*b[i] + c[i])
	}
	return nil
}

// MulAddMulAdd stores (a[i]*b[i] + c[i])*d[i] + e[i] into out.
func MulAddMulAdd(out, a, b, c, d, e []float64) error {
	if err := check(len(out), a, b, c, d, e); err != nil {
		return err
	}
	n := len(out)
	a, b, c, d, e = a[:n], b[:n], c[:n], d[:n], e[:n]
	for i := range out {
		out[i] = (a[i]*b[i]+c[i])*d[i] + e[i]
	}
	return nil
}

// AddN stores vs[0][i] + vs[1][i] + ... into out, folding left to right.
// Operands may alias out. With no operands out is zeroed.
func AddN(out []float64, vs ...[]float64) error {
	if err := check(len(out), vs...); err != nil {
		return err
	}
	if len(vs) == 0 {
		clear(out)
		return nil
	}
	first := vs[0][:len(out)]
	rest := vs[1:]
	for i := range out {
		s := first[i]
		for _, v := range rest {
			s += v[i]
		}
		out[i] = s
	}
	return nil
}

// AddNAccumulate adds vs[0][i] + vs[1][i] + ... into out[i]. The operands
// are folded among themselves first, then added to out, so out[i] sees one
// addition per call.
func AddNAccumulate(out []float64, vs ...[]float64) error {
	if err := check(len(out), vs...); err != nil {
		return err
	}
	if len(vs) == 0 {
		return nil
	}
	first := vs[0][:len(out)]
	rest := vs[1:]
	for i := range out {
		s := first[i]
		for _, v := range rest {
			s += v[i]
		}
		out[i] += s
	}
	return nil
}
