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

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"stride"
)

func newReduceCmd() *cobra.Command {
	var (
		registers int
		strategy  string
		strict    bool
		compare   bool
	)
	cmd := &cobra.Command{
		Use:   "reduce [file]",
		Short: "Sum whitespace-separated numbers from a file or stdin",
		Long: `Reads numbers separated by whitespace or commas and prints their sum as
computed by the strided reduction engine. With --compare every strategy is run
and printed on its own line.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if registers <= 0 {
				return fmt.Errorf("%w: registers must be positive, got %d", stride.ErrInvalidArgument, registers)
			}
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			values, err := parseValues(in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if compare {
				for _, s := range stride.Strategies() {
					sum, err := stride.Reduce(values, registers, s)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%-28s %s\n", s, formatSum(sum))
				}
				return nil
			}

			s, err := stride.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			r, err := stride.NewWithOptions(stride.Options{Registers: registers, Strategy: s, StrictSinglePass: strict})
			if err != nil {
				return err
			}
			sum, err := r.Reduce(values)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, formatSum(sum))
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVarP(&registers, "registers", "k", stride.DefaultRegisters, "Register count")
	f.StringVarP(&strategy, "strategy", "s", stride.DefaultStrategy.String(), "Reduction strategy")
	f.BoolVar(&strict, "strict-single-pass", false, "Reject single-pass inputs whose length is not a multiple of --registers")
	f.BoolVar(&compare, "compare", false, "Print the sum for every strategy")
	return cmd
}

// parseValues reads float64 values separated by whitespace or commas.
func parseValues(r io.Reader) ([]float64, error) {
	var values []float64
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		for _, field := range strings.Split(sc.Text(), ",") {
			if field == "" {
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("value %d: %w", len(values)+1, err)
			}
			values = append(values, v)
		}
	}
	return values, sc.Err()
}

func formatSum(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
