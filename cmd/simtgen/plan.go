// Copyright 2025 go-highway Authors
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
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ajroetker/simtgen/ir"
	"github.com/ajroetker/simtgen/layout"
	"github.com/ajroetker/simtgen/planner"
)

// planFlags describe the pass configuration and, without -f, a single dot.
type planFlags struct {
	file       string
	programOut string

	m, n, k   int
	elem      string
	accElem   string
	warps     int
	warpSize  int
	gen       int
	instrSize int
}

func (f *planFlags) addPassFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.gen, "gen", 3, "matrix-core generation (1-3; other values disable the pass)")
	cmd.Flags().IntVar(&f.instrSize, "instr-size", 0, "force the non-k instruction dimension (16 or 32)")
}

// passOptions resolves the pass options: defaults, then the environment,
// then explicitly set flags.
func (f *planFlags) passOptions(cmd *cobra.Command, g *globalFlags) (planner.Options, error) {
	opts, err := planner.OptionsFromEnv(planner.Options{MatrixCoreVersion: 3, Logger: g.logger})
	if err != nil {
		return opts, err
	}
	if cmd.Flags().Changed("gen") {
		opts.MatrixCoreVersion = f.gen
	}
	if cmd.Flags().Changed("instr-size") {
		opts.MatrixInstrSize = f.instrSize
	}
	return opts, opts.Validate()
}

func newPlanCmd(g *globalFlags) *cobra.Command {
	f := &planFlags{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Assign matrix-core layouts to the dots of a program",
		Long: `Plan runs the matrix-core layout pass and prints a JSON report of the
chosen instruction shape, warp tile and operand k-width of every dot.

The program is read from a JSON file with -f, or a single M x N x K dot is
built from --m, --n and --k.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.passOptions(cmd, g)
			if err != nil {
				return err
			}
			m, err := f.module()
			if err != nil {
				return err
			}
			report, err := planner.AccelerateMatmul(m, opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return errors.Wrap(err, "writing report")
			}
			if f.programOut != "" {
				return writeProgram(f.programOut, m)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "program JSON file")
	cmd.Flags().StringVarP(&f.programOut, "output", "o", "", "write the rewritten program as JSON to this file")
	cmd.Flags().IntVar(&f.m, "m", 128, "rows of the result")
	cmd.Flags().IntVar(&f.n, "n", 128, "columns of the result")
	cmd.Flags().IntVar(&f.k, "k", 64, "contraction size")
	cmd.Flags().StringVar(&f.elem, "elem", "f16", "operand element type")
	cmd.Flags().StringVar(&f.accElem, "acc-elem", "", "accumulator element type (default f32, or i32 for integer operands)")
	cmd.Flags().IntVar(&f.warps, "warps", 4, "warps per group")
	cmd.Flags().IntVar(&f.warpSize, "warp-size", 64, "lanes per warp")
	f.addPassFlags(cmd)
	cmd.MarkFlagsMutuallyExclusive("file", "m")
	cmd.MarkFlagsMutuallyExclusive("file", "elem")
	return cmd
}

func (f *planFlags) module() (*ir.Module, error) {
	if f.file != "" {
		return ir.ReadProgram(f.file)
	}
	elem, err := layout.ParseElemType(f.elem)
	if err != nil {
		return nil, err
	}
	var acc layout.ElemType
	if f.accElem != "" {
		if acc, err = layout.ParseElemType(f.accElem); err != nil {
			return nil, err
		}
	}
	return planner.NewDotModule(planner.DotSpec{
		M: f.m, N: f.n, K: f.k,
		Elem:     elem,
		AccElem:  acc,
		NumWarps: f.warps,
		WarpSize: f.warpSize,
	})
}

func writeProgram(path string, m *ir.Module) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating program output")
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	return ir.WriteProgram(out, m)
}
