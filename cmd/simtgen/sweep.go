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
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ajroetker/simtgen/ir"
	"github.com/ajroetker/simtgen/layout"
	"github.com/ajroetker/simtgen/planner"
)

// sweepResult is the outcome of planning one configuration.
type sweepResult struct {
	M       int              `json:"m"`
	N       int              `json:"n"`
	K       int              `json:"k"`
	Elem    layout.ElemType  `json:"elem"`
	Gen     int              `json:"gen"`
	Plan    *planner.DotPlan `json:"plan,omitempty"`
	Status  string           `json:"status"`
	Message string           `json:"message,omitempty"`
}

type sweepFlags struct {
	planFlags
	elems  []string
	gens   []int
	sizes  []int
	ks     []int
	asJSON bool
	jobs   int
}

func newSweepCmd(g *globalFlags) *cobra.Command {
	f := &sweepFlags{}
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Plan every combination of shapes, element types and generations",
		Long: `Sweep plans a single dot for each combination of square result size,
contraction size, element type and generation, in parallel, and prints one
row per configuration. Declined and rejected configurations are reported,
not treated as failures.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.passOptions(cmd, g)
			if err != nil {
				return err
			}
			results, err := f.run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if f.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			return printSweep(cmd, results)
		},
	}
	cmd.Flags().StringSliceVar(&f.elems, "elems", []string{"f32", "f16", "bf16", "i8"}, "operand element types")
	cmd.Flags().IntSliceVar(&f.gens, "gens", []int{1, 2, 3}, "matrix-core generations")
	cmd.Flags().IntSliceVar(&f.sizes, "sizes", []int{16, 32, 64, 128}, "square result sizes")
	cmd.Flags().IntSliceVar(&f.ks, "ks", []int{64}, "contraction sizes")
	cmd.Flags().IntVar(&f.warps, "warps", 4, "warps per group")
	cmd.Flags().IntVar(&f.warpSize, "warp-size", 64, "lanes per warp")
	cmd.Flags().IntVar(&f.instrSize, "instr-size", 0, "force the non-k instruction dimension (16 or 32)")
	cmd.Flags().IntVarP(&f.jobs, "jobs", "j", runtime.GOMAXPROCS(0), "configurations planned concurrently")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print results as JSON")
	return cmd
}

func (f *sweepFlags) run(ctx context.Context, base planner.Options) ([]sweepResult, error) {
	elems := make([]layout.ElemType, len(f.elems))
	for i, s := range f.elems {
		e, err := layout.ParseElemType(s)
		if err != nil {
			return nil, err
		}
		elems[i] = e
	}

	var results []sweepResult
	for _, gen := range f.gens {
		for _, elem := range elems {
			for _, size := range lo.Uniq(f.sizes) {
				for _, k := range lo.Uniq(f.ks) {
					results = append(results, sweepResult{M: size, N: size, K: k, Elem: elem, Gen: gen})
				}
			}
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(f.jobs, 1))
	for i := range results {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r := &results[i]
			opts := base
			opts.MatrixCoreVersion = r.Gen
			plan, err := planner.PlanDot(planner.DotSpec{
				M: r.M, N: r.N, K: r.K,
				Elem:     r.Elem,
				NumWarps: f.warps,
				WarpSize: f.warpSize,
			}, opts)
			switch {
			case err == nil:
				r.Plan = &plan
				r.Status = "ok"
			case ir.IsDecline(err):
				r.Status = "declined"
				r.Message = err.Error()
			default:
				inv, ok := ir.InvariantOf(err)
				if !ok {
					return errors.WithMessagef(err, "planning %dx%dx%d %s on generation %d", r.M, r.N, r.K, r.Elem, r.Gen)
				}
				r.Status = string(inv)
				r.Message = err.Error()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func printSweep(cmd *cobra.Command, results []sweepResult) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GEN\tELEM\tSHAPE\tINSTR\tWARPS\tKWIDTH\tSTATUS")
	for _, r := range results {
		instr, warps, kWidth := "-", "-", "-"
		if r.Plan != nil {
			instr = r.Plan.Instr.String()
			warps = r.Plan.Warps.String()
			kWidth = fmt.Sprint(r.Plan.KWidth)
		}
		fmt.Fprintf(w, "%d\t%s\t%dx%dx%d\t%s\t%s\t%s\t%s\n", r.Gen, r.Elem, r.M, r.N, r.K, instr, warps, kWidth, r.Status)
	}
	return w.Flush()
}
