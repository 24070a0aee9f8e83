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

package planner

import (
	"github.com/pkg/errors"

	"github.com/ajroetker/simtgen/ir"
	"github.com/ajroetker/simtgen/layout"
)

// DotPlan is the matrix-core configuration of one rewritten dot.
type DotPlan struct {
	Op         int               `json:"op"`
	Shape      layout.Shape      `json:"shape"`
	K          int               `json:"k"`
	Elem       layout.ElemType   `json:"elem"`
	Instr      layout.InstrShape `json:"instr"`
	Warps      layout.WarpTile   `json:"warps"`
	KWidth     int               `json:"kWidth"`
	Transposed bool              `json:"transposed"`
}

// Report summarizes one run of AccelerateMatmul.
type Report struct {
	Module   string    `json:"module"`
	Version  int       `json:"version"`
	Rewrites int       `json:"rewrites"`
	Dots     []DotPlan `json:"dots"`
}

// AccelerateMatmul rewrites every eligible dot of m to matrix-core
// layouts. Generations outside 1..3 leave m unchanged.
func AccelerateMatmul(m *ir.Module, opts Options) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger := opts.logger()
	report := &Report{Module: m.Name, Version: opts.MatrixCoreVersion}
	if !opts.Enabled() {
		logger.Debug("matrix cores unavailable, skipping", "module", m.Name, "version", opts.MatrixCoreVersion)
		report.Dots = Summarize(m)
		return report, nil
	}
	patterns := []ir.Pattern{BlockedToMatrixCore(opts.MatrixCoreVersion, opts.MatrixInstrSize, logger)}
	n, err := ir.ApplyPatterns(m, patterns, ir.DriverOptions{Logger: logger})
	report.Rewrites = n
	if err != nil {
		return report, errors.WithMessagef(err, "accelerating matmuls in %q", m.Name)
	}
	report.Dots = Summarize(m)
	logger.Info("matmul layouts assigned", "module", m.Name, "rewrites", n, "dots", len(report.Dots))
	return report, nil
}

// Summarize lists the dots of m that carry a matrix-core result layout.
func Summarize(m *ir.Module) []DotPlan {
	plans := []DotPlan{}
	for _, op := range m.Ops(ir.OpKindDot) {
		if len(op.Results) != 1 {
			continue
		}
		acc, ok := op.Result(0).Type.Encoding.(*layout.MatrixCoreAccumulator)
		if !ok {
			continue
		}
		plan := DotPlan{
			Op:         op.ID,
			Shape:      op.Result(0).Type.Shape,
			Elem:       op.Operands[0].Type.Elem,
			Instr:      acc.Instr,
			Warps:      acc.Warps,
			Transposed: acc.IsTransposed,
		}
		if a := op.Operands[0].Type; a.Shape.Rank() == 2 {
			plan.K = a.Shape[1]
		}
		if operand, ok := op.Operands[0].Type.Encoding.(*layout.MatrixCoreOperand); ok {
			plan.KWidth = operand.KWidth
		}
		plans = append(plans, plan)
	}
	return plans
}

// DotSpec describes a single M x N x K dot for PlanDot.
type DotSpec struct {
	M, N, K  int
	Elem     layout.ElemType
	AccElem  layout.ElemType
	NumWarps int
	WarpSize int

	// InstrSize is the per-dot instruction size override.
	InstrSize int
}

// NewDotModule builds a module holding one dot on blocked operands.
func NewDotModule(ds DotSpec) (*ir.Module, error) {
	if ds.M <= 0 || ds.N <= 0 || ds.K <= 0 {
		return nil, ir.Fatalf("dot", ir.InvalidShape, "dot dimensions must be positive, got %dx%dx%d", ds.M, ds.N, ds.K)
	}
	if ds.NumWarps <= 0 {
		return nil, ir.Fatalf("dot", ir.InvalidConfig, "warp count must be positive, got %d", ds.NumWarps)
	}
	warpSize := ds.WarpSize
	if warpSize == 0 {
		warpSize = 64
	}
	accElem := ds.AccElem
	if accElem == layout.Invalid {
		accElem = layout.Float32
		if ds.Elem.IsInt() {
			accElem = layout.Int32
		}
	}
	m := ir.NewModule("dot", ds.NumWarps, warpSize)
	blocked := func(elem layout.ElemType, shape ...int) ir.TensorType {
		return ir.TensorType{Shape: shape, Elem: elem, Encoding: layout.NewBlocked(shape, warpSize, ds.NumWarps)}
	}
	a := m.AddArg(m.Body, "a", blocked(ds.Elem, ds.M, ds.K))
	b := m.AddArg(m.Body, "b", blocked(ds.Elem, ds.K, ds.N))
	c := m.AddArg(m.Body, "c", blocked(accElem, ds.M, ds.N))
	dot := m.Append(m.Body, ir.OpKindDot, []*ir.Value{a, b, c}, ir.Attrs{InstrSize: ds.InstrSize}, blocked(accElem, ds.M, ds.N))
	dot.Result(0).Name = "d"
	return m, nil
}

// PlanDot runs AccelerateMatmul on a single dot and returns its plan. It
// returns ir.ErrDecline when the dot is not eligible for matrix cores.
func PlanDot(ds DotSpec, opts Options) (DotPlan, error) {
	m, err := NewDotModule(ds)
	if err != nil {
		return DotPlan{}, err
	}
	report, err := AccelerateMatmul(m, opts)
	if err != nil {
		return DotPlan{}, err
	}
	if len(report.Dots) == 0 {
		return DotPlan{}, ir.Declinef("%dx%dx%d %s dot is not eligible on generation %d",
			ds.M, ds.N, ds.K, ds.Elem, opts.MatrixCoreVersion)
	}
	return report.Dots[0], nil
}
