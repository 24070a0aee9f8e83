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
	"log/slog"

	"github.com/ajroetker/simtgen/ir"
	"github.com/ajroetker/simtgen/layout"
)

// minInstrGranularity is the output size of the smallest matrix-core
// instruction.
const minInstrGranularity = 16

// supportsMatrixCore checks that the dot can run on the matrix cores of
// the given generation. A failed check declines the rewrite.
func supportsMatrixCore(dot *ir.Op, version int) error {
	if len(dot.Operands) != 3 || len(dot.Results) != 1 {
		return ir.Declinef("%s: expected 3 operands and 1 result", dot)
	}
	a, b := dot.Operands[0].Type, dot.Operands[1].Type
	res := dot.Result(0).Type
	if a.Elem != b.Elem {
		return ir.Declinef("%s: operand types differ (%s, %s)", dot, a.Elem, b.Elem)
	}
	if !SupportsElemType(a.Elem, version) {
		return ir.Declinef("%s: no matrix-core instructions for %s on generation %d", dot, a.Elem, version)
	}
	if a.Shape.Rank() != 2 || b.Shape.Rank() != 2 || res.Shape.Rank() != 2 {
		return ir.Declinef("%s: operands and result must be 2-D", dot)
	}
	if a.Shape[1] != b.Shape[0] || res.Shape[0] != a.Shape[0] || res.Shape[1] != b.Shape[1] {
		return ir.Declinef("%s: shapes %s x %s -> %s do not compose", dot, a.Shape, b.Shape, res.Shape)
	}
	if res.Shape[0]%minInstrGranularity != 0 || res.Shape[1]%minInstrGranularity != 0 {
		return ir.Declinef("%s: result %s is not a multiple of %d", dot, res.Shape, minInstrGranularity)
	}
	return nil
}

// BlockedToMatrixCore returns the pattern rewriting a dot with a blocked
// result into a matrix-core dot. enforcedNonKDim (0, 16 or 32) applies to
// dots without their own InstrSize attribute.
func BlockedToMatrixCore(version, enforcedNonKDim int, logger *slog.Logger) ir.Pattern {
	if logger == nil {
		logger = slog.Default()
	}
	return ir.Pattern{
		Name:    "blocked-to-matrix-core",
		Benefit: 2,
		Root:    ir.OpKindDot,
		MatchAndRewrite: func(op *ir.Op, rw *ir.Rewriter) error {
			return rewriteDot(op, rw, version, enforcedNonKDim, logger)
		},
	}
}

func rewriteDot(op *ir.Op, rw *ir.Rewriter, version, enforcedNonKDim int, logger *slog.Logger) error {
	if len(op.Results) != 1 {
		return ir.Declinef("%s: expected 1 result, got %d", op, len(op.Results))
	}
	oldRetType := op.Result(0).Type
	oldLayout, ok := oldRetType.Encoding.(*layout.Blocked)
	if !ok {
		return ir.Declinef("%s: result is not blocked", op)
	}
	if err := supportsMatrixCore(op, version); err != nil {
		return err
	}

	m := rw.Module()
	if m.NumWarps <= 0 {
		return ir.Fatalf(op.String(), ir.InvalidConfig, "module %q has %d warps", m.Name, m.NumWarps)
	}
	a, b, acc := op.Operands[0], op.Operands[1], op.Operands[2]

	enforced := enforcedNonKDim
	if op.Attrs.InstrSize != 0 {
		enforced = op.Attrs.InstrSize
	}
	instr, err := ChooseInstructionShape(a.Type.Elem, oldRetType.Shape, a.Type.Shape[1], version, enforced)
	if err != nil {
		return ir.WrapFatal(op.String(), ir.InvalidConfig, err)
	}
	kWidth, err := KWidth(instr)
	if err != nil {
		return ir.WrapFatal(op.String(), ir.InvalidConfig, err)
	}
	chained := IsChainDot(m, op)
	warps := ChooseWarpTile(oldRetType.Shape, m.NumWarps, chained)

	accLayout := &layout.MatrixCoreAccumulator{
		Version:      version,
		Instr:        instr,
		Warps:        warps,
		IsTransposed: chained,
		CTA:          oldLayout.CTA,
	}
	newRetType := oldRetType.WithEncoding(accLayout)
	newAccType := acc.Type.WithEncoding(accLayout)
	newAType := a.Type.WithEncoding(&layout.MatrixCoreOperand{OpIdx: 0, Parent: accLayout, KWidth: kWidth})
	newBType := b.Type.WithEncoding(&layout.MatrixCoreOperand{OpIdx: 1, Parent: accLayout, KWidth: kWidth})

	logger.Debug("matrix-core layout chosen",
		"op", op.String(), "shape", oldRetType.Shape.String(), "elem", a.Type.Elem.String(),
		"instr", instr.String(), "warps", warps.String(), "kWidth", kWidth, "chained", chained)

	newAcc := rw.ConvertLayout(acc, newAccType)
	newA := rw.ConvertLayout(a, newAType)
	newB := rw.ConvertLayout(b, newBType)
	dot := rw.Create(ir.OpKindDot, []*ir.Value{newA, newB, newAcc}, op.Attrs, newRetType)
	rw.ReplaceOp(op, rw.ConvertLayout(dot.Result(0), oldRetType))
	return nil
}
