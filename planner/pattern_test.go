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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/simtgen/ir"
	"github.com/ajroetker/simtgen/layout"
)

var quiet = slog.New(slog.DiscardHandler)

func blockedTensor(m *ir.Module, elem layout.ElemType, shape ...int) ir.TensorType {
	return ir.TensorType{Shape: shape, Elem: elem, Encoding: layout.NewBlocked(shape, m.WarpSize, m.NumWarps)}
}

// chainedDots builds  d1 = dot(a, b, c); d2 = dot(f16(d1), b, c).
func chainedDots(t *testing.T, numWarps int) (*ir.Module, *ir.Op, *ir.Op) {
	t.Helper()
	m := ir.NewModule("chain", numWarps, 64)
	a := m.AddArg(m.Body, "a", blockedTensor(m, layout.Float16, 128, 128))
	b := m.AddArg(m.Body, "b", blockedTensor(m, layout.Float16, 128, 128))
	c := m.AddArg(m.Body, "c", blockedTensor(m, layout.Float32, 128, 128))
	d1 := m.Append(m.Body, ir.OpKindDot, []*ir.Value{a, b, c}, ir.Attrs{}, blockedTensor(m, layout.Float32, 128, 128))
	trunc := m.Append(m.Body, ir.OpKindElementwise, []*ir.Value{d1.Result(0)}, ir.Attrs{}, blockedTensor(m, layout.Float16, 128, 128))
	d2 := m.Append(m.Body, ir.OpKindDot, []*ir.Value{trunc.Result(0), b, c}, ir.Attrs{}, blockedTensor(m, layout.Float32, 128, 128))
	m.Append(m.Body, ir.OpKindStore, []*ir.Value{d2.Result(0)}, ir.Attrs{})
	return m, d1, d2
}

func accumulatorOf(t *testing.T, op *ir.Op) *layout.MatrixCoreAccumulator {
	t.Helper()
	acc, ok := op.Result(0).Type.Encoding.(*layout.MatrixCoreAccumulator)
	require.True(t, ok, "%s result is %v", op, op.Result(0).Type)
	return acc
}

func TestIsChainDot(t *testing.T) {
	m, d1, d2 := chainedDots(t, 8)
	assert.True(t, IsChainDot(m, d1))
	assert.True(t, IsChainDot(m, d2))

	single, err := NewDotModule(DotSpec{M: 128, N: 128, K: 64, Elem: layout.Float16, NumWarps: 8})
	require.NoError(t, err)
	assert.False(t, IsChainDot(single, single.Ops(ir.OpKindDot)[0]))
}

func TestChainIgnoresOtherRegions(t *testing.T) {
	m := ir.NewModule("loop", 8, 64)
	a := m.AddArg(m.Body, "a", blockedTensor(m, layout.Float16, 128, 128))
	c := m.AddArg(m.Body, "c", blockedTensor(m, layout.Float32, 128, 128))
	outer := m.Append(m.Body, ir.OpKindDot, []*ir.Value{a, a, c}, ir.Attrs{}, blockedTensor(m, layout.Float32, 128, 128))
	loop := m.Append(m.Body, ir.OpKindFor, nil, ir.Attrs{})
	body := m.NewRegion(loop)
	inner := m.Append(body, ir.OpKindDot, []*ir.Value{a, a, outer.Result(0)}, ir.Attrs{}, blockedTensor(m, layout.Float32, 128, 128))
	m.Append(body, ir.OpKindYield, []*ir.Value{inner.Result(0)}, ir.Attrs{})

	assert.False(t, IsChainDot(m, outer))
	assert.False(t, IsChainDot(m, inner))

	_, err := AccelerateMatmul(m, Options{MatrixCoreVersion: 3, Logger: quiet})
	require.NoError(t, err)
	for _, dot := range m.Ops(ir.OpKindDot) {
		acc := accumulatorOf(t, dot)
		assert.Equal(t, layout.WarpTile{M: 2, N: 4}, acc.Warps)
		assert.False(t, acc.IsTransposed)
	}
}

func TestRewriteChainedDots(t *testing.T) {
	m, _, _ := chainedDots(t, 8)
	report, err := AccelerateMatmul(m, Options{MatrixCoreVersion: 3, Logger: quiet})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Rewrites)
	dots := m.Ops(ir.OpKindDot)
	require.Len(t, dots, 2)
	for _, dot := range dots {
		acc := accumulatorOf(t, dot)
		assert.Equal(t, layout.WarpTile{M: 8, N: 1}, acc.Warps, "%s", dot)
		assert.True(t, acc.IsTransposed)
	}
}

func TestRewriteSingleDot(t *testing.T) {
	m, err := NewDotModule(DotSpec{M: 128, N: 128, K: 64, Elem: layout.Float16, NumWarps: 8})
	require.NoError(t, err)
	old := m.Ops(ir.OpKindDot)[0]
	old.Attrs.AllowTF32 = true
	oldType := old.Result(0).Type
	oldCTA := oldType.Encoding.(*layout.Blocked).CTA

	_, err = AccelerateMatmul(m, Options{MatrixCoreVersion: 3, Logger: quiet})
	require.NoError(t, err)
	assert.True(t, old.Erased())

	dot := m.Ops(ir.OpKindDot)[0]
	acc := accumulatorOf(t, dot)
	assert.Equal(t, 3, acc.Version)
	assert.Equal(t, layout.InstrShape{NonKDim: 32, KDim: 8}, acc.Instr)
	assert.Equal(t, layout.WarpTile{M: 2, N: 4}, acc.Warps)
	assert.False(t, acc.IsTransposed)
	assert.True(t, acc.CTA.Equal(oldCTA))
	assert.True(t, dot.Attrs.AllowTF32)

	// Operands go through layout conversions to the operand layouts.
	for i, operand := range dot.Operands[:2] {
		require.Equal(t, ir.OpKindConvertLayout, operand.Def.Kind)
		enc, ok := operand.Type.Encoding.(*layout.MatrixCoreOperand)
		require.True(t, ok)
		assert.Equal(t, i, enc.OpIdx)
		assert.Equal(t, 4, enc.KWidth)
		assert.Same(t, acc, enc.Parent)
	}
	accIn := dot.Operands[2]
	require.Equal(t, ir.OpKindConvertLayout, accIn.Def.Kind)
	assert.Same(t, acc, accIn.Type.Encoding)

	// The result is converted back, so users keep seeing the old type.
	users := m.Users(dot.Result(0))
	require.Len(t, users, 1)
	back := users[0]
	assert.Equal(t, ir.OpKindConvertLayout, back.Kind)
	assert.True(t, back.Result(0).Type.Equal(oldType))
}

func TestRewriteIsIdempotent(t *testing.T) {
	m, _, _ := chainedDots(t, 8)
	_, err := AccelerateMatmul(m, Options{MatrixCoreVersion: 2, Logger: quiet})
	require.NoError(t, err)
	before := m.String()
	report, err := AccelerateMatmul(m, Options{MatrixCoreVersion: 2, Logger: quiet})
	require.NoError(t, err)
	assert.Zero(t, report.Rewrites)
	assert.Len(t, report.Dots, 2)
	assert.Equal(t, before, m.String())
}

func TestRewriteDeclines(t *testing.T) {
	tests := []struct {
		name    string
		dot     DotSpec
		version int
	}{
		{"f8-on-gen2", DotSpec{M: 64, N: 64, K: 64, Elem: layout.Float8E4M3FNUZ, NumWarps: 4}, 2},
		{"f64", DotSpec{M: 64, N: 64, K: 64, Elem: layout.Float64, NumWarps: 4}, 3},
		{"not-multiple-of-16", DotSpec{M: 24, N: 24, K: 64, Elem: layout.Float16, NumWarps: 4}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewDotModule(tt.dot)
			require.NoError(t, err)
			before := m.String()
			report, err := AccelerateMatmul(m, Options{MatrixCoreVersion: tt.version, Logger: quiet})
			require.NoError(t, err)
			assert.Zero(t, report.Rewrites)
			assert.Equal(t, before, m.String())

			_, err = PlanDot(tt.dot, Options{MatrixCoreVersion: tt.version, Logger: quiet})
			assert.True(t, ir.IsDecline(err), "%v", err)
		})
	}
}

func TestRewriteDeclinesMixedOperandTypes(t *testing.T) {
	m := ir.NewModule("mixed", 4, 64)
	a := m.AddArg(m.Body, "a", blockedTensor(m, layout.Float16, 64, 64))
	b := m.AddArg(m.Body, "b", blockedTensor(m, layout.BFloat16, 64, 64))
	c := m.AddArg(m.Body, "c", blockedTensor(m, layout.Float32, 64, 64))
	m.Append(m.Body, ir.OpKindDot, []*ir.Value{a, b, c}, ir.Attrs{}, blockedTensor(m, layout.Float32, 64, 64))
	report, err := AccelerateMatmul(m, Options{MatrixCoreVersion: 3, Logger: quiet})
	require.NoError(t, err)
	assert.Zero(t, report.Rewrites)
}

func TestRewriteDeclinesDotWithoutResult(t *testing.T) {
	m := ir.NewModule("noresult", 4, 64)
	a := m.AddArg(m.Body, "a", blockedTensor(m, layout.Float16, 64, 64))
	c := m.AddArg(m.Body, "c", blockedTensor(m, layout.Float32, 64, 64))
	m.Append(m.Body, ir.OpKindDot, []*ir.Value{a, a, c}, ir.Attrs{})
	var report *Report
	require.NotPanics(t, func() {
		var err error
		report, err = AccelerateMatmul(m, Options{MatrixCoreVersion: 3, Logger: quiet})
		require.NoError(t, err)
	})
	assert.Zero(t, report.Rewrites)
	assert.Empty(t, report.Dots)
}

func TestRewriteDeclinesUnencodedResult(t *testing.T) {
	m := ir.NewModule("plain", 4, 64)
	a := m.AddArg(m.Body, "a", ir.TensorType{Shape: layout.Shape{64, 64}, Elem: layout.Float16})
	c := m.AddArg(m.Body, "c", ir.TensorType{Shape: layout.Shape{64, 64}, Elem: layout.Float32})
	m.Append(m.Body, ir.OpKindDot, []*ir.Value{a, a, c}, ir.Attrs{}, ir.TensorType{Shape: layout.Shape{64, 64}, Elem: layout.Float32})
	report, err := AccelerateMatmul(m, Options{MatrixCoreVersion: 3, Logger: quiet})
	require.NoError(t, err)
	assert.Zero(t, report.Rewrites)
}

func TestRewriteDivisibilityIsFatal(t *testing.T) {
	ds := DotSpec{M: 48, N: 48, K: 64, Elem: layout.Float16, NumWarps: 4}
	m, err := NewDotModule(ds)
	require.NoError(t, err)
	before := m.String()

	_, err = AccelerateMatmul(m, Options{MatrixCoreVersion: 3, Logger: quiet})
	require.Error(t, err)
	var fe *ir.FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ir.Divisibility, fe.Invariant)
	assert.Contains(t, fe.Op, "dot#")
	assert.Equal(t, before, m.String(), "a failed rewrite must not leave partial edits")

	plan, err := PlanDot(ds, Options{MatrixCoreVersion: 3, MatrixInstrSize: 16, Logger: quiet})
	require.NoError(t, err)
	assert.Equal(t, layout.InstrShape{NonKDim: 16, KDim: 16}, plan.Instr)
}

func TestInstrSizeAttributeOverridesPass(t *testing.T) {
	ds := DotSpec{M: 128, N: 128, K: 64, Elem: layout.Float16, NumWarps: 4, InstrSize: 16}
	plan, err := PlanDot(ds, Options{MatrixCoreVersion: 3, MatrixInstrSize: 32, Logger: quiet})
	require.NoError(t, err)
	assert.Equal(t, layout.InstrShape{NonKDim: 16, KDim: 16}, plan.Instr)
	assert.Equal(t, 4, plan.KWidth)
}

func TestDisabledGenerationsAreNoOps(t *testing.T) {
	for _, version := range []int{0, 4, 9} {
		m, _, _ := chainedDots(t, 8)
		before := m.String()
		report, err := AccelerateMatmul(m, Options{MatrixCoreVersion: version, Logger: quiet})
		require.NoError(t, err)
		assert.Zero(t, report.Rewrites)
		assert.Empty(t, report.Dots)
		assert.Equal(t, before, m.String())
	}
}
