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

package lower

import (
	"fmt"
	"math/rand/v2"
	"testing"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/simtgen/internal/lanesim"
	"github.com/ajroetker/simtgen/ir"
	"github.com/ajroetker/simtgen/layout"
)

func constInts(t *testing.T, vals []value.Value) []int {
	t.Helper()
	out := make([]int, len(vals))
	for i, v := range vals {
		c, ok := v.(*constant.Int)
		require.True(t, ok, "%s is not a constant", v.Ident())
		out[i] = int(c.X.Int64())
	}
	return out
}

func TestIndexConstantRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	_, b := newKernel(NVPTX{})
	for rank := 1; rank <= 4; rank++ {
		for trial := 0; trial < 20; trial++ {
			shape := make(layout.Shape, rank)
			for i := range shape {
				shape[i] = 1 + rng.IntN(64)
			}
			order := layout.Order(rng.Perm(rank))
			n := shape.NumElements()
			for s := 0; s < 32; s++ {
				linear := rng.IntN(n)
				coord, err := b.Delinearize(b.Unit.IndexConstant(int64(linear)), shape, order)
				require.NoError(t, err)
				want, err := layout.DelinearizeInt(linear, shape, order)
				require.NoError(t, err)
				require.Equal(t, want, constInts(t, coord), "shape %s order %v linear %d", shape, order, linear)

				back, err := b.Linearize(coord, shape, order)
				require.NoError(t, err)
				require.Equal(t, []int{linear}, constInts(t, []value.Value{back}))
			}
		}
	}
	assert.Empty(t, b.Block.Insts, "constant indices must fold")
}

func TestIndexSymbolicRoundTrip(t *testing.T) {
	tests := []struct {
		shape layout.Shape
		order layout.Order
	}{
		{layout.Shape{37}, layout.Order{0}},
		{layout.Shape{4, 8}, layout.Order{1, 0}},
		{layout.Shape{4, 8}, layout.Order{0, 1}},
		{layout.Shape{3, 5, 2}, layout.Order{2, 0, 1}},
		{layout.Shape{2, 3, 2, 4}, layout.Order{1, 3, 0, 2}},
		{layout.Shape{1, 64}, layout.Order{0, 1}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.shape, tt.order), func(t *testing.T) {
			linear := llir.NewParam("linear", types.I32)
			f, b := newKernel(NVPTX{}, linear)
			coord, err := b.Delinearize(linear, tt.shape, tt.order)
			require.NoError(t, err)
			back, err := b.Linearize(coord, tt.shape, tt.order)
			require.NoError(t, err)

			n := tt.shape.NumElements()
			m := lanesim.New(n, 1, 0)
			m.Bind(linear, func(lane int) uint64 { return uint64(lane) })
			run(t, m, f, b)
			for lane := 0; lane < n; lane++ {
				want, err := layout.DelinearizeInt(lane, tt.shape, tt.order)
				require.NoError(t, err)
				for d, c := range coord {
					got, err := m.Value(c, lane)
					require.NoError(t, err)
					assert.Equal(t, uint64(want[d]), got, "lane %d dim %d", lane, d)
				}
				got, err := m.Value(back, lane)
				require.NoError(t, err)
				assert.Equal(t, uint64(lane), got)
			}
		})
	}
}

func TestIndexInvalid(t *testing.T) {
	_, b := newKernel(NVPTX{})
	_, err := b.Delinearize(ConstI32(3), layout.Shape{4, 0}, layout.Order{1, 0})
	assertInvariant(t, err, ir.InvalidShape)
	_, err = b.Delinearize(ConstI32(3), layout.Shape{4, 4}, layout.Order{1, 1})
	assertInvariant(t, err, ir.InvalidShape)
	_, err = b.Delinearize(ConstF32(3), layout.Shape{4, 4}, layout.Order{1, 0})
	assertInvariant(t, err, ir.InvalidShape)
	_, err = b.Linearize([]value.Value{ConstI32(0)}, layout.Shape{4, 4}, layout.Order{1, 0})
	assertInvariant(t, err, ir.InvalidShape)
}

func TestStridesFromShapeAndOrder(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	_, b := newKernel(NVPTX{})
	for trial := 0; trial < 50; trial++ {
		rank := 1 + rng.IntN(4)
		shape := make(layout.Shape, rank)
		for i := range shape {
			shape[i] = 1 + rng.IntN(16)
		}
		order := layout.Order(rng.Perm(rank))
		vals, err := b.StridesFromShapeAndOrder(shape, order)
		require.NoError(t, err)
		strides := constInts(t, vals)
		assert.Equal(t, 1, strides[order[0]])
		for i := 1; i < rank; i++ {
			assert.Equal(t, shape[order[i-1]]*strides[order[i-1]], strides[order[i]],
				"shape %s order %v", shape, order)
		}
	}
	_, err := b.StridesFromShapeAndOrder(layout.Shape{2, 2}, layout.Order{0})
	assertInvariant(t, err, ir.InvalidShape)
}
