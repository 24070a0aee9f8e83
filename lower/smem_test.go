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

func TestDecomposeAggregate(t *testing.T) {
	base := llir.NewParam("base", sharedPtrType(types.Float))
	_, b := newKernel(NVPTX{}, base)

	for rank := 1; rank <= 3; rank++ {
		shape := make(layout.Shape, rank)
		for i := range shape {
			shape[i] = 2 + i
		}
		obj, err := b.NewSharedMemoryObject(base, shape, layout.DefaultOrder(rank))
		require.NoError(t, err)
		agg := b.Aggregate(obj)
		assert.Len(t, agg.Type().(*types.StructType).Fields, 2*rank+1)

		got, err := b.DecomposeAggregate(agg)
		require.NoError(t, err)
		assert.Equal(t, rank, got.Rank())
		assert.Len(t, got.Offsets, rank)
		assert.True(t, got.Type().Equal(obj.Type()))
		assert.True(t, got.Base.Type().Equal(base.Type()))
	}

	malformed := []types.Type{
		types.NewStruct(base.Type(), types.I32, types.I32, types.I32),
		types.NewStruct(base.Type()),
		types.NewStruct(base.Type(), types.I32),
		types.I32,
	}
	for _, typ := range malformed {
		_, err := b.DecomposeAggregate(constant.NewUndef(typ))
		assertInvariant(t, err, ir.MalformedAggregate)
	}
}

func TestElemPtr(t *testing.T) {
	base := llir.NewParam("base", sharedPtrType(types.Float))
	linear := llir.NewParam("linear", types.I32)
	f, b := newKernel(NVPTX{}, base, linear)

	shape := layout.Shape{4, 8}
	obj, err := b.NewSharedMemoryObject(base, shape, layout.Order{1, 0})
	require.NoError(t, err)
	view, err := b.DecomposeAggregate(b.Aggregate(obj))
	require.NoError(t, err)
	coord, err := b.Delinearize(linear, shape, layout.Order{1, 0})
	require.NoError(t, err)
	rowMajor, err := b.ElemPtr(view, coord)
	require.NoError(t, err)

	shifted := *view
	shifted.Offsets = []value.Value{ConstI32(1), ConstI32(0)}
	down, err := b.ElemPtr(&shifted, coord)
	require.NoError(t, err)

	_, err = b.ElemPtr(view, coord[:1])
	assertInvariant(t, err, ir.InvalidShape)

	m := lanesim.New(32, 1, 0)
	m.BindUniform(base, 64)
	m.Bind(linear, func(lane int) uint64 { return uint64(lane) })
	run(t, m, f, b)
	for lane := 0; lane < 32; lane++ {
		got, err := m.Value(rowMajor, lane)
		require.NoError(t, err)
		assert.Equal(t, uint64(64+4*lane), got)
		got, err = m.Value(down, lane)
		require.NoError(t, err)
		assert.Equal(t, uint64(64+4*(lane+8)), got)
	}
}
