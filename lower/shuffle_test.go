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
	"math"
	"testing"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/ajroetker/simtgen/internal/lanesim"
	"github.com/ajroetker/simtgen/ir"
)

// shuffleTypes pairs each shuffled type with the integer of the same
// width.
var shuffleTypes = []struct {
	typ types.Type
	raw *types.IntType
}{
	{types.I8, types.I8},
	{types.I16, types.I16},
	{types.Half, types.I16},
	{types.I32, types.I32},
	{types.Float, types.I32},
	{types.I64, types.I64},
	{types.Double, types.I64},
}

// lanePattern returns bits for lane that set the sign bit in about half of
// the lanes, plus NaN payloads for the float types.
func lanePattern(typ types.Type, lane int) uint64 {
	v := 0x9E3779B97F4A7C15 * uint64(lane+1)
	switch typ {
	case types.Half:
		if lane == 3 {
			return uint64(float16.NaN().Bits()) | 1
		}
		return uint64(float16.Fromfloat32(float32(lane) - 7.25).Bits())
	case types.Float:
		if lane == 3 {
			return 0x7fc00123
		}
		return uint64(math.Float32bits(float32(lane) * -1.5))
	case types.Double:
		if lane == 3 {
			return 0x7ff8000000000abc
		}
		return math.Float64bits(float64(lane) / 3)
	}
	bits, _ := bitWidth(typ)
	if bits < 64 {
		v &= 1<<bits - 1
	}
	return v
}

func expectedSource(lane, delta int, mode ShuffleMode) int {
	if mode == ShiftUp {
		if lane < delta {
			return lane
		}
		return lane - delta
	}
	return lane ^ delta
}

func TestShuffleBitExact(t *testing.T) {
	cases := map[string][]int{
		"nvptx/bfly":  {0, 1, 2, 4, 8, 16, 5, 31},
		"nvptx/up":    {0, 1, 3, 16},
		"amdgcn/bfly": {0, 1, 2, 4, 8, 16, 32, 3, 48},
		"amdgcn/up":   {0, 1, 5, 32},
	}
	for _, be := range allBackends {
		for _, mode := range []ShuffleMode{Butterfly, ShiftUp} {
			for _, delta := range cases[be.Name()+"/"+mode.String()] {
				for _, st := range shuffleTypes {
					name := fmt.Sprintf("%s/%s/%d/%s", be.Name(), mode, delta, st.typ)
					t.Run(name, func(t *testing.T) {
						x := llir.NewParam("x", st.typ)
						f, b := newKernel(be, x)
						typed, err := b.Shuffle(x, delta, mode)
						require.NoError(t, err)
						assert.True(t, typed.Type().Equal(st.typ))
						raw, err := b.Shuffle(b.Bitcast(x, st.raw), delta, mode)
						require.NoError(t, err)

						warp := be.WarpSize()
						m := lanesim.New(warp, 1, 0)
						m.Bind(x, func(lane int) uint64 { return lanePattern(st.typ, lane) })
						run(t, m, f, b)
						for lane := 0; lane < warp; lane++ {
							want := lanePattern(st.typ, expectedSource(lane, delta, mode))
							got, err := m.Value(typed, lane)
							require.NoError(t, err)
							require.Equal(t, want, got, "lane %d", lane)
							gotRaw, err := m.Value(raw, lane)
							require.NoError(t, err)
							require.Equal(t, got, gotRaw, "lane %d", lane)
						}
					})
				}
			}
		}
	}
}

func TestShuffleSyncHelpers(t *testing.T) {
	x := llir.NewParam("x", types.I32)
	f, b := newKernel(NVPTX{}, x)
	bfly, err := b.ShflSync(x, 2)
	require.NoError(t, err)
	up, err := b.ShflUpSync(bfly, 4)
	require.NoError(t, err)
	m := lanesim.New(32, 1, 0)
	m.Bind(x, func(lane int) uint64 { return uint64(lane * 10) })
	run(t, m, f, b)
	for lane := 0; lane < 32; lane++ {
		src := lane
		if lane >= 4 {
			src = lane - 4
		}
		got, err := m.Value(up, lane)
		require.NoError(t, err)
		assert.Equal(t, uint64((src^2)*10), got, "lane %d", lane)
	}
}

func TestShuffleInvalid(t *testing.T) {
	for _, be := range allBackends {
		t.Run(be.Name(), func(t *testing.T) {
			x := llir.NewParam("x", types.I32)
			_, b := newKernel(be, x)
			_, err := b.Shuffle(x, be.WarpSize(), Butterfly)
			assertInvariant(t, err, ir.InvalidConfig)
			_, err = b.Shuffle(x, -1, ShiftUp)
			assertInvariant(t, err, ir.InvalidConfig)
			_, err = b.Shuffle(llir.NewParam("p", types.I1), 1, Butterfly)
			assertInvariant(t, err, ir.UnsupportedWidth)
			_, err = b.Shuffle(llir.NewParam("v", types.NewVector(4, types.I32)), 1, Butterfly)
			assertInvariant(t, err, ir.UnsupportedWidth)
		})
	}
}

func TestGCNShuffleInstructions(t *testing.T) {
	tests := []struct {
		delta int
		mode  ShuffleMode
		want  string
	}{
		{16, Butterfly, "ds_swizzle_b32 $0, $1 offset:0x401F"},
		{2, Butterfly, "ds_swizzle_b32 $0, $1 offset:0x081F"},
		{32, Butterfly, "ds_permute_b32 $0, $1, $2"},
		{3, Butterfly, "ds_bpermute_b32 $0, $1, $2"},
		{1, ShiftUp, "ds_bpermute_b32 $0, $1, $2"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.mode, tt.delta), func(t *testing.T) {
			x := llir.NewParam("x", types.I32)
			_, b := newKernel(AMDGCN{WaveSize: 64}, x)
			v, err := b.Shuffle(x, tt.delta, tt.mode)
			require.NoError(t, err)
			ia := v.(*llir.InstCall).Callee.(*llir.InlineAsm)
			assert.Equal(t, tt.want+"\ns_waitcnt lgkmcnt(0)", ia.Asm)
			assert.True(t, ia.SideEffect)
		})
	}
}
